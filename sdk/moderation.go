package sdk

import "context"

// Rename renames a group
func (c *Client) Rename(ctx context.Context, conversationId, name string) (*Conversation, error) {
	var result Conversation
	req := &RenameRequest{ConversationId: conversationId, Name: name}
	if err := c.post(ctx, "/moderation/rename", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Block removes userId from the conversation and keeps them out
func (c *Client) Block(ctx context.Context, conversationId, userId string) error {
	return c.post(ctx, "/moderation/block", &BlockRequest{ConversationId: conversationId, UserId: userId}, nil)
}

// Delete closes the conversation for good; history stays readable
func (c *Client) Delete(ctx context.Context, conversationId string) error {
	return c.post(ctx, "/moderation/delete", &ConversationRequest{ConversationId: conversationId}, nil)
}
