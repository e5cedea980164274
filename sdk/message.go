package sdk

import (
	"context"
	"net/url"
	"strconv"
)

// SendMessage appends a message to a conversation.
// Resending the same ClientMsgId returns the original message.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	var result Message
	if err := c.post(ctx, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendText is a convenience wrapper around SendMessage
func (c *Client) SendText(ctx context.Context, conversationId, clientMsgId, text string) (*Message, error) {
	return c.SendMessage(ctx, &SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    clientMsgId,
		Content:        text,
	})
}

// PullMessages returns messages with seq > afterSeq that the caller may see.
// A limit of 0 lets the server pick the page size.
func (c *Client) PullMessages(ctx context.Context, conversationId string, afterSeq int64, limit int) (*PullMessagesResponse, error) {
	params := url.Values{"conversation_id": {conversationId}}
	if afterSeq > 0 {
		params.Set("after_seq", strconv.FormatInt(afterSeq, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result PullMessagesResponse
	if err := c.get(ctx, "/msg/pull", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetMaxSeq gets the max seq for a conversation
func (c *Client) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	var result MaxSeqResponse
	if err := c.get(ctx, "/msg/max_seq", url.Values{"conversation_id": {conversationId}}, &result); err != nil {
		return 0, err
	}
	return result.MaxSeq, nil
}
