package sdk

import (
	"context"
	"net/url"
)

// StartDirect opens the direct conversation with target, or returns the existing one
func (c *Client) StartDirect(ctx context.Context, target string) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, "/conversation/direct", &StartDirectRequest{Target: target}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateGroup creates a group administered by the caller
func (c *Client) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, "/conversation/group", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AddMember adds member to a group; only admins may do this
func (c *Client) AddMember(ctx context.Context, conversationId, member string) (*Participant, error) {
	var result Participant
	req := &MemberRequest{ConversationId: conversationId, Member: member}
	if err := c.post(ctx, "/conversation/member/add", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoveMember removes member from a group
func (c *Client) RemoveMember(ctx context.Context, conversationId, member string) error {
	req := &MemberRequest{ConversationId: conversationId, Member: member}
	return c.post(ctx, "/conversation/member/remove", req, nil)
}

// Leave leaves a group
func (c *Client) Leave(ctx context.Context, conversationId string) error {
	return c.post(ctx, "/conversation/leave", &ConversationRequest{ConversationId: conversationId}, nil)
}

// ListParticipants lists the active participants of a conversation
func (c *Client) ListParticipants(ctx context.Context, conversationId string) ([]*ParticipantInfo, error) {
	var result []*ParticipantInfo
	params := url.Values{"conversation_id": {conversationId}}
	if err := c.get(ctx, "/conversation/participants", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	var result ConversationInfo
	params := url.Values{"conversation_id": {conversationId}}
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConversationList gets the active conversations of the current user
func (c *Client) GetConversationList(ctx context.Context) ([]*ConversationInfo, error) {
	var result []*ConversationInfo
	if err := c.get(ctx, "/conversation/list", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}
