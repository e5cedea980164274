package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/response"
)

// ConversationHandler handles conversation-related requests
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// StartDirectRequest names the other party by user id or portal identifier
type StartDirectRequest struct {
	Target string `json:"target" validate:"required"`
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name             string   `json:"name"`
	Members          []string `json:"members"`
	IdempotencyToken string   `json:"idempotency_token"`
}

// MemberRequest names one member of a conversation
type MemberRequest struct {
	ConversationId string `json:"conversation_id" validate:"required"`
	Member         string `json:"member" validate:"required"`
}

// ConversationRequest names a conversation
type ConversationRequest struct {
	ConversationId string `json:"conversation_id" query:"conversation_id" validate:"required"`
}

// StartDirect handles start direct conversation request
func (h *ConversationHandler) StartDirect(ctx context.Context, c *app.RequestContext) {
	var req StartDirectRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	conv, err := h.convService.StartDirectConversation(ctx, middleware.GetUserId(c), req.Target)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, conv)
}

// CreateGroup handles create group request
func (h *ConversationHandler) CreateGroup(ctx context.Context, c *app.RequestContext) {
	var req CreateGroupRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	conv, err := h.convService.CreateGroupConversation(ctx, middleware.GetUserId(c), &service.CreateGroupRequest{
		Name:              req.Name,
		MemberIdentifiers: req.Members,
		IdempotencyToken:  req.IdempotencyToken,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, conv)
}

// AddMember handles add member request; member is a user id or identifier
func (h *ConversationHandler) AddMember(ctx context.Context, c *app.RequestContext) {
	var req MemberRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	p, err := h.convService.AddMember(ctx, req.ConversationId, middleware.GetUserId(c), req.Member)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, p)
}

// RemoveMember handles remove member request; member is a user id
func (h *ConversationHandler) RemoveMember(ctx context.Context, c *app.RequestContext) {
	var req MemberRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := h.convService.RemoveMember(ctx, req.ConversationId, middleware.GetUserId(c), req.Member); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// Leave handles leave conversation request
func (h *ConversationHandler) Leave(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := h.convService.LeaveConversation(ctx, req.ConversationId, middleware.GetUserId(c)); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// ListParticipants handles list active participants request
func (h *ConversationHandler) ListParticipants(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := bindQuery(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if _, err := h.convService.EnsureParticipant(ctx, req.ConversationId, middleware.GetUserId(c)); err != nil {
		response.Error(ctx, c, err)
		return
	}
	participants, err := h.convService.ListActiveParticipants(ctx, req.ConversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, participants)
}

// GetConversation handles get single conversation request
func (h *ConversationHandler) GetConversation(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := bindQuery(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	conv, err := h.convService.GetConversation(ctx, req.ConversationId, middleware.GetUserId(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, conv)
}

// ListConversations handles get conversation list request
func (h *ConversationHandler) ListConversations(ctx context.Context, c *app.RequestContext) {
	convs, err := h.convService.ListUserConversations(ctx, middleware.GetUserId(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, convs)
}
