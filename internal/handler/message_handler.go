package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/response"
)

// MessageHandler handles message-related requests
type MessageHandler struct {
	msgService *service.MessageService
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(msgService *service.MessageService) *MessageHandler {
	return &MessageHandler{msgService: msgService}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id" validate:"required"`
	ClientMsgId    string `json:"client_msg_id" validate:"max=64"`
	Content        string `json:"content"`
}

// PullMessagesRequest represents pull messages request
type PullMessagesRequest struct {
	ConversationId string `query:"conversation_id" validate:"required"`
	AfterSeq       int64  `query:"after_seq" validate:"gte=0"`
	Limit          int    `query:"limit" validate:"gte=0"`
}

// SendMessage handles send message request (HTTP fallback)
func (h *MessageHandler) SendMessage(ctx context.Context, c *app.RequestContext) {
	var req SendMessageRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	msg, err := h.msgService.SendMessage(ctx, req.ConversationId, middleware.GetUserId(c), &service.SendMessageRequest{
		ClientMsgId: req.ClientMsgId,
		Content:     req.Content,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, msg)
}

// PullMessages handles pull messages request
func (h *MessageHandler) PullMessages(ctx context.Context, c *app.RequestContext) {
	var req PullMessagesRequest
	if err := bindQuery(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := h.msgService.PullSince(ctx, req.ConversationId, middleware.GetUserId(c), req.AfterSeq, req.Limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// GetMaxSeq handles get max seq request
func (h *MessageHandler) GetMaxSeq(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := bindQuery(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	maxSeq, err := h.msgService.GetMaxSeq(ctx, req.ConversationId, middleware.GetUserId(c))
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]int64{"max_seq": maxSeq})
}
