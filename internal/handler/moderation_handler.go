package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/response"
)

// ModerationHandler handles rename, block and delete requests
type ModerationHandler struct {
	modService *service.ModerationService
}

// NewModerationHandler creates a new ModerationHandler
func NewModerationHandler(modService *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{modService: modService}
}

// RenameRequest represents rename conversation request
type RenameRequest struct {
	ConversationId string `json:"conversation_id" validate:"required"`
	Name           string `json:"name"`
}

// BlockRequest represents block participant request
type BlockRequest struct {
	ConversationId string `json:"conversation_id" validate:"required"`
	UserId         string `json:"user_id" validate:"required"`
}

// Rename handles rename conversation request
func (h *ModerationHandler) Rename(ctx context.Context, c *app.RequestContext) {
	var req RenameRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	conv, err := h.modService.RenameConversation(ctx, req.ConversationId, middleware.GetUserId(c), req.Name)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, conv)
}

// Block handles block participant request
func (h *ModerationHandler) Block(ctx context.Context, c *app.RequestContext) {
	var req BlockRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := h.modService.BlockParticipant(ctx, req.ConversationId, middleware.GetUserId(c), req.UserId); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}

// Delete handles delete conversation request
func (h *ModerationHandler) Delete(ctx context.Context, c *app.RequestContext) {
	var req ConversationRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := h.modService.DeleteConversation(ctx, req.ConversationId, middleware.GetUserId(c)); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, nil)
}
