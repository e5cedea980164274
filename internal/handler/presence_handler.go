package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/response"
)

// PresenceHandler answers online queries
type PresenceHandler struct {
	presenceService *service.PresenceService
}

// NewPresenceHandler creates a new PresenceHandler
func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// OnlineCountRequest represents online count request
type OnlineCountRequest struct {
	ConversationId string `query:"conversation_id" validate:"required"`
	Scope          string `query:"scope" validate:"omitempty,oneof=anywhere viewing"`
}

// OnlineCount handles online count request
func (h *PresenceHandler) OnlineCount(ctx context.Context, c *app.RequestContext) {
	var req OnlineCountRequest
	if err := bindQuery(c, &req); err != nil {
		response.Error(ctx, c, err)
		return
	}
	if req.Scope == "" {
		req.Scope = constant.PresenceScopeAnywhere
	}

	n, err := h.presenceService.OnlineCountFor(ctx, req.ConversationId, middleware.GetUserId(c), req.Scope)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]any{"scope": req.Scope, "count": n})
}
