package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/gateway"
	"github.com/mbeoliero/huddle/internal/handler"
	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Conversation *handler.ConversationHandler
	Moderation   *handler.ModerationHandler
	Message      *handler.MessageHandler
	Presence     *handler.PresenceHandler
}

// NewHandlers builds the HTTP handlers over the engine services
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Conversation: handler.NewConversationHandler(services.Conversation),
		Moderation:   handler.NewModerationHandler(services.Moderation),
		Message:      handler.NewMessageHandler(services.Message),
		Presence:     handler.NewPresenceHandler(services.Presence),
	}
}

// SetupRouter sets up all routes
func SetupRouter(r *route.Engine, cfg *config.Config, handlers *Handlers, wsServer *gateway.WsServer) {
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	r.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	auth := middleware.JWTAuth(cfg)

	convGroup := r.Group("/conversation", auth)
	{
		convGroup.POST("/direct", handlers.Conversation.StartDirect)
		convGroup.POST("/group", handlers.Conversation.CreateGroup)
		convGroup.POST("/member/add", handlers.Conversation.AddMember)
		convGroup.POST("/member/remove", handlers.Conversation.RemoveMember)
		convGroup.POST("/leave", handlers.Conversation.Leave)
		convGroup.GET("/participants", handlers.Conversation.ListParticipants)
		convGroup.GET("/info", handlers.Conversation.GetConversation)
		convGroup.GET("/list", handlers.Conversation.ListConversations)
	}

	modGroup := r.Group("/moderation", auth)
	{
		modGroup.POST("/rename", handlers.Moderation.Rename)
		modGroup.POST("/block", handlers.Moderation.Block)
		modGroup.POST("/delete", handlers.Moderation.Delete)
	}

	msgGroup := r.Group("/msg", auth)
	{
		msgGroup.POST("/send", handlers.Message.SendMessage)
		msgGroup.GET("/pull", handlers.Message.PullMessages)
		msgGroup.GET("/max_seq", handlers.Message.GetMaxSeq)
	}

	presenceGroup := r.Group("/presence", auth)
	{
		presenceGroup.GET("/online_count", handlers.Presence.OnlineCount)
	}

	// WebSocket route using hertz-contrib/websocket with origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	r.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	return middleware.OriginAllowed(string(ctx.Request.Header.Peek("Origin")), allowedOrigins)
}
