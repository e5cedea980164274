package gateway

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/pkg/errcode"
)

// HandleHertzConnection handles a WebSocket connection from Hertz using hertz-contrib/websocket
func (s *WsServer) HandleHertzConnection(ctx context.Context, c *app.RequestContext, upgrader *websocket.HertzUpgrader) {
	claims, session, err := s.openSession(ctx,
		string(c.Query(QueryToken)), string(c.Query(QuerySendId)), string(c.Query(QueryPlatformId)))
	if err != nil {
		c.String(handshakeStatus(err), errcode.From(err).Msg)
		return
	}

	err = upgrader.Upgrade(c, func(conn *websocket.Conn) {
		client := NewClient(NewHertzWebSocketClientConn(conn, s.cfg), session, claims.PlatformId, s)
		s.registerClient(ctx, client)

		// Blocks until the connection is gone
		client.Run()
	})
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		s.presence.Disconnect(ctx, session.Id)
	}
}
