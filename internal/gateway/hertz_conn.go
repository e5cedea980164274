package gateway

import (
	"github.com/hertz-contrib/websocket"

	"github.com/mbeoliero/huddle/internal/config"
)

var _ frameConn = (*websocket.Conn)(nil)

// NewHertzWebSocketClientConn wraps a hertz-contrib/websocket connection
func NewHertzWebSocketClientConn(conn *websocket.Conn, cfg *config.WebSocketConfig) ClientConn {
	return newClientConn(conn, cfg)
}
