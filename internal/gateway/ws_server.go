package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/jwt"
)

// Authenticator turns a bearer token into claims
type Authenticator func(token string) (*jwt.Claims, error)

// WsServer is the WebSocket server
type WsServer struct {
	upgrader       *websocket.Upgrader
	allowedOrigins []string
	cfg            *config.WebSocketConfig
	authenticate   Authenticator
	presence       *service.PresenceService
	messages       *service.MessageService
	mu             sync.Mutex
	clients        map[string]*Client // session id -> client
	onlineConnNum  atomic.Int64
}

// Option configures a WsServer
type Option func(s *WsServer)

// WithAllowedOrigins sets the browser origins accepted on the net/http upgrade path
func WithAllowedOrigins(origins []string) Option {
	return func(s *WsServer) {
		s.allowedOrigins = origins
	}
}

// NewWsServer creates a new WebSocket server
func NewWsServer(cfg *config.WebSocketConfig, authenticate Authenticator, services *service.Services, opts ...Option) *WsServer {
	s := &WsServer{
		cfg:          cfg,
		authenticate: authenticate,
		presence:     services.Presence,
		messages:     services.Message,
		clients:      make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(r.Header.Get("Origin"), s.allowedOrigins)
		},
	}
	return s
}

// authorize validates the handshake parameters and returns the claims
func (s *WsServer) authorize(token, sendId, platformIdStr string) (*jwt.Claims, error) {
	if token == "" || sendId == "" {
		return nil, errcode.ErrInvalidParam
	}
	claims, err := s.authenticate(token)
	if err != nil {
		return nil, err
	}
	if claims.UserId != sendId {
		return nil, errcode.ErrTokenMismatch
	}
	if platformIdStr != "" {
		platformId, err := strconv.Atoi(platformIdStr)
		if err != nil || platformId != claims.PlatformId {
			return nil, errcode.ErrTokenMismatch
		}
	}
	return claims, nil
}

// handshakeStatus maps a handshake error to an HTTP status
func handshakeStatus(err error) int {
	switch {
	case errors.Is(err, errcode.ErrInvalidParam):
		return http.StatusBadRequest
	case errors.Is(err, errcode.ErrConnOverLimit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

// openSession checks the connection limit and opens an engine session.
// The session exists before the upgrade completes, so events committed
// after the handshake are never missed.
func (s *WsServer) openSession(ctx context.Context, token, sendId, platformIdStr string) (*jwt.Claims, *fanout.Session, error) {
	if s.onlineConnNum.Load() >= s.cfg.MaxConnNum {
		return nil, nil, errcode.ErrConnOverLimit
	}
	claims, err := s.authorize(token, sendId, platformIdStr)
	if err != nil {
		log.CtxDebug(ctx, "handshake rejected: send_id=%s, error=%v", sendId, err)
		return nil, nil, err
	}
	session, err := s.presence.Connect(ctx, claims.UserId)
	if err != nil {
		return nil, nil, err
	}
	return claims, session, nil
}

// HandleConnection handles a new WebSocket connection on a net/http server
func (s *WsServer) HandleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if !s.upgrader.CheckOrigin(r) {
		log.CtxDebug(ctx, "handshake rejected: origin=%s", r.Header.Get("Origin"))
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	query := r.URL.Query()
	claims, session, err := s.openSession(ctx, query.Get(QueryToken), query.Get(QuerySendId), query.Get(QueryPlatformId))
	if err != nil {
		http.Error(w, errcode.From(err).Msg, handshakeStatus(err))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.CtxWarn(ctx, "websocket upgrade failed: %v", err)
		s.presence.Disconnect(ctx, session.Id)
		return
	}

	client := NewClient(NewWebSocketClientConn(conn, s.cfg), session, claims.PlatformId, s)
	s.registerClient(ctx, client)
	client.Start()
}

// registerClient registers a client
func (s *WsServer) registerClient(ctx context.Context, client *Client) {
	s.mu.Lock()
	s.clients[client.SessionId] = client
	s.mu.Unlock()
	s.onlineConnNum.Add(1)

	log.CtxInfo(ctx, "client registered: user_id=%s, platform=%s, session_id=%s, online_conns=%d",
		client.UserId, constant.PlatformIdToName(client.PlatformId), client.SessionId, s.onlineConnNum.Load())
}

// unregisterClient unregisters a client and ends its session
func (s *WsServer) unregisterClient(ctx context.Context, client *Client) {
	s.mu.Lock()
	_, ok := s.clients[client.SessionId]
	delete(s.clients, client.SessionId)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.presence.Disconnect(ctx, client.SessionId)
	s.onlineConnNum.Add(-1)

	log.CtxInfo(ctx, "client unregistered: user_id=%s, session_id=%s, closed_err=%v, online_conns=%d",
		client.UserId, client.SessionId, client.closedErr, s.onlineConnNum.Load())
}

// GetOnlineConnCount returns online connection count
func (s *WsServer) GetOnlineConnCount() int64 {
	return s.onlineConnNum.Load()
}

// Shutdown closes every client connection
func (s *WsServer) Shutdown(ctx context.Context) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	log.CtxInfo(ctx, "websocket server closed %d connections", len(clients))
}

// ========== Message Handlers ==========

// HandleHeartbeat handles a heartbeat request
func (s *WsServer) HandleHeartbeat(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var hbReq HeartbeatReq
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &hbReq); err != nil {
			return nil, errcode.ErrInvalidParam
		}
	}
	return nil, s.presence.Heartbeat(ctx, client.SessionId, hbReq.ConversationId)
}

// HandleSendMsg handles send message request
func (s *WsServer) HandleSendMsg(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var sendReq SendMsgReq
	if err := json.Unmarshal(req.Data, &sendReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}

	msg, err := s.messages.SendMessage(ctx, sendReq.ConversationId, client.UserId, &service.SendMessageRequest{
		ClientMsgId: sendReq.ClientMsgId,
		Content:     sendReq.Content,
	})
	if err != nil {
		return nil, err
	}
	return newSendMsgResp(msg), nil
}

// HandlePullMsg handles pull messages request
func (s *WsServer) HandlePullMsg(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var pullReq PullMsgReq
	if err := json.Unmarshal(req.Data, &pullReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}
	return s.messages.PullSince(ctx, pullReq.ConversationId, client.UserId, pullReq.AfterSeq, pullReq.Limit)
}

// HandleSync handles a sync request for the client's session
func (s *WsServer) HandleSync(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var syncReq SyncReq
	if err := json.Unmarshal(req.Data, &syncReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}
	return s.messages.Sync(ctx, client.SessionId, syncReq.ConversationId, syncReq.AfterSeq, syncReq.Limit)
}

// HandleOnlineCount handles an online count request
func (s *WsServer) HandleOnlineCount(ctx context.Context, client *Client, req *WSRequest) (any, error) {
	var countReq OnlineCountReq
	if err := json.Unmarshal(req.Data, &countReq); err != nil {
		return nil, errcode.ErrInvalidParam
	}
	n, err := s.presence.OnlineCountFor(ctx, countReq.ConversationId, client.UserId, countReq.Scope)
	if err != nil {
		return nil, err
	}
	return &OnlineCountResp{Count: n}, nil
}
