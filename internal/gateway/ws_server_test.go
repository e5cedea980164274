package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/huddle/internal/arena"
	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/internal/identity"
	"github.com/mbeoliero/huddle/internal/presence"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/jwt"
)

const (
	testSecret = "gateway-test-secret"
	alice      = "st__1"
	bob        = "st__2"
)

type testGateway struct {
	services *service.Services
	tracker  *presence.Tracker
	server   *WsServer
	http     *httptest.Server
}

func newTestGateway(t *testing.T, opts ...Option) *testGateway {
	t.Helper()

	var cfg config.Config
	cfg.SetDefaults()

	hub := fanout.NewHub(cfg.Engine.SessionBufferSize)
	tracker := presence.NewTracker(time.Minute, presence.WithExpireFunc(service.DetachOnExpire(hub)))
	workers := arena.New(cfg.Engine.WorkerQueueSize, cfg.Engine.WorkerIdleTimeout)
	t.Cleanup(workers.Close)

	services := service.NewServices(&service.Deps{
		Store: repository.NewMemoryStore(),
		Resolver: identity.NewStaticResolver(
			&entity.User{Id: alice, Identifier: "S001", Nickname: "Alice"},
			&entity.User{Id: bob, Identifier: "S002", Nickname: "Bob"},
		),
		Arena:    workers,
		Hub:      hub,
		Presence: tracker,
		Engine:   cfg.Engine,
	})

	server := NewWsServer(&cfg.WebSocket, func(token string) (*jwt.Claims, error) {
		return jwt.ParseToken(token, testSecret)
	}, services, opts...)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.HandleConnection(r.Context(), w, r)
	}))
	t.Cleanup(ts.Close)

	return &testGateway{services: services, tracker: tracker, server: server, http: ts}
}

func (g *testGateway) url(token, sendId string, platformId int) string {
	q := url.Values{}
	q.Set(QueryToken, token)
	q.Set(QuerySendId, sendId)
	q.Set(QueryPlatformId, strconv.Itoa(platformId))
	return "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws?" + q.Encode()
}

func (g *testGateway) dial(t *testing.T, userId string) *websocket.Conn {
	t.Helper()
	token, err := jwt.GenerateToken(userId, constant.PlatformIdWeb, testSecret, 1)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(g.url(token, userId, constant.PlatformIdWeb), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func request(t *testing.T, conn *websocket.Conn, ident int32, msgIncr string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	req, err := json.Marshal(WSRequest{ReqIdentifier: ident, MsgIncr: msgIncr, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))
}

// readUntil returns the next frame with the wanted identifier, skipping others
func readUntil(t *testing.T, conn *websocket.Conn, ident int32) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var resp WSResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		if resp.ReqIdentifier == ident {
			return resp
		}
	}
}

func TestHandshakeRejections(t *testing.T) {
	g := newTestGateway(t)
	valid, err := jwt.GenerateToken(alice, constant.PlatformIdWeb, testSecret, 1)
	require.NoError(t, err)
	forged, err := jwt.GenerateToken(alice, constant.PlatformIdWeb, "other-secret", 1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		status int
	}{
		{name: "missing token", url: g.url("", alice, constant.PlatformIdWeb), status: http.StatusBadRequest},
		{name: "bad signature", url: g.url(forged, alice, constant.PlatformIdWeb), status: http.StatusUnauthorized},
		{name: "user mismatch", url: g.url(valid, bob, constant.PlatformIdWeb), status: http.StatusUnauthorized},
		{name: "platform mismatch", url: g.url(valid, alice, constant.PlatformIdIOS), status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Zero(t, g.server.GetOnlineConnCount())
}

func TestHandshakeChecksOrigin(t *testing.T) {
	g := newTestGateway(t, WithAllowedOrigins([]string{"https://portal.example.edu"}))
	token, err := jwt.GenerateToken(alice, constant.PlatformIdWeb, testSecret, 1)
	require.NoError(t, err)
	u := g.url(token, alice, constant.PlatformIdWeb)

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, g.tracker.Len())

	header.Set("Origin", "https://PORTAL.example.edu")
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestSendIsPushedToOtherSessions(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	conv, err := g.services.Conversation.StartDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	aliceConn := g.dial(t, alice)
	bobConn := g.dial(t, bob)

	// Bob pins his live floor before anything is sent
	request(t, bobConn, WSSync, "sync-1", SyncReq{ConversationId: conv.Id})
	resp := readUntil(t, bobConn, WSSync)
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var synced service.SyncResult
	require.NoError(t, json.Unmarshal(resp.Data, &synced))
	assert.Zero(t, synced.Floor)
	assert.Empty(t, synced.Messages)

	// Alice sends
	request(t, aliceConn, WSSendMsg, "send-1", SendMsgReq{ConversationId: conv.Id, ClientMsgId: "c-1", Content: "hello"})
	resp = readUntil(t, aliceConn, WSSendMsg)
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	assert.Equal(t, "send-1", resp.MsgIncr)
	var sent SendMsgResp
	require.NoError(t, json.Unmarshal(resp.Data, &sent))
	assert.Equal(t, int64(1), sent.Seq)
	assert.Equal(t, "c-1", sent.ClientMsgId)

	// Bob receives it live
	push := readUntil(t, bobConn, WSPushEvent)
	var evt entity.Event
	require.NoError(t, json.Unmarshal(push.Data, &evt))
	assert.Equal(t, entity.EventMessageAppended, evt.Type)
	require.NotNil(t, evt.Message)
	assert.Equal(t, "hello", evt.Message.Content)
	assert.Equal(t, int64(1), evt.Seq)

	// And can pull it from history
	request(t, bobConn, WSPullMsg, "pull-1", PullMsgReq{ConversationId: conv.Id})
	resp = readUntil(t, bobConn, WSPullMsg)
	require.Zero(t, resp.ErrCode, resp.ErrMsg)
	var pulled service.PullResult
	require.NoError(t, json.Unmarshal(resp.Data, &pulled))
	require.Len(t, pulled.Messages, 1)
	assert.Equal(t, int64(1), pulled.MaxSeq)
}

func TestHeartbeatAndOnlineCount(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	conv, err := g.services.Conversation.StartDirectConversation(ctx, alice, bob)
	require.NoError(t, err)

	aliceConn := g.dial(t, alice)
	bobConn := g.dial(t, bob)

	request(t, bobConn, WSHeartbeat, "hb-1", HeartbeatReq{ConversationId: conv.Id})
	resp := readUntil(t, bobConn, WSHeartbeat)
	require.Zero(t, resp.ErrCode, resp.ErrMsg)

	counts := map[string]int{
		constant.PresenceScopeAnywhere: 2,
		constant.PresenceScopeViewing:  1,
	}
	for scope, want := range counts {
		request(t, aliceConn, WSOnlineCount, scope, OnlineCountReq{ConversationId: conv.Id, Scope: scope})
		resp = readUntil(t, aliceConn, WSOnlineCount)
		require.Zero(t, resp.ErrCode, resp.ErrMsg)
		var got OnlineCountResp
		require.NoError(t, json.Unmarshal(resp.Data, &got))
		assert.Equal(t, want, got.Count, "scope %s", scope)
	}
}

func TestRequestErrorsAreReplied(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, alice)

	// Errors keep the connection open and carry the business code
	request(t, conn, WSSendMsg, "send-1", SendMsgReq{ConversationId: "missing", Content: "hi"})
	resp := readUntil(t, conn, WSSendMsg)
	assert.Equal(t, errcode.ErrNotFound.Code, resp.ErrCode)

	request(t, conn, 9999, "bogus", struct{}{})
	resp = readUntil(t, conn, 9999)
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, resp.ErrCode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp = readUntil(t, conn, WSDataError)
	assert.Equal(t, errcode.ErrInvalidProtocol.Code, resp.ErrCode)

	request(t, conn, WSHeartbeat, "hb", HeartbeatReq{})
	resp = readUntil(t, conn, WSHeartbeat)
	assert.Zero(t, resp.ErrCode)
}

func TestDisconnectEndsSession(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, alice)
	require.Eventually(t, func() bool { return g.server.GetOnlineConnCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return g.server.GetOnlineConnCount() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, g.tracker.IsOnline(context.Background(), alice))
}
