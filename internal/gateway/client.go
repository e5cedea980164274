package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// Client is one WebSocket connection bound to one engine session
type Client struct {
	mu         sync.Mutex
	conn       ClientConn
	session    *fanout.Session
	UserId     string
	PlatformId int
	SessionId  string
	server     *WsServer
	closed     atomic.Bool
	closedErr  error
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient creates a new client
func NewClient(conn ClientConn, session *fanout.Session, platformId int, server *WsServer) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:       conn,
		session:    session,
		UserId:     session.UserId,
		PlatformId: platformId,
		SessionId:  session.Id,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start serves the client in the background
func (c *Client) Start() {
	go c.pushLoop()
	go c.readLoop()
}

// Run serves the client and returns once the connection is gone
func (c *Client) Run() {
	go c.pushLoop()
	c.readLoop()
}

// readLoop continuously reads messages from the connection
func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.closedErr = ErrPanic
			log.CtxError(c.ctx, "client read loop panic: user_id=%s, error=%v", c.UserId, r)
		}
		c.close()
	}()

	for {
		message, err := c.conn.ReadMessage()
		if err != nil {
			log.CtxDebug(c.ctx, "read message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}

		if c.closed.Load() {
			c.closedErr = ErrConnClosed
			return
		}

		if err := c.handleMessage(message); err != nil {
			log.CtxWarn(c.ctx, "handle message error: user_id=%s, error=%v", c.UserId, err)
			c.closedErr = err
			return
		}
	}
}

// pushLoop forwards session events to the connection in order
func (c *Client) pushLoop() {
	events := c.session.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				c.kick(c.session.Err())
				return
			}
			if err := c.push(evt); err != nil {
				log.CtxWarn(c.ctx, "push event failed: user_id=%s, session_id=%s, error=%v", c.UserId, c.SessionId, err)
				c.Close()
				return
			}
		}
	}
}

// handleMessage handles a single incoming message. Only write failures
// end the connection; request errors are replied to.
func (c *Client) handleMessage(message []byte) error {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		req.ReqIdentifier = WSDataError
		return c.replyError(&req, errcode.ErrInvalidProtocol)
	}

	if req.SendId != "" && req.SendId != c.UserId {
		return c.replyError(&req, errcode.ErrTokenMismatch)
	}

	log.CtxDebug(c.ctx, "received message: req_identifier=%d, user_id=%s", req.ReqIdentifier, c.UserId)

	var (
		resp any
		err  error
	)
	switch req.ReqIdentifier {
	case WSHeartbeat:
		resp, err = c.server.HandleHeartbeat(c.ctx, c, &req)
	case WSSendMsg:
		resp, err = c.server.HandleSendMsg(c.ctx, c, &req)
	case WSPullMsg:
		resp, err = c.server.HandlePullMsg(c.ctx, c, &req)
	case WSSync:
		resp, err = c.server.HandleSync(c.ctx, c, &req)
	case WSOnlineCount:
		resp, err = c.server.HandleOnlineCount(c.ctx, c, &req)
	default:
		return c.replyError(&req, errcode.ErrInvalidProtocol)
	}

	if err != nil {
		return c.replyError(&req, err)
	}
	return c.reply(&req, resp)
}

// reply sends a success response to the client
func (c *Client) reply(req *WSRequest, data any) error {
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		resp.Data = raw
	}
	return c.writeResponse(resp)
}

// replyError sends an error response
func (c *Client) replyError(req *WSRequest, err error) error {
	e := errcode.From(err)
	resp := WSResponse{
		ReqIdentifier: req.ReqIdentifier,
		MsgIncr:       req.MsgIncr,
		OperationId:   req.OperationId,
		ErrCode:       e.Code,
		ErrMsg:        e.Msg,
	}
	return c.writeResponse(resp)
}

// writeResponse writes a response to the connection
func (c *Client) writeResponse(resp WSResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return c.conn.WriteMessage(data)
}

// push sends one committed event to the client
func (c *Client) push(evt *entity.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.writeResponse(WSResponse{
		ReqIdentifier: WSPushEvent,
		Data:          data,
	})
}

// kick tells the client why its session ended and closes the connection.
// A session detached by our own disconnect needs no notice.
func (c *Client) kick(reason error) {
	if reason == nil || errors.Is(reason, fanout.ErrDetached) || c.closed.Load() {
		c.Close()
		return
	}

	e := errcode.ErrSessionNotFound.Wrap(reason)
	if errors.Is(reason, fanout.ErrSlowConsumer) {
		e = errcode.ErrSlowConsumer
	}
	log.CtxInfo(c.ctx, "kicking client: user_id=%s, session_id=%s, reason=%v", c.UserId, c.SessionId, reason)

	data, _ := json.Marshal(KickData{Code: e.Code, Msg: e.Msg})
	_ = c.writeResponse(WSResponse{
		ReqIdentifier: WSKickOnlineMsg,
		ErrCode:       e.Code,
		ErrMsg:        e.Msg,
		Data:          data,
	})
	c.Close()
}

// Close closes the client connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.closed.Store(true)
	c.cancel()
	return c.conn.Close()
}

// close handles cleanup when the read side ends
func (c *Client) close() {
	c.Close()
	c.server.unregisterClient(context.Background(), c)
}

// IsClosed returns whether the client is closed
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
