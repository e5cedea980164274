package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/huddle/internal/entity"
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"` // Client trace id, echoed back
	OperationId   string          `json:"operation_id"`
	SendId        string          `json:"send_id"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// WSResponse represents a WebSocket response or push
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id"`
	ErrCode       int             `json:"err_code"` // 0 = success
	ErrMsg        string          `json:"err_msg"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// HeartbeatReq names the conversation the client is viewing, if any
type HeartbeatReq struct {
	ConversationId string `json:"conversation_id"`
}

// SendMsgReq represents send message request data
type SendMsgReq struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	Content        string `json:"content"`
}

// SendMsgResp represents send message response data
type SendMsgResp struct {
	MessageId      string `json:"message_id"`
	ConversationId string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	ClientMsgId    string `json:"client_msg_id"`
	CreatedAt      int64  `json:"created_at"`
}

// PullMsgReq reads messages with seq > AfterSeq
type PullMsgReq struct {
	ConversationId string `json:"conversation_id"`
	AfterSeq       int64  `json:"after_seq"`
	Limit          int    `json:"limit"`
}

// SyncReq has the same shape as a pull but also pins the live floor
type SyncReq = PullMsgReq

// OnlineCountReq represents an online count query
type OnlineCountReq struct {
	ConversationId string `json:"conversation_id"`
	Scope          string `json:"scope"`
}

// OnlineCountResp represents an online count answer
type OnlineCountResp struct {
	Count int `json:"count"`
}

// KickData tells the client why the server closed its session
type KickData struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func newSendMsgResp(msg *entity.Message) *SendMsgResp {
	return &SendMsgResp{
		MessageId:      msg.Id,
		ConversationId: msg.ConversationId,
		Seq:            msg.Seq,
		ClientMsgId:    msg.ClientMsgId,
		CreatedAt:      msg.CreatedAt,
	}
}

// Encode encodes data to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
