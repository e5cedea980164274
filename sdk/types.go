package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Conversation is a conversation record as returned by mutating calls
type Conversation struct {
	Id             string `json:"id"`
	Kind           int32  `json:"kind"`
	Name           string `json:"name"`
	Status         int32  `json:"status"`
	CreatorId      string `json:"creator_id"`
	CreatedAt      int64  `json:"created_at"`
	LastActivityAt int64  `json:"last_activity_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// IsGroup reports whether the conversation is a group
func (c *Conversation) IsGroup() bool {
	return c.Kind == ConversationKindGroup
}

// ConversationInfo is a conversation as seen by the caller
type ConversationInfo struct {
	Id             string `json:"id"`
	Kind           int32  `json:"kind"`
	Name           string `json:"name,omitempty"`
	DisplayName    string `json:"display_name"`
	Status         int32  `json:"status"`
	CreatorId      string `json:"creator_id"`
	MaxSeq         int64  `json:"max_seq"`
	CreatedAt      int64  `json:"created_at"`
	LastActivityAt int64  `json:"last_activity_at"`
}

// Participant is a membership record
type Participant struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Role           int32  `json:"role"`
	Status         int32  `json:"status"`
	JoinedAt       int64  `json:"joined_at"`
	JoinSeq        int64  `json:"join_seq"`
	LeftSeq        int64  `json:"left_seq"`
	InviterUserId  string `json:"inviter_user_id"`
}

// ParticipantInfo is an active participant with display data
type ParticipantInfo struct {
	UserId     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar"`
	Role       int32  `json:"role"`
	JoinedAt   int64  `json:"joined_at"`
}

// Message is one entry of a conversation log
type Message struct {
	Id             string `json:"id"`
	ConversationId string `json:"conversation_id"`
	Seq            int64  `json:"seq"`
	SenderId       string `json:"sender_id"`
	ClientMsgId    string `json:"client_msg_id"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// RosterChange is the payload of a roster_changed event
type RosterChange struct {
	Action   string   `json:"action"`
	ActorId  string   `json:"actor_id"`
	UserIds  []string `json:"user_ids"`
	Promoted string   `json:"promoted,omitempty"`
}

// Event is a change pushed to live sessions
type Event struct {
	Id             string        `json:"id"`
	Type           string        `json:"type"`
	ConversationId string        `json:"conversation_id"`
	Seq            int64         `json:"seq,omitempty"`
	Message        *Message      `json:"message,omitempty"`
	Roster         *RosterChange `json:"roster,omitempty"`
	Name           string        `json:"name,omitempty"`
	At             int64         `json:"at"`
}

// ===== Request types =====

// StartDirectRequest opens or finds the direct conversation with Target,
// a user id or a portal identifier
type StartDirectRequest struct {
	Target string `json:"target"`
}

// CreateGroupRequest represents group creation request
type CreateGroupRequest struct {
	Name             string   `json:"name"`
	Members          []string `json:"members"`
	IdempotencyToken string   `json:"idempotency_token,omitempty"`
}

// MemberRequest names a member of a group
type MemberRequest struct {
	ConversationId string `json:"conversation_id"`
	Member         string `json:"member"`
}

// ConversationRequest names a conversation
type ConversationRequest struct {
	ConversationId string `json:"conversation_id"`
}

// RenameRequest represents a group rename
type RenameRequest struct {
	ConversationId string `json:"conversation_id"`
	Name           string `json:"name"`
}

// BlockRequest represents a block of a participant
type BlockRequest struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id,omitempty"`
	Content        string `json:"content"`
}

// PullMessagesResponse represents pull messages response
type PullMessagesResponse struct {
	Messages []*Message `json:"messages"`
	MaxSeq   int64      `json:"max_seq"`
}

// MaxSeqResponse represents max seq response
type MaxSeqResponse struct {
	MaxSeq int64 `json:"max_seq"`
}

// OnlineCountResponse represents an online count
type OnlineCountResponse struct {
	Scope string `json:"scope"`
	Count int    `json:"count"`
}
