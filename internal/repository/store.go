package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// Store is the durable state behind conversations and their message logs.
//
// Every method is atomic. Errors are business errors from pkg/errcode:
// ErrNotFound for missing rows, ErrSeqConflict when an append loses a race,
// ErrTransientStore for infrastructure failures.
type Store interface {
	// CreateConversation inserts the conversation together with its participants.
	// When conv.DedupKey is already taken, nothing is written and the existing
	// conversation is returned with created=false.
	CreateConversation(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant) (*entity.Conversation, bool, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	// GetConversationByDedupKey returns nil, nil when no conversation holds the key
	GetConversationByDedupKey(ctx context.Context, key string) (*entity.Conversation, error)
	// ListUserConversations returns active conversations the user actively participates in,
	// most recent activity first
	ListUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, error)
	UpdateConversation(ctx context.Context, update *ConversationUpdate) error

	// GetParticipant returns nil, nil when the user never participated
	GetParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error)
	ListParticipants(ctx context.Context, conversationId string) ([]*entity.Participant, error)

	// AppendMessage stores msg when msg.Seq is exactly max seq + 1
	AppendMessage(ctx context.Context, msg *entity.Message) error
	// GetMaxSeq may be answered from a cache that trails a concurrent append
	GetMaxSeq(ctx context.Context, conversationId string) (int64, error)
	// LoadMaxSeq reads the committed max seq, bypassing any cache.
	// Callers that derive a seq for a write use it.
	LoadMaxSeq(ctx context.Context, conversationId string) (int64, error)
	// ListMessages returns messages with afterSeq < seq <= uptoSeq in ascending order
	ListMessages(ctx context.Context, conversationId string, afterSeq, uptoSeq int64, limit int) ([]*entity.Message, error)
	// GetMessageByClientMsgId returns nil, nil when the sender never used the id
	GetMessageByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error)

	CheckConnection(ctx context.Context) error
	Close() error
}

// ConversationUpdate is applied to a conversation and its roster in one transaction
type ConversationUpdate struct {
	ConversationId string
	// Participants are upserted by (conversation_id, user_id)
	Participants  []*entity.Participant
	Name          *string
	Delete        bool
	ClearDedupKey bool
	At            int64
}

// storeError converts an infrastructure error into a business error
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var bizErr *errcode.Error
	if errors.As(err, &bizErr) {
		return bizErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errcode.ErrNotFound
	}
	return errcode.ErrTransientStore.Wrap(err)
}
