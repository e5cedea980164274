package repository

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// CreateConversation implements Store
func (r *Repositories) CreateConversation(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant) (*entity.Conversation, bool, error) {
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		if err := r.Conversation.Create(ctx, tx, conv); err != nil {
			return err
		}
		if err := r.Seq.EnsureSeqConversationExists(ctx, tx, conv.Id); err != nil {
			return err
		}
		for _, p := range participants {
			if err := r.Participant.Upsert(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return conv, true, nil
	}

	// Lost the race on the dedup key: hand back the winner
	if errors.Is(err, gorm.ErrDuplicatedKey) && conv.DedupKey != nil {
		existing, getErr := r.Conversation.GetByDedupKey(ctx, *conv.DedupKey)
		if getErr != nil {
			return nil, false, storeError(getErr)
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, storeError(err)
}

// GetConversation implements Store
func (r *Repositories) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	conv, err := r.Conversation.GetById(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return conv, nil
}

// GetConversationByDedupKey implements Store
func (r *Repositories) GetConversationByDedupKey(ctx context.Context, key string) (*entity.Conversation, error) {
	conv, err := r.Conversation.GetByDedupKey(ctx, key)
	if err != nil {
		return nil, storeError(err)
	}
	return conv, nil
}

// ListUserConversations implements Store
func (r *Repositories) ListUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	convs, err := r.Conversation.GetUserConversations(ctx, userId)
	if err != nil {
		return nil, storeError(err)
	}
	return convs, nil
}

// UpdateConversation implements Store
func (r *Repositories) UpdateConversation(ctx context.Context, update *ConversationUpdate) error {
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		for _, p := range update.Participants {
			if err := r.Participant.Upsert(ctx, tx, p); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"updated_at":       update.At,
			"last_activity_at": update.At,
		}
		if update.Name != nil {
			updates["name"] = *update.Name
		}
		if update.Delete {
			updates["status"] = constant.ConversationStatusDeleted
			if update.ClearDedupKey {
				updates["dedup_key"] = nil
			}
		}
		return r.Conversation.Update(ctx, tx, update.ConversationId, updates)
	})
	return storeError(err)
}

// GetParticipant implements Store
func (r *Repositories) GetParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error) {
	p, err := r.Participant.Get(ctx, conversationId, userId)
	if err != nil {
		return nil, storeError(err)
	}
	return p, nil
}

// ListParticipants implements Store
func (r *Repositories) ListParticipants(ctx context.Context, conversationId string) ([]*entity.Participant, error) {
	ps, err := r.Participant.ListByConversation(ctx, conversationId)
	if err != nil {
		return nil, storeError(err)
	}
	return ps, nil
}

// AppendMessage implements Store
func (r *Repositories) AppendMessage(ctx context.Context, msg *entity.Message) error {
	err := r.Transaction(ctx, func(tx *gorm.DB) error {
		// The row lock serializes appends across instances until commit
		current, err := r.Seq.LoadMaxSeq(ctx, tx, msg.ConversationId, true)
		if err != nil {
			return err
		}
		if current != msg.Seq-1 {
			log.CtxWarn(ctx, "append lost seq race: conversation_id=%s, seq=%d, committed=%d", msg.ConversationId, msg.Seq, current)
			return errcode.ErrSeqConflict
		}
		ok, err := r.Seq.Advance(ctx, tx, msg.ConversationId, msg.Seq-1, msg.Seq)
		if err != nil {
			return err
		}
		if !ok {
			return errcode.ErrSeqConflict
		}
		if err := r.Message.Create(ctx, tx, msg); err != nil {
			return err
		}
		return r.Conversation.Update(ctx, tx, msg.ConversationId, map[string]interface{}{
			"last_activity_at": msg.CreatedAt,
		})
	})
	if err != nil {
		r.Seq.InvalidateCache(ctx, msg.ConversationId)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errcode.ErrSeqConflict
		}
		return storeError(err)
	}

	r.Seq.CacheMaxSeq(ctx, msg.ConversationId, msg.Seq)
	return nil
}

// GetMaxSeq implements Store
func (r *Repositories) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	seq, err := r.Seq.GetMaxSeq(ctx, conversationId)
	if err != nil {
		return 0, storeError(err)
	}
	return seq, nil
}

// LoadMaxSeq implements Store
func (r *Repositories) LoadMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	seq, err := r.Seq.LoadMaxSeq(ctx, r.DB, conversationId, false)
	if err != nil {
		return 0, storeError(err)
	}
	return seq, nil
}

// ListMessages implements Store
func (r *Repositories) ListMessages(ctx context.Context, conversationId string, afterSeq, uptoSeq int64, limit int) ([]*entity.Message, error) {
	msgs, err := r.Message.PullMessages(ctx, conversationId, afterSeq, uptoSeq, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return msgs, nil
}

// GetMessageByClientMsgId implements Store
func (r *Repositories) GetMessageByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	msg, err := r.Message.GetByClientMsgId(ctx, senderId, clientMsgId)
	if err != nil {
		return nil, storeError(err)
	}
	return msg, nil
}
