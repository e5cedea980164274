package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/huddle/internal/entity"
)

// ParticipantRepo is the repository for conversation membership
type ParticipantRepo struct {
	db *gorm.DB
}

// NewParticipantRepo creates a new ParticipantRepo
func NewParticipantRepo(db *gorm.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

// Upsert inserts a participant or overwrites the mutable columns of an existing one
func (r *ParticipantRepo) Upsert(ctx context.Context, tx *gorm.DB, p *entity.Participant) error {
	p.UpdatedAt = entity.NowUnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = p.UpdatedAt
	}

	// ON DUPLICATE KEY UPDATE covers re-invites of removed or blocked users
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"role":            p.Role,
			"status":          p.Status,
			"joined_at":       p.JoinedAt,
			"join_seq":        p.JoinSeq,
			"left_seq":        p.LeftSeq,
			"inviter_user_id": p.InviterUserId,
			"updated_at":      p.UpdatedAt,
		}),
	}).Create(p).Error
}

// Get gets a participant
func (r *ParticipantRepo) Get(ctx context.Context, conversationId, userId string) (*entity.Participant, error) {
	var p entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationId, userId).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListByConversation gets all participants of a conversation in join order
func (r *ParticipantRepo) ListByConversation(ctx context.Context, conversationId string) ([]*entity.Participant, error) {
	var ps []*entity.Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("joined_at ASC, id ASC").
		Find(&ps).Error
	if err != nil {
		return nil, err
	}
	return ps, nil
}
