package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/constant"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create creates a new conversation
func (r *ConversationRepo) Create(ctx context.Context, tx *gorm.DB, conv *entity.Conversation) error {
	return tx.WithContext(ctx).Create(conv).Error
}

// GetById gets conversation by Id
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetByDedupKey gets the conversation holding a dedup key
func (r *ConversationRepo) GetByDedupKey(ctx context.Context, key string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("dedup_key = ?", key).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Update updates conversation columns
func (r *ConversationRepo) Update(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	return tx.WithContext(ctx).Model(&entity.Conversation{}).Where("id = ?", id).Updates(updates).Error
}

// GetUserConversations gets active conversations the user is an active participant of
func (r *ConversationRepo) GetUserConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.conversation_id = conversations.id").
		Where("participants.user_id = ? AND participants.status = ? AND conversations.status = ?",
			userId, constant.ParticipantStatusActive, constant.ConversationStatusActive).
		Order("conversations.last_activity_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}
