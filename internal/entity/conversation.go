package entity

import "github.com/mbeoliero/huddle/pkg/constant"

// Conversation represents a direct or group conversation
type Conversation struct {
	Id             string  `json:"id" gorm:"column:id;primaryKey;size:64"`
	Kind           int32   `json:"kind" gorm:"column:kind"`
	Name           string  `json:"name" gorm:"column:name;size:255"`
	Status         int32   `json:"status" gorm:"column:status"`
	DedupKey       *string `json:"-" gorm:"column:dedup_key;size:191;uniqueIndex"`
	CreatorId      string  `json:"creator_id" gorm:"column:creator_id;size:64"`
	CreatedAt      int64   `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	LastActivityAt int64   `json:"last_activity_at" gorm:"column:last_activity_at"`
	UpdatedAt      int64   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// IsGroup checks if the conversation is a group
func (c *Conversation) IsGroup() bool {
	return c.Kind == constant.ConversationKindGroup
}

// IsDirect checks if the conversation is a direct conversation
func (c *Conversation) IsDirect() bool {
	return c.Kind == constant.ConversationKindDirect
}

// IsActive checks if the conversation has not been deleted
func (c *Conversation) IsActive() bool {
	return c.Status == constant.ConversationStatusActive
}

// Clone returns a copy that shares no memory with c
func (c *Conversation) Clone() *Conversation {
	cp := *c
	if c.DedupKey != nil {
		key := *c.DedupKey
		cp.DedupKey = &key
	}
	return &cp
}

// ConversationInfo represents conversation info for API response
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

// ToConversationInfo converts Conversation to ConversationInfo
// displayName is computed by the caller for the viewer
func (c *Conversation) ToConversationInfo(displayName string, maxSeq int64) *ConversationInfo {
	return &ConversationInfo{
		Id:             c.Id,
		Kind:           c.Kind,
		Name:           c.Name,
		DisplayName:    displayName,
		Status:         c.Status,
		CreatorId:      c.CreatorId,
		MaxSeq:         maxSeq,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
}
