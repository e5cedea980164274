package entity

import "github.com/mbeoliero/huddle/pkg/constant"

// Participant represents a user's membership in a conversation
type Participant struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;size:64;uniqueIndex:uk_conv_user"`
	UserId         string `json:"user_id" gorm:"column:user_id;size:64;uniqueIndex:uk_conv_user;index"`
	Role           int32  `json:"role" gorm:"column:role"`
	Status         int32  `json:"status" gorm:"column:status"`
	JoinedAt       int64  `json:"joined_at" gorm:"column:joined_at"`
	JoinSeq        int64  `json:"join_seq" gorm:"column:join_seq"`
	LeftSeq        int64  `json:"left_seq" gorm:"column:left_seq"`
	InviterUserId  string `json:"inviter_user_id" gorm:"column:inviter_user_id;size:64"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt      int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Participant
func (Participant) TableName() string {
	return "participants"
}

// IsActive checks if participant is active
func (p *Participant) IsActive() bool {
	return p.Status == constant.ParticipantStatusActive
}

// IsBlocked checks if participant has been blocked
func (p *Participant) IsBlocked() bool {
	return p.Status == constant.ParticipantStatusBlocked
}

// IsAdmin checks if participant is an active admin
func (p *Participant) IsAdmin() bool {
	return p.IsActive() && p.Role == constant.RoleAdmin
}

// Clone returns a copy of p
func (p *Participant) Clone() *Participant {
	cp := *p
	return &cp
}

// VisibleRange returns the inclusive seq window the participant may read
// convMaxSeq: the max seq of the conversation
func (p *Participant) VisibleRange(convMaxSeq int64) (int64, int64) {
	minSeq := p.JoinSeq
	if minSeq < 1 {
		minSeq = 1
	}
	maxSeq := convMaxSeq

	// Removed and blocked participants stop at the seq they left at
	if !p.IsActive() && p.LeftSeq < maxSeq {
		maxSeq = p.LeftSeq
	}
	return minSeq, maxSeq
}

// ParticipantInfo represents an enriched participant for API response
type ParticipantInfo struct {
	UserId     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Nickname   string `json:"nickname"`
	Avatar     string `json:"avatar"`
	Role       int32  `json:"role"`
	JoinedAt   int64  `json:"joined_at"`
}

// ActiveUserIds returns the ids of active participants
func ActiveUserIds(participants []*Participant) []string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.IsActive() {
			ids = append(ids, p.UserId)
		}
	}
	return ids
}
