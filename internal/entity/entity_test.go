package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mbeoliero/huddle/pkg/constant"
)

func TestGenDirectDedupKey(t *testing.T) {
	assert.Equal(t, "si_u___1:u___2", GenDirectDedupKey("u___2", "u___1"))
	assert.Equal(t, GenDirectDedupKey("a", "b"), GenDirectDedupKey("b", "a"))
	assert.Equal(t, "sg_u___1:tok", GenGroupDedupKey("u___1", "tok"))
}

func TestParticipantVisibleRange(t *testing.T) {
	tests := []struct {
		name    string
		p       Participant
		maxSeq  int64
		wantMin int64
		wantMax int64
	}{
		{name: "founding member", p: Participant{JoinSeq: 1}, maxSeq: 10, wantMin: 1, wantMax: 10},
		{name: "zero join seq", p: Participant{}, maxSeq: 3, wantMin: 1, wantMax: 3},
		{name: "late joiner", p: Participant{JoinSeq: 6}, maxSeq: 10, wantMin: 6, wantMax: 10},
		{
			name:    "removed",
			p:       Participant{JoinSeq: 1, LeftSeq: 4, Status: constant.ParticipantStatusRemoved},
			maxSeq:  10,
			wantMin: 1,
			wantMax: 4,
		},
		{
			name:    "blocked",
			p:       Participant{JoinSeq: 2, LeftSeq: 7, Status: constant.ParticipantStatusBlocked},
			maxSeq:  9,
			wantMin: 2,
			wantMax: 7,
		},
		{
			name:    "stale left seq is ignored while active",
			p:       Participant{JoinSeq: 1, LeftSeq: 2},
			maxSeq:  9,
			wantMin: 1,
			wantMax: 9,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMin, gotMax := tt.p.VisibleRange(tt.maxSeq)
			assert.Equal(t, tt.wantMin, gotMin)
			assert.Equal(t, tt.wantMax, gotMax)
		})
	}
}

func TestActiveUserIds(t *testing.T) {
	ps := []*Participant{
		{UserId: "a"},
		{UserId: "b", Status: constant.ParticipantStatusRemoved},
		{UserId: "c", Status: constant.ParticipantStatusBlocked},
		{UserId: "d"},
	}
	assert.Equal(t, []string{"a", "d"}, ActiveUserIds(ps))
}

func TestUserInfoDisplayName(t *testing.T) {
	assert.Equal(t, "Ana", (&UserInfo{Id: "u1", Identifier: "S1", Nickname: "Ana"}).DisplayName())
	assert.Equal(t, "S1", (&UserInfo{Id: "u1", Identifier: "S1"}).DisplayName())
	assert.Equal(t, "u1", (&UserInfo{Id: "u1"}).DisplayName())
}
