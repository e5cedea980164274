package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

func TestStartDirectConversationConvergesUnderConcurrency(t *testing.T) {
	e := newTestEngine(t)

	// When both sides race to start the conversation many times
	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			requester, target := alice, "S002"
			if i%2 == 1 {
				requester, target = bob, "s001"
			}
			conv, err := e.Conversation.StartDirectConversation(context.Background(), requester, target)
			if assert.NoError(t, err) {
				ids[i] = conv.Id
			}
		}(i)
	}
	wg.Wait()

	// Then every call saw the same conversation
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
	conv := e.conversation(t, ids[0])
	assert.True(t, conv.IsDirect())
	assert.ElementsMatch(t, []string{alice, bob}, e.activeIds(t, conv.Id))

	list, err := e.store.ListUserConversations(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStartDirectConversationErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		target string
		err    error
	}{
		{name: "self by id", target: alice, err: errcode.ErrSelfConversation},
		{name: "self by identifier", target: " s001 ", err: errcode.ErrSelfConversation},
		{name: "unknown", target: "S999", err: errcode.ErrInvalidTarget},
		{name: "blank", target: "", err: errcode.ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Conversation.StartDirectConversation(ctx, alice, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStartDirectConversationAfterDeleteCreatesNewOne(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := e.direct(t, alice, bob)
	e.send(t, first.Id, alice, "before")
	require.NoError(t, e.Moderation.DeleteConversation(ctx, first.Id, bob))

	second := e.direct(t, bob, alice)
	assert.NotEqual(t, first.Id, second.Id)

	// The old history is still there
	assert.Equal(t, []string{"before"}, contents(e.readAll(t, first.Id, alice, 0, 10)))
	assert.Empty(t, e.readAll(t, second.Id, alice, 0, 10))
}

func TestCreateGroupConversation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Given a group of alice with bob and carol, named by identifier and id
	conv, err := e.Conversation.CreateGroupConversation(ctx, alice, &CreateGroupRequest{
		Name:              "  Study Group ",
		MemberIdentifiers: []string{"S002", carol, "S001", "S404"},
	})
	require.NoError(t, err)

	// Then alice is the only admin and unknown identifiers are dropped
	assert.True(t, conv.IsGroup())
	assert.Equal(t, "Study Group", conv.Name)
	ps, err := e.store.ListParticipants(ctx, conv.Id)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	for _, p := range ps {
		assert.True(t, p.IsActive())
		assert.Equal(t, p.UserId == alice, p.IsAdmin(), p.UserId)
		assert.Equal(t, alice, p.InviterUserId)
	}
}

func TestCreateGroupConversationErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *CreateGroupRequest
		err  error
	}{
		{name: "no members", req: &CreateGroupRequest{Name: "g"}, err: errcode.ErrEmptyGroup},
		{name: "only self and unknown", req: &CreateGroupRequest{Name: "g", MemberIdentifiers: []string{alice, "S404"}}, err: errcode.ErrEmptyGroup},
		{name: "same user twice", req: &CreateGroupRequest{Name: "g", MemberIdentifiers: []string{bob, "s002"}}, err: errcode.ErrDuplicateMember},
		{name: "blank name", req: &CreateGroupRequest{Name: "   ", MemberIdentifiers: []string{bob}}, err: errcode.ErrInvalidName},
		{name: "long name", req: &CreateGroupRequest{Name: strings.Repeat("é", 65), MemberIdentifiers: []string{bob}}, err: errcode.ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Conversation.CreateGroupConversation(ctx, alice, tt.req)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	list, err := e.store.ListUserConversations(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateGroupConversationIdempotencyToken(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	req := &CreateGroupRequest{Name: "retry", MemberIdentifiers: []string{bob}, IdempotencyToken: "tok-1"}

	// When the client retries concurrently with the same token
	const n = 10
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := e.Conversation.CreateGroupConversation(ctx, alice, req)
			if assert.NoError(t, err) {
				ids[i] = conv.Id
			}
		}(i)
	}
	wg.Wait()

	// Then a single group exists
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	// A different token creates a different group
	other, err := e.Conversation.CreateGroupConversation(ctx, alice, &CreateGroupRequest{
		Name: "retry", MemberIdentifiers: []string{bob}, IdempotencyToken: "tok-2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, ids[0], other.Id)
}

func TestRemoveMemberFromTwoPersonGroupDeletesIt(t *testing.T) {
	e := newTestEngine(t)
	conv := e.group(t, alice, bob)

	require.NoError(t, e.Conversation.RemoveMember(context.Background(), conv.Id, alice, bob))

	got := e.conversation(t, conv.Id)
	assert.EqualValues(t, constant.ConversationStatusDeleted, got.Status)
	assert.Equal(t, []string{alice}, e.activeIds(t, conv.Id))
}

func TestRemoveMemberFromFivePersonGroupKeepsItActive(t *testing.T) {
	e := newTestEngine(t)
	conv := e.group(t, alice, bob, carol, dave, erin)

	require.NoError(t, e.Conversation.RemoveMember(context.Background(), conv.Id, alice, carol))

	assert.True(t, e.conversation(t, conv.Id).IsActive())
	assert.ElementsMatch(t, []string{alice, bob, dave, erin}, e.activeIds(t, conv.Id))

	_, err := e.Message.SendMessage(context.Background(), conv.Id, carol, &SendMessageRequest{Content: "still here?"})
	assert.ErrorIs(t, err, errcode.ErrNotAParticipant)
}

func TestRemoveMemberErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	group := e.group(t, alice, bob, carol)
	direct := e.direct(t, alice, dave)

	tests := []struct {
		name   string
		conv   string
		actor  string
		target string
		err    error
	}{
		{name: "member is not admin", conv: group.Id, actor: bob, target: carol, err: errcode.ErrNotAuthorized},
		{name: "outsider", conv: group.Id, actor: dave, target: carol, err: errcode.ErrNotAuthorized},
		{name: "target not in group", conv: group.Id, actor: alice, target: dave, err: errcode.ErrNotAParticipant},
		{name: "direct", conv: direct.Id, actor: alice, target: dave, err: errcode.ErrNotAGroup},
		{name: "unknown conversation", conv: "nope", actor: alice, target: bob, err: errcode.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Conversation.RemoveMember(ctx, tt.conv, tt.actor, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}
	assert.Len(t, e.activeIds(t, group.Id), 3)
}

func TestAddMember(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol)
	e.send(t, conv.Id, alice, "one")
	e.send(t, conv.Id, bob, "two")

	// When alice adds dave by identifier
	p, err := e.Conversation.AddMember(ctx, conv.Id, alice, "S004")
	require.NoError(t, err)

	// Then dave is an active member who sees history from the next message
	assert.Equal(t, dave, p.UserId)
	assert.EqualValues(t, 3, p.JoinSeq)
	assert.Len(t, e.activeIds(t, conv.Id), 4)
	e.send(t, conv.Id, dave, "three")
	assert.Equal(t, []string{"three"}, contents(e.readAll(t, conv.Id, dave, 0, 10)))

	tests := []struct {
		name   string
		actor  string
		target string
		err    error
	}{
		{name: "already member", actor: alice, target: bob, err: errcode.ErrAlreadyMember},
		{name: "not admin", actor: bob, target: erin, err: errcode.ErrNotAuthorized},
		{name: "unknown target", actor: alice, target: "S999", err: errcode.ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Conversation.AddMember(ctx, conv.Id, tt.actor, tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	direct := e.direct(t, alice, erin)
	_, err = e.Conversation.AddMember(ctx, direct.Id, alice, bob)
	assert.ErrorIs(t, err, errcode.ErrNotAGroup)
}

func TestAddMemberReadmitsRemovedUser(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol)
	e.send(t, conv.Id, carol, "before removal")
	require.NoError(t, e.Conversation.RemoveMember(ctx, conv.Id, alice, carol))
	e.send(t, conv.Id, alice, "while away")

	// Removed members keep only what they saw
	assert.Equal(t, []string{"before removal"}, contents(e.readAll(t, conv.Id, carol, 0, 10)))

	_, err := e.Conversation.AddMember(ctx, conv.Id, alice, carol)
	require.NoError(t, err)
	e.send(t, conv.Id, carol, "back")

	assert.Equal(t, []string{"back"}, contents(e.readAll(t, conv.Id, carol, 0, 10)))
	assert.Len(t, e.activeIds(t, conv.Id), 3)
}

func TestLeaveConversationPromotesNextAdmin(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol)

	session, err := e.Presence.Connect(ctx, bob)
	require.NoError(t, err)

	require.NoError(t, e.Conversation.LeaveConversation(ctx, conv.Id, alice))

	bobP, err := e.store.GetParticipant(ctx, conv.Id, bob)
	require.NoError(t, err)
	carolP, err := e.store.GetParticipant(ctx, conv.Id, carol)
	require.NoError(t, err)
	assert.True(t, bobP.IsAdmin() != carolP.IsAdmin(), "exactly one new admin")

	evts := drainEvents(session)
	require.Len(t, evts, 1)
	require.NotNil(t, evts[0].Roster)
	assert.Equal(t, entity.RosterLeft, evts[0].Roster.Action)
	assert.NotEmpty(t, evts[0].Roster.Promoted)

	// The new admin can moderate
	admin := bob
	if carolP.IsAdmin() {
		admin = carol
	}
	_, err = e.Moderation.RenameConversation(ctx, conv.Id, admin, "new admin")
	assert.NoError(t, err)

	// Leaving a direct conversation is not a thing
	direct := e.direct(t, alice, bob)
	assert.ErrorIs(t, e.Conversation.LeaveConversation(ctx, direct.Id, alice), errcode.ErrNotAGroup)
}

func TestListActiveParticipants(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol, dave)
	require.NoError(t, e.Conversation.RemoveMember(ctx, conv.Id, alice, dave))

	got, err := e.Conversation.ListActiveParticipants(ctx, conv.Id)
	require.NoError(t, err)
	require.Len(t, got, 3)

	byId := make(map[string]*entity.ParticipantInfo)
	for _, p := range got {
		byId[p.UserId] = p
	}
	assert.Equal(t, "Alice", byId[alice].Nickname)
	assert.EqualValues(t, constant.RoleAdmin, byId[alice].Role)
	assert.Equal(t, "S003", byId[carol].Identifier)
	assert.NotContains(t, byId, dave)

	_, err = e.Conversation.ListActiveParticipants(ctx, "missing")
	assert.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestGetConversationDisplayName(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	direct := e.direct(t, alice, carol)
	group := e.group(t, alice, bob)
	e.send(t, group.Id, bob, "hi")

	info, err := e.Conversation.GetConversation(ctx, direct.Id, alice)
	require.NoError(t, err)
	assert.Equal(t, "S003", info.DisplayName)

	info, err = e.Conversation.GetConversation(ctx, direct.Id, carol)
	require.NoError(t, err)
	assert.Equal(t, "Alice", info.DisplayName)

	info, err = e.Conversation.GetConversation(ctx, group.Id, bob)
	require.NoError(t, err)
	assert.Equal(t, "group", info.DisplayName)
	assert.EqualValues(t, 1, info.MaxSeq)

	_, err = e.Conversation.GetConversation(ctx, group.Id, dave)
	assert.ErrorIs(t, err, errcode.ErrNotAParticipant)

	list, err := e.Conversation.ListUserConversations(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 2)
	names := make(map[string]string)
	for _, c := range list {
		names[c.Id] = c.DisplayName
	}
	assert.Equal(t, map[string]string{direct.Id: "S003", group.Id: "group"}, names)
}
