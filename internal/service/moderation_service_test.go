package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

func TestGroupRenameScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	// Admin A creates G with B and C
	conv := e.group(t, alice, bob, carol)
	ps, err := e.Conversation.ListActiveParticipants(ctx, conv.Id)
	require.NoError(t, err)
	require.Len(t, ps, 3)

	// A renames, B may not
	renamed, err := e.Moderation.RenameConversation(ctx, conv.Id, alice, "Study Group")
	require.NoError(t, err)
	assert.Equal(t, "Study Group", renamed.Name)

	_, err = e.Moderation.RenameConversation(ctx, conv.Id, bob, "x")
	assert.ErrorIs(t, err, errcode.ErrNotAuthorized)
	assert.Equal(t, "Study Group", e.conversation(t, conv.Id).Name)
}

func TestRenameConversationErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	group := e.group(t, alice, bob)
	direct := e.direct(t, alice, carol)

	tests := []struct {
		name  string
		conv  string
		actor string
		value string
		err   error
	}{
		{name: "direct", conv: direct.Id, actor: alice, value: "x", err: errcode.ErrNotAGroup},
		{name: "blank", conv: group.Id, actor: alice, value: "  ", err: errcode.ErrInvalidName},
		{name: "too long", conv: group.Id, actor: alice, value: strings.Repeat("a", 65), err: errcode.ErrInvalidName},
		{name: "outsider", conv: group.Id, actor: dave, value: "x", err: errcode.ErrNotAuthorized},
		{name: "unknown", conv: "missing", actor: alice, value: "x", err: errcode.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Moderation.RenameConversation(ctx, tt.conv, tt.actor, tt.value)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRenameIsDeliveredToActiveParticipants(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol)
	require.NoError(t, e.Conversation.RemoveMember(ctx, conv.Id, alice, carol))

	bobSession, err := e.Presence.Connect(ctx, bob)
	require.NoError(t, err)
	carolSession, err := e.Presence.Connect(ctx, carol)
	require.NoError(t, err)

	_, err = e.Moderation.RenameConversation(ctx, conv.Id, alice, "renamed")
	require.NoError(t, err)

	evts := drainEvents(bobSession)
	require.Len(t, evts, 1)
	assert.Equal(t, entity.EventConversationRenamed, evts[0].Type)
	assert.Equal(t, "renamed", evts[0].Name)
	assert.NotEmpty(t, evts[0].Id)
	assert.Empty(t, drainEvents(carolSession))
}

func TestBlockParticipantInGroup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob, carol, dave)
	carolSession, err := e.Presence.Connect(ctx, carol)
	require.NoError(t, err)

	// Members cannot block
	assert.ErrorIs(t, e.Moderation.BlockParticipant(ctx, conv.Id, bob, carol), errcode.ErrNotAuthorized)

	// The admin blocks carol, twice
	require.NoError(t, e.Moderation.BlockParticipant(ctx, conv.Id, alice, carol))
	require.NoError(t, e.Moderation.BlockParticipant(ctx, conv.Id, alice, carol))

	assert.ElementsMatch(t, []string{alice, bob, dave}, e.activeIds(t, conv.Id))
	p, err := e.store.GetParticipant(ctx, conv.Id, carol)
	require.NoError(t, err)
	assert.True(t, p.IsBlocked())

	// The blocked member gets no event and no further messages
	e.send(t, conv.Id, bob, "after block")
	assert.Empty(t, drainEvents(carolSession))
	_, err = e.Message.SendMessage(ctx, conv.Id, carol, &SendMessageRequest{Content: "hey"})
	assert.ErrorIs(t, err, errcode.ErrNotAParticipant)

	// Only an explicit add brings carol back
	_, err = e.Conversation.AddMember(ctx, conv.Id, alice, carol)
	require.NoError(t, err)
	e.send(t, conv.Id, carol, "back")
}

func TestBlockParticipantCanCloseGroup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	conv := e.group(t, alice, bob)

	require.NoError(t, e.Moderation.BlockParticipant(ctx, conv.Id, alice, bob))

	assert.False(t, e.conversation(t, conv.Id).IsActive())
}

func TestBlockParticipantErrors(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	direct := e.direct(t, alice, bob)

	assert.ErrorIs(t, e.Moderation.BlockParticipant(ctx, direct.Id, alice, alice), errcode.ErrInvalidTarget)
	assert.ErrorIs(t, e.Moderation.BlockParticipant(ctx, direct.Id, alice, carol), errcode.ErrNotAParticipant)
	assert.ErrorIs(t, e.Moderation.BlockParticipant(ctx, direct.Id, carol, alice), errcode.ErrNotAuthorized)

	// Once blocked, the blocked party cannot block back
	require.NoError(t, e.Moderation.BlockParticipant(ctx, direct.Id, bob, alice))
	assert.ErrorIs(t, e.Moderation.BlockParticipant(ctx, direct.Id, alice, bob), errcode.ErrNotAuthorized)
}

func TestDeleteConversation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	group := e.group(t, alice, bob, carol)
	e.send(t, group.Id, bob, "keep me")

	bobSession, err := e.Presence.Connect(ctx, bob)
	require.NoError(t, err)

	// Members cannot delete a group
	assert.ErrorIs(t, e.Moderation.DeleteConversation(ctx, group.Id, bob), errcode.ErrNotAuthorized)

	require.NoError(t, e.Moderation.DeleteConversation(ctx, group.Id, alice))

	// The state is terminal
	assert.ErrorIs(t, e.Moderation.DeleteConversation(ctx, group.Id, alice), errcode.ErrConversationDeleted)
	_, err = e.Moderation.RenameConversation(ctx, group.Id, alice, "x")
	assert.ErrorIs(t, err, errcode.ErrConversationDeleted)
	_, err = e.Conversation.AddMember(ctx, group.Id, alice, dave)
	assert.ErrorIs(t, err, errcode.ErrConversationDeleted)

	// History is retained
	assert.Equal(t, []string{"keep me"}, contents(e.readAll(t, group.Id, carol, 0, 10)))

	evts := drainEvents(bobSession)
	require.Len(t, evts, 1)
	assert.Equal(t, entity.EventConversationDeleted, evts[0].Type)

	// Either party deletes a direct conversation
	direct := e.direct(t, alice, bob)
	require.NoError(t, e.Moderation.DeleteConversation(ctx, direct.Id, bob))
	list, err := e.Conversation.ListUserConversations(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, list)
}
