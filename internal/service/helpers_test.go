package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/huddle/internal/arena"
	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/internal/identity"
	"github.com/mbeoliero/huddle/internal/presence"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

const (
	alice = "st__1"
	bob   = "st__2"
	carol = "st__3"
	dave  = "st__4"
	erin  = "sf__5"
)

var testUsers = []*entity.User{
	{Id: alice, Identifier: "S001", Nickname: "Alice"},
	{Id: bob, Identifier: "S002", Nickname: "Bob"},
	{Id: carol, Identifier: "S003"},
	{Id: dave, Identifier: "S004", Nickname: "Dave"},
	{Id: erin, Identifier: "T005", Nickname: "Dr. Erin"},
}

type testEngine struct {
	*Services
	store   *repository.MemoryStore
	hub     *fanout.Hub
	tracker *presence.Tracker
}

func newTestEngine(t *testing.T, opts ...func(*Deps)) *testEngine {
	t.Helper()

	store := repository.NewMemoryStore()
	hub := fanout.NewHub(1024)
	tracker := presence.NewTracker(time.Minute, presence.WithExpireFunc(DetachOnExpire(hub)))
	workers := arena.New(64, time.Minute)
	t.Cleanup(workers.Close)

	deps := &Deps{
		Store:    store,
		Resolver: identity.NewStaticResolver(testUsers...),
		Arena:    workers,
		Hub:      hub,
		Presence: tracker,
		Engine:   config.EngineConfig{ReadRetryBackoff: time.Millisecond},
	}
	for _, opt := range opts {
		opt(deps)
	}
	return &testEngine{
		Services: NewServices(deps),
		store:    store,
		hub:      hub,
		tracker:  tracker,
	}
}

func (e *testEngine) group(t *testing.T, creator string, members ...string) *entity.Conversation {
	t.Helper()
	conv, err := e.Conversation.CreateGroupConversation(context.Background(), creator, &CreateGroupRequest{
		Name:              "group",
		MemberIdentifiers: members,
	})
	require.NoError(t, err)
	return conv
}

func (e *testEngine) direct(t *testing.T, a, b string) *entity.Conversation {
	t.Helper()
	conv, err := e.Conversation.StartDirectConversation(context.Background(), a, b)
	require.NoError(t, err)
	return conv
}

func (e *testEngine) send(t *testing.T, conversationId, sender, content string) *entity.Message {
	t.Helper()
	msg, err := e.Message.SendMessage(context.Background(), conversationId, sender, &SendMessageRequest{Content: content})
	require.NoError(t, err)
	return msg
}

func (e *testEngine) readAll(t *testing.T, conversationId, reader string, afterSeq int64, limit int) []*entity.Message {
	t.Helper()
	var out []*entity.Message
	for msg, err := range e.Message.ReadSince(context.Background(), conversationId, reader, afterSeq, limit) {
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (e *testEngine) activeIds(t *testing.T, conversationId string) []string {
	t.Helper()
	ps, err := e.store.ListParticipants(context.Background(), conversationId)
	require.NoError(t, err)
	return entity.ActiveUserIds(ps)
}

func (e *testEngine) conversation(t *testing.T, conversationId string) *entity.Conversation {
	t.Helper()
	conv, err := e.store.GetConversation(context.Background(), conversationId)
	require.NoError(t, err)
	return conv
}

func contents(msgs []*entity.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func drainEvents(s *fanout.Session) []*entity.Event {
	var out []*entity.Event
	for {
		select {
		case evt, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

// flakyStore fails reads with a transient error a fixed number of times
type flakyStore struct {
	repository.Store

	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) ListMessages(ctx context.Context, conversationId string, afterSeq, uptoSeq int64, limit int) ([]*entity.Message, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return nil, errcode.ErrTransientStore.Wrap(context.DeadlineExceeded)
	}
	return s.Store.ListMessages(ctx, conversationId, afterSeq, uptoSeq, limit)
}

func (s *flakyStore) UpdateConversation(ctx context.Context, update *repository.ConversationUpdate) error {
	s.mu.Lock()
	s.calls++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return errcode.ErrTransientStore
	}
	return s.Store.UpdateConversation(ctx, update)
}

// staleCacheStore answers GetMaxSeq from a frozen value, the way a cache
// that missed the latest appends would
type staleCacheStore struct {
	repository.Store

	mu     sync.Mutex
	frozen map[string]int64
}

func (s *staleCacheStore) freeze(conversationId string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen == nil {
		s.frozen = make(map[string]int64)
	}
	s.frozen[conversationId] = seq
}

func (s *staleCacheStore) GetMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	s.mu.Lock()
	seq, ok := s.frozen[conversationId]
	s.mu.Unlock()
	if ok {
		return seq, nil
	}
	return s.Store.GetMaxSeq(ctx, conversationId)
}
