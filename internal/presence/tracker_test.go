package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/huddle/internal/entity"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memMirror struct {
	mu     sync.Mutex
	online map[string]bool
}

func (m *memMirror) MarkOnline(_ context.Context, userId string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userId] = true
}

func (m *memMirror) MarkOffline(_ context.Context, userId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, userId)
}

func (m *memMirror) IsOnline(_ context.Context, userId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online[userId]
}

func newTestTracker(opts ...Option) (*Tracker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewTracker(30*time.Second, append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func TestTwoSessionsCountOnce(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	// Given alice is connected twice and bob once
	tr.Heartbeat(ctx, "s1", "alice", "")
	tr.Heartbeat(ctx, "s2", "alice", "")
	tr.Heartbeat(ctx, "s3", "bob", "")

	// Then the roster counts distinct users
	assert.Equal(t, 2, tr.CountOnline(ctx, []string{"alice", "bob", "carol"}))

	// When one of alice's sessions disconnects she stays online
	assert.False(t, tr.Disconnect(ctx, "s1"))
	assert.Equal(t, 2, tr.CountOnline(ctx, []string{"alice", "bob"}))

	// When the last one goes she is offline
	assert.True(t, tr.Disconnect(ctx, "s2"))
	assert.Equal(t, 1, tr.CountOnline(ctx, []string{"alice", "bob"}))
}

func TestExpiredSessionIsNeverCounted(t *testing.T) {
	ctx := context.Background()
	tr, clock := newTestTracker()

	tr.Heartbeat(ctx, "s1", "alice", "conv")
	clock.Advance(29 * time.Second)
	require.True(t, tr.IsOnline(ctx, "alice"))
	require.Equal(t, 1, tr.CountViewing("conv", []string{"alice"}))

	// Past the timeout, before any sweep
	clock.Advance(2 * time.Second)
	assert.False(t, tr.IsOnline(ctx, "alice"))
	assert.Zero(t, tr.CountOnline(ctx, []string{"alice"}))
	assert.Zero(t, tr.CountViewing("conv", []string{"alice"}))
	_, ok := tr.Get("s1")
	assert.False(t, ok)
	assert.False(t, tr.Touch(ctx, "s1"))
	assert.Equal(t, 1, tr.Len())
}

func TestHeartbeatExtendsLife(t *testing.T) {
	ctx := context.Background()
	tr, clock := newTestTracker()

	tr.Heartbeat(ctx, "s1", "alice", "")
	for i := 0; i < 5; i++ {
		clock.Advance(20 * time.Second)
		require.True(t, tr.Touch(ctx, "s1"))
	}
	assert.True(t, tr.IsOnline(ctx, "alice"))
}

func TestCountViewing(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	tr.Heartbeat(ctx, "s1", "alice", "conv-a")
	tr.Heartbeat(ctx, "s2", "alice", "conv-a")
	tr.Heartbeat(ctx, "s3", "bob", "conv-b")
	tr.Heartbeat(ctx, "s4", "carol", "conv-a")

	assert.Equal(t, 2, tr.CountViewing("conv-a", []string{"alice", "bob", "carol"}))
	assert.Equal(t, 1, tr.CountViewing("conv-a", []string{"alice", "bob"}))
	assert.Equal(t, 1, tr.CountViewing("conv-b", []string{"alice", "bob", "carol"}))

	// Switching the watched conversation moves the viewer
	tr.Heartbeat(ctx, "s3", "bob", "conv-a")
	assert.Equal(t, 3, tr.CountViewing("conv-a", []string{"alice", "bob", "carol"}))
	assert.Zero(t, tr.CountViewing("conv-b", []string{"alice", "bob", "carol"}))

	// Touch keeps the watched conversation
	require.True(t, tr.Touch(ctx, "s3"))
	entry, ok := tr.Get("s3")
	require.True(t, ok)
	assert.Equal(t, "conv-a", entry.WatchedConversationId)
}

func TestSweepRemovesExpiredAndNotifies(t *testing.T) {
	ctx := context.Background()
	var expired []entity.PresenceEntry
	mirror := &memMirror{online: map[string]bool{}}
	tr, clock := newTestTracker(
		WithMirror(mirror),
		WithExpireFunc(func(e entity.PresenceEntry) { expired = append(expired, e) }),
	)

	tr.Heartbeat(ctx, "s1", "alice", "")
	clock.Advance(20 * time.Second)
	tr.Heartbeat(ctx, "s2", "bob", "")
	require.True(t, mirror.IsOnline(ctx, "alice"))

	clock.Advance(15 * time.Second)
	got := tr.Sweep(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SessionId)
	require.Len(t, expired, 1)
	assert.Equal(t, "alice", expired[0].UserId)
	assert.Equal(t, 1, tr.Len())
	assert.False(t, mirror.IsOnline(ctx, "alice"))
	assert.True(t, tr.IsOnline(ctx, "bob"))
}

func TestMirrorAnswersForOtherInstances(t *testing.T) {
	ctx := context.Background()
	mirror := &memMirror{online: map[string]bool{"remote-user": true}}
	tr, _ := newTestTracker(WithMirror(mirror))

	assert.True(t, tr.IsOnline(ctx, "remote-user"))
	assert.Equal(t, 1, tr.CountOnline(ctx, []string{"remote-user", "nobody"}))
}

func TestRunStopsWithContext(t *testing.T) {
	tr := NewTracker(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
