// Package presence tracks which users have live sessions and what they are viewing.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/entity"
)

// Mirror publishes presence to other instances
type Mirror interface {
	MarkOnline(ctx context.Context, userId string, ttl time.Duration)
	MarkOffline(ctx context.Context, userId string)
	IsOnline(ctx context.Context, userId string) bool
}

// ExpireFunc is called for every session dropped by Sweep
type ExpireFunc func(entry entity.PresenceEntry)

// Option configures a Tracker
type Option func(t *Tracker)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMirror mirrors online users to another store
func WithMirror(m Mirror) Option {
	return func(t *Tracker) { t.mirror = m }
}

// WithExpireFunc registers a callback for swept sessions
func WithExpireFunc(fn ExpireFunc) Option {
	return func(t *Tracker) { t.onExpire = fn }
}

// Tracker holds presence entries by session and by user.
// An entry whose last heartbeat is older than the timeout is never
// reported, whether or not Sweep has removed it yet.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*entity.PresenceEntry
	byUser   map[string]map[string]struct{}
	timeout  time.Duration
	now      func() time.Time
	mirror   Mirror
	onExpire ExpireFunc
}

// NewTracker creates a Tracker
func NewTracker(timeout time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		sessions: make(map[string]*entity.PresenceEntry),
		byUser:   make(map[string]map[string]struct{}),
		timeout:  timeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Heartbeat creates or refreshes a session's entry.
// An empty watched clears the viewed conversation.
func (t *Tracker) Heartbeat(ctx context.Context, sessionId, userId, watched string) {
	now := t.now().UnixMilli()

	t.mu.Lock()
	entry, ok := t.sessions[sessionId]
	if !ok || entry.UserId != userId {
		if ok {
			t.removeLocked(entry)
		}
		entry = &entity.PresenceEntry{
			SessionId:   sessionId,
			UserId:      userId,
			ConnectedAt: now,
		}
		t.sessions[sessionId] = entry
		userSessions, exists := t.byUser[userId]
		if !exists {
			userSessions = make(map[string]struct{})
			t.byUser[userId] = userSessions
		}
		userSessions[sessionId] = struct{}{}
	}
	entry.LastHeartbeatAt = now
	entry.WatchedConversationId = watched
	t.mu.Unlock()

	if t.mirror != nil {
		t.mirror.MarkOnline(ctx, userId, t.timeout)
	}
}

// Touch refreshes a session without changing what it watches.
// It reports false when the session is unknown or already expired.
func (t *Tracker) Touch(ctx context.Context, sessionId string) bool {
	t.mu.Lock()
	entry, ok := t.sessions[sessionId]
	if !ok || !t.liveLocked(entry) {
		t.mu.Unlock()
		return false
	}
	entry.LastHeartbeatAt = t.now().UnixMilli()
	userId := entry.UserId
	t.mu.Unlock()

	if t.mirror != nil {
		t.mirror.MarkOnline(ctx, userId, t.timeout)
	}
	return true
}

// Disconnect removes a session. It reports whether the user has no
// remaining sessions.
func (t *Tracker) Disconnect(ctx context.Context, sessionId string) bool {
	t.mu.Lock()
	entry, ok := t.sessions[sessionId]
	if !ok {
		t.mu.Unlock()
		return false
	}
	lastSession := t.removeLocked(entry)
	t.mu.Unlock()

	if lastSession && t.mirror != nil {
		t.mirror.MarkOffline(ctx, entry.UserId)
	}
	return lastSession
}

// removeLocked drops entry and reports whether it was the user's last session
func (t *Tracker) removeLocked(entry *entity.PresenceEntry) bool {
	delete(t.sessions, entry.SessionId)
	userSessions := t.byUser[entry.UserId]
	delete(userSessions, entry.SessionId)
	if len(userSessions) == 0 {
		delete(t.byUser, entry.UserId)
		return true
	}
	return false
}

func (t *Tracker) liveLocked(entry *entity.PresenceEntry) bool {
	deadline := entry.LastHeartbeatAt + t.timeout.Milliseconds()
	return t.now().UnixMilli() < deadline
}

// Get returns a copy of a live session's entry
func (t *Tracker) Get(sessionId string) (entity.PresenceEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.sessions[sessionId]
	if !ok || !t.liveLocked(entry) {
		return entity.PresenceEntry{}, false
	}
	return *entry, true
}

// IsOnline reports whether the user has a live session here or, with a
// mirror, on another instance
func (t *Tracker) IsOnline(ctx context.Context, userId string) bool {
	if t.isOnlineLocal(userId) {
		return true
	}
	if t.mirror != nil {
		return t.mirror.IsOnline(ctx, userId)
	}
	return false
}

func (t *Tracker) isOnlineLocal(userId string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for sid := range t.byUser[userId] {
		if t.liveLocked(t.sessions[sid]) {
			return true
		}
	}
	return false
}

// CountOnline returns how many distinct users among userIds are online
func (t *Tracker) CountOnline(ctx context.Context, userIds []string) int {
	count := 0
	seen := make(map[string]struct{}, len(userIds))
	for _, uid := range userIds {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		if t.IsOnline(ctx, uid) {
			count++
		}
	}
	return count
}

// CountViewing returns how many distinct users among userIds have a live
// session watching conversationId. Viewing state is local to this instance.
func (t *Tracker) CountViewing(conversationId string, userIds []string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	seen := make(map[string]struct{}, len(userIds))
	for _, uid := range userIds {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		for sid := range t.byUser[uid] {
			entry := t.sessions[sid]
			if entry.WatchedConversationId == conversationId && t.liveLocked(entry) {
				count++
				break
			}
		}
	}
	return count
}

// Sweep removes expired entries and returns them
func (t *Tracker) Sweep(ctx context.Context) []entity.PresenceEntry {
	var expired []entity.PresenceEntry
	var offline []string

	t.mu.Lock()
	for _, entry := range t.sessions {
		if t.liveLocked(entry) {
			continue
		}
		expired = append(expired, *entry)
		if t.removeLocked(entry) {
			offline = append(offline, entry.UserId)
		}
	}
	t.mu.Unlock()

	if t.mirror != nil {
		for _, uid := range offline {
			t.mirror.MarkOffline(ctx, uid)
		}
	}
	if t.onExpire != nil {
		for _, entry := range expired {
			t.onExpire(entry)
		}
	}
	return expired
}

// Run sweeps every interval until ctx is done
func (t *Tracker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.CtxInfo(ctx, "presence sweeper stopped")
			return
		case <-ticker.C:
			if expired := t.Sweep(ctx); len(expired) > 0 {
				log.CtxDebug(ctx, "presence sweep: expired=%d", len(expired))
			}
		}
	}
}

// Len returns the number of tracked sessions, live or not yet swept
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
