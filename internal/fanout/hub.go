// Package fanout delivers committed conversation events to live sessions.
//
// Publish is called from the conversation's worker after each commit, so
// every session observes a conversation's events in commit order. Delivery
// never blocks: a session whose buffer is full is evicted and must catch up
// from the message log after reconnecting.
package fanout

import (
	"errors"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/entity"
)

var (
	ErrSlowConsumer = errors.New("session evicted: event buffer full")
	ErrDetached     = errors.New("session detached")
	ErrExpired      = errors.New("session expired: no heartbeat")
)

// Hub indexes live sessions by id and by user
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	byUser     map[string]map[string]*Session
	bufferSize int
}

// NewHub creates a Hub whose sessions buffer up to bufferSize events
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		byUser:     make(map[string]map[string]*Session),
		bufferSize: bufferSize,
	}
}

// Attach registers a new session for userId
func (h *Hub) Attach(sessionId, userId string) *Session {
	s := newSession(sessionId, userId, h.bufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.sessions[sessionId]; ok {
		h.removeLocked(prev)
		prev.close(ErrDetached)
	}
	h.sessions[sessionId] = s
	userSessions, ok := h.byUser[userId]
	if !ok {
		userSessions = make(map[string]*Session)
		h.byUser[userId] = userSessions
	}
	userSessions[sessionId] = s
	return s
}

// Detach removes a session and closes its channel with reason.
// It reports whether the session existed.
func (h *Hub) Detach(sessionId string, reason error) bool {
	h.mu.Lock()
	s, ok := h.sessions[sessionId]
	if ok {
		h.removeLocked(s)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	if reason == nil {
		reason = ErrDetached
	}
	s.close(reason)
	return true
}

func (h *Hub) removeLocked(s *Session) {
	delete(h.sessions, s.Id)
	if userSessions, ok := h.byUser[s.UserId]; ok {
		delete(userSessions, s.Id)
		if len(userSessions) == 0 {
			delete(h.byUser, s.UserId)
		}
	}
}

// Session returns a live session
func (h *Hub) Session(sessionId string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionId]
	return s, ok
}

// SessionsOf returns the live sessions of a user
func (h *Hub) SessionsOf(userId string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.byUser[userId]))
	for _, s := range h.byUser[userId] {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish delivers evt to every live session of userIds and returns how many
// sessions accepted it. Sessions that cannot keep up are evicted.
func (h *Hub) Publish(evt *entity.Event, userIds []string) int {
	var targets []*Session
	h.mu.RLock()
	for _, uid := range userIds {
		for _, s := range h.byUser[uid] {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.deliver(evt) {
			delivered++
			continue
		}
		log.Warn("session evicted, event buffer full: session_id=%s, user_id=%s, conversation_id=%s",
			s.Id, s.UserId, evt.ConversationId)
		h.Detach(s.Id, ErrSlowConsumer)
	}
	return delivered
}

// Pin fixes the seq up to which sessionId reads conversationId from history.
// Live message events for the conversation after Pin carry seq > floor.
// Must be called on the conversation's worker so no commit interleaves.
func (h *Hub) Pin(sessionId, conversationId string, maxSeq int64) (int64, bool) {
	s, ok := h.Session(sessionId)
	if !ok {
		return 0, false
	}
	return s.pin(conversationId, maxSeq), true
}

// Close detaches every session
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[string]*Session)
	h.byUser = make(map[string]map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.close(ErrDetached)
	}
}
