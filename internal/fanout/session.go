package fanout

import (
	"sync"

	"github.com/mbeoliero/huddle/internal/entity"
)

// Session is one client connection's ordered event stream
type Session struct {
	Id     string
	UserId string

	mu     sync.Mutex
	events chan *entity.Event
	closed bool
	err    error
	// floors holds, per conversation, the last seq this session will not
	// receive live. Message events at or below the floor are dropped.
	floors map[string]int64
	done   chan struct{}
}

func newSession(id, userId string, bufferSize int) *Session {
	return &Session{
		Id:     id,
		UserId: userId,
		events: make(chan *entity.Event, bufferSize),
		floors: make(map[string]int64),
		done:   make(chan struct{}),
	}
}

// Events returns the session's event channel. It is closed when the
// session is detached or evicted; Err then reports why.
func (s *Session) Events() <-chan *entity.Event {
	return s.events
}

// Done is closed together with the event channel
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the session was closed, nil while open
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// deliver enqueues evt without blocking. It reports false when the buffer
// was full, in which case the session has been closed with ErrSlowConsumer.
func (s *Session) deliver(evt *entity.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	if evt.Type == entity.EventMessageAppended {
		floor, pinned := s.floors[evt.ConversationId]
		if pinned && evt.Seq <= floor {
			return true
		}
		if !pinned {
			// First live message: everything before it comes from history
			s.floors[evt.ConversationId] = evt.Seq - 1
		}
	}

	select {
	case s.events <- evt:
		return true
	default:
		s.closeLocked(ErrSlowConsumer)
		return false
	}
}

// pin fixes the live floor for a conversation and returns it
func (s *Session) pin(conversationId string, maxSeq int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if floor, ok := s.floors[conversationId]; ok {
		return floor
	}
	s.floors[conversationId] = maxSeq
	return maxSeq
}

func (s *Session) close(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *Session) closeLocked(reason error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = reason
	close(s.events)
	close(s.done)
}
