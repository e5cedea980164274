package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// MemoryStore is a process-local Store used by tests and the memory driver
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*entity.Conversation
	dedup         map[string]string                         // dedup key -> conversation id
	participants  map[string]map[string]*entity.Participant // conversation id -> user id -> participant
	messages      map[string][]*entity.Message              // conversation id -> log, index = seq-1
	clientMsgs    map[string]*entity.Message                // sender id + client msg id -> message
	nextId        int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*entity.Conversation),
		dedup:         make(map[string]string),
		participants:  make(map[string]map[string]*entity.Participant),
		messages:      make(map[string][]*entity.Message),
		clientMsgs:    make(map[string]*entity.Message),
	}
}

func clientMsgKey(senderId, clientMsgId string) string {
	return senderId + "\x00" + clientMsgId
}

// CreateConversation implements Store
func (s *MemoryStore) CreateConversation(_ context.Context, conv *entity.Conversation, participants []*entity.Participant) (*entity.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.DedupKey != nil {
		if id, ok := s.dedup[*conv.DedupKey]; ok {
			return s.conversations[id].Clone(), false, nil
		}
	}
	if _, ok := s.conversations[conv.Id]; ok {
		return nil, false, errcode.ErrTransientStore.Wrap(fmt.Errorf("duplicate conversation id %s", conv.Id))
	}

	s.conversations[conv.Id] = conv.Clone()
	if conv.DedupKey != nil {
		s.dedup[*conv.DedupKey] = conv.Id
	}
	roster := make(map[string]*entity.Participant, len(participants))
	for _, p := range participants {
		s.nextId++
		p.Id = s.nextId
		roster[p.UserId] = p.Clone()
	}
	s.participants[conv.Id] = roster
	s.messages[conv.Id] = nil
	return conv, true, nil
}

// GetConversation implements Store
func (s *MemoryStore) GetConversation(_ context.Context, id string) (*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, errcode.ErrNotFound
	}
	return conv.Clone(), nil
}

// GetConversationByDedupKey implements Store
func (s *MemoryStore) GetConversationByDedupKey(_ context.Context, key string) (*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.dedup[key]
	if !ok {
		return nil, nil
	}
	return s.conversations[id].Clone(), nil
}

// ListUserConversations implements Store
func (s *MemoryStore) ListUserConversations(_ context.Context, userId string) ([]*entity.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var convs []*entity.Conversation
	for id, roster := range s.participants {
		p, ok := roster[userId]
		if !ok || !p.IsActive() {
			continue
		}
		conv := s.conversations[id]
		if !conv.IsActive() {
			continue
		}
		convs = append(convs, conv.Clone())
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastActivityAt != convs[j].LastActivityAt {
			return convs[i].LastActivityAt > convs[j].LastActivityAt
		}
		return convs[i].Id < convs[j].Id
	})
	return convs, nil
}

// UpdateConversation implements Store
func (s *MemoryStore) UpdateConversation(_ context.Context, update *ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[update.ConversationId]
	if !ok {
		return errcode.ErrNotFound
	}

	roster := s.participants[update.ConversationId]
	for _, p := range update.Participants {
		next := p.Clone()
		if prev, ok := roster[p.UserId]; ok {
			next.Id = prev.Id
			next.CreatedAt = prev.CreatedAt
		} else {
			s.nextId++
			next.Id = s.nextId
			if next.CreatedAt == 0 {
				next.CreatedAt = update.At
			}
		}
		roster[p.UserId] = next
	}

	if update.Name != nil {
		conv.Name = *update.Name
	}
	if update.Delete {
		conv.Status = constant.ConversationStatusDeleted
		if update.ClearDedupKey && conv.DedupKey != nil {
			delete(s.dedup, *conv.DedupKey)
			conv.DedupKey = nil
		}
	}
	conv.UpdatedAt = update.At
	conv.LastActivityAt = update.At
	return nil
}

// GetParticipant implements Store
func (s *MemoryStore) GetParticipant(_ context.Context, conversationId, userId string) (*entity.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[conversationId][userId]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

// ListParticipants implements Store
func (s *MemoryStore) ListParticipants(_ context.Context, conversationId string) ([]*entity.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roster := s.participants[conversationId]
	ps := make([]*entity.Participant, 0, len(roster))
	for _, p := range roster {
		ps = append(ps, p.Clone())
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].JoinedAt != ps[j].JoinedAt {
			return ps[i].JoinedAt < ps[j].JoinedAt
		}
		return ps[i].Id < ps[j].Id
	})
	return ps, nil
}

// AppendMessage implements Store
func (s *MemoryStore) AppendMessage(_ context.Context, msg *entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationId]
	if !ok {
		return errcode.ErrNotFound
	}
	entries := s.messages[msg.ConversationId]
	if msg.Seq != int64(len(entries))+1 {
		return errcode.ErrSeqConflict
	}
	key := clientMsgKey(msg.SenderId, msg.ClientMsgId)
	if _, dup := s.clientMsgs[key]; dup {
		return errcode.ErrSeqConflict
	}

	stored := msg.Clone()
	s.messages[msg.ConversationId] = append(entries, stored)
	s.clientMsgs[key] = stored
	conv.LastActivityAt = msg.CreatedAt
	return nil
}

// GetMaxSeq implements Store
func (s *MemoryStore) GetMaxSeq(_ context.Context, conversationId string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages[conversationId])), nil
}

// LoadMaxSeq implements Store
func (s *MemoryStore) LoadMaxSeq(ctx context.Context, conversationId string) (int64, error) {
	return s.GetMaxSeq(ctx, conversationId)
}

// ListMessages implements Store
func (s *MemoryStore) ListMessages(_ context.Context, conversationId string, afterSeq, uptoSeq int64, limit int) ([]*entity.Message, error) {
	if limit <= 0 || limit > maxPullLimit {
		limit = maxPullLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.messages[conversationId]
	if uptoSeq > int64(len(entries)) {
		uptoSeq = int64(len(entries))
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	var msgs []*entity.Message
	for seq := afterSeq + 1; seq <= uptoSeq && len(msgs) < limit; seq++ {
		msgs = append(msgs, entries[seq-1].Clone())
	}
	return msgs, nil
}

// GetMessageByClientMsgId implements Store
func (s *MemoryStore) GetMessageByClientMsgId(_ context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.clientMsgs[clientMsgKey(senderId, clientMsgId)]
	if !ok {
		return nil, nil
	}
	return msg.Clone(), nil
}

// CheckConnection implements Store
func (s *MemoryStore) CheckConnection(context.Context) error {
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}
