package service

import (
	"context"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/idgen"
)

// MessageService appends to and reads from conversation message logs
type MessageService struct {
	*Deps
}

// NewMessageService creates a new MessageService
func NewMessageService(deps *Deps) *MessageService {
	return &MessageService{Deps: deps}
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ClientMsgId string `json:"client_msg_id"`
	Content     string `json:"content"`
}

// PullResult is a page of history plus the reader's current max seq
type PullResult struct {
	Messages []*entity.Message `json:"messages"`
	MaxSeq   int64             `json:"max_seq"`
}

// SyncResult is the history a session needs before its live events.
// Live message events for the conversation carry seq > Floor.
type SyncResult struct {
	Messages []*entity.Message `json:"messages"`
	Floor    int64             `json:"floor"`
	HasMore  bool              `json:"has_more"`
}

// SendMessage appends a message with the next seq of the conversation.
// Resending a client msg id returns the message stored the first time.
func (s *MessageService) SendMessage(ctx context.Context, conversationId, senderId string, req *SendMessageRequest) (*entity.Message, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, errcode.ErrEmptyContent
	}
	if utf8.RuneCountInString(req.Content) > s.Engine.MaxContentLength {
		return nil, errcode.ErrContentTooLong
	}
	clientMsgId := req.ClientMsgId
	if clientMsgId == "" {
		clientMsgId = uuid.NewString()
	}

	var msg *entity.Message
	err := s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}

		existing, err := s.Store.GetMessageByClientMsgId(ctx, senderId, clientMsgId)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.ConversationId != conversationId {
				return errcode.ErrClientMsgIdReused
			}
			log.CtxDebug(ctx, "duplicate message: conversation_id=%s, client_msg_id=%s, seq=%d", conversationId, clientMsgId, existing.Seq)
			msg = existing
			return nil
		}

		if !conv.IsActive() {
			return errcode.ErrConversationDeleted
		}
		sender := findParticipant(participants, senderId)
		if sender == nil || !sender.IsActive() {
			return errcode.ErrNotAParticipant
		}
		if conv.IsDirect() {
			for _, p := range participants {
				if p.UserId != senderId && p.IsBlocked() {
					return errcode.ErrNotAuthorized
				}
			}
		}

		maxSeq, err := s.Store.LoadMaxSeq(ctx, conversationId)
		if err != nil {
			return err
		}
		id, err := idgen.NextID()
		if err != nil {
			return errcode.ErrInternalServer.Wrap(err)
		}
		next := &entity.Message{
			Id:             id,
			ConversationId: conversationId,
			Seq:            maxSeq + 1,
			SenderId:       senderId,
			ClientMsgId:    clientMsgId,
			Content:        req.Content,
			CreatedAt:      entity.NowUnixMilli(),
		}
		if err := s.Store.AppendMessage(ctx, next); err != nil {
			return err
		}
		msg = next

		s.emit(ctx, &entity.Event{
			Type:           entity.EventMessageAppended,
			ConversationId: conversationId,
			Seq:            next.Seq,
			Message:        next,
			At:             next.CreatedAt,
		}, entity.ActiveUserIds(participants))
		log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, seq=%d", conversationId, senderId, next.Seq)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadSince yields the reader's visible messages with seq > afterSeq in
// ascending order, at most limit of them (no bound when limit <= 0).
// Pages are fetched lazily; every range over the result starts over from
// afterSeq. Iteration stops after the first error.
func (s *MessageService) ReadSince(ctx context.Context, conversationId, readerId string, afterSeq int64, limit int) iter.Seq2[*entity.Message, error] {
	return func(yield func(*entity.Message, error) bool) {
		reader, maxSeq, err := s.readerWindow(ctx, conversationId, readerId)
		if err != nil {
			yield(nil, err)
			return
		}
		for msg, err := range s.readRange(ctx, conversationId, reader, afterSeq, maxSeq, limit) {
			if !yield(msg, err) || err != nil {
				return
			}
		}
	}
}

// PullSince collects up to limit messages after afterSeq
func (s *MessageService) PullSince(ctx context.Context, conversationId, readerId string, afterSeq int64, limit int) (*PullResult, error) {
	if limit <= 0 || limit > s.Engine.ReadPageSize {
		limit = s.Engine.ReadPageSize
	}
	reader, maxSeq, err := s.readerWindow(ctx, conversationId, readerId)
	if err != nil {
		return nil, err
	}

	result := &PullResult{Messages: make([]*entity.Message, 0, limit)}
	_, result.MaxSeq = reader.VisibleRange(maxSeq)
	for msg, err := range s.readRange(ctx, conversationId, reader, afterSeq, maxSeq, limit) {
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, msg)
	}
	return result, nil
}

// Sync pins where the session's live stream of the conversation starts and
// returns the history in between, so the session sees neither a gap nor a
// duplicate.
func (s *MessageService) Sync(ctx context.Context, sessionId, conversationId string, afterSeq int64, limit int) (*SyncResult, error) {
	session, ok := s.Hub.Session(sessionId)
	if !ok {
		return nil, errcode.ErrSessionNotFound
	}
	if limit <= 0 || limit > s.Engine.ReadPageSize {
		limit = s.Engine.ReadPageSize
	}

	reader, _, err := s.readerWindow(ctx, conversationId, session.UserId)
	if err != nil {
		return nil, err
	}

	var floor int64
	err = s.serialize(ctx, conversationId, func(ctx context.Context) error {
		maxSeq, err := s.Store.LoadMaxSeq(ctx, conversationId)
		if err != nil {
			return err
		}
		if floor, ok = s.Hub.Pin(sessionId, conversationId, maxSeq); !ok {
			return errcode.ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Messages: make([]*entity.Message, 0, limit), Floor: floor}
	for msg, err := range s.readRange(ctx, conversationId, reader, afterSeq, floor, limit) {
		if err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, msg)
	}
	if n := len(result.Messages); n == limit {
		_, upto := reader.VisibleRange(floor)
		result.HasMore = result.Messages[n-1].Seq < upto
	}
	log.CtxDebug(ctx, "session synced: session_id=%s, conversation_id=%s, after_seq=%d, floor=%d, count=%d",
		sessionId, conversationId, afterSeq, floor, len(result.Messages))
	return result, nil
}

// GetMaxSeq returns the highest seq the user may read in the conversation
func (s *MessageService) GetMaxSeq(ctx context.Context, conversationId, userId string) (int64, error) {
	reader, maxSeq, err := s.readerWindow(ctx, conversationId, userId)
	if err != nil {
		return 0, err
	}
	_, visibleMax := reader.VisibleRange(maxSeq)
	return visibleMax, nil
}

// readerWindow loads the reader's participant record and the conversation's max seq
func (s *MessageService) readerWindow(ctx context.Context, conversationId, readerId string) (*entity.Participant, int64, error) {
	var (
		reader *entity.Participant
		maxSeq int64
	)
	err := s.read(ctx, func(ctx context.Context) error {
		if _, err := s.Store.GetConversation(ctx, conversationId); err != nil {
			return err
		}
		var err error
		if reader, err = s.Store.GetParticipant(ctx, conversationId, readerId); err != nil {
			return err
		}
		maxSeq, err = s.Store.GetMaxSeq(ctx, conversationId)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if reader == nil {
		return nil, 0, errcode.ErrNotAParticipant
	}
	return reader, maxSeq, nil
}

// readRange pages through (afterSeq, uptoSeq] clamped to the reader's window
func (s *MessageService) readRange(ctx context.Context, conversationId string, reader *entity.Participant, afterSeq, uptoSeq int64, limit int) iter.Seq2[*entity.Message, error] {
	return func(yield func(*entity.Message, error) bool) {
		minSeq, maxSeq := reader.VisibleRange(uptoSeq)
		cursor := max(afterSeq, minSeq-1)
		remaining := limit

		for cursor < maxSeq && (limit <= 0 || remaining > 0) {
			pageSize := s.Engine.ReadPageSize
			if limit > 0 && remaining < pageSize {
				pageSize = remaining
			}

			var page []*entity.Message
			err := s.read(ctx, func(ctx context.Context) error {
				var err error
				page, err = s.Store.ListMessages(ctx, conversationId, cursor, maxSeq, pageSize)
				return err
			})
			if err != nil {
				yield(nil, err)
				return
			}

			for _, msg := range page {
				if !yield(msg, nil) {
					return
				}
				cursor = msg.Seq
				remaining--
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}
