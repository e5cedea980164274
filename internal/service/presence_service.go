package service

import (
	"context"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/idgen"
)

// PresenceService manages client sessions and answers online queries
type PresenceService struct {
	*Deps
	conversations *ConversationService
}

// NewPresenceService creates a new PresenceService
func NewPresenceService(deps *Deps, conversations *ConversationService) *PresenceService {
	return &PresenceService{Deps: deps, conversations: conversations}
}

// Connect opens a session for userId and marks it online
func (s *PresenceService) Connect(ctx context.Context, userId string) (*fanout.Session, error) {
	if userId == "" {
		return nil, errcode.ErrInvalidParam
	}
	sessionId := idgen.NewSessionID()
	session := s.Hub.Attach(sessionId, userId)
	s.Presence.Heartbeat(ctx, sessionId, userId, "")
	log.CtxInfo(ctx, "session connected: session_id=%s, user_id=%s", sessionId, userId)
	return session, nil
}

// Heartbeat refreshes the session and records which conversation it is
// viewing; an empty watchedConversationId means none
func (s *PresenceService) Heartbeat(ctx context.Context, sessionId, watchedConversationId string) error {
	session, ok := s.Hub.Session(sessionId)
	if !ok {
		return errcode.ErrSessionNotFound
	}
	if watchedConversationId != "" {
		if _, err := s.conversations.EnsureParticipant(ctx, watchedConversationId, session.UserId); err != nil {
			return err
		}
	}
	s.Presence.Heartbeat(ctx, sessionId, session.UserId, watchedConversationId)
	return nil
}

// Disconnect closes the session. Unknown sessions are ignored.
func (s *PresenceService) Disconnect(ctx context.Context, sessionId string) {
	entry, known := s.Presence.Get(sessionId)
	detached := s.Hub.Detach(sessionId, nil)
	lastSession := s.Presence.Disconnect(ctx, sessionId)
	if detached || known {
		log.CtxInfo(ctx, "session disconnected: session_id=%s, user_id=%s, user_offline=%t", sessionId, entry.UserId, lastSession)
	}
}

// OnlineCount counts distinct active participants that are online.
// Scope "anywhere" counts users with any live session, "viewing" only
// those whose session has the conversation open.
func (s *PresenceService) OnlineCount(ctx context.Context, conversationId, scope string) (int, error) {
	var participants []*entity.Participant
	err := s.read(ctx, func(ctx context.Context) error {
		if _, err := s.Store.GetConversation(ctx, conversationId); err != nil {
			return err
		}
		var err error
		participants, err = s.Store.ListParticipants(ctx, conversationId)
		return err
	})
	if err != nil {
		return 0, err
	}
	userIds := lo.Uniq(entity.ActiveUserIds(participants))

	switch scope {
	case "", constant.PresenceScopeAnywhere:
		return s.Presence.CountOnline(ctx, userIds), nil
	case constant.PresenceScopeViewing:
		return s.Presence.CountViewing(conversationId, userIds), nil
	default:
		return 0, errcode.ErrInvalidParam
	}
}

// OnlineCountFor is OnlineCount on behalf of askerId, who must have been
// a participant of the conversation
func (s *PresenceService) OnlineCountFor(ctx context.Context, conversationId, askerId, scope string) (int, error) {
	if _, err := s.conversations.EnsureParticipant(ctx, conversationId, askerId); err != nil {
		return 0, err
	}
	return s.OnlineCount(ctx, conversationId, scope)
}

// Run sweeps expired presence entries until ctx is done
func (s *PresenceService) Run(ctx context.Context) {
	s.Presence.Run(ctx, s.Engine.PresenceSweepInterval)
}
