package service

import (
	"context"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
)

// ModerationService handles privileged conversation mutations
type ModerationService struct {
	*Deps
}

// NewModerationService creates a new ModerationService
func NewModerationService(deps *Deps) *ModerationService {
	return &ModerationService{Deps: deps}
}

// RenameConversation renames a group. Only admins may rename.
func (s *ModerationService) RenameConversation(ctx context.Context, conversationId, actorId, newName string) (*entity.Conversation, error) {
	var renamed *entity.Conversation
	err := s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if err := requireGroupAdmin(conv, participants, actorId); err != nil {
			return err
		}
		name, err := s.validateName(newName)
		if err != nil {
			return err
		}

		now := entity.NowUnixMilli()
		if err := s.Store.UpdateConversation(ctx, &repository.ConversationUpdate{
			ConversationId: conversationId,
			Name:           &name,
			At:             now,
		}); err != nil {
			return err
		}
		renamed = conv.Clone()
		renamed.Name = name
		renamed.UpdatedAt = now
		renamed.LastActivityAt = now

		s.emit(ctx, &entity.Event{
			Type:           entity.EventConversationRenamed,
			ConversationId: conversationId,
			Name:           name,
			At:             now,
		}, entity.ActiveUserIds(participants))
		log.CtxInfo(ctx, "conversation renamed: conversation_id=%s, actor_id=%s, name=%s", conversationId, actorId, name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// BlockParticipant blocks targetId in the conversation.
// In a direct conversation either party may block the other; the blocked
// party can no longer send and the blocker keeps the history. In a group
// only admins may block, which removes the target and keeps it out until
// an admin adds it again.
func (s *ModerationService) BlockParticipant(ctx context.Context, conversationId, actorId, targetId string) error {
	return s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if !conv.IsActive() {
			return errcode.ErrConversationDeleted
		}
		if actorId == targetId {
			return errcode.ErrInvalidTarget
		}
		actor := findParticipant(participants, actorId)
		if actor == nil || !actor.IsActive() {
			return errcode.ErrNotAuthorized
		}
		if conv.IsGroup() && !actor.IsAdmin() {
			return errcode.ErrNotAuthorized
		}
		target := findParticipant(participants, targetId)
		if target == nil {
			return errcode.ErrNotAParticipant
		}
		if target.IsBlocked() {
			return nil
		}

		if conv.IsGroup() {
			return s.shrinkGroup(ctx, conv, participants, target, actorId, constant.ParticipantStatusBlocked, entity.RosterBlocked)
		}
		return s.blockDirect(ctx, conv, participants, target, actorId)
	})
}

func (s *ModerationService) blockDirect(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant, target *entity.Participant, actorId string) error {
	maxSeq, err := s.Store.LoadMaxSeq(ctx, conv.Id)
	if err != nil {
		return err
	}
	now := entity.NowUnixMilli()

	blocked := target.Clone()
	blocked.Status = constant.ParticipantStatusBlocked
	blocked.LeftSeq = maxSeq
	if err := s.Store.UpdateConversation(ctx, &repository.ConversationUpdate{
		ConversationId: conv.Id,
		Participants:   []*entity.Participant{blocked},
		At:             now,
	}); err != nil {
		return err
	}

	recipients := make([]string, 0, len(participants))
	for _, p := range participants {
		if p.IsActive() && p.UserId != target.UserId {
			recipients = append(recipients, p.UserId)
		}
	}
	s.emit(ctx, &entity.Event{
		Type:           entity.EventRosterChanged,
		ConversationId: conv.Id,
		Roster:         &entity.RosterChange{Action: entity.RosterBlocked, ActorId: actorId, UserIds: []string{target.UserId}},
		At:             now,
	}, recipients)
	log.CtxInfo(ctx, "direct participant blocked: conversation_id=%s, actor_id=%s, user_id=%s, left_seq=%d",
		conv.Id, actorId, target.UserId, maxSeq)
	return nil
}

// DeleteConversation soft-deletes the conversation. Group deletion needs an
// admin; either active party may delete a direct conversation. Messages are
// retained and stay readable.
func (s *ModerationService) DeleteConversation(ctx context.Context, conversationId, actorId string) error {
	return s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if !conv.IsActive() {
			return errcode.ErrConversationDeleted
		}
		actor := findParticipant(participants, actorId)
		if actor == nil || !actor.IsActive() || (conv.IsGroup() && !actor.IsAdmin()) {
			return errcode.ErrNotAuthorized
		}

		now := entity.NowUnixMilli()
		if err := s.Store.UpdateConversation(ctx, &repository.ConversationUpdate{
			ConversationId: conversationId,
			Delete:         true,
			ClearDedupKey:  conv.IsDirect(),
			At:             now,
		}); err != nil {
			return err
		}

		s.emit(ctx, &entity.Event{
			Type:           entity.EventConversationDeleted,
			ConversationId: conversationId,
			At:             now,
		}, entity.ActiveUserIds(participants))
		log.CtxInfo(ctx, "conversation deleted: conversation_id=%s, actor_id=%s", conversationId, actorId)
		return nil
	})
}
