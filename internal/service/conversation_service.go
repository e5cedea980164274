package service

import (
	"context"
	"errors"
	"slices"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/idgen"
)

// ConversationService owns conversation records and their rosters
type ConversationService struct {
	*Deps
}

// NewConversationService creates a new ConversationService
func NewConversationService(deps *Deps) *ConversationService {
	return &ConversationService{Deps: deps}
}

// CreateGroupRequest represents create group request
type CreateGroupRequest struct {
	Name              string   `json:"name"`
	MemberIdentifiers []string `json:"member_identifiers"`
	IdempotencyToken  string   `json:"idempotency_token,omitempty"`
}

// StartDirectConversation returns the active direct conversation between the
// requester and the target, creating it when none exists
func (s *ConversationService) StartDirectConversation(ctx context.Context, requesterId, targetIdentifier string) (*entity.Conversation, error) {
	targetId, err := s.resolveTarget(ctx, targetIdentifier)
	if err != nil {
		return nil, err
	}
	if targetId == requesterId {
		return nil, errcode.ErrSelfConversation
	}

	key := entity.GenDirectDedupKey(requesterId, targetId)
	var conv *entity.Conversation
	err = s.serialize(ctx, key, func(ctx context.Context) error {
		existing, err := s.Store.GetConversationByDedupKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			conv = existing
			return nil
		}

		id, err := idgen.NextID()
		if err != nil {
			return errcode.ErrInternalServer.Wrap(err)
		}
		now := entity.NowUnixMilli()
		candidate := &entity.Conversation{
			Id:             id,
			Kind:           constant.ConversationKindDirect,
			Status:         constant.ConversationStatusActive,
			DedupKey:       &key,
			CreatorId:      requesterId,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		participants := []*entity.Participant{
			newParticipant(id, requesterId, constant.RoleMember, requesterId, 1, now),
			newParticipant(id, targetId, constant.RoleMember, requesterId, 1, now),
		}

		got, created, err := s.Store.CreateConversation(ctx, candidate, participants)
		if err != nil {
			return err
		}
		conv = got
		if !created {
			log.CtxDebug(ctx, "direct conversation created concurrently: conversation_id=%s", got.Id)
			return nil
		}

		members := []string{requesterId, targetId}
		s.emit(ctx, &entity.Event{
			Type:           entity.EventRosterChanged,
			ConversationId: id,
			Roster:         &entity.RosterChange{Action: entity.RosterCreated, ActorId: requesterId, UserIds: members},
			At:             now,
		}, members)
		log.CtxInfo(ctx, "direct conversation created: conversation_id=%s, requester_id=%s, target_id=%s", id, requesterId, targetId)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// CreateGroupConversation creates a group with the creator as its admin.
// A retry with the same idempotency token returns the group created first.
func (s *ConversationService) CreateGroupConversation(ctx context.Context, creatorId string, req *CreateGroupRequest) (*entity.Conversation, error) {
	name, err := s.validateName(req.Name)
	if err != nil {
		return nil, err
	}

	memberIds := make([]string, 0, len(req.MemberIdentifiers))
	for _, identifier := range req.MemberIdentifiers {
		userId, err := s.resolveTarget(ctx, identifier)
		if errors.Is(err, errcode.ErrInvalidTarget) {
			log.CtxDebug(ctx, "group member dropped, identifier not found: identifier=%s", identifier)
			continue
		}
		if err != nil {
			return nil, err
		}
		if userId == creatorId {
			continue
		}
		if lo.Contains(memberIds, userId) {
			return nil, errcode.ErrDuplicateMember
		}
		memberIds = append(memberIds, userId)
	}
	if len(memberIds) < 1 {
		return nil, errcode.ErrEmptyGroup
	}

	var dedupKey *string
	if req.IdempotencyToken != "" {
		key := entity.GenGroupDedupKey(creatorId, req.IdempotencyToken)
		dedupKey = &key
	}

	create := func(ctx context.Context) (*entity.Conversation, error) {
		if dedupKey != nil {
			existing, err := s.Store.GetConversationByDedupKey(ctx, *dedupKey)
			if err != nil || existing != nil {
				return existing, err
			}
		}

		id, err := idgen.NextID()
		if err != nil {
			return nil, errcode.ErrInternalServer.Wrap(err)
		}
		now := entity.NowUnixMilli()
		candidate := &entity.Conversation{
			Id:             id,
			Kind:           constant.ConversationKindGroup,
			Name:           name,
			Status:         constant.ConversationStatusActive,
			DedupKey:       dedupKey,
			CreatorId:      creatorId,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		participants := make([]*entity.Participant, 0, len(memberIds)+1)
		participants = append(participants, newParticipant(id, creatorId, constant.RoleAdmin, creatorId, 1, now))
		for _, uid := range memberIds {
			participants = append(participants, newParticipant(id, uid, constant.RoleMember, creatorId, 1, now))
		}

		conv, created, err := s.Store.CreateConversation(ctx, candidate, participants)
		if err != nil || !created {
			return conv, err
		}

		everyone := entity.ActiveUserIds(participants)
		s.emit(ctx, &entity.Event{
			Type:           entity.EventRosterChanged,
			ConversationId: id,
			Roster:         &entity.RosterChange{Action: entity.RosterCreated, ActorId: creatorId, UserIds: everyone},
			Name:           name,
			At:             now,
		}, everyone)
		log.CtxInfo(ctx, "group created: conversation_id=%s, creator_id=%s, member_count=%d", id, creatorId, len(everyone))
		return conv, nil
	}

	if dedupKey == nil {
		return create(ctx)
	}
	var conv *entity.Conversation
	err = s.serialize(ctx, *dedupKey, func(ctx context.Context) error {
		var err error
		conv, err = create(ctx)
		return err
	})
	return conv, err
}

// AddMember invites a user into a group. Removed and blocked users are
// re-admitted and see history from the next message on.
func (s *ConversationService) AddMember(ctx context.Context, conversationId, actorId, memberIdentifier string) (*entity.Participant, error) {
	targetId, err := s.resolveTarget(ctx, memberIdentifier)
	if err != nil {
		return nil, err
	}

	var added *entity.Participant
	err = s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if err := requireGroupAdmin(conv, participants, actorId); err != nil {
			return err
		}

		prev := findParticipant(participants, targetId)
		if prev != nil && prev.IsActive() {
			return errcode.ErrAlreadyMember
		}

		maxSeq, err := s.Store.LoadMaxSeq(ctx, conversationId)
		if err != nil {
			return err
		}
		now := entity.NowUnixMilli()
		added = newParticipant(conversationId, targetId, constant.RoleMember, actorId, maxSeq+1, now)
		if err := s.Store.UpdateConversation(ctx, &repository.ConversationUpdate{
			ConversationId: conversationId,
			Participants:   []*entity.Participant{added},
			At:             now,
		}); err != nil {
			return err
		}

		recipients := append(entity.ActiveUserIds(participants), targetId)
		s.emit(ctx, &entity.Event{
			Type:           entity.EventRosterChanged,
			ConversationId: conversationId,
			Roster:         &entity.RosterChange{Action: entity.RosterAdded, ActorId: actorId, UserIds: []string{targetId}},
			At:             now,
		}, recipients)
		log.CtxInfo(ctx, "member added: conversation_id=%s, actor_id=%s, user_id=%s, rejoin=%t", conversationId, actorId, targetId, prev != nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveMember removes an active member from a group. The group is deleted
// when fewer than two active members remain.
func (s *ConversationService) RemoveMember(ctx context.Context, conversationId, actorId, targetId string) error {
	return s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if err := requireGroupAdmin(conv, participants, actorId); err != nil {
			return err
		}
		target := findParticipant(participants, targetId)
		if target == nil || !target.IsActive() {
			return errcode.ErrNotAParticipant
		}
		return s.shrinkGroup(ctx, conv, participants, target, actorId, constant.ParticipantStatusRemoved, entity.RosterRemoved)
	})
}

// LeaveConversation removes the user from a group on their own behalf
func (s *ConversationService) LeaveConversation(ctx context.Context, conversationId, userId string) error {
	return s.serialize(ctx, conversationId, func(ctx context.Context) error {
		conv, participants, err := s.loadConversation(ctx, conversationId)
		if err != nil {
			return err
		}
		if !conv.IsActive() {
			return errcode.ErrConversationDeleted
		}
		if !conv.IsGroup() {
			return errcode.ErrNotAGroup
		}
		self := findParticipant(participants, userId)
		if self == nil || !self.IsActive() {
			return errcode.ErrNotAParticipant
		}
		return s.shrinkGroup(ctx, conv, participants, self, userId, constant.ParticipantStatusRemoved, entity.RosterLeft)
	})
}

// shrinkGroup moves target out of the active roster of a group in one update.
// The earliest-joined member is promoted when the last admin goes, and the
// group is deleted when fewer than two active members remain.
func (d *Deps) shrinkGroup(ctx context.Context, conv *entity.Conversation, participants []*entity.Participant,
	target *entity.Participant, actorId string, status int32, action entity.RosterAction) error {
	maxSeq, err := d.Store.LoadMaxSeq(ctx, conv.Id)
	if err != nil {
		return err
	}
	now := entity.NowUnixMilli()

	wasActive := target.IsActive()
	updated := target.Clone()
	updated.Status = status
	updated.Role = constant.RoleMember
	if wasActive {
		updated.LeftSeq = maxSeq
	}
	update := &repository.ConversationUpdate{
		ConversationId: conv.Id,
		Participants:   []*entity.Participant{updated},
		At:             now,
	}

	remaining := lo.Filter(participants, func(p *entity.Participant, _ int) bool {
		return p.IsActive() && p.UserId != target.UserId
	})
	var promoted string
	if wasActive {
		if len(remaining) < 2 {
			update.Delete = true
		} else if !lo.ContainsBy(remaining, func(p *entity.Participant) bool { return p.IsAdmin() }) {
			next := remaining[0].Clone()
			next.Role = constant.RoleAdmin
			update.Participants = append(update.Participants, next)
			promoted = next.UserId
		}
	}

	if err := d.Store.UpdateConversation(ctx, update); err != nil {
		return err
	}

	remainingIds := entity.ActiveUserIds(remaining)
	recipients := remainingIds
	if status == constant.ParticipantStatusRemoved {
		recipients = append(slices.Clone(remainingIds), target.UserId)
	}
	d.emit(ctx, &entity.Event{
		Type:           entity.EventRosterChanged,
		ConversationId: conv.Id,
		Roster: &entity.RosterChange{
			Action:   action,
			ActorId:  actorId,
			UserIds:  []string{target.UserId},
			Promoted: promoted,
		},
		At: now,
	}, recipients)
	if update.Delete {
		d.emit(ctx, &entity.Event{
			Type:           entity.EventConversationDeleted,
			ConversationId: conv.Id,
			At:             now,
		}, remainingIds)
	}

	log.CtxInfo(ctx, "group roster shrunk: conversation_id=%s, actor_id=%s, user_id=%s, action=%s, promoted=%s, deleted=%t",
		conv.Id, actorId, target.UserId, action, promoted, update.Delete)
	return nil
}

// ListActiveParticipants returns a snapshot of the active roster with display data
func (s *ConversationService) ListActiveParticipants(ctx context.Context, conversationId string) ([]*entity.ParticipantInfo, error) {
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
		return nil, err
	}

	active := lo.Filter(participants, func(p *entity.Participant, _ int) bool { return p.IsActive() })
	users, err := s.lookup(ctx, entity.ActiveUserIds(active))
	if err != nil {
		return nil, err
	}
	return lo.Map(active, func(p *entity.Participant, _ int) *entity.ParticipantInfo {
		info := &entity.ParticipantInfo{UserId: p.UserId, Role: p.Role, JoinedAt: p.JoinedAt}
		if u, ok := users[p.UserId]; ok {
			info.Identifier = u.Identifier
			info.Nickname = u.Nickname
			info.Avatar = u.Avatar
		}
		return info
	}), nil
}

// EnsureParticipant returns the viewer's participant record in any status
func (s *ConversationService) EnsureParticipant(ctx context.Context, conversationId, userId string) (*entity.Participant, error) {
	var p *entity.Participant
	err := s.read(ctx, func(ctx context.Context) error {
		if _, err := s.Store.GetConversation(ctx, conversationId); err != nil {
			return err
		}
		var err error
		p, err = s.Store.GetParticipant(ctx, conversationId, userId)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errcode.ErrNotAParticipant
	}
	return p, nil
}

// GetConversation returns the conversation as seen by viewerId
func (s *ConversationService) GetConversation(ctx context.Context, conversationId, viewerId string) (*entity.ConversationInfo, error) {
	var (
		conv         *entity.Conversation
		participants []*entity.Participant
		maxSeq       int64
	)
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		if conv, participants, err = s.loadConversation(ctx, conversationId); err != nil {
			return err
		}
		maxSeq, err = s.Store.GetMaxSeq(ctx, conversationId)
		return err
	})
	if err != nil {
		return nil, err
	}
	viewer := findParticipant(participants, viewerId)
	if viewer == nil {
		return nil, errcode.ErrNotAParticipant
	}

	names, err := s.displayNames(ctx, viewerId, map[*entity.Conversation][]*entity.Participant{conv: participants})
	if err != nil {
		return nil, err
	}
	_, visibleMax := viewer.VisibleRange(maxSeq)
	return conv.ToConversationInfo(names[conv.Id], visibleMax), nil
}

// ListUserConversations returns the active conversations of userId, most recent first
func (s *ConversationService) ListUserConversations(ctx context.Context, userId string) ([]*entity.ConversationInfo, error) {
	var convs []*entity.Conversation
	rosters := make(map[*entity.Conversation][]*entity.Participant)
	maxSeqs := make(map[string]int64)
	err := s.read(ctx, func(ctx context.Context) error {
		var err error
		if convs, err = s.Store.ListUserConversations(ctx, userId); err != nil {
			return err
		}
		for _, conv := range convs {
			if conv.IsDirect() {
				if rosters[conv], err = s.Store.ListParticipants(ctx, conv.Id); err != nil {
					return err
				}
			}
			if maxSeqs[conv.Id], err = s.Store.GetMaxSeq(ctx, conv.Id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	names, err := s.displayNames(ctx, userId, rosters)
	if err != nil {
		return nil, err
	}
	return lo.Map(convs, func(c *entity.Conversation, _ int) *entity.ConversationInfo {
		name, ok := names[c.Id]
		if !ok {
			name = c.Name
		}
		return c.ToConversationInfo(name, maxSeqs[c.Id])
	}), nil
}

// displayNames computes per-viewer names: groups use their name, direct
// conversations the other participant's display name
func (d *Deps) displayNames(ctx context.Context, viewerId string, rosters map[*entity.Conversation][]*entity.Participant) (map[string]string, error) {
	peers := make(map[string]string, len(rosters))
	for conv, participants := range rosters {
		if !conv.IsDirect() {
			continue
		}
		for _, p := range participants {
			if p.UserId != viewerId {
				peers[conv.Id] = p.UserId
			}
		}
	}

	users, err := d.lookup(ctx, lo.Uniq(lo.Values(peers)))
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(rosters))
	for conv := range rosters {
		if !conv.IsDirect() {
			names[conv.Id] = conv.Name
			continue
		}
		peer := peers[conv.Id]
		if u, ok := users[peer]; ok {
			names[conv.Id] = u.DisplayName()
		} else {
			names[conv.Id] = peer
		}
	}
	return names, nil
}

func (d *Deps) lookup(ctx context.Context, userIds []string) (map[string]*entity.UserInfo, error) {
	if len(userIds) == 0 {
		return map[string]*entity.UserInfo{}, nil
	}
	var users map[string]*entity.UserInfo
	err := d.read(ctx, func(ctx context.Context) error {
		var err error
		users, err = d.Resolver.Lookup(ctx, userIds)
		return err
	})
	return users, err
}

// requireGroupAdmin checks the conversation is a live group and actorId administers it
func requireGroupAdmin(conv *entity.Conversation, participants []*entity.Participant, actorId string) error {
	if !conv.IsActive() {
		return errcode.ErrConversationDeleted
	}
	if !conv.IsGroup() {
		return errcode.ErrNotAGroup
	}
	actor := findParticipant(participants, actorId)
	if actor == nil || !actor.IsAdmin() {
		return errcode.ErrNotAuthorized
	}
	return nil
}

func newParticipant(conversationId, userId string, role int32, inviterId string, joinSeq, now int64) *entity.Participant {
	return &entity.Participant{
		ConversationId: conversationId,
		UserId:         userId,
		Role:           role,
		Status:         constant.ParticipantStatusActive,
		JoinedAt:       now,
		JoinSeq:        joinSeq,
		InviterUserId:  inviterId,
	}
}
