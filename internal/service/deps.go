package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/arena"
	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/internal/identity"
	"github.com/mbeoliero/huddle/internal/notify"
	"github.com/mbeoliero/huddle/internal/presence"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/pkg/errcode"
	"github.com/mbeoliero/huddle/pkg/retry"
)

// Deps are the collaborators shared by every service
type Deps struct {
	Store      repository.Store
	Resolver   identity.Resolver
	Arena      *arena.Arena
	Hub        *fanout.Hub
	Presence   *presence.Tracker
	Dispatcher notify.Dispatcher
	Engine     config.EngineConfig
}

// Services groups the engine's services
type Services struct {
	Conversation *ConversationService
	Message      *MessageService
	Moderation   *ModerationService
	Presence     *PresenceService
}

// NewServices builds every service over deps
func NewServices(deps *Deps) *Services {
	deps.Engine.SetDefaults()
	if deps.Dispatcher == nil {
		deps.Dispatcher = notify.LogDispatcher{}
	}
	conv := NewConversationService(deps)
	return &Services{
		Conversation: conv,
		Message:      NewMessageService(deps),
		Moderation:   NewModerationService(deps),
		Presence:     NewPresenceService(deps, conv),
	}
}

// DetachOnExpire closes the hub session of every presence entry that times out
func DetachOnExpire(hub *fanout.Hub) presence.ExpireFunc {
	return func(entry entity.PresenceEntry) {
		if hub.Detach(entry.SessionId, fanout.ErrExpired) {
			log.Info("session expired: session_id=%s, user_id=%s", entry.SessionId, entry.UserId)
		}
	}
}

// read runs an idempotent store read, retrying transient failures
func (d *Deps) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, retry.Policy{
		Attempts: d.Engine.ReadRetryAttempts,
		Backoff:  d.Engine.ReadRetryBackoff,
	}, fn)
}

// serialize runs fn on the worker that owns key
func (d *Deps) serialize(ctx context.Context, key string, fn arena.Task) error {
	return d.Arena.Do(ctx, key, fn)
}

// emit publishes a committed event to live sessions, then to the dispatcher.
// It must run on the worker that committed the change.
func (d *Deps) emit(ctx context.Context, evt *entity.Event, recipients []string) {
	if evt.Id == "" {
		evt.Id = uuid.NewString()
	}
	if evt.At == 0 {
		evt.At = entity.NowUnixMilli()
	}

	delivered := d.Hub.Publish(evt, recipients)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.Engine.DispatchTimeout)
	defer cancel()
	if err := d.Dispatcher.Dispatch(dctx, evt, recipients); err != nil {
		log.CtxError(ctx, "dispatch event failed: event_id=%s, type=%s, conversation_id=%s, error=%v",
			evt.Id, evt.Type, evt.ConversationId, err)
	}
	log.CtxDebug(ctx, "event emitted: event_id=%s, type=%s, conversation_id=%s, recipients=%d, sessions=%d",
		evt.Id, evt.Type, evt.ConversationId, len(recipients), delivered)
}

// loadConversation returns the conversation and its full roster
func (d *Deps) loadConversation(ctx context.Context, conversationId string) (*entity.Conversation, []*entity.Participant, error) {
	conv, err := d.Store.GetConversation(ctx, conversationId)
	if err != nil {
		return nil, nil, err
	}
	participants, err := d.Store.ListParticipants(ctx, conversationId)
	if err != nil {
		return nil, nil, err
	}
	return conv, participants, nil
}

// resolveTarget maps an identifier to a user id, reporting misses as ErrInvalidTarget
func (d *Deps) resolveTarget(ctx context.Context, identifier string) (string, error) {
	var userId string
	err := d.read(ctx, func(ctx context.Context) error {
		var err error
		userId, err = d.Resolver.Resolve(ctx, identifier)
		return err
	})
	if errors.Is(err, errcode.ErrNotFound) {
		return "", errcode.ErrInvalidTarget
	}
	return userId, err
}

// validateName trims name and checks it against the configured limit
func (d *Deps) validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > d.Engine.MaxNameLength {
		return "", errcode.ErrInvalidName
	}
	return name, nil
}

func findParticipant(participants []*entity.Participant, userId string) *entity.Participant {
	for _, p := range participants {
		if p.UserId == userId {
			return p
		}
	}
	return nil
}
