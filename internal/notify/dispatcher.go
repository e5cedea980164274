//go:generate go run go.uber.org/mock/mockgen -source=dispatcher.go -destination=mock_dispatcher.go -package=notify

// Package notify hands committed events to out-of-band delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
)

// TaskTypePrefix prefixes the asynq task type of every dispatched event
const TaskTypePrefix = "notify:"

// Dispatcher receives each committed event exactly once
type Dispatcher interface {
	Dispatch(ctx context.Context, evt *entity.Event, recipients []string) error
}

// Payload is the task body of a dispatched event
type Payload struct {
	Event      *entity.Event `json:"event"`
	Recipients []string      `json:"recipients"`
}

// TaskType returns the asynq task type for an event type
func TaskType(t entity.EventType) string {
	return TaskTypePrefix + string(t)
}

// AsynqDispatcher enqueues events as asynq tasks keyed by event id
type AsynqDispatcher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

var _ Dispatcher = (*AsynqDispatcher)(nil)

// RedisOpt converts the redis config into asynq connection options
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsynqDispatcher creates a dispatcher enqueueing into cfg.Queue
func NewAsynqDispatcher(redisCfg *config.RedisConfig, cfg *config.NotifyConfig) *AsynqDispatcher {
	return &AsynqDispatcher{
		client:   asynq.NewClient(RedisOpt(redisCfg)),
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
	}
}

// Dispatch implements Dispatcher.
// A task id that is already queued is treated as delivered.
func (d *AsynqDispatcher) Dispatch(ctx context.Context, evt *entity.Event, recipients []string) error {
	body, err := json.Marshal(&Payload{Event: evt, Recipients: recipients})
	if err != nil {
		return fmt.Errorf("marshal notify payload: %w", err)
	}

	task := asynq.NewTask(TaskType(evt.Type), body)
	info, err := d.client.EnqueueContext(ctx, task,
		asynq.TaskID(evt.Id),
		asynq.Queue(d.queue),
		asynq.MaxRetry(d.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.CtxDebug(ctx, "notify task already queued: event_id=%s", evt.Id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue notify task: %w", err)
	}

	log.CtxDebug(ctx, "notify task enqueued: event_id=%s, type=%s, queue=%s", info.ID, info.Type, info.Queue)
	return nil
}

// Close releases the asynq client
func (d *AsynqDispatcher) Close() error {
	return d.client.Close()
}

// LogDispatcher only logs events; used when no queue is configured
type LogDispatcher struct{}

var _ Dispatcher = LogDispatcher{}

// Dispatch implements Dispatcher
func (LogDispatcher) Dispatch(ctx context.Context, evt *entity.Event, recipients []string) error {
	log.CtxDebug(ctx, "event committed: id=%s, type=%s, conversation_id=%s, seq=%d, recipients=%d",
		evt.Id, evt.Type, evt.ConversationId, evt.Seq, len(recipients))
	return nil
}
