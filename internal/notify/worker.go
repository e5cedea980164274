package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
)

// OnlineChecker reports whether a user has a live session somewhere
type OnlineChecker interface {
	IsOnline(ctx context.Context, userId string) bool
}

// Deliverer hands an event to a user who is not connected
type Deliverer func(ctx context.Context, userId string, evt *entity.Event) error

// Worker consumes dispatched events and forwards them to offline recipients
type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	online  OnlineChecker
	deliver Deliverer
}

// NewWorker creates a Worker; deliver may be nil, in which case deliveries are only logged
func NewWorker(redisCfg *config.RedisConfig, cfg *config.NotifyConfig, online OnlineChecker, deliver Deliverer) *Worker {
	if deliver == nil {
		deliver = logDeliver
	}
	w := &Worker{
		server: asynq.NewServer(RedisOpt(redisCfg), asynq.Config{
			Concurrency: 4,
			Queues:      map[string]int{cfg.Queue: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.CtxWarn(ctx, "notify task failed: type=%s, error=%v", task.Type(), err)
			}),
		}),
		mux:     asynq.NewServeMux(),
		online:  online,
		deliver: deliver,
	}
	for _, t := range []entity.EventType{
		entity.EventMessageAppended,
		entity.EventRosterChanged,
		entity.EventConversationRenamed,
		entity.EventConversationDeleted,
	} {
		w.mux.HandleFunc(TaskType(t), w.ProcessTask)
	}
	return w
}

// ProcessTask delivers one event to each recipient without a live session
func (w *Worker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode notify payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.Event == nil {
		return fmt.Errorf("notify payload without event: %w", asynq.SkipRetry)
	}

	for _, userId := range p.Recipients {
		if userId == p.Event.ActorId() || w.online.IsOnline(ctx, userId) {
			continue
		}
		if err := w.deliver(ctx, userId, p.Event); err != nil {
			return err
		}
	}
	return nil
}

// Start runs the worker in the background
func (w *Worker) Start() error {
	return w.server.Start(w.mux)
}

// Shutdown stops the worker and waits for in-flight tasks
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

func logDeliver(ctx context.Context, userId string, evt *entity.Event) error {
	log.CtxInfo(ctx, "offline notification: user_id=%s, event_id=%s, type=%s, conversation_id=%s",
		userId, evt.Id, evt.Type, evt.ConversationId)
	return nil
}
