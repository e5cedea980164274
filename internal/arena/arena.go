// Package arena runs work for a key on a single goroutine.
//
// Each active key (a conversation id, or a dedup key while a conversation is
// being created) owns one worker fed by a bounded queue. Tasks for the same
// key run one at a time in submission order; different keys run in parallel.
// Idle workers exit and are started again on demand.
package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
)

var (
	ErrClosed      = errors.New("arena closed")
	ErrWorkerPanic = errors.New("worker panic")
)

// Task is the unit of work executed on a key's worker
type Task func(ctx context.Context) error

type job struct {
	ctx  context.Context
	fn   Task
	done chan error
}

type worker struct {
	key  string
	jobs chan *job
	refs int // submitters holding this worker, guarded by Arena.mu
}

// Arena owns the workers, indexed by key
type Arena struct {
	mu          sync.Mutex
	workers     map[string]*worker
	queueSize   int
	idleTimeout time.Duration
	quit        chan struct{}
	closed      bool
	wg          sync.WaitGroup
}

// New creates an Arena
func New(queueSize int, idleTimeout time.Duration) *Arena {
	if queueSize <= 0 {
		queueSize = 1
	}
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}
	return &Arena{
		workers:     make(map[string]*worker),
		queueSize:   queueSize,
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
}

// Do runs fn on the worker for key and waits for its result.
// Do blocks while the key's queue is full. If ctx ends before fn starts,
// fn is skipped; if ctx ends while fn runs, Do returns ctx.Err() and fn
// still completes on the worker.
func (a *Arena) Do(ctx context.Context, key string, fn Task) error {
	w, err := a.acquire(key)
	if err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		a.release(w)
		return ctx.Err()
	case <-a.quit:
		a.release(w)
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.quit:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrClosed
		}
	}
}

// acquire returns the worker for key, starting one if needed
func (a *Arena) acquire(key string) (*worker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrClosed
	}
	w, ok := a.workers[key]
	if !ok {
		w = &worker{key: key, jobs: make(chan *job, a.queueSize)}
		a.workers[key] = w
		a.wg.Add(1)
		go a.run(w)
	}
	w.refs++
	return w, nil
}

func (a *Arena) release(w *worker) {
	a.mu.Lock()
	w.refs--
	a.mu.Unlock()
}

// tryRetire removes an idle worker from the index.
// A worker with outstanding submitters stays alive.
func (a *Arena) tryRetire(w *worker) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if w.refs > 0 || len(w.jobs) > 0 {
		return false
	}
	delete(a.workers, w.key)
	return true
}

func (a *Arena) run(w *worker) {
	defer a.wg.Done()

	idle := time.NewTimer(a.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case j := <-w.jobs:
			j.done <- a.execute(w.key, j)
			a.release(w)

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.idleTimeout)
		case <-idle.C:
			if a.tryRetire(w) {
				return
			}
			idle.Reset(a.idleTimeout)
		case <-a.quit:
			a.drain(w)
			return
		}
	}
}

// drain fails jobs still queued at shutdown
func (a *Arena) drain(w *worker) {
	for {
		select {
		case j := <-w.jobs:
			j.done <- ErrClosed
			a.release(w)
		default:
			return
		}
	}
}

func (a *Arena) execute(key string, j *job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(j.ctx, "arena task panic: key=%s, panic=%v", key, r)
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
		}
	}()
	return j.fn(j.ctx)
}

// Len returns the number of live workers
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}

// Close stops all workers. Queued tasks fail with ErrClosed.
func (a *Arena) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.quit)
	a.mu.Unlock()

	a.wg.Wait()
	log.Info("arena closed")
}
