// Package queue serializes cart mutations for one browsing session.
//
// Operations run strictly in submission order with at most one in flight.
// Each operation settles its own Future; a failure never blocks the
// operations queued behind it.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"storefront-cart/internal/model"
)

// State is the drain state of a queue.
type State int

const (
	// Idle means nothing is queued or running.
	Idle State = iota
	// Draining means an operation is running and more may be waiting.
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stats counts operations over the queue's lifetime.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

type job func(ctx context.Context) error

// Queue is a FIFO of asynchronous operations drained by a single goroutine.
// The drain goroutine is started by the first enqueue on an idle queue and
// exits when the queue empties, so an idle queue holds no goroutines.
type Queue struct {
	mu     sync.Mutex
	jobs   []job
	state  State
	closed bool
	stats  Stats
	idle   chan struct{} // closed while state == Idle

	baseCtx context.Context
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for operation failures.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithBaseContext sets the context passed to operations. Defaults to
// context.Background(); operations bound their own deadlines.
func WithBaseContext(ctx context.Context) Option {
	return func(q *Queue) { q.baseCtx = ctx }
}

// New creates an idle queue.
func New(opts ...Option) *Queue {
	idle := make(chan struct{})
	close(idle)
	q := &Queue{
		jobs:    make([]job, 0, 8),
		idle:    idle,
		baseCtx: context.Background(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Future is the pending outcome of one enqueued operation.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the operation has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the operation settles or ctx is done. Giving up on the
// wait does not cancel the operation; it still runs in its turn.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) settle(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Enqueue appends op to q and returns its Future. Enqueue never blocks.
// On a closed queue the Future settles immediately with model.ErrQueueClosed.
func Enqueue[T any](q *Queue, op func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	err := q.push(func(ctx context.Context) error {
		v, err := call(ctx, op)
		f.settle(v, err)
		return err
	})
	if err != nil {
		var zero T
		f.settle(zero, err)
	}
	return f
}

// call runs op, converting a panic into that operation's error.
func call[T any](ctx context.Context, op func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

func (q *Queue) push(j job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return model.ErrQueueClosed
	}

	q.jobs = append(q.jobs, j)
	q.stats.Enqueued++

	if q.state == Idle {
		q.state = Draining
		q.idle = make(chan struct{})
		go q.drain()
	}
	return nil
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.state = Idle
			close(q.idle)
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = nil
		if len(q.jobs) == 1 {
			q.jobs = q.jobs[:0]
		} else {
			q.jobs = q.jobs[1:]
		}
		q.mu.Unlock()

		err := j(q.baseCtx)

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Completed++
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Debug("queued operation failed", "error", err)
		}
	}
}

// Len returns the number of operations waiting, excluding the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// State returns the current drain state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Stats returns a copy of the lifetime counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// WaitIdle blocks until the queue has drained or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further enqueues. Operations already queued still run.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
