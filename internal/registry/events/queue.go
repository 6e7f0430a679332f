package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"attestry/pkg/platform/sentinel"
)

// ErrQueueFull is returned when the delivery queue cannot take another event.
var ErrQueueFull = fmt.Errorf("notification queue full: %w", sentinel.ErrUnavailable)

const (
	defaultQueueSize    = 1024
	defaultDrainTimeout = 10 * time.Second
)

// Queue decouples publishing from delivery. Publish only enqueues, so callers
// holding the registry writer lock never wait on the broker. One goroutine
// delivers to the wrapped publisher in enqueue order.
type Queue struct {
	next         Publisher
	pending      chan Event
	drainTimeout time.Duration
	onFailure    func(ctx context.Context, event Event, err error)
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueSize bounds how many undelivered events are buffered.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.pending = make(chan Event, n)
		}
	}
}

// WithDrainTimeout bounds delivery of buffered events on Stop.
func WithDrainTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.drainTimeout = d
	}
}

// WithFailureHandler is called for every event the wrapped publisher rejects.
func WithFailureHandler(fn func(ctx context.Context, event Event, err error)) QueueOption {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

func NewQueue(next Publisher, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		next:         next,
		pending:      make(chan Event, defaultQueueSize),
		drainTimeout: defaultDrainTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish enqueues event without blocking.
func (q *Queue) Publish(_ context.Context, event Event) error {
	select {
	case q.pending <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start begins delivery in a background goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case event := <-q.pending:
			// Stop only ends the loop; an in-flight delivery keeps its own deadline.
			q.deliver(context.Background(), event)
		}
	}
}

// drain delivers whatever is still buffered once Stop was called.
func (q *Queue) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), q.drainTimeout)
	defer cancel()

	if n := len(q.pending); n > 0 && q.logger != nil {
		q.logger.Info("draining notification queue", "pending", n)
	}
	for {
		select {
		case event := <-q.pending:
			if ctx.Err() != nil {
				q.fail(ctx, event, ctx.Err())
				continue
			}
			q.deliver(ctx, event)
		default:
			return
		}
	}
}

func (q *Queue) deliver(ctx context.Context, event Event) {
	if err := q.next.Publish(ctx, event); err != nil {
		q.fail(ctx, event, err)
	}
}

func (q *Queue) fail(ctx context.Context, event Event, err error) {
	if q.logger != nil {
		q.logger.Warn("failed to deliver registry notification",
			"topic", string(event.Topic),
			"event_id", event.ID.String(),
			"aggregate_id", event.AggregateID,
			"error", err,
		)
	}
	if q.onFailure != nil {
		q.onFailure(ctx, event, err)
	}
}

// Stop ends delivery after the buffered events are drained, or when ctx expires.
func (q *Queue) Stop(ctx context.Context) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
