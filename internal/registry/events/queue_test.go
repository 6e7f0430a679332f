package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestry/pkg/platform/sentinel"
)

// gatedPublisher blocks every delivery until release is closed.
type gatedPublisher struct {
	release chan struct{}
	rec     *Recorder
}

func (g *gatedPublisher) Publish(ctx context.Context, e Event) error {
	<-g.release
	return g.rec.Publish(ctx, e)
}

func queueEvent(aggregateID string) Event {
	return New(TopicClaimAdded, aggregateID, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC), nil)
}

func aggregateIDs(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.AggregateID
	}
	return out
}

func TestQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("publish returns while delivery is blocked", func(t *testing.T) {
		inner := &gatedPublisher{release: make(chan struct{}), rec: NewRecorder()}
		q := NewQueue(inner)
		q.Start()

		start := time.Now()
		for _, id := range []string{"claim:0", "claim:1", "claim:2"} {
			require.NoError(t, q.Publish(ctx, queueEvent(id)))
		}
		assert.Less(t, time.Since(start), 100*time.Millisecond)
		assert.Empty(t, inner.rec.Events())

		close(inner.release)
		require.Eventually(t, func() bool { return len(inner.rec.Events()) == 3 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"claim:0", "claim:1", "claim:2"}, aggregateIDs(inner.rec.Events()))
		require.NoError(t, q.Stop(ctx))
	})

	t.Run("full buffer is reported as unavailable", func(t *testing.T) {
		q := NewQueue(NewRecorder(), WithQueueSize(1))

		require.NoError(t, q.Publish(ctx, queueEvent("claim:0")))
		err := q.Publish(ctx, queueEvent("claim:1"))
		assert.ErrorIs(t, err, ErrQueueFull)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("stop drains buffered events in order", func(t *testing.T) {
		rec := NewRecorder()
		q := NewQueue(rec)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, q.Publish(ctx, queueEvent(id)))
		}

		q.Start()
		require.NoError(t, q.Stop(ctx))
		assert.Equal(t, []string{"a", "b", "c"}, aggregateIDs(rec.Events()))
	})

	t.Run("delivery failures reach the handler", func(t *testing.T) {
		var mu sync.Mutex
		var failed []string
		q := NewQueue(&flakyPublisher{err: errors.New("broker down")},
			WithFailureHandler(func(_ context.Context, e Event, err error) {
				mu.Lock()
				defer mu.Unlock()
				failed = append(failed, e.AggregateID+": "+err.Error())
			}),
		)
		q.Start()
		require.NoError(t, q.Publish(ctx, queueEvent("claim:7")))
		require.NoError(t, q.Stop(ctx))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"claim:7: broker down"}, failed)
	})

	t.Run("stop gives up when its context ends", func(t *testing.T) {
		inner := &gatedPublisher{release: make(chan struct{}), rec: NewRecorder()}
		q := NewQueue(inner)
		q.Start()
		require.NoError(t, q.Publish(ctx, queueEvent("claim:0")))

		stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, q.Stop(stopCtx), context.DeadlineExceeded)
		close(inner.release)
	})
}
