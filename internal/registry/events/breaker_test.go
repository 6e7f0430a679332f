package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attestry/pkg/platform/circuit"
	"attestry/pkg/platform/sentinel"
)

type flakyPublisher struct {
	calls int
	err   error
}

func (f *flakyPublisher) Publish(context.Context, Event) error {
	f.calls++
	return f.err
}

func TestBreakerPublisher(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	event := New(TopicClaimAdded, "claim:0", now, ClaimAdded{ClaimID: 0})

	inner := &flakyPublisher{err: errors.New("broker down")}
	breaker := circuit.New("kafka",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	pub := NewBreakerPublisher(inner, breaker, nil)

	require.ErrorContains(t, pub.Publish(ctx, event), "broker down")
	require.ErrorContains(t, pub.Publish(ctx, event), "broker down")
	assert.True(t, breaker.IsOpen())

	err := pub.Publish(ctx, event)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open circuit must not reach the broker")

	now = now.Add(time.Minute)
	inner.err = nil
	require.NoError(t, pub.Publish(ctx, event))
	assert.Equal(t, 3, inner.calls)
	assert.False(t, breaker.IsOpen())
}

func TestErrCircuitOpenIsUnavailable(t *testing.T) {
	assert.ErrorIs(t, ErrCircuitOpen, sentinel.ErrUnavailable)
}
