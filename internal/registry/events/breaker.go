package events

import (
	"context"
	"fmt"
	"log/slog"

	"attestry/pkg/platform/circuit"
	"attestry/pkg/platform/sentinel"
)

// ErrCircuitOpen is returned while the downstream publisher is considered unavailable.
var ErrCircuitOpen = fmt.Errorf("notification circuit open: %w", sentinel.ErrUnavailable)

// BreakerPublisher skips the wrapped publisher after repeated failures so an
// unavailable broker does not stall every mutation for a full delivery timeout.
type BreakerPublisher struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewBreakerPublisher(next Publisher, breaker *circuit.Breaker, logger *slog.Logger) *BreakerPublisher {
	return &BreakerPublisher{next: next, breaker: breaker, logger: logger}
}

func (p *BreakerPublisher) Publish(ctx context.Context, event Event) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	if err := p.next.Publish(ctx, event); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened && p.logger != nil {
			p.logger.Warn("notification circuit opened",
				"breaker", p.breaker.Name(),
				"topic", event.Topic,
				"error", err,
			)
		}
		return err
	}

	if _, change := p.breaker.RecordSuccess(); change.Closed && p.logger != nil {
		p.logger.Info("notification circuit closed", "breaker", p.breaker.Name())
	}
	return nil
}
