// Package service is the registry facade. Every mutating operation runs
// authenticate, validate format, validate state, mutate, notify, in that order.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attestry/internal/registry/events"
	registrymetrics "attestry/internal/registry/metrics"
	"attestry/internal/registry/models"
	"attestry/internal/registry/reputation"
	"attestry/internal/registry/store"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
)

// Store is the typed registry storage the facade runs against.
type Store interface {
	Profile(ctx context.Context, addr domain.Address) (*models.Profile, error)
	HasProfile(ctx context.Context, addr domain.Address) (bool, error)
	Claim(ctx context.Context, id uint64) (*models.Claim, error)
	ClaimsByReceiver(ctx context.Context, addr domain.Address) ([]uint64, error)
	ClaimsByIssuer(ctx context.Context, addr domain.Address) ([]uint64, error)
	NextClaimID(ctx context.Context) (uint64, error)
	RunInTx(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Publisher delivers notifications after a mutation commits.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Authenticator fails unless the caller has authorized as addr.
type Authenticator interface {
	RequireAuth(ctx context.Context, addr domain.Address) error
}

// CallerAuthenticator checks addr against the authenticated caller in the request context.
type CallerAuthenticator struct{}

func (CallerAuthenticator) RequireAuth(ctx context.Context, addr domain.Address) error {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if caller != addr {
		return dErrors.New(dErrors.CodeUnauthorized, "caller has not authorized as "+addr.String())
	}
	return nil
}

// Service is the registry facade.
type Service struct {
	store     Store
	publisher Publisher
	auth      Authenticator
	rules     reputation.Rules
	logger    *slog.Logger
	metrics   *registrymetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithAuthenticator(a Authenticator) Option {
	return func(s *Service) {
		s.auth = a
	}
}

func WithRules(rules reputation.Rules) Option {
	return func(s *Service) {
		s.rules = rules
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(st Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		publisher: events.Discard{},
		auth:      CallerAuthenticator{},
		rules:     reputation.DefaultRules(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("attestry/registry")
	}
	return s
}

// begin opens a span and returns the function that closes it, recording metrics
// and the error code of a failed operation.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			code := dErrors.CodeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(code))
			if s.metrics != nil {
				s.metrics.IncrementOperationFailures(op, string(code))
			}
			if code == dErrors.CodeInternal {
				s.logError(ctx, "registry operation failed", "operation", op, "error", err)
			}
		}
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, start)
		}
	}
}

// notify hands the event to the publisher once the surrounding transaction commits.
// Hooks run in commit order under the writer lock, so the publisher should only
// enqueue (see events.Queue). Failures are logged; the mutation has already succeeded.
func (s *Service) notify(tx *store.Tx, topic events.Topic, aggregateID string, payload any) {
	tx.AfterCommit(func(ctx context.Context) {
		event := events.New(topic, aggregateID, requestcontext.Now(ctx), payload)
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logWarn(ctx, "failed to publish registry notification",
				"topic", string(topic),
				"event_id", event.ID.String(),
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.IncrementNotificationFailures(string(topic))
			}
		}
	})
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}

