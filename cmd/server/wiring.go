package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"attestry/internal/platform/config"
	"attestry/internal/platform/database"
	"attestry/internal/platform/health"
	"attestry/internal/platform/kafka/producer"
	"attestry/internal/platform/redis"
	"attestry/internal/registry/events"
	"attestry/internal/registry/store"
	"attestry/migrations"
	"attestry/pkg/platform/circuit"
	"attestry/pkg/requestcontext"
)

const (
	sweepInterval     = time.Hour
	poolStatsInterval = 15 * time.Second
)

// buildBackend opens the configured storage backend and registers its readiness check.
// Background maintenance loops run on g until ctx is cancelled.
func buildBackend(ctx context.Context, g *errgroup.Group, cfg config.Server, h *health.Handler, log *slog.Logger) (store.Backend, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		h.RegisterCheck("redis", client.Health)
		g.Go(func() error {
			every(ctx, poolStatsInterval, client.RecordPoolStats)
			return nil
		})
		return store.NewRedisBackend(client.Client), func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := database.New(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Up(ctx, pool.DB()); err != nil {
			_ = pool.Close()
			return nil, nil, err
		}
		h.RegisterCheck("postgres", pool.Health)
		backend := store.NewPostgresBackend(pool.DB())
		g.Go(func() error {
			every(ctx, poolStatsInterval, pool.RecordPoolStats)
			return nil
		})
		g.Go(func() error {
			every(ctx, sweepInterval, func() {
				n, err := backend.PurgeExpired(requestcontext.WithTime(ctx, time.Now()))
				if err != nil {
					log.Warn("failed to purge expired registry entries", "error", err)
					return
				}
				if n > 0 {
					log.Info("purged expired registry entries", "count", n)
				}
			})
			return nil
		})
		return backend, func() { _ = pool.Close() }, nil

	case config.BackendMemory:
		backend := store.NewMemoryBackend()
		g.Go(func() error {
			every(ctx, sweepInterval, func() {
				if n := backend.Sweep(time.Now()); n > 0 {
					log.Info("swept expired registry entries", "count", n)
				}
			})
			return nil
		})
		return backend, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildPublisher connects to Kafka when brokers are configured. Without brokers
// notifications are dropped.
func buildPublisher(ctx context.Context, cfg config.Server, h *health.Handler, log *slog.Logger) (events.Publisher, func(), error) {
	if cfg.Kafka.Brokers == "" {
		log.Warn("KAFKA_BROKERS not set; registry notifications are discarded")
		h.SetInfo("notifications", "discard")
		return events.Discard{}, func() {}, nil
	}

	prod, err := producer.New(cfg.Kafka, log)
	if err != nil {
		return nil, nil, err
	}
	kafkaPublisher := events.NewKafkaPublisher(prod, cfg.Kafka.TopicPrefix)

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := prod.EnsureTopics(ensureCtx, 1, 1, kafkaPublisher.KafkaTopics()...); err != nil {
		log.Warn("failed to ensure notification topics", "error", err)
	}

	h.RegisterCheck("kafka", prod.Health)
	h.SetInfo("notifications", "kafka")
	publisher := events.NewBreakerPublisher(kafkaPublisher, circuit.New("kafka"), log)
	return publisher, func() { _ = prod.Close() }, nil
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
