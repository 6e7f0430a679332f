package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "attestry/internal/jwt_token"
	"attestry/internal/platform/config"
	"attestry/internal/platform/health"
	"attestry/internal/platform/httpserver"
	"attestry/internal/platform/logger"
	"attestry/internal/platform/middleware"
	"attestry/internal/registry/events"
	registryhandler "attestry/internal/registry/handler"
	registrymetrics "attestry/internal/registry/metrics"
	"attestry/internal/registry/reputation"
	registryservice "attestry/internal/registry/service"
	"attestry/internal/registry/store"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/registry.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "attestry: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	healthHandler := health.New(cfg.Environment)
	healthHandler.SetInfo("storage_backend", cfg.StorageBackend)
	metrics := registrymetrics.New()

	backend, closeBackend, err := buildBackend(ctx, g, cfg, healthHandler, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	publisher, closePublisher, err := buildPublisher(ctx, cfg, healthHandler, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	notifications := events.NewQueue(publisher,
		events.WithQueueLogger(log),
		events.WithFailureHandler(func(_ context.Context, e events.Event, _ error) {
			metrics.IncrementNotificationFailures(string(e.Topic))
		}),
	)
	notifications.Start()

	rules, err := reputation.LoadRules(cfg.ReputationRulesFile)
	if err != nil {
		return err
	}

	adapter := store.NewAdapter(backend,
		store.WithEntryTTL(cfg.EntryTTL),
		store.WithLatencyObserver(metrics.ObserveStore),
	)
	svc := registryservice.New(adapter,
		registryservice.WithPublisher(notifications),
		registryservice.WithRules(rules),
		registryservice.WithLogger(log),
		registryservice.WithMetrics(metrics),
	)

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	requireAuth := middleware.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log)

	router := newRouter(log, healthHandler, registryhandler.New(svc, log), requireAuth)
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting attestry",
			"addr", cfg.Addr,
			"environment", cfg.Environment,
			"storage_backend", cfg.StorageBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down attestry")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return notifications.Stop(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(log *slog.Logger, healthHandler *health.Handler, registry *registryhandler.Handler, requireAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(middleware.NewMetrics()))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		registry.Register(r, requireAuth)
	})
	return r
}
