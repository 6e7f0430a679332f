// Package database opens the PostgreSQL pool used by the registry's SQL backend.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"attestry/internal/platform/config"
)

const pingTimeout = 5 * time.Second

// ErrNotConfigured is returned by Health when no pool was opened.
var ErrNotConfigured = errors.New("database not configured")

var (
	dbOpenConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attestry_db_open_conns",
		Help: "Established connections, in use and idle",
	})
	dbInUseConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attestry_db_in_use_conns",
		Help: "Connections currently in use",
	})
	dbWaitCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestry_db_wait_total",
		Help: "Connections waited for because the pool was exhausted",
	})
)

// Pool wraps a *sql.DB opened with the pgx driver.
type Pool struct {
	db        *sql.DB
	lastWaits int64
}

// New opens and pings the pool. An empty URL yields a nil pool and no error.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB returns the underlying handle.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNotConfigured
	}
	return p.db.PingContext(ctx)
}

// RecordPoolStats publishes connection pool gauges. Call it periodically.
func (p *Pool) RecordPoolStats() {
	if p == nil || p.db == nil {
		return
	}
	stats := p.db.Stats()
	dbOpenConns.Set(float64(stats.OpenConnections))
	dbInUseConns.Set(float64(stats.InUse))
	if stats.WaitCount > p.lastWaits {
		dbWaitCount.Add(float64(stats.WaitCount - p.lastWaits))
	}
	p.lastWaits = stats.WaitCount
}

// Close closes the pool.
func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
