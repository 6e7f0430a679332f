package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"attestry/pkg/platform/sentinel"
	txcontext "attestry/pkg/platform/tx"
	"attestry/pkg/requestcontext"
)

// registryWriterLock names the advisory lock every registry writer takes.
const registryWriterLock = "attestry:registry_writer"

// PostgresBackend persists entries in registry_entries. Rows past expires_at read as absent.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (b *PostgresBackend) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return b.db
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.execer(ctx).QueryRowContext(ctx,
		`SELECT value FROM registry_entries WHERE key = $1 AND expires_at > $2`,
		key, requestcontext.Now(ctx),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get registry entry: %w", err)
	}
	return value, nil
}

func (b *PostgresBackend) Has(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := b.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registry_entries WHERE key = $1 AND expires_at > $2)`,
		key, requestcontext.Now(ctx),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registry entry: %w", err)
	}
	return exists, nil
}

// Serialize runs fn in one SQL transaction holding the registry advisory lock, so
// writers in other processes wait for the commit. fn's context carries the
// transaction; Get, Has and Apply join it.
func (b *PostgresBackend) Serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, b.db, func(ctx context.Context) error {
		if _, err := b.execer(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1)::bigint)`, registryWriterLock); err != nil {
			return fmt.Errorf("acquire registry writer lock: %w", err)
		}
		return fn(ctx)
	})
}

// Apply upserts the whole batch with one statement, joining the context transaction if any.
func (b *PostgresBackend) Apply(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	now := requestcontext.Now(ctx)
	keys := make([]string, len(writes))
	values := make([][]byte, len(writes))
	expires := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = w.Key
		values[i] = w.Value
		expires[i] = pgExpiry(now, w.TTL)
	}

	return txcontext.Run(ctx, b.db, func(ctx context.Context) error {
		return b.upsert(ctx, keys, values, expires)
	})
}

// pgExpiry renders the deadline as timestamptz input; NoExpiry becomes 'infinity'.
func pgExpiry(now time.Time, ttl time.Duration) string {
	if ttl == NoExpiry {
		return "infinity"
	}
	return now.Add(ttl).UTC().Format(time.RFC3339Nano)
}

func (b *PostgresBackend) upsert(ctx context.Context, keys []string, values [][]byte, expires []string) error {
	query := `
		INSERT INTO registry_entries (key, value, expires_at, updated_at)
		SELECT k, v, e::timestamptz, NOW()
		FROM unnest($1::text[], $2::bytea[], $3::text[]) AS t(k, v, e)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	_, err := b.execer(ctx).ExecContext(ctx, query, pq.Array(keys), pq.ByteaArray(values), pq.Array(expires))
	if err != nil {
		return fmt.Errorf("upsert registry entries: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows whose window has lapsed.
func (b *PostgresBackend) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := b.execer(ctx).ExecContext(ctx,
		`DELETE FROM registry_entries WHERE expires_at <= $1`, requestcontext.Now(ctx))
	if err != nil {
		return 0, fmt.Errorf("purge registry entries: %w", err)
	}
	return res.RowsAffected()
}
