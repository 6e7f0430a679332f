// Package store is the typed registry storage layer. Every write refreshes the
// entry's liveness window; reads never do.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/sentinel"
)

const (
	DefaultEntryTTL = 365 * 24 * time.Hour

	// NoExpiry marks a write that never lapses. Instance-scope keys are written with it:
	// a lapsed claim counter would read as zero and hand out ids that are still live.
	NoExpiry time.Duration = 0

	defaultTxTimeout = 5 * time.Second
)

// Adapter wraps a Backend with typed accessors and a single-writer transaction.
type Adapter struct {
	reader

	backend   Backend
	entryTTL  time.Duration
	txTimeout time.Duration
	observe   func(op string, d time.Duration)

	mu sync.Mutex
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithEntryTTL(ttl time.Duration) Option {
	return func(a *Adapter) {
		if ttl > 0 {
			a.entryTTL = ttl
		}
	}
}

func WithTxTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.txTimeout = d
	}
}

// WithLatencyObserver receives the duration of every backend call, labelled by operation.
func WithLatencyObserver(fn func(op string, d time.Duration)) Option {
	return func(a *Adapter) {
		a.observe = fn
	}
}

func NewAdapter(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend:   backend,
		entryTTL:  DefaultEntryTTL,
		txTimeout: defaultTxTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.reader = reader{load: a.get, exists: a.has}
	return a
}

// TTLFor returns the window a write to key is refreshed to. Instance-scope keys
// get NoExpiry.
func (a *Adapter) TTLFor(key Key) time.Duration {
	if key.Scope() == ScopeInstance {
		return NoExpiry
	}
	return a.entryTTL
}

func (a *Adapter) get(ctx context.Context, key Key) ([]byte, error) {
	defer a.timed("get", time.Now())
	return a.backend.Get(ctx, key.String())
}

func (a *Adapter) has(ctx context.Context, key Key) (bool, error) {
	defer a.timed("has", time.Now())
	return a.backend.Has(ctx, key.String())
}

func (a *Adapter) timed(op string, start time.Time) {
	if a.observe != nil {
		a.observe(op, time.Since(start))
	}
}

// RunInTx runs fn while holding the writer lock, and the backend's own lock when it
// implements Serializer. Writes staged on tx become visible to later reads inside fn
// and are applied as one batch when fn returns nil. Hooks registered with
// tx.AfterCommit run after the batch is durable, still under the in-process lock, so
// they observe commits in order.
func (a *Adapter) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && a.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.txTimeout)
		defer cancel()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	var (
		tx    *Tx
		fnErr error
	)
	err := a.serialize(ctx, func(ctx context.Context) error {
		tx = newTx(ctx, a)
		if fnErr = fn(tx); fnErr != nil {
			return fnErr
		}
		return a.commit(ctx, tx)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return txError(err)
	}
	for _, hook := range tx.hooks {
		hook(ctx)
	}
	return nil
}

func (a *Adapter) serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	s, ok := a.backend.(Serializer)
	if !ok {
		return fn(ctx)
	}
	defer a.timed("serialize", time.Now())
	return s.Serialize(ctx, fn)
}

// txError maps failures of the backend's exclusive section that carry no domain code.
func txError(err error) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist registry changes")
	}
}

func (a *Adapter) commit(ctx context.Context, tx *Tx) error {
	if len(tx.order) == 0 {
		return nil
	}
	writes := make([]Write, 0, len(tx.order))
	for _, key := range tx.order {
		writes = append(writes, Write{Key: key.String(), Value: tx.staged[key.String()], TTL: a.TTLFor(key)})
	}
	defer a.timed("apply", time.Now())
	if err := a.backend.Apply(ctx, writes); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist registry changes")
	}
	return nil
}

// reader holds the typed read path shared by the adapter and transactions.
// Absent or lapsed entries read as nil / empty.
type reader struct {
	load   func(ctx context.Context, key Key) ([]byte, error)
	exists func(ctx context.Context, key Key) (bool, error)
}

func (r reader) Profile(ctx context.Context, addr domain.Address) (*models.Profile, error) {
	var rec profileRecord
	found, err := r.decode(ctx, ProfileKey(addr), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r reader) HasProfile(ctx context.Context, addr domain.Address) (bool, error) {
	ok, err := r.exists(ctx, ProfileKey(addr))
	if err != nil {
		return false, fmt.Errorf("check profile: %w", err)
	}
	return ok, nil
}

func (r reader) Claim(ctx context.Context, id uint64) (*models.Claim, error) {
	var rec claimRecord
	found, err := r.decode(ctx, ClaimKey(id), &rec)
	if err != nil || !found {
		return nil, err
	}
	return rec.toModel(), nil
}

func (r reader) ClaimsByReceiver(ctx context.Context, addr domain.Address) ([]uint64, error) {
	return r.ids(ctx, ClaimsByReceiverKey(addr))
}

func (r reader) ClaimsByIssuer(ctx context.Context, addr domain.Address) ([]uint64, error) {
	return r.ids(ctx, ClaimsByIssuerKey(addr))
}

// NextClaimID is 0 until the first claim is issued.
func (r reader) NextClaimID(ctx context.Context) (uint64, error) {
	var next uint64
	if _, err := r.decode(ctx, NextClaimIDKey(), &next); err != nil {
		return 0, err
	}
	return next, nil
}

func (r reader) ids(ctx context.Context, key Key) ([]uint64, error) {
	var ids []uint64
	if _, err := r.decode(ctx, key, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r reader) decode(ctx context.Context, key Key, out any) (bool, error) {
	raw, err := r.load(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, errors.Join(sentinel.ErrInvalidState, err))
	}
	return true, nil
}
