package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"attestry/pkg/platform/sentinel"
	"attestry/pkg/requestcontext"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero for entries written with NoExpiry
}

func (e memoryEntry) lapsed(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend keeps entries in a map. Expiry is judged against the request clock
// (requestcontext.Now) so tests can move time forward.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry)}
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[key]
	if !ok || entry.lapsed(requestcontext.Now(ctx)) {
		return nil, sentinel.ErrNotFound
	}
	return slices.Clone(entry.value), nil
}

func (b *MemoryBackend) Has(ctx context.Context, key string) (bool, error) {
	_, err := b.Get(ctx, key)
	if err == sentinel.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (b *MemoryBackend) Apply(ctx context.Context, writes []Write) error {
	now := requestcontext.Now(ctx)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range writes {
		entry := memoryEntry{value: slices.Clone(w.Value)}
		if w.TTL != NoExpiry {
			entry.expiresAt = now.Add(w.TTL)
		}
		b.entries[w.Key] = entry
	}
	return nil
}

// ExpiresAt reports the current deadline of a key. The zero time means it never lapses.
func (b *MemoryBackend) ExpiresAt(key string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.entries[key]
	return entry.expiresAt, ok
}

// Sweep drops lapsed entries. Lapsed entries already read as absent; this only frees memory.
func (b *MemoryBackend) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for k, e := range b.entries {
		if e.lapsed(now) {
			delete(b.entries, k)
			removed++
		}
	}
	return removed
}
