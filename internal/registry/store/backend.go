package store

import (
	"context"
	"time"
)

// Write is one staged value together with the liveness window it gets from now.
// A zero TTL (NoExpiry) stores the value without a deadline.
type Write struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// Backend is raw expiring key/value storage.
//
// Get returns sentinel.ErrNotFound when the key was never written or its window lapsed.
// Apply stores every write or none of them.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Apply(ctx context.Context, writes []Write) error
}

// Serializer is implemented by backends that several processes can share. RunInTx
// calls Serialize while holding its in-process lock; every read and the final Apply
// of the transaction use the context fn receives, so they run inside the backend's
// exclusive section.
type Serializer interface {
	Serialize(ctx context.Context, fn func(ctx context.Context) error) error
}
