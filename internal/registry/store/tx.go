package store

import (
	"context"
	"encoding/json"
	"fmt"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
)

// Tx stages writes for Adapter.RunInTx. It must not be used after fn returns.
type Tx struct {
	reader

	adapter *Adapter
	ctx     context.Context
	staged  map[string][]byte
	order   []Key
	hooks   []func(ctx context.Context)
}

// newTx binds the transaction to ctx, the context of the backend's exclusive
// section. Reads go through it whatever context the caller passes.
func newTx(ctx context.Context, a *Adapter) *Tx {
	tx := &Tx{adapter: a, ctx: ctx, staged: make(map[string][]byte)}
	tx.reader = reader{load: tx.get, exists: tx.has}
	return tx
}

func (tx *Tx) get(_ context.Context, key Key) ([]byte, error) {
	if raw, ok := tx.staged[key.String()]; ok {
		return raw, nil
	}
	return tx.adapter.get(tx.ctx, key)
}

func (tx *Tx) has(_ context.Context, key Key) (bool, error) {
	if _, ok := tx.staged[key.String()]; ok {
		return true, nil
	}
	return tx.adapter.has(tx.ctx, key)
}

// AfterCommit registers fn to run once the batch is applied. It is dropped if the
// transaction fails.
func (tx *Tx) AfterCommit(fn func(ctx context.Context)) {
	tx.hooks = append(tx.hooks, fn)
}

func (tx *Tx) PutProfile(p *models.Profile) error {
	return tx.set(ProfileKey(p.Owner), toProfileRecord(p))
}

func (tx *Tx) PutClaim(c *models.Claim) error {
	return tx.set(ClaimKey(c.ID), toClaimRecord(c))
}

func (tx *Tx) PutClaimsByReceiver(addr domain.Address, ids []uint64) error {
	return tx.set(ClaimsByReceiverKey(addr), ids)
}

func (tx *Tx) PutClaimsByIssuer(addr domain.Address, ids []uint64) error {
	return tx.set(ClaimsByIssuerKey(addr), ids)
}

func (tx *Tx) PutNextClaimID(next uint64) error {
	return tx.set(NextClaimIDKey(), next)
}

// set is the only write path; the key's window is refreshed when the batch is applied.
func (tx *Tx) set(key Key, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	name := key.String()
	if _, seen := tx.staged[name]; !seen {
		tx.order = append(tx.order, key)
	}
	tx.staged[name] = raw
	return nil
}
