package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type beginnerFunc func(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)

func (f beginnerFunc) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return f(ctx, opts)
}

func TestContextCarriesTx(t *testing.T) {
	ctx := context.Background()
	_, ok := From(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithTx(ctx, nil), "nil tx leaves the context unchanged")

	outer := &sql.Tx{}
	got, ok := From(WithTx(ctx, outer))
	require.True(t, ok)
	assert.Same(t, outer, got)
}

func TestRun(t *testing.T) {
	t.Run("joins a transaction already on the context", func(t *testing.T) {
		outer := &sql.Tx{}
		began := false
		db := beginnerFunc(func(context.Context, *sql.TxOptions) (*sql.Tx, error) {
			began = true
			return nil, errors.New("unexpected begin")
		})

		var seen *sql.Tx
		err := Run(WithTx(context.Background(), outer), db, func(ctx context.Context) error {
			seen, _ = From(ctx)
			return nil
		})
		require.NoError(t, err)
		assert.False(t, began)
		assert.Same(t, outer, seen)
	})

	t.Run("surfaces begin failures without calling fn", func(t *testing.T) {
		db := beginnerFunc(func(context.Context, *sql.TxOptions) (*sql.Tx, error) {
			return nil, errors.New("connection refused")
		})
		called := false
		err := Run(context.Background(), db, func(context.Context) error {
			called = true
			return nil
		})
		require.ErrorContains(t, err, "connection refused")
		assert.False(t, called)
	})
}
