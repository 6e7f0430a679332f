package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"attestry/pkg/platform/sentinel"
)

const (
	redisKeyPrefix     = "attestry:"
	redisWriterLockKey = redisKeyPrefix + "lock:writer"

	defaultRedisLease = 10 * time.Second
	redisLockRetry    = 10 * time.Millisecond
)

var errWriterLockLost = errors.New("registry writer lock lost")

var releaseWriterLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type writerLeaseKey struct{}

// RedisBackend stores entries as plain strings with a server-side expiry.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (b *RedisBackend) Has(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Serialize holds a leased writer lock for the duration of fn. The lease lasts until
// ctx's deadline plus a second; Apply under fn's context checks the lease with WATCH
// and refuses to write once another process has taken it over.
func (b *RedisBackend) Serialize(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	lease := defaultRedisLease
	if deadline, ok := ctx.Deadline(); ok {
		lease = max(time.Until(deadline), 0) + time.Second
	}
	if err := b.acquire(ctx, token, lease); err != nil {
		return err
	}
	defer func() {
		_ = releaseWriterLock.Run(context.WithoutCancel(ctx), b.client, []string{redisWriterLockKey}, token).Err()
	}()
	return fn(context.WithValue(ctx, writerLeaseKey{}, token))
}

func (b *RedisBackend) acquire(ctx context.Context, token string, lease time.Duration) error {
	ticker := time.NewTicker(redisLockRetry)
	defer ticker.Stop()
	for {
		ok, err := b.client.SetNX(ctx, redisWriterLockKey, token, lease).Result()
		if err != nil {
			return fmt.Errorf("acquire registry writer lock: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire registry writer lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Apply writes the batch inside MULTI/EXEC so readers never see half of it.
// NoExpiry maps to a plain SET without PX.
func (b *RedisBackend) Apply(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	token, leased := ctx.Value(writerLeaseKey{}).(string)
	if !leased {
		if _, err := b.client.TxPipelined(ctx, setAll(ctx, writes)); err != nil {
			return fmt.Errorf("redis apply: %w", err)
		}
		return nil
	}

	err := b.client.Watch(ctx, func(rtx *redis.Tx) error {
		holder, err := rtx.Get(ctx, redisWriterLockKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if holder != token {
			return errWriterLockLost
		}
		_, err = rtx.TxPipelined(ctx, setAll(ctx, writes))
		return err
	}, redisWriterLockKey)
	if err != nil {
		return fmt.Errorf("redis apply: %w", err)
	}
	return nil
}

func setAll(ctx context.Context, writes []Write) func(redis.Pipeliner) error {
	return func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			pipe.Set(ctx, redisKeyPrefix+w.Key, w.Value, w.TTL)
		}
		return nil
	}
}
