package shared

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyConflict reports a request key that was already used.
var ErrIdempotencyConflict = Invariant("idempotent request already processed")

// IdempotencyStore remembers client request keys in Redis until they expire.
// Keys are scoped by business unit and module, so two tenants may reuse a key.
type IdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyStore builds the store. A non-positive ttl means one day.
func NewIdempotencyStore(client redis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Claim records key for (unit, module), failing with ErrIdempotencyConflict
// when it is already held.
func (s *IdempotencyStore) Claim(ctx context.Context, unitID int64, module, key string) error {
	if s == nil || s.client == nil {
		return errors.New("shared: idempotency store not configured")
	}
	if key == "" || module == "" {
		return Validation("idempotency key and module are required")
	}
	ok, err := s.client.SetNX(ctx, redisKey(unitID, module, key), time.Now().UTC().Format(time.RFC3339Nano), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: idempotency claim: %w", err)
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

// Release frees a claimed key so the client can retry.
func (s *IdempotencyStore) Release(ctx context.Context, unitID int64, module, key string) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	return s.client.Del(ctx, redisKey(unitID, module, key)).Err()
}

// Guard runs fn at most once per key. A failed fn releases the key. Without a
// store or a key fn simply runs.
func (s *IdempotencyStore) Guard(ctx context.Context, unitID int64, module, key string, fn func() error) error {
	if s == nil || key == "" {
		return fn()
	}
	if err := s.Claim(ctx, unitID, module, key); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = s.Release(context.WithoutCancel(ctx), unitID, module, key)
		return err
	}
	return nil
}

func redisKey(unitID int64, module, key string) string {
	return "idempotency:" + strconv.FormatInt(unitID, 10) + ":" + module + ":" + key
}
