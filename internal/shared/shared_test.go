package shared

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSafeMessageHidesUnclassifiedErrors(t *testing.T) {
	sentinel := Invariant("ledger: lines must balance")
	assert.Equal(t, "ledger: lines must balance", UserSafeMessage(sentinel))
	assert.Equal(t, "wrapped: ledger: lines must balance", UserSafeMessage(fmt.Errorf("wrapped: %w", sentinel)))
	assert.Equal(t, "internal error", UserSafeMessage(errors.New("pq: connection refused")))
	assert.Empty(t, UserSafeMessage(nil))
	assert.ErrorIs(t, Validationf("field %s", "x"), ErrValidation)
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, "0.02", RoundMoney(decimal.RequireFromString("0.015")).StringFixed(2))
	assert.Equal(t, "-0.02", RoundMoney(decimal.RequireFromString("-0.015")).StringFixed(2))
	assert.True(t, HasMoneyPrecision(decimal.RequireFromString("10.50")))
	assert.False(t, HasMoneyPrecision(decimal.RequireFromString("10.505")))
	assert.Equal(t, "6.00", SumMoney(decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)).StringFixed(2))

	code, err := NormalizeCurrency(" idr ")
	require.NoError(t, err)
	assert.Equal(t, "IDR", code)
	_, err = NormalizeCurrency("RUPIAH")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestActorCanAccess(t *testing.T) {
	assert.True(t, Actor{ID: 1}.CanAccess(99))
	assert.True(t, Actor{ID: 1, Units: []int64{3, 4}}.CanAccess(4))
	assert.False(t, Actor{ID: 1, Units: []int64{3, 4}}.CanAccess(5))
}

func TestIdempotencyStoreClaimsOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Claim(ctx, 1, "pos", "k1"))
	assert.ErrorIs(t, store.Claim(ctx, 1, "pos", "k1"), ErrIdempotencyConflict)
	assert.NoError(t, store.Claim(ctx, 1, "billing", "k1"))
	assert.NoError(t, store.Claim(ctx, 2, "pos", "k1"))

	require.NoError(t, store.Release(ctx, 1, "pos", "k1"))
	assert.NoError(t, store.Claim(ctx, 1, "pos", "k1"))

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, store.Claim(ctx, 1, "pos", "k1"))
	assert.Error(t, store.Claim(ctx, 1, "pos", ""))
}

func TestGuardReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()

	calls := 0
	boom := errors.New("boom")
	assert.ErrorIs(t, store.Guard(ctx, 1, "pos", "k1", func() error { calls++; return boom }), boom)
	require.NoError(t, store.Guard(ctx, 1, "pos", "k1", func() error { calls++; return nil }))
	assert.ErrorIs(t, store.Guard(ctx, 1, "pos", "k1", func() error { calls++; return nil }), ErrIdempotencyConflict)
	assert.Equal(t, 2, calls)

	var none *IdempotencyStore
	require.NoError(t, none.Guard(ctx, 1, "pos", "k1", func() error { calls++; return nil }))
	assert.Equal(t, 3, calls)
}

func TestMemoryAuditLogValidates(t *testing.T) {
	log := &MemoryAuditLog{}
	assert.Error(t, log.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "1"}))
	require.NoError(t, log.Record(context.Background(), AuditLog{BusinessUnitID: 1, Action: "x", Entity: "y", EntityID: "1"}))
	assert.Len(t, log.Entries(), 1)
}
