package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/postgres"
)

const testModeEnv = "ODYSSEY_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// detectTestMode reads the ODYSSEY_TEST_MODE flag once.
func detectTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

// InTestMode reports whether the application should skip runtime side effects.
func InTestMode() bool {
	testModeOnce.Do(detectTestMode)
	return testModeFlag.Load()
}

// RefreshTestMode updates the cached flag after environment changes.
func RefreshTestMode() {
	detectTestMode()
}

// Backend is the storage a process runs against.
type Backend struct {
	Runner      store.Runner
	Audit       AuditRecorder
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Idempotency *shared.IdempotencyStore
}

// OpenBackend connects to Postgres when PG_DSN is set and falls back to the
// in-memory store otherwise. Redis is optional; without it idempotency keys
// are not enforced.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		b.Pool = pool
		b.Runner = postgres.New(pool)
		b.Audit = shared.NewAuditLogger(pool)
	} else {
		logger.Warn("PG_DSN not set, using in-memory store")
		b.Runner = memory.New()
		b.Audit = &shared.MemoryAuditLog{}
	}
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, idempotency keys disabled", slog.Any("error", err))
		} else {
			b.Redis = client
			b.Idempotency = shared.NewIdempotencyStore(client, cfg.IdempotencyTTL)
		}
	}
	return b, nil
}

// Check pings every external dependency the backend holds. The in-memory
// store has none.
func (b *Backend) Check(ctx context.Context) map[string]error {
	checks := make(map[string]error)
	if b.Pool != nil {
		checks["postgres"] = b.Pool.Ping(ctx)
	}
	if b.Redis != nil {
		checks["redis"] = cache.Ping(ctx, b.Redis)
	}
	return checks
}

// Close releases connections.
func (b *Backend) Close(logger *slog.Logger) {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}
