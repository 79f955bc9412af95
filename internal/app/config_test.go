package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEFAULT_CURRENCY", "php")
	t.Setenv("INTEGRITY_UNITS", "10,11")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "PHP", cfg.DefaultCurrency)
	assert.Equal(t, "VAT12", cfg.DefaultVATCode)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, []int64{10, 11}, cfg.IntegrityUnits)
	assert.Empty(t, cfg.PGDSN)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsUnknownCurrency(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DEFAULT_CURRENCY", "PESO")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestRedisOptionsShareOneInstance(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis().Addr)
	assert.Equal(t, 3, cfg.Redis().DB)
	queue := cfg.Queue()
	assert.Equal(t, cfg.Redis().Addr, queue.Addr)
	assert.Equal(t, "pw", queue.Password)
	assert.Equal(t, 3, queue.DB)
	assert.Equal(t, ":9091", cfg.WorkerMetricsAddr)
}
