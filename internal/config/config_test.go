package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORAGE_DRIVER", "REDIS_ADDR", "KAFKA_BROKERS", "PURCHASE_DELAY", "SEED_PRODUCT", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Zero(t, cfg.PurchaseDelay)
	assert.True(t, cfg.SeedProduct)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 1, cfg.ProjectorWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("PURCHASE_DELAY", "250ms")
	t.Setenv("SEED_PRODUCT", "false")
	t.Setenv("PROJECTOR_WORKERS", "4")

	cfg := Load()

	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.PurchaseDelay)
	assert.False(t, cfg.SeedProduct)
	assert.Equal(t, 4, cfg.ProjectorWorkers)
}

func TestGetDuration(t *testing.T) {
	t.Setenv("X_DELAY", "100")
	assert.Equal(t, 100*time.Millisecond, getduration("X_DELAY", time.Second))

	t.Setenv("X_DELAY", "nope")
	assert.Equal(t, time.Second, getduration("X_DELAY", time.Second))
}
