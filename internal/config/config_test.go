package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDRESS", "STORE_DRIVER", "KAFKA_BROKERS", "OUTBOX_BATCH_SIZE", "LEADERBOARD_CACHE_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, ":8080", cfg.HTTPAddress)
	require.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	require.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 50, cfg.OutboxBatchSize)
	require.Equal(t, time.Minute, cfg.LeaderboardCacheTTL)
	require.False(t, cfg.MigrateOnStart)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("PERSISTENCE_MAX_RETRIES", "7")
	t.Setenv("MIGRATE_ON_START", "true")
	t.Setenv("CORS_ALLOWED_ORIGIN", "https://codingcam.dev,vscode-webview://x")

	cfg := Load()
	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	require.Equal(t, 7, cfg.PersistenceRetry)
	require.True(t, cfg.MigrateOnStart)
	require.Len(t, cfg.CORSAllowedOrigins, 2)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DLQ_MAX_RETRIES", "many")
	t.Setenv("DLQ_BASE_DELAY", "soon")

	cfg := Load()
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.Equal(t, time.Minute, cfg.DLQBaseDelay)
}
