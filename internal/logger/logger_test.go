package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsCredentialKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("auth attempt", "api_key", "abc123", "user_id", "u-1", "Authorization", "Bearer x.y.z")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "[REDACTED]", fields["api_key"])
	require.Equal(t, "[REDACTED]", fields["Authorization"])
	require.Equal(t, "u-1", fields["user_id"])
}

func TestSanitizeKeepsDanglingKey(t *testing.T) {
	out := sanitize([]interface{}{"a", 1, "orphan"})
	require.Equal(t, []interface{}{"a", 1, "orphan"}, out)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "engine")

	log.Debug("hello")

	require.Equal(t, "engine", logs.All()[0].ContextMap()["component"])
}
