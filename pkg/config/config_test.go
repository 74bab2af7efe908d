package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path.yaml")
	require.NoError(t, err)
	assert.Equal(t, "nexus:events", cfg.Monitor.EventsChannel)
	assert.Equal(t, 8192, cfg.Monitor.MaxEventSizeBytes)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
}

func TestLoad_YAMLOverridesDefaultsWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_REDIS_HOST", "redis.internal")
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("redis_url: \"redis://${TEST_REDIS_HOST}:6379/0\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "redis://redis.internal:6379/0", cfg.RedisURL)
}

func TestLoad_EnvOverrideWinsOverYAML(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("database_url: \"postgres://yaml/nexus\"\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("NEXUS_DATABASE_URL", "postgres://override/nexus")
	cfg, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/nexus", cfg.DatabaseURL)
}
