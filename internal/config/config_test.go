package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsAreValidForObserver(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "observer"
	assert.NoError(t, cfg.Validate())
}

func TestDefaultsRequireSigningKeyForNodeMode(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
mode = "observer"
log_level = "debug"

[node]
name = "node-a"

[gossip]
self_address = "node-a:8080"
peers = ["node-b:8080", "node-c:8080"]
push_timeout = "2s"

[server]
port = 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "observer", cfg.Mode)
	assert.Equal(t, "node-a", cfg.Node.Name)
	assert.Equal(t, []string{"node-b:8080", "node-c:8080"}, cfg.Gossip.Peers)
	assert.Equal(t, 2*time.Second, cfg.Gossip.PushTimeout.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 100, cfg.Server.RateLimit)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, `
mode = "observer"

[redis]
addr = "file-redis:6379"
`)

	t.Setenv("KITCHAIN_REDIS_ADDR", "env-redis:6379")
	t.Setenv("KITCHAIN_MODE", "node")
	t.Setenv("KITCHAIN_NODE_PRIVATE_KEY", "deadbeef")
	t.Setenv("KITCHAIN_GOSSIP_PEERS", "node-b:8080 , node-c:8080")
	t.Setenv("KITCHAIN_GOSSIP_PUSH_TIMEOUT", "700ms")
	t.Setenv("KITCHAIN_S3_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "node", cfg.Mode)
	assert.Equal(t, "deadbeef", cfg.Node.PrivateKey)
	assert.Equal(t, []string{"node-b:8080", "node-c:8080"}, cfg.Gossip.Peers)
	assert.Equal(t, 700*time.Millisecond, cfg.Gossip.PushTimeout.Duration)
	assert.True(t, cfg.S3.Enabled)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "router"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Gossip.Peers = []string{"node-b:8080"}
	cfg.S3.Enabled = true
	cfg.S3.Region = ""

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "unknown mode")
	assert.Contains(t, msg, "unknown log_level")
	assert.Contains(t, msg, "redis: addr")
	assert.Contains(t, msg, "self_address must be set")
	assert.Contains(t, msg, "s3: bucket")
	assert.Contains(t, msg, "s3: region")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Node.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "pg-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)

	assert.NotContains(t, red.Node.PrivateKey, "deadbeef")
	assert.NotContains(t, red.Postgres.Password, "pg-secret")
	assert.NotContains(t, red.Server.APIKey, "api-secret")
	assert.NotContains(t, red.Notify.TelegramToken, "tg-secret")

	// The source config is untouched.
	assert.Equal(t, "deadbeef", cfg.Node.PrivateKey)
}
