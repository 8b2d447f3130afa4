package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.ListenAddress)
	assert.Equal(t, "/ws", cfg.Server.WSEndpoint)
	assert.Equal(t, "", cfg.Server.DatabasePath)
	assert.True(t, cfg.Server.AllowAllOrigins)
	assert.Equal(t, int64(4096), cfg.Server.MaxMessageSize)
	assert.Equal(t, 5, cfg.Client.ReconnectDelaySeconds)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat-relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
listen_address = ":9100"
ws_endpoint = "/relay"
database_path = "/var/lib/chat/users.db"
allow_all_origins = false
allowed_origins = ["https://chat.example.com"]

[client]
reconnect_delay_seconds = 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.ListenAddress)
	assert.Equal(t, "/relay", cfg.Server.WSEndpoint)
	assert.Equal(t, "/var/lib/chat/users.db", cfg.Server.DatabasePath)
	assert.False(t, cfg.Server.AllowAllOrigins)
	assert.Equal(t, []string{"https://chat.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 2, cfg.Client.ReconnectDelaySeconds)

	// Unset sections keep their defaults.
	assert.Equal(t, int64(4096), cfg.Server.MaxMessageSize)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[server listen_address`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_RELAY_LISTEN_ADDRESS", ":7777")
	t.Setenv("CHAT_RELAY_DATABASE_PATH", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Server.ListenAddress)
	assert.Equal(t, "/tmp/override.db", cfg.Server.DatabasePath)
}
