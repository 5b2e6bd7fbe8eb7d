package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 3, cfg.Remote.SessionRetries)
	assert.Equal(t, 6*time.Second, cfg.Remote.PacingDelay.Std())
	assert.Equal(t, 30*time.Minute, cfg.Run.Timeout.Std())
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  jwt_secret: secret
model:
  provider: openai
  name: gpt-4o
store:
  path: /var/lib/teamsim/simulations.db
remote:
  base_url: https://agents.example.com/v1
  pacing_delay: 2s
run:
  timeout: 5m
  max_concurrent: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.JWTSecret)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "/var/lib/teamsim/simulations.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Remote.PacingDelay.Std())
	assert.Equal(t, 5*time.Minute, cfg.Run.Timeout.Std())
	assert.Equal(t, 4, cfg.Run.MaxConcurrent)

	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.Remote.SessionRetries)
	assert.Equal(t, 10*time.Second, cfg.Remote.RetryDelay.Std())
}

func TestLoadInvalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("run:\n  timeout: soon\n"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("model:\n  provider: custom\n"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
