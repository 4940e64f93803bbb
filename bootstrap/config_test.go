package bootstrap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := ResolveConfig(func(c *Config) { c.SessionID = "sess-1" })
	require.NoError(t, err)

	assert.Equal(t, "sess-1", cfg.SessionID)
	assert.True(t, cfg.EnableSearch)
	assert.False(t, cfg.EnableMCP)
	assert.False(t, cfg.EnablePeriodicCapture)
	assert.Equal(t, 5*time.Minute, cfg.CaptureInterval)
	assert.Equal(t, 5*time.Second, cfg.SubprocessTimeout)
	assert.Equal(t, 256, cfg.StoreCapacity)
	assert.Equal(t, 5, cfg.SearchLimit)
	assert.Equal(t, filepath.Join(".", "state", "organization.json"), cfg.OrgStatePath)
	assert.Equal(t, filepath.Join(".", "state", "sessions"), cfg.SessionRecordsDir)
}

func TestResolveConfigEnvOverrides(t *testing.T) {
	t.Setenv("MEMOMESH_SESSION_ID", "env-session")
	t.Setenv("MEMOMESH_ENABLE_SEARCH", "false")
	t.Setenv("MEMOMESH_STORE_CAPACITY", "32")
	t.Setenv("MEMOMESH_SUBPROCESS_TIMEOUT", "250ms")
	t.Setenv("MEMOMESH_BASE_PATH", "/tmp/memomesh-test")

	cfg, err := ResolveConfig()
	require.NoError(t, err)

	assert.Equal(t, "env-session", cfg.SessionID)
	assert.False(t, cfg.EnableSearch)
	assert.Equal(t, 32, cfg.StoreCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.SubprocessTimeout)
	assert.Equal(t, filepath.Join("/tmp/memomesh-test", "state", "organization.json"), cfg.OrgStatePath)
}

func TestResolveConfigOverridesWinOverEnv(t *testing.T) {
	t.Setenv("MEMOMESH_SESSION_ID", "env-session")

	cfg, err := ResolveConfig(func(c *Config) { c.SessionID = "override-session" })
	require.NoError(t, err)
	assert.Equal(t, "override-session", cfg.SessionID)
}

func TestResolveConfigRejectsInvalidSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"too short", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConfig(func(c *Config) { c.SessionID = tt.id })
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSessionID)
		})
	}
}

func TestResolveConfigClampsNonsenseValues(t *testing.T) {
	cfg, err := ResolveConfig(func(c *Config) {
		c.SessionID = "sess-1"
		c.StoreCapacity = -5
		c.SearchLimit = 0
		c.CaptureInterval = -time.Second
	})
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.StoreCapacity)
	assert.Equal(t, 5, cfg.SearchLimit)
	assert.Equal(t, 5*time.Minute, cfg.CaptureInterval)
}
