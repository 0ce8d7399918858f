package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtype/pkg/protocol"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.SessionTimeoutDuration())
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeoutDuration())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RTYPE_TICK_RATE", "30")
	t.Setenv("RTYPE_SESSION_TIMEOUT", "2s")
	t.Setenv("RTYPE_TRANSPORT", "quic")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, "quic", cfg.Transport)
	assert.Equal(t, 2*time.Second, cfg.SessionTimeoutDuration())
	assert.Equal(t, ":4242", cfg.ServerAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rtype.config")
	require.NoError(t, os.WriteFile(path, []byte("RTYPE_MAX_SESSIONS=2\nRTYPE_SERVER_ADDR=127.0.0.1:5000\n"), 0o600))
	t.Setenv("RTYPE_SERVER_ADDR", "127.0.0.1:6000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxSessions)
	assert.Equal(t, "127.0.0.1:6000", cfg.ServerAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestSnapshotLimitIsAccepted(t *testing.T) {
	cfg := Default()
	cfg.MaxEntities = protocol.MaxSnapshotEntities
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad duration":        func(c *Config) { c.SessionTimeout = "soon" },
		"zero tick rate":      func(c *Config) { c.TickRate = 0 },
		"unknown transport":   func(c *Config) { c.Transport = "tcp" },
		"read above timeout":  func(c *Config) { c.ReadTimeout = "10s" },
		"no entities":         func(c *Config) { c.MaxEntities = 0 },
		"entities > snapshot": func(c *Config) { c.MaxEntities = protocol.MaxSnapshotEntities + 1 },
		"sessions > entities": func(c *Config) { c.MaxEntities = 2; c.MaxSessions = 3 },
		"empty bind address":  func(c *Config) { c.ServerAddr = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
