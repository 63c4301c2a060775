package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Tests for Default and Load
// =============================================================================

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Version, cfg.Version)
	assert.True(t, cfg.Recording.CaptureMouse)
	assert.Equal(t, 1.0, cfg.Playback.DefaultSpeed)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Playback.MaxSpeed, cfg.Playback.MaxSpeed)
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = 1
data_dir = "/tmp/replayd-test"

[recording]
capture_mouse = false
capture_keyboard = true
max_actions = 500

[playback]
default_speed = 2.0
max_speed = 4.0

[logging]
level = "debug"
output = "stderr"

[platform]
backend = "simulated"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/replayd-test", cfg.DataDir)
	assert.False(t, cfg.Recording.CaptureMouse)
	assert.Equal(t, 500, cfg.Recording.MaxActions)
	assert.Equal(t, 2.0, cfg.Playback.DefaultSpeed)
	assert.Equal(t, "simulated", cfg.Platform.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`version = `), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

// =============================================================================
// Tests for Validate
// =============================================================================

func TestValidateRejectsStdoutLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Output = "stdout"
	assert.Error(t, cfg.Validate(), "stdout carries protocol frames, not logs")
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative timeout", func(c *Config) { c.Host.RequestTimeoutSec = -1 }},
		{"zero default speed", func(c *Config) { c.Playback.DefaultSpeed = 0 }},
		{"max below default speed", func(c *Config) { c.Playback.MaxSpeed = 0.5 }},
		{"negative max actions", func(c *Config) { c.Recording.MaxActions = -1 }},
		{"unknown backend", func(c *Config) { c.Platform.Backend = "quantum" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// =============================================================================
// Tests for environment overrides
// =============================================================================

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REPLAYD_DATA_DIR", "/tmp/env-data")
	t.Setenv("REPLAYD_LOG_LEVEL", "warn")
	t.Setenv("REPLAYD_AUTH_TOKEN", "sekrit")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env-data", cfg.DataDir)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "sekrit", cfg.Host.AuthToken)
}

// =============================================================================
// Tests for the hot-reload loader
// =============================================================================

func TestLoaderLoadAndConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0o600))

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, l.Config())
}

func TestLoaderReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0o600))

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	reloaded := make(chan *Config, 1)
	l.OnChange(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte(`
version = 1
[playback]
default_speed = 3.0
`), 0o600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 3.0, cfg.Playback.DefaultSpeed)
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestLoaderKeepsOldConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = 1\n"), 0o600))

	l := NewLoader(path)
	before, err := l.Load()
	require.NoError(t, err)

	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("version = garbage"), 0o600))

	// Give the watcher time to see the write; the broken file must not
	// displace the loaded config.
	time.Sleep(600 * time.Millisecond)
	assert.Same(t, before, l.Config())
}
