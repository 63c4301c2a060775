// Package config handles configuration loading, validation, and
// hot-reload for the replayd host.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete host configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version"`

	// DataDir is where scripts and the script index live.
	DataDir string `toml:"data_dir" json:"data_dir"`

	Host          HostConfig          `toml:"host" json:"host"`
	Recording     RecordingConfig     `toml:"recording" json:"recording"`
	Playback      PlaybackConfig      `toml:"playback" json:"playback"`
	Platform      PlatformConfig      `toml:"platform" json:"platform"`
	Logging       LoggingConfig       `toml:"logging" json:"logging"`
	Notifications NotificationsConfig `toml:"notifications" json:"notifications"`
}

// HostConfig controls the native messaging transport.
type HostConfig struct {
	// RequestTimeoutSec is the client-side wait for a response.
	RequestTimeoutSec int `toml:"request_timeout_sec" json:"request_timeout_sec"`

	// AuthToken, when non-empty, must accompany every command except
	// PING as params.auth_token. Enforced by broker middleware.
	AuthToken string `toml:"auth_token" json:"auth_token"`

	// AllowedOrigins lists extension origins permitted to talk to the
	// host. Empty means any origin. Matched against the origin argument
	// the browser passes when launching the host.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// RecordingConfig holds recording defaults.
type RecordingConfig struct {
	CaptureMouse    bool `toml:"capture_mouse" json:"capture_mouse"`
	CaptureKeyboard bool `toml:"capture_keyboard" json:"capture_keyboard"`
	ShowBorder      bool `toml:"show_border" json:"show_border"`

	// MaxActions caps a single session's action list. 0 disables the
	// cap.
	MaxActions int `toml:"max_actions" json:"max_actions"`
}

// PlaybackConfig holds playback defaults.
type PlaybackConfig struct {
	// DefaultSpeed is the speed factor used when the caller omits one.
	DefaultSpeed float64 `toml:"default_speed" json:"default_speed"`

	// MaxSpeed caps the caller-requested speed factor.
	MaxSpeed float64 `toml:"max_speed" json:"max_speed"`
}

// PlatformConfig selects the platform adapter backend.
type PlatformConfig struct {
	// Backend is "auto" (detect for the current OS) or "simulated".
	Backend string `toml:"backend" json:"backend"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level" json:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format"`

	// Output is "stderr", "file", or "both". stdout is never valid for
	// the host: it carries protocol frames only.
	Output string `toml:"output" json:"output"`

	// FilePath is the log file when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path"`

	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups"`
}

// NotificationsConfig controls desktop notifications on recording
// start/stop.
type NotificationsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: Version,
		DataDir: defaultDataDir(),
		Host: HostConfig{
			RequestTimeoutSec: 10,
		},
		Recording: RecordingConfig{
			CaptureMouse:    true,
			CaptureKeyboard: true,
			ShowBorder:      true,
			MaxActions:      100_000,
		},
		Playback: PlaybackConfig{
			DefaultSpeed: 1.0,
			MaxSpeed:     10.0,
		},
		Platform: PlatformConfig{
			Backend: "auto",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   defaultLogPath(),
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
		},
	}
}

// defaultDataDir returns the platform-specific data directory.
func defaultDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "replayd")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "replayd")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			home, _ := os.UserHomeDir()
			dataHome = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataHome, "replayd")
	}
}

// defaultLogPath returns the platform-specific log file path.
func defaultLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "replayd", "replayd.log")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "replayd", "logs", "replayd.log")
	default:
		stateHome := os.Getenv("XDG_STATE_HOME")
		if stateHome == "" {
			home, _ := os.UserHomeDir()
			stateHome = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(stateHome, "replayd", "replayd.log")
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		return filepath.Join(appData, "replayd", "config.toml")
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, _ := os.UserHomeDir()
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "replayd", "config.toml")
	}
}

// Load reads the config file at path, falling back to defaults when
// path is empty or the file does not exist. Environment overrides are
// applied after parsing, validation after that.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies REPLAYD_* environment variables on top of
// the parsed config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REPLAYD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("REPLAYD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REPLAYD_AUTH_TOKEN"); v != "" {
		c.Host.AuthToken = v
	}
	if v := os.Getenv("REPLAYD_PLATFORM"); v != "" {
		c.Platform.Backend = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Host.RequestTimeoutSec <= 0 {
		errs = append(errs, errors.New("host.request_timeout_sec must be positive"))
	}
	if c.Recording.MaxActions < 0 {
		errs = append(errs, errors.New("recording.max_actions must not be negative"))
	}
	if c.Playback.DefaultSpeed <= 0 {
		errs = append(errs, errors.New("playback.default_speed must be positive"))
	}
	if c.Playback.MaxSpeed < c.Playback.DefaultSpeed {
		errs = append(errs, errors.New("playback.max_speed must be >= default_speed"))
	}

	switch c.Platform.Backend {
	case "auto", "simulated":
	default:
		errs = append(errs, fmt.Errorf("platform.backend must be auto or simulated, got %q", c.Platform.Backend))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level unknown: %q", c.Logging.Level))
	}

	switch strings.ToLower(c.Logging.Output) {
	case "stderr", "file", "both":
	case "stdout":
		errs = append(errs, errors.New("logging.output stdout is reserved for protocol frames"))
	default:
		errs = append(errs, fmt.Errorf("logging.output unknown: %q", c.Logging.Output))
	}

	return errors.Join(errs...)
}
