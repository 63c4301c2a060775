// Package logging provides structured logging with slog for replayd.
//
// The host speaks its wire protocol on stdout, so logs go to stderr or
// to a rotating file, never stdout. Attribute keys that look like
// credentials are redacted before they reach any sink.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level aliases slog.Level so callers don't import both packages.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum level to emit.
	Level Level

	// Format is "text" or "json".
	Format string

	// Output is "stderr", "file", or "both". "stdout" is rejected
	// because the host owns stdout for message frames.
	Output string

	// FilePath is the log file when Output includes "file".
	FilePath string

	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int64

	// MaxBackups is how many rotated files to keep.
	MaxBackups int

	// Component tags every record.
	Component string
}

// DefaultConfig returns the stderr text logger used before config load.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     "text",
		Output:     "stderr",
		MaxSizeMB:  50,
		MaxBackups: 3,
		Component:  "replayd",
	}
}

// Logger wraps slog.Logger with ownership of the file rotator.
type Logger struct {
	*slog.Logger
	rotator *FileRotator
}

var (
	globalMu sync.Mutex
	global   *Logger
)

// Default returns the global logger, creating a stderr logger on first
// use.
func Default() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default()}
		}
		global = l
	}
	return global
}

// SetDefault replaces the global logger.
func SetDefault(l *Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New creates a Logger from cfg.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	sink, rotator, err := openSink(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		ReplaceAttr: redactAttr,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(sink, opts)
	} else {
		h = slog.NewTextHandler(sink, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}

	return &Logger{Logger: slog.New(h), rotator: rotator}, nil
}

// openSink resolves the Output setting to a writer, returning the
// rotator too when a file is involved so the Logger can close it.
func openSink(cfg *Config) (io.Writer, *FileRotator, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "file":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		return io.MultiWriter(os.Stderr, r), r, nil
	case "stdout":
		return nil, nil, fmt.Errorf("log output %q conflicts with the message stream", cfg.Output)
	default:
		return nil, nil, fmt.Errorf("unknown log output: %s", cfg.Output)
	}
}

// credentialHints are substrings of attribute keys whose values must
// never reach a sink.
var credentialHints = []string{
	"password", "secret", "token", "credential",
	"auth", "cookie", "api_key", "apikey", "bearer",
}

func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if shouldRedact(a.Key) {
		a.Value = slog.StringValue("[REDACTED]")
	}
	return a
}

func shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	for _, hint := range credentialHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// WithComponent returns a logger tagged with a different component
// name. The rotator stays shared.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		rotator: l.rotator,
	}
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Sync flushes buffered log data to disk.
func (l *Logger) Sync() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Sync()
}

// ParseLevel parses a level name. The empty string means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Convenience functions for the default logger.

func Debug(msg string, args ...any) { Default().Debug(msg, args...) }
func Info(msg string, args ...any)  { Default().Info(msg, args...) }
func Warn(msg string, args ...any)  { Default().Warn(msg, args...) }
func Error(msg string, args ...any) { Default().Error(msg, args...) }
