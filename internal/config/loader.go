package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader loads a config file and watches it for changes, invoking
// registered callbacks with the reloaded config. A reload that fails
// to parse or validate keeps the previous config in effect.
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoader creates a loader for the given path ("" means the default
// location).
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultPath()
	}
	return &Loader{path: path}
}

// Load reads and validates the config file.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Config returns the most recently loaded config.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers a callback invoked after each successful reload.
// Register before Watch; registration is not synchronized against a
// running watcher.
func (l *Loader) OnChange(fn func(*Config)) {
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching the config file's directory for writes to the
// file. Watching the directory rather than the file survives the
// rename-and-replace pattern editors and config writers use.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.watcher = watcher
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.watchLoop(ctx)
	return nil
}

// Close stops the watcher.
func (l *Loader) Close() error {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *Loader) watchLoop(ctx context.Context) {
	defer close(l.done)

	// Debounce: editors emit bursts of events per save.
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			l.reload()

		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (l *Loader) reload() {
	cfg, err := Load(l.path)
	if err != nil {
		// Keep the previous config; the error surfaces on the next
		// explicit Load.
		return
	}

	l.mu.Lock()
	l.config = cfg
	callbacks := l.onChange
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
