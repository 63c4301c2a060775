package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator writes to the configured log file and swaps it out for a
// timestamped sibling once it grows past the size threshold. Old
// rotations beyond MaxBackups are pruned on each swap.
type FileRotator struct {
	mu      sync.Mutex
	path    string
	limit   int64
	backups int
	out     *os.File
	written int64
}

// NewFileRotator opens the configured log file, creating its directory
// if needed.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file output requires a log file path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	r := &FileRotator{
		path:    cfg.FilePath,
		limit:   cfg.MaxSizeMB * 1024 * 1024,
		backups: cfg.MaxBackups,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.out = f
	r.written = info.Size()
	return nil
}

// Write appends p, rotating first when the file would grow past the
// limit.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.limit > 0 && r.written+int64(len(p)) > r.limit {
		if err := r.swap(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.out.Write(p)
	r.written += int64(n)
	return n, err
}

// swap renames the live file to a timestamped sibling, reopens a fresh
// one, and prunes rotations beyond the backup budget.
func (r *FileRotator) swap() error {
	if r.out != nil {
		if err := r.out.Close(); err != nil {
			return err
		}
		r.out = nil
	}

	stamped := r.rotatedName(time.Now())
	if err := os.Rename(r.path, stamped); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	r.prune()
	return nil
}

// rotatedName builds the sibling path, e.g. host.log -> host-20260829-101500.log.
func (r *FileRotator) rotatedName(at time.Time) string {
	ext := filepath.Ext(r.path)
	stem := strings.TrimSuffix(r.path, ext)
	return fmt.Sprintf("%s-%s%s", stem, at.Format("20060102-150405"), ext)
}

// prune removes the oldest rotations once more than MaxBackups exist.
// The timestamp suffix sorts lexically, so name order is age order.
func (r *FileRotator) prune() {
	ext := filepath.Ext(r.path)
	stem := strings.TrimSuffix(r.path, ext)

	rotated, err := filepath.Glob(stem + "-*" + ext)
	if err != nil || len(rotated) <= r.backups {
		return
	}
	sort.Strings(rotated)
	for _, old := range rotated[:len(rotated)-r.backups] {
		os.Remove(old)
	}
}

// Close closes the live file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return nil
	}
	err := r.out.Close()
	r.out = nil
	return err
}

// Sync flushes buffered data to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return nil
	}
	return r.out.Sync()
}
