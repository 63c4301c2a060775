// Package engine orchestrates recording: it drives the session store,
// the platform capture adapter, and the script store, and keeps the
// three consistent when any one of them fails.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"replayd/internal/broker"
	"replayd/internal/notify"
	"replayd/internal/platform"
	"replayd/internal/script"
	"replayd/internal/session"
)

// Event types published on the broker.
const (
	EventRecordingStarted = "recording.started"
	EventRecordingPaused  = "recording.paused"
	EventRecordingResumed = "recording.resumed"
	EventRecordingStopped = "recording.stopped"
	EventRecordingAction  = "recording.action"
)

// Options configures engine limits and behavior.
type Options struct {
	// MaxActions caps the number of actions per session. Zero means
	// unlimited. Past the cap, further actions are dropped.
	MaxActions int

	// Notifications enables desktop notifications for lifecycle events.
	Notifications bool
}

// Engine coordinates one recording at a time.
type Engine struct {
	store    *session.Store
	adapter  platform.Adapter
	scripts  *script.Store
	broker   *broker.Broker
	notifier notify.Notifier
	opts     Options
	log      *slog.Logger

	mu        sync.Mutex
	capturing bool      // OS capture hook installed for the active session
	startTime time.Time // capture epoch for relative timestamps
	dropped   atomic.Uint64
	capWarned atomic.Bool
}

// New wires an engine. The notifier may be nil.
func New(store *session.Store, adapter platform.Adapter, scripts *script.Store, bkr *broker.Broker, notifier notify.Notifier, opts Options, log *slog.Logger) *Engine {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:    store,
		adapter:  adapter,
		scripts:  scripts,
		broker:   bkr,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// StartRecording creates a session and, when the platform supports it
// and the config asks for it, installs the OS capture hook.
//
// Start is atomic: if the hook fails to install, the session is
// aborted and the store returns to idle, so a failed start leaves no
// half-open session behind.
func (e *Engine) StartRecording(userID string, cfg session.Config) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.store.Start(userID, cfg)
	if err != nil {
		return "", err
	}

	e.startTime = time.Now()
	e.dropped.Store(0)
	e.capWarned.Store(false)

	wantCapture := cfg.CaptureMouse || cfg.CaptureKeyboard
	caps := e.adapter.Capabilities()

	if wantCapture && caps.InputCapture {
		if err := e.adapter.StartInputCapture(e.onCaptureEvent); err != nil {
			e.store.Abort()
			return "", fmt.Errorf("start input capture: %w", err)
		}
		e.capturing = true
	} else if wantCapture {
		// Browser events still arrive over the wire; only OS-level
		// capture is missing.
		e.log.Warn("recording without OS input capture",
			"session_id", id, "detail", caps.Detail)
	}

	e.log.Info("recording started",
		"session_id", id, "user_id", userID, "os_capture", e.capturing)
	e.broker.Publish(EventRecordingStarted, map[string]any{
		"session_id": id,
		"user_id":    userID,
	})
	if e.opts.Notifications {
		e.notifier.Notify("Recording started", "Desktop actions are being recorded.")
	}

	return id, nil
}

// onCaptureEvent runs on the adapter's capture goroutine.
func (e *Engine) onCaptureEvent(evt platform.CaptureEvent) {
	action := session.Action{
		Type:      session.ActionType(evt.Type),
		Data:      evt.Data,
		Timestamp: e.relativeTime(evt.Time),
	}
	e.record(action)
}

// AddEvent appends an externally supplied action (browser events from
// the extension) to the named session. It reports false when the
// session is not the active recording one, matching the quiet-drop
// policy of the store.
func (e *Engine) AddEvent(sessionID string, action session.Action) bool {
	if sessionID == "" || sessionID != e.store.ActiveID() {
		return false
	}
	return e.record(action)
}

func (e *Engine) record(action session.Action) bool {
	// The cap check runs per captured event on the hook thread, so it
	// must stay O(1): ActionCount reads a length, never a copy.
	if e.opts.MaxActions > 0 && e.store.ActionCount() >= e.opts.MaxActions {
		e.dropped.Add(1)
		if e.capWarned.CompareAndSwap(false, true) {
			e.log.Warn("action cap reached, dropping further actions",
				"max_actions", e.opts.MaxActions)
		}
		return false
	}

	if !e.store.AddAction(action) {
		return false
	}
	e.broker.Publish(EventRecordingAction, map[string]any{
		"type":      string(action.Type),
		"timestamp": action.Timestamp,
	})
	return true
}

// relativeTime converts a capture wall time into seconds since start.
func (e *Engine) relativeTime(t time.Time) float64 {
	e.mu.Lock()
	start := e.startTime
	e.mu.Unlock()

	if t.IsZero() || start.IsZero() {
		return 0
	}
	d := t.Sub(start).Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// PauseRecording suspends capture. Events that arrive while paused are
// dropped by the store. Reports false unless a recording is active.
func (e *Engine) PauseRecording() bool {
	if !e.store.Pause() {
		return false
	}
	e.log.Info("recording paused", "session_id", e.store.ActiveID())
	e.broker.Publish(EventRecordingPaused, map[string]any{
		"session_id": e.store.ActiveID(),
	})
	return true
}

// ResumeRecording resumes a paused recording.
func (e *Engine) ResumeRecording() bool {
	if !e.store.Resume() {
		return false
	}
	e.log.Info("recording resumed", "session_id", e.store.ActiveID())
	e.broker.Publish(EventRecordingResumed, map[string]any{
		"session_id": e.store.ActiveID(),
	})
	return true
}

// StopRecording finalizes the active session and persists it as a
// script. The capture hook comes down before the session is finalized
// so no event can land after the cut.
func (e *Engine) StopRecording(name, description string) (*script.Script, string, error) {
	e.mu.Lock()
	if e.capturing {
		if err := e.adapter.StopInputCapture(); err != nil {
			e.log.Warn("stop input capture", "error", err)
		}
		e.capturing = false
	}
	e.mu.Unlock()

	rec, err := e.store.Stop()
	if err != nil {
		return nil, "", err
	}

	s := script.FromRecording(rec, name, description)
	path, err := e.scripts.Save(s)
	if err != nil {
		return nil, "", fmt.Errorf("save script: %w", err)
	}

	if n := e.dropped.Load(); n > 0 {
		e.log.Warn("recording dropped actions at the cap",
			"session_id", rec.ID, "dropped", n)
	}
	e.log.Info("recording stopped",
		"session_id", rec.ID, "script_id", s.ID, "actions", len(s.Actions))
	e.broker.Publish(EventRecordingStopped, map[string]any{
		"session_id":   rec.ID,
		"script_id":    s.ID,
		"action_count": len(s.Actions),
	})
	if e.opts.Notifications {
		e.notifier.Notify("Recording saved",
			fmt.Sprintf("Saved %d actions as %q.", len(s.Actions), s.Name))
	}

	return s, path, nil
}

// Status describes the engine for status queries.
type Status struct {
	State        string                `json:"state"`
	SessionID    string                `json:"session_id,omitempty"`
	ActionCount  int                   `json:"action_count"`
	Elapsed      float64               `json:"elapsed_seconds,omitempty"`
	Dropped      uint64                `json:"dropped_actions,omitempty"`
	Capabilities platform.Capabilities `json:"capabilities"`
}

// Status reports the current recording state.
func (e *Engine) Status() Status {
	st := Status{
		State:        e.store.State().String(),
		Capabilities: e.adapter.Capabilities(),
		Dropped:      e.dropped.Load(),
	}
	if rec, ok := e.store.Active(); ok {
		st.SessionID = rec.ID
		st.ActionCount = len(rec.Actions)
		st.Elapsed = rec.Duration().Seconds()
	}
	return st
}
