// Package session owns recording sessions and their state machine.
//
// The store is the single owner of every Recording; the engine and
// command handlers refer to sessions by id only. One mutex guards the
// active-session reference and its action list, because actions arrive
// on the platform capture goroutine while start/stop commands arrive
// on the transport goroutine.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of the recording manager and, per session, its final marker.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

// String returns the wire name of a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StatePaused:
		return "PAUSED"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ActionType tags a captured input event.
type ActionType string

// Known action types. The Data map stays open for platform-specific
// fields (raw key codes, device ids) that have no common structure.
const (
	ActionMouseMove   ActionType = "mouse_move"
	ActionMouseDown   ActionType = "mouse_down"
	ActionMouseUp     ActionType = "mouse_up"
	ActionMouseClick  ActionType = "mouse_click"
	ActionMouseScroll ActionType = "mouse_scroll"
	ActionKeyDown     ActionType = "key_down"
	ActionKeyUp       ActionType = "key_up"
	ActionKeyType     ActionType = "key_type"
	ActionWait        ActionType = "wait"
	ActionBrowser     ActionType = "browser_event"
)

// Action is a single captured event. Timestamp is seconds relative to
// the session start; within a session timestamps are non-decreasing.
type Action struct {
	Type      ActionType     `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp"`
	Duration  float64        `json:"duration,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate checks the invariants an action must satisfy before it may
// enter a session.
func (a *Action) Validate() error {
	if a.Type == "" {
		return errors.New("action type must be non-empty")
	}
	if a.Timestamp < 0 {
		return fmt.Errorf("action timestamp must be non-negative, got %v", a.Timestamp)
	}
	return nil
}

// Config captures the per-recording options sent by the extension.
type Config struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	CaptureMouse    bool   `json:"capture_mouse"`
	CaptureKeyboard bool   `json:"capture_keyboard"`
	ShowBorder      bool   `json:"show_border"`
}

// Recording is one recording attempt. Once stopped it is immutable and
// remains retrievable by id until cleared.
type Recording struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	State     State     `json:"state"`
	Actions   []Action  `json:"actions"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Config    Config    `json:"config"`
}

// Duration is the wall time between start and end (or now, while the
// recording is still active).
func (r *Recording) Duration() time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	end := r.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.StartTime)
}

// Errors returned by state-machine guards that are loud by design.
// Guards that are quiet by design (AddAction, double pause) return
// false instead.
var (
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrSessionNotFound  = errors.New("session not found")
)

// Store owns all recording sessions.
type Store struct {
	mu      sync.Mutex
	state   State
	active  *Recording
	stopped map[string]*Recording
}

// NewStore creates an idle store with no sessions.
func NewStore() *Store {
	return &Store{
		state:   StateIdle,
		stopped: make(map[string]*Recording),
	}
}

// State returns the manager state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start creates a new active session. Allowed only from IDLE: starting
// while a recording is in progress returns ErrAlreadyRecording rather
// than silently discarding the in-flight session.
func (s *Store) Start(userID string, cfg Config) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return "", ErrAlreadyRecording
	}

	rec := &Recording{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     StateRecording,
		StartTime: time.Now(),
		Config:    cfg,
	}
	s.active = rec
	s.state = StateRecording
	return rec.ID, nil
}

// AddAction appends an action to the active session. It returns false,
// without mutating anything, unless the manager is RECORDING. The
// capture path never blocks and never errors here; droppability is the
// deliberate backpressure policy.
//
// A timestamp below the previous action's is clamped up to it so the
// non-decreasing ordering invariant holds even if a caller's clock
// stutters.
func (s *Store) AddAction(a Action) bool {
	if a.Validate() != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.active == nil {
		return false
	}

	if n := len(s.active.Actions); n > 0 {
		if last := s.active.Actions[n-1].Timestamp; a.Timestamp < last {
			a.Timestamp = last
		}
	}
	s.active.Actions = append(s.active.Actions, a)
	return true
}

// Pause moves RECORDING to PAUSED. Pausing twice, or pausing while
// idle, returns false.
func (s *Store) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.active == nil {
		return false
	}
	s.state = StatePaused
	s.active.State = StatePaused
	return true
}

// Resume moves PAUSED back to RECORDING. Resuming from any other state
// returns false.
func (s *Store) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused || s.active == nil {
		return false
	}
	s.state = StateRecording
	s.active.State = StateRecording
	return true
}

// Stop finalizes the active session from RECORDING or PAUSED, marks it
// immutable, and returns it. The manager goes back to IDLE and can
// start a new session immediately.
func (s *Store) Stop() (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (s.state != StateRecording && s.state != StatePaused) || s.active == nil {
		return nil, ErrNotRecording
	}

	rec := s.active
	rec.State = StateStopped
	rec.EndTime = time.Now()

	s.stopped[rec.ID] = rec
	s.active = nil
	s.state = StateIdle
	return snapshot(rec), nil
}

// Abort discards the active session without retaining it, returning
// the manager to IDLE. Used by the engine to roll back when platform
// capture fails mid-start.
func (s *Store) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.state = StateIdle
}

// Active returns a snapshot of the in-progress session, if any.
func (s *Store) Active() (*Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, false
	}
	return snapshot(s.active), true
}

// ActionCount returns the number of actions in the in-progress
// session, or 0 when none is active. Unlike Active it copies nothing,
// so the capture path can consult it per event.
func (s *Store) ActionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0
	}
	return len(s.active.Actions)
}

// ActiveID returns the id of the in-progress session, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

// Get returns a snapshot of a session by id, active or stopped.
func (s *Store) Get(id string) (*Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && s.active.ID == id {
		return snapshot(s.active), nil
	}
	if rec, ok := s.stopped[id]; ok {
		return snapshot(rec), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// Clear discards a stopped session from memory.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stopped, id)
}

// snapshot copies a recording so callers can never mutate store-owned
// state through the returned pointer.
func snapshot(rec *Recording) *Recording {
	cp := *rec
	cp.Actions = make([]Action, len(rec.Actions))
	copy(cp.Actions, rec.Actions)
	return &cp
}
