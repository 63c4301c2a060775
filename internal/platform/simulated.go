package platform

import (
	"context"
	"sync"
	"time"
)

// Simulated is an in-memory adapter with full capture and synthesis
// capabilities. Tests inject events through it, and the "simulated"
// config backend selects it so the whole host can run without OS
// hooks.
type Simulated struct {
	mu        sync.Mutex
	capturing bool
	cb        CaptureFunc
	executed  []ExecutedAction

	// FailCapture makes StartInputCapture fail, for testing the
	// engine's rollback path.
	FailCapture error
}

// ExecutedAction records one synthesized action for assertions.
type ExecutedAction struct {
	Mouse    *MouseAction
	Keyboard *KeyboardAction
}

// NewSimulated creates a simulated adapter.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Capabilities reports full capability.
func (s *Simulated) Capabilities() Capabilities {
	return Capabilities{
		InputCapture:   true,
		InputSynthesis: true,
		Detail:         "simulated adapter",
	}
}

// StartInputCapture begins delivering injected events to cb.
func (s *Simulated) StartInputCapture(cb CaptureFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCapture != nil {
		return s.FailCapture
	}
	if s.capturing {
		return ErrAlreadyCapturing
	}
	s.capturing = true
	s.cb = cb
	return nil
}

// StopInputCapture stops delivery. Events injected afterwards are
// dropped, mirroring a removed OS hook.
func (s *Simulated) StopInputCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.capturing {
		return ErrNotCapturing
	}
	s.capturing = false
	s.cb = nil
	return nil
}

// Capturing reports whether a capture is running.
func (s *Simulated) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

// Inject delivers a raw capture event as if the OS hook had fired.
// The callback runs synchronously on the caller's goroutine, matching
// the single-hook-thread delivery model.
func (s *Simulated) Inject(evt CaptureEvent) bool {
	s.mu.Lock()
	cb := s.cb
	capturing := s.capturing
	s.mu.Unlock()

	if !capturing || cb == nil {
		return false
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	cb(evt)
	return true
}

// ExecuteMouseAction records the action.
func (s *Simulated) ExecuteMouseAction(ctx context.Context, a MouseAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, ExecutedAction{Mouse: &a})
	return nil
}

// ExecuteKeyboardAction records the action.
func (s *Simulated) ExecuteKeyboardAction(ctx context.Context, a KeyboardAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, ExecutedAction{Keyboard: &a})
	return nil
}

// Executed returns a copy of every synthesized action so far.
func (s *Simulated) Executed() []ExecutedAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ExecutedAction, len(s.executed))
	copy(out, s.executed)
	return out
}
