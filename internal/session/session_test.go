package session

import (
	"errors"
	"testing"
)

func action(ts float64) Action {
	return Action{Type: ActionMouseMove, Timestamp: ts}
}

// =============================================================================
// Tests for the state machine
// =============================================================================

func TestStartFromIdle(t *testing.T) {
	s := NewStore()

	id, err := s.Start("user-1", Config{CaptureMouse: true})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if id == "" {
		t.Fatal("session id must be non-empty")
	}
	if s.State() != StateRecording {
		t.Errorf("state = %v, want RECORDING", s.State())
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	s := NewStore()
	first, _ := s.Start("user-1", Config{})

	_, err := s.Start("user-2", Config{})
	if !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}

	// The in-flight session is untouched.
	if s.ActiveID() != first {
		t.Errorf("active session changed: %q, want %q", s.ActiveID(), first)
	}
}

func TestStartWhilePausedRejected(t *testing.T) {
	s := NewStore()
	s.Start("u", Config{})
	s.Pause()

	if _, err := s.Start("u", Config{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestPauseResume(t *testing.T) {
	s := NewStore()

	if s.Pause() {
		t.Error("Pause from IDLE must return false")
	}
	if s.Resume() {
		t.Error("Resume from IDLE must return false")
	}

	s.Start("u", Config{})
	if !s.Pause() {
		t.Fatal("Pause from RECORDING must succeed")
	}
	if s.Pause() {
		t.Error("double Pause must return false")
	}
	if !s.Resume() {
		t.Fatal("Resume from PAUSED must succeed")
	}
	if s.Resume() {
		t.Error("double Resume must return false")
	}
	if s.State() != StateRecording {
		t.Errorf("state = %v, want RECORDING", s.State())
	}
}

func TestStopFromRecordingAndPaused(t *testing.T) {
	s := NewStore()

	if _, err := s.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop from IDLE: err = %v, want ErrNotRecording", err)
	}

	s.Start("u", Config{})
	rec, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop from RECORDING failed: %v", err)
	}
	if rec.State != StateStopped || rec.EndTime.IsZero() {
		t.Errorf("stopped recording not finalized: %+v", rec)
	}
	if s.State() != StateIdle {
		t.Errorf("manager state = %v, want IDLE after stop", s.State())
	}

	// Stop while paused is allowed.
	s.Start("u", Config{})
	s.Pause()
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop from PAUSED failed: %v", err)
	}
}

func TestStopThenStartNewSession(t *testing.T) {
	s := NewStore()
	first, _ := s.Start("u", Config{})
	s.Stop()

	second, err := s.Start("u", Config{})
	if err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
	if second == first {
		t.Error("new session must get a fresh id")
	}

	// The stopped session stays retrievable.
	if _, err := s.Get(first); err != nil {
		t.Errorf("stopped session lost: %v", err)
	}
}

func TestAbortRollsBack(t *testing.T) {
	s := NewStore()
	id, _ := s.Start("u", Config{})
	s.Abort()

	if s.State() != StateIdle {
		t.Errorf("state = %v, want IDLE after abort", s.State())
	}
	if _, err := s.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("aborted session must not be retained, err = %v", err)
	}
	if _, err := s.Start("u", Config{}); err != nil {
		t.Errorf("restart after abort failed: %v", err)
	}
}

// =============================================================================
// Tests for AddAction
// =============================================================================

func TestAddActionOnlyWhileRecording(t *testing.T) {
	s := NewStore()

	if s.AddAction(action(0)) {
		t.Error("AddAction in IDLE must return false")
	}

	s.Start("u", Config{})
	if !s.AddAction(action(0.1)) {
		t.Error("AddAction while RECORDING must return true")
	}

	s.Pause()
	if s.AddAction(action(0.2)) {
		t.Error("AddAction while PAUSED must return false")
	}

	s.Resume()
	if !s.AddAction(action(0.3)) {
		t.Error("AddAction after resume must return true")
	}

	s.Stop()
	if s.AddAction(action(0.4)) {
		t.Error("AddAction after stop must return false")
	}
}

func TestActionCount(t *testing.T) {
	s := NewStore()

	if n := s.ActionCount(); n != 0 {
		t.Errorf("idle count = %d, want 0", n)
	}

	s.Start("u", Config{})
	s.AddAction(action(0.1))
	s.AddAction(action(0.2))
	if n := s.ActionCount(); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	s.Pause()
	if n := s.ActionCount(); n != 2 {
		t.Errorf("count while paused = %d, want 2", n)
	}

	s.Stop()
	if n := s.ActionCount(); n != 0 {
		t.Errorf("count after stop = %d, want 0", n)
	}
}

func TestAddActionRejectsInvalid(t *testing.T) {
	s := NewStore()
	s.Start("u", Config{})

	if s.AddAction(Action{Timestamp: 1}) {
		t.Error("action without a type must be rejected")
	}
	if s.AddAction(Action{Type: ActionKeyDown, Timestamp: -1}) {
		t.Error("negative timestamp must be rejected")
	}
}

func TestAddActionClampsRegressingTimestamps(t *testing.T) {
	s := NewStore()
	s.Start("u", Config{})

	s.AddAction(action(1.0))
	s.AddAction(action(0.5)) // clock stutter
	s.AddAction(action(2.0))

	rec, _ := s.Stop()
	if len(rec.Actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(rec.Actions))
	}
	for i := 1; i < len(rec.Actions); i++ {
		if rec.Actions[i].Timestamp < rec.Actions[i-1].Timestamp {
			t.Fatalf("timestamps regress at %d: %v", i, rec.Actions)
		}
	}
	if rec.Actions[1].Timestamp != 1.0 {
		t.Errorf("regressing timestamp clamped to %v, want 1.0", rec.Actions[1].Timestamp)
	}
}

// =============================================================================
// Tests for snapshot isolation
// =============================================================================

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewStore()
	s.Start("u", Config{})
	s.AddAction(action(0.1))

	snap, ok := s.Active()
	if !ok {
		t.Fatal("expected an active session")
	}
	snap.Actions[0].Timestamp = 99
	snap.Actions = append(snap.Actions, action(100))

	rec, _ := s.Stop()
	if len(rec.Actions) != 1 || rec.Actions[0].Timestamp != 0.1 {
		t.Errorf("store state mutated through a snapshot: %+v", rec.Actions)
	}
}

func TestClearDropsStoppedSession(t *testing.T) {
	s := NewStore()
	id, _ := s.Start("u", Config{})
	s.Stop()

	s.Clear(id)
	if _, err := s.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("cleared session still retrievable: %v", err)
	}
}

// =============================================================================
// Tests for state names
// =============================================================================

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "IDLE"},
		{StateRecording, "RECORDING"},
		{StatePaused, "PAUSED"},
		{StateStopped, "STOPPED"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
