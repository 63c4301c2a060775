// Package platform abstracts OS-level input capture and synthesis.
//
// replayd treats the OS hook machinery as an opaque capability: the
// adapter interface below is the whole contract, and the engine gates
// every recording and playback operation on the capability report.
// The simulated adapter is fully functional and is what tests (and
// the "simulated" config backend) use.
package platform

import (
	"context"
	"errors"
	"time"
)

// Capture errors.
var (
	ErrCaptureUnavailable   = errors.New("input capture not available on this platform")
	ErrSynthesisUnavailable = errors.New("input synthesis not available on this platform")
	ErrPermissionDenied     = errors.New("insufficient permissions for input access")
	ErrAlreadyCapturing     = errors.New("input capture already running")
	ErrNotCapturing         = errors.New("input capture not running")
)

// CaptureEvent is one raw input event delivered by the adapter.
// Callbacks run on the adapter's own goroutine (the OS hook thread);
// they must not block.
type CaptureEvent struct {
	Type string
	Data map[string]any
	Time time.Time
}

// CaptureFunc receives captured events.
type CaptureFunc func(evt CaptureEvent)

// MouseAction is a synthesized mouse operation for playback.
type MouseAction struct {
	Kind   string // "move", "down", "up", "click", "scroll"
	X, Y   int
	Button string
	Delta  int
}

// KeyboardAction is a synthesized keyboard operation for playback.
type KeyboardAction struct {
	Kind string // "down", "up", "type"
	Key  string
	Text string
}

// Capabilities reports what the adapter can do with the current OS and
// permissions. Detail is a human-readable explanation for status
// output.
type Capabilities struct {
	InputCapture   bool   `json:"input_capture"`
	InputSynthesis bool   `json:"input_synthesis"`
	Detail         string `json:"detail,omitempty"`
}

// Adapter is the OS-specific capability provider. One implementation
// exists per platform, plus the simulated one.
type Adapter interface {
	// Capabilities reports capture/synthesis availability.
	Capabilities() Capabilities

	// StartInputCapture installs the OS hook and streams events to cb
	// until StopInputCapture. Returns ErrAlreadyCapturing if a capture
	// is running, ErrCaptureUnavailable or ErrPermissionDenied if the
	// platform cannot capture.
	StartInputCapture(cb CaptureFunc) error

	// StopInputCapture removes the hook. After it returns, cb is not
	// invoked again. Stopping an idle adapter returns ErrNotCapturing.
	StopInputCapture() error

	// ExecuteMouseAction synthesizes a mouse action.
	ExecuteMouseAction(ctx context.Context, a MouseAction) error

	// ExecuteKeyboardAction synthesizes a keyboard action.
	ExecuteKeyboardAction(ctx context.Context, a KeyboardAction) error
}

// Detect returns the adapter for the current platform. The returned
// adapter may report no capabilities; callers gate on Capabilities
// rather than assuming capture works.
func Detect() Adapter {
	return newPlatformAdapter()
}
