//go:build !linux

package platform

import "context"

// stubAdapter is the fallback for platforms this build has no probe
// for. All operations report unavailability.
type stubAdapter struct{}

func newPlatformAdapter() Adapter {
	return stubAdapter{}
}

func (stubAdapter) Capabilities() Capabilities {
	return Capabilities{Detail: "no platform adapter for this OS"}
}

func (stubAdapter) StartInputCapture(cb CaptureFunc) error {
	return ErrCaptureUnavailable
}

func (stubAdapter) StopInputCapture() error {
	return ErrNotCapturing
}

func (stubAdapter) ExecuteMouseAction(ctx context.Context, a MouseAction) error {
	return ErrSynthesisUnavailable
}

func (stubAdapter) ExecuteKeyboardAction(ctx context.Context, a KeyboardAction) error {
	return ErrSynthesisUnavailable
}
