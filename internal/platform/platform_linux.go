//go:build linux

package platform

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// linuxAdapter probes evdev/uinput access so status output can explain
// what a capture driver would be able to do. The hook driver itself is
// an external collaborator and is not part of this build, so the
// adapter reports no usable capabilities.
type linuxAdapter struct {
	probe Capabilities
}

func newPlatformAdapter() Adapter {
	return &linuxAdapter{probe: probeLinux()}
}

func (a *linuxAdapter) Capabilities() Capabilities {
	return Capabilities{
		InputCapture:   false,
		InputSynthesis: false,
		Detail:         a.probe.Detail + "; no capture driver linked",
	}
}

// probeLinux checks whether the process could read input devices and
// write uinput, which is what a capture/synthesis driver would need.
func probeLinux() Capabilities {
	caps := Capabilities{}

	if err := unix.Access("/dev/uinput", unix.W_OK); err == nil {
		caps.InputSynthesis = true
	}

	entries, err := os.ReadDir("/dev/input")
	if err == nil {
		for _, entry := range entries {
			if err := unix.Access("/dev/input/"+entry.Name(), unix.R_OK); err == nil {
				caps.InputCapture = true
				break
			}
		}
	}

	switch {
	case caps.InputCapture && caps.InputSynthesis:
		caps.Detail = "evdev readable, uinput writable"
	case caps.InputCapture:
		caps.Detail = "evdev readable, uinput not writable"
	case caps.InputSynthesis:
		caps.Detail = "uinput writable, evdev not readable (input group required)"
	default:
		caps.Detail = "no access to /dev/input or /dev/uinput"
	}
	return caps
}

func (a *linuxAdapter) StartInputCapture(cb CaptureFunc) error {
	return fmt.Errorf("%w: %s", ErrCaptureUnavailable, a.Capabilities().Detail)
}

func (a *linuxAdapter) StopInputCapture() error {
	return ErrNotCapturing
}

func (a *linuxAdapter) ExecuteMouseAction(ctx context.Context, act MouseAction) error {
	return ErrSynthesisUnavailable
}

func (a *linuxAdapter) ExecuteKeyboardAction(ctx context.Context, act KeyboardAction) error {
	return ErrSynthesisUnavailable
}
