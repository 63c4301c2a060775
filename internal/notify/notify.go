// Package notify sends desktop notifications for recording and playback
// lifecycle events. Notifications are best effort: a missing desktop
// session never fails the operation that triggered one.
package notify

// Notifier delivers a transient desktop notification.
type Notifier interface {
	// Notify shows a notification with the given summary and body.
	Notify(summary, body string) error

	// Close releases any underlying connection.
	Close() error
}

// Noop is a Notifier that discards everything. Used when notifications
// are disabled or no desktop backend is available.
type Noop struct{}

func (Noop) Notify(summary, body string) error { return nil }
func (Noop) Close() error                      { return nil }

// New returns the platform notifier, or Noop when the platform has none
// or the desktop session is unreachable.
func New(appName string) Notifier {
	n, err := newPlatformNotifier(appName)
	if err != nil {
		return Noop{}
	}
	return n
}
