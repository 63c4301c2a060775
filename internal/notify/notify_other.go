//go:build !linux

package notify

import "errors"

func newPlatformNotifier(appName string) (Notifier, error) {
	return nil, errors.New("no notification backend for this platform")
}
