//go:build linux

package notify

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyBusName   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications.Notify"
)

// dbusNotifier talks to the org.freedesktop.Notifications service on
// the session bus.
type dbusNotifier struct {
	appName string
	mu      sync.Mutex
	conn    *dbus.Conn
	lastID  uint32
}

func newPlatformNotifier(appName string) (Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &dbusNotifier{appName: appName, conn: conn}, nil
}

func (n *dbusNotifier) Notify(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	obj := n.conn.Object(notifyBusName, notifyPath)

	// Replacing the previous notification keeps rapid start/stop
	// cycles from stacking up in the shell.
	call := obj.Call(notifyInterface, 0,
		n.appName,          // app_name
		n.lastID,           // replaces_id
		"",                 // app_icon
		summary,            // summary
		body,               // body
		[]string{},         // actions
		map[string]dbus.Variant{}, // hints
		int32(5000),        // expire_timeout ms
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}

	return call.Store(&n.lastID)
}

func (n *dbusNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn.Close()
}
