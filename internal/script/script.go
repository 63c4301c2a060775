// Package script defines the persisted automation script format and
// its on-disk library.
//
// A script file is a standalone JSON document; the library keeps a
// SQLite index next to the files so listing does not reparse every
// script.
package script

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"replayd/internal/session"
)

// FormatVersion is written into every script file.
const FormatVersion = "1.0"

// Script is the persisted form of a completed recording. The order of
// Actions is the canonical replay order.
type Script struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	Version     string           `json:"version"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Actions     []session.Action `json:"actions"`
}

// FromRecording converts a stopped recording into a script. The
// conversion is a pure read: calling it twice on the same recording
// yields equivalent scripts.
func FromRecording(rec *session.Recording, name, description string) *Script {
	if name == "" {
		name = "recording-" + rec.StartTime.Format("20060102-150405")
	}

	actions := make([]session.Action, len(rec.Actions))
	copy(actions, rec.Actions)

	return &Script{
		ID:          rec.ID,
		Name:        name,
		Description: description,
		CreatedAt:   rec.StartTime,
		Version:     FormatVersion,
		Metadata: map[string]any{
			"user_id":          rec.UserID,
			"duration_seconds": rec.Duration().Seconds(),
			"capture_mouse":    rec.Config.CaptureMouse,
			"capture_keyboard": rec.Config.CaptureKeyboard,
		},
		Actions: actions,
	}
}

// Duration is the timestamp of the last action, i.e. the replay length
// at speed 1.
func (s *Script) Duration() float64 {
	if len(s.Actions) == 0 {
		return 0
	}
	return s.Actions[len(s.Actions)-1].Timestamp
}

// Checksum is the hex SHA-256 of the canonical JSON encoding, stored
// in the library index to detect script files edited out-of-band.
func (s *Script) Checksum() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal script: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
