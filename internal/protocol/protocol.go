// Package protocol defines the wire format spoken between the browser
// extension and the replayd native messaging host.
//
// Every frame is a 4-byte unsigned little-endian length followed by
// exactly that many bytes of UTF-8 JSON. Requests carry an id, a
// command name, and a params object; responses echo the id with a
// SUCCESS or ERROR status.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status values carried by Response.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"

	// StatusEvent marks unsolicited server-to-client event frames.
	// Only sent after the client subscribed with SUBSCRIBE_EVENTS.
	StatusEvent = "EVENT"
)

// Command names accepted by the host.
const (
	CmdPing              = "PING"
	CmdGetStatus         = "GET_STATUS"
	CmdStartRecording    = "START_RECORDING"
	CmdPauseRecording    = "PAUSE_RECORDING"
	CmdResumeRecording   = "RESUME_RECORDING"
	CmdStopRecording     = "STOP_RECORDING"
	CmdAddEvent          = "ADD_EVENT"
	CmdListScripts       = "LIST_SCRIPTS"
	CmdGetScript         = "GET_SCRIPT"
	CmdDeleteScript      = "DELETE_SCRIPT"
	CmdStartPlayback     = "START_PLAYBACK"
	CmdStopPlayback      = "STOP_PLAYBACK"
	CmdGetPlaybackStatus = "GET_PLAYBACK_STATUS"
	CmdSubscribeEvents   = "SUBSCRIBE_EVENTS"
	CmdUnsubscribeEvents = "UNSUBSCRIBE_EVENTS"
)

// Message is a single request from the extension.
type Message struct {
	ID        string         `json:"id"`
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"`
}

// Validation errors.
var (
	ErrMissingID      = errors.New("message id must be a non-empty string")
	ErrMissingCommand = errors.New("message command must be a non-empty string")
)

// Validate checks the structural invariants every message must satisfy.
// A message that fails validation is answered with an ERROR response,
// never dropped silently.
func (m *Message) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if m.Command == "" {
		return ErrMissingCommand
	}
	return nil
}

// Response is the envelope sent back for every request. Exactly one of
// Data and Error is populated, matching Status.
type Response struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success builds a SUCCESS response correlated to the given request id.
func Success(id string, data any) *Response {
	if data == nil {
		data = map[string]any{}
	}
	return &Response{ID: id, Status: StatusSuccess, Data: data}
}

// Failure builds an ERROR response correlated to the given request id.
func Failure(id string, msg string) *Response {
	return &Response{ID: id, Status: StatusError, Error: msg}
}

// Failuref builds an ERROR response with a formatted message.
func Failuref(id string, format string, args ...any) *Response {
	return Failure(id, fmt.Sprintf(format, args...))
}

// EventFrame wraps a broker event for unsolicited delivery. It reuses
// the Response envelope so clients can demultiplex on Status alone.
func EventFrame(eventType string, data any) *Response {
	return &Response{
		ID:     "",
		Status: StatusEvent,
		Data: map[string]any{
			"type": eventType,
			"data": data,
		},
	}
}

// DecodeMessage parses a frame payload into a Message.
func DecodeMessage(payload []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &m, nil
}

// DecodeResponse parses a frame payload into a Response.
func DecodeResponse(payload []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &r, nil
}

// Encode serializes any wire value to its JSON payload.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
