package protocol

import (
	"strings"
	"testing"
)

// =============================================================================
// Tests for ValidateParams
// =============================================================================

func TestValidateParamsUnregisteredCommand(t *testing.T) {
	// PING has no schema; any params, including none, pass.
	if err := ValidateParams(CmdPing, nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateParams(CmdPing, map[string]any{"whatever": 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateStartRecording(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		wantOK bool
	}{
		{"empty params", nil, true},
		{"string user id", map[string]any{"user_id": "u-1"}, true},
		{"integer user id", map[string]any{"user_id": float64(42)}, true},
		{"boolean user id", map[string]any{"user_id": true}, false},
		{"config flags", map[string]any{
			"config": map[string]any{"capture_mouse": true, "capture_keyboard": false},
		}, true},
		{"config flag wrong type", map[string]any{
			"config": map[string]any{"capture_mouse": "yes"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(CmdStartRecording, tt.params)
			if (err == nil) != tt.wantOK {
				t.Errorf("ValidateParams() = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}

func TestValidateAddEvent(t *testing.T) {
	valid := map[string]any{
		"sessionId": "s-1",
		"event": map[string]any{
			"type":      "mouse_click",
			"timestamp": 1.25,
			"data":      map[string]any{"x": 10.0, "y": 20.0},
		},
	}
	if err := ValidateParams(CmdAddEvent, valid); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	missing := map[string]any{"event": map[string]any{"type": "x", "timestamp": 0.0}}
	if err := ValidateParams(CmdAddEvent, missing); err == nil {
		t.Error("missing sessionId must be rejected")
	}

	negative := map[string]any{
		"sessionId": "s-1",
		"event":     map[string]any{"type": "x", "timestamp": -1.0},
	}
	if err := ValidateParams(CmdAddEvent, negative); err == nil {
		t.Error("negative timestamp must be rejected")
	}
}

func TestValidateStartPlayback(t *testing.T) {
	if err := ValidateParams(CmdStartPlayback, map[string]any{"scriptId": "s"}); err != nil {
		t.Errorf("minimal params rejected: %v", err)
	}
	if err := ValidateParams(CmdStartPlayback, map[string]any{
		"scriptId": "s", "speed": 0.0,
	}); err == nil {
		t.Error("zero speed must be rejected")
	}
	if err := ValidateParams(CmdStartPlayback, map[string]any{
		"scriptId": "s", "repeat": 0.0,
	}); err == nil {
		t.Error("zero repeat must be rejected")
	}
	if err := ValidateParams(CmdStartPlayback, nil); err == nil {
		t.Error("missing scriptId must be rejected")
	}
}

func TestValidateErrorNamesCommand(t *testing.T) {
	err := ValidateParams(CmdDeleteScript, map[string]any{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), CmdDeleteScript) {
		t.Errorf("error %q should name the command", err)
	}
}
