// Package host registers the command surface of the native messaging
// host: every wire command maps to one handler here, and command-wide
// concerns (request logging, optional shared-token auth) are broker
// middleware.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"replayd/internal/broker"
	"replayd/internal/engine"
	"replayd/internal/playback"
	"replayd/internal/protocol"
	"replayd/internal/script"
	"replayd/internal/session"
	"replayd/internal/transport"
)

// Version reported by PING and GET_STATUS.
const Version = "0.3.0"

// ErrUnauthorized is returned when auth is configured and a request
// carries no valid token.
var ErrUnauthorized = errors.New("missing or invalid auth token")

// Deps carries everything the handlers touch.
type Deps struct {
	Engine   *engine.Engine
	Playback *playback.Engine
	Scripts  *script.Store
	Host     *transport.Host
	Log      *slog.Logger

	// AuthToken, when non-empty, must accompany every command except
	// PING as params.auth_token.
	AuthToken string
}

// Register installs middleware and all command handlers on the broker.
func Register(b *broker.Broker, d Deps) {
	if d.Log == nil {
		d.Log = slog.Default()
	}

	b.AddMiddleware(loggingMiddleware(d.Log))
	if d.AuthToken != "" {
		b.AddMiddleware(authMiddleware(d.AuthToken))
	}

	b.RegisterCommand(protocol.CmdPing, handlePing)
	b.RegisterCommand(protocol.CmdGetStatus, d.makeGetStatus(b))
	b.RegisterCommand(protocol.CmdStartRecording, d.handleStartRecording)
	b.RegisterCommand(protocol.CmdPauseRecording, d.handlePauseRecording)
	b.RegisterCommand(protocol.CmdResumeRecording, d.handleResumeRecording)
	b.RegisterCommand(protocol.CmdStopRecording, d.handleStopRecording)
	b.RegisterCommand(protocol.CmdAddEvent, d.handleAddEvent)
	b.RegisterCommand(protocol.CmdListScripts, d.handleListScripts)
	b.RegisterCommand(protocol.CmdGetScript, d.handleGetScript)
	b.RegisterCommand(protocol.CmdDeleteScript, d.handleDeleteScript)
	b.RegisterCommand(protocol.CmdStartPlayback, d.handleStartPlayback)
	b.RegisterCommand(protocol.CmdStopPlayback, d.handleStopPlayback)
	b.RegisterCommand(protocol.CmdGetPlaybackStatus, d.handleGetPlaybackStatus)
	b.RegisterCommand(protocol.CmdSubscribeEvents, d.handleSubscribeEvents)
	b.RegisterCommand(protocol.CmdUnsubscribeEvents, d.handleUnsubscribeEvents)
}

// loggingMiddleware logs every dispatched command with its outcome.
func loggingMiddleware(log *slog.Logger) broker.Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg *protocol.Message) (any, error) {
			start := time.Now()
			data, err := next(ctx, msg)
			if err != nil {
				log.Warn("command failed",
					"command", msg.Command, "id", msg.ID,
					"elapsed", time.Since(start), "error", err)
			} else {
				log.Debug("command handled",
					"command", msg.Command, "id", msg.ID,
					"elapsed", time.Since(start))
			}
			return data, err
		}
	}
}

// authMiddleware rejects commands that lack the shared token. PING
// stays open so clients can health-check before authenticating.
func authMiddleware(token string) broker.Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg *protocol.Message) (any, error) {
			if msg.Command == protocol.CmdPing {
				return next(ctx, msg)
			}
			if got, _ := msg.Params["auth_token"].(string); got != token {
				return nil, ErrUnauthorized
			}
			return next(ctx, msg)
		}
	}
}

func handlePing(ctx context.Context, msg *protocol.Message) (any, error) {
	return map[string]any{
		"status":  "alive",
		"version": Version,
		"time":    float64(time.Now().UnixMilli()) / 1000,
	}, nil
}

// makeGetStatus closes over the broker so the status report can include
// dispatch counters alongside the engine and playback views.
func (d Deps) makeGetStatus(b *broker.Broker) broker.Handler {
	started := time.Now()
	return func(ctx context.Context, msg *protocol.Message) (any, error) {
		return map[string]any{
			"host": map[string]any{
				"version":        Version,
				"uptime_seconds": time.Since(started).Seconds(),
			},
			"engine":   d.Engine.Status(),
			"playback": d.Playback.Status(),
			"broker":   b.Stats(),
		}, nil
	}
}

func (d Deps) handleStartRecording(ctx context.Context, msg *protocol.Message) (any, error) {
	userID := stringOrNumber(msg.Params["user_id"])

	// Capture defaults on; the extension sends config only to opt out.
	cfg := session.Config{
		CaptureMouse:    true,
		CaptureKeyboard: true,
	}
	if raw, ok := msg.Params["config"].(map[string]any); ok {
		cfg.Name = strParam(raw, "name")
		cfg.Description = strParam(raw, "description")
		cfg.CaptureMouse = boolParam(raw, "capture_mouse", true)
		cfg.CaptureKeyboard = boolParam(raw, "capture_keyboard", true)
		cfg.ShowBorder = boolParam(raw, "show_border", false)
	}

	id, err := d.Engine.StartRecording(userID, cfg)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"sessionId": id,
		"state":     session.StateRecording.String(),
	}, nil
}

func (d Deps) handlePauseRecording(ctx context.Context, msg *protocol.Message) (any, error) {
	if !d.Engine.PauseRecording() {
		return nil, session.ErrNotRecording
	}
	return map[string]any{"state": session.StatePaused.String()}, nil
}

func (d Deps) handleResumeRecording(ctx context.Context, msg *protocol.Message) (any, error) {
	if !d.Engine.ResumeRecording() {
		return nil, fmt.Errorf("no paused recording to resume")
	}
	return map[string]any{"state": session.StateRecording.String()}, nil
}

func (d Deps) handleStopRecording(ctx context.Context, msg *protocol.Message) (any, error) {
	s, path, err := d.Engine.StopRecording(strParam(msg.Params, "name"), strParam(msg.Params, "description"))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scriptId":   s.ID,
		"name":       s.Name,
		"eventCount": len(s.Actions),
		"duration":   s.Duration(),
		"filePath":   path,
	}, nil
}

// handleAddEvent ingests a browser-side event into the active session.
// An event for a stale or unknown session is acknowledged with
// added=false rather than an error, so a race between the extension
// and a stop command stays quiet.
func (d Deps) handleAddEvent(ctx context.Context, msg *protocol.Message) (any, error) {
	sessionID := strParam(msg.Params, "sessionId")
	raw, ok := msg.Params["event"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("event must be an object")
	}

	action := session.Action{
		Type:      session.ActionType(strParam(raw, "type")),
		Timestamp: floatParam(raw, "timestamp"),
		Duration:  floatParam(raw, "duration"),
	}
	if data, ok := raw["data"].(map[string]any); ok {
		action.Data = data
	}
	if meta, ok := raw["metadata"].(map[string]any); ok {
		action.Metadata = meta
	}

	added := d.Engine.AddEvent(sessionID, action)
	return map[string]any{"added": added}, nil
}

func (d Deps) handleListScripts(ctx context.Context, msg *protocol.Message) (any, error) {
	entries, err := d.Scripts.List()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scripts": entries,
		"count":   len(entries),
	}, nil
}

func (d Deps) handleGetScript(ctx context.Context, msg *protocol.Message) (any, error) {
	s, err := d.Scripts.Get(strParam(msg.Params, "scriptId"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (d Deps) handleDeleteScript(ctx context.Context, msg *protocol.Message) (any, error) {
	id := strParam(msg.Params, "scriptId")
	if err := d.Scripts.Delete(id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "scriptId": id}, nil
}

func (d Deps) handleStartPlayback(ctx context.Context, msg *protocol.Message) (any, error) {
	id := strParam(msg.Params, "scriptId")
	if err := d.Playback.Start(id, floatParam(msg.Params, "speed"), intParam(msg.Params, "repeat")); err != nil {
		return nil, err
	}
	return map[string]any{"scriptId": id, "started": true}, nil
}

func (d Deps) handleStopPlayback(ctx context.Context, msg *protocol.Message) (any, error) {
	if err := d.Playback.Stop(); err != nil {
		return nil, err
	}
	return map[string]any{"stopped": true}, nil
}

func (d Deps) handleGetPlaybackStatus(ctx context.Context, msg *protocol.Message) (any, error) {
	return d.Playback.Status(), nil
}

func (d Deps) handleSubscribeEvents(ctx context.Context, msg *protocol.Message) (any, error) {
	d.Host.SetForwarding(true)
	return map[string]any{"subscribed": true}, nil
}

func (d Deps) handleUnsubscribeEvents(ctx context.Context, msg *protocol.Message) (any, error) {
	d.Host.SetForwarding(false)
	return map[string]any{"subscribed": false}, nil
}

// Param helpers over decoded JSON maps, where numbers are float64.

func strParam(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func boolParam(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func floatParam(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intParam(m map[string]any, key string) int {
	return int(floatParam(m, key))
}

// stringOrNumber accepts the user id as either form the extension may
// send.
func stringOrNumber(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	}
	return ""
}
