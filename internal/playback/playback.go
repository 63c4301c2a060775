// Package playback replays saved scripts through the platform adapter.
//
// One playback runs at a time. The run loop lives on its own goroutine
// and honors cancellation between actions and inside waits, so Stop
// takes effect within one inter-action delay.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"replayd/internal/broker"
	"replayd/internal/platform"
	"replayd/internal/script"
	"replayd/internal/session"
)

// Event types published on the broker.
const (
	EventPlaybackStarted   = "playback.started"
	EventPlaybackProgress  = "playback.progress"
	EventPlaybackCompleted = "playback.completed"
	EventPlaybackStopped   = "playback.stopped"
	EventPlaybackError     = "playback.error"
)

var (
	ErrPlaybackActive    = errors.New("a playback is already running")
	ErrNoPlayback        = errors.New("no playback running")
	ErrSpeedOutOfRange   = errors.New("playback speed out of range")
	ErrScriptEmpty       = errors.New("script has no actions")
	ErrSynthesisRequired = errors.New("platform cannot synthesize input")
)

// Options bounds playback parameters.
type Options struct {
	DefaultSpeed float64
	MaxSpeed     float64
}

// Engine runs scripts.
type Engine struct {
	scripts *script.Store
	adapter platform.Adapter
	broker  *broker.Broker
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	state   Status
}

// Status describes the current (or last) playback.
type Status struct {
	Running     bool    `json:"running"`
	ScriptID    string  `json:"script_id,omitempty"`
	ScriptName  string  `json:"script_name,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Repeat      int     `json:"repeat,omitempty"`
	Iteration   int     `json:"iteration,omitempty"`
	ActionIndex int     `json:"action_index"`
	ActionTotal int     `json:"action_total,omitempty"`
}

// New wires a playback engine.
func New(scripts *script.Store, adapter platform.Adapter, bkr *broker.Broker, opts Options, log *slog.Logger) *Engine {
	if opts.DefaultSpeed <= 0 {
		opts.DefaultSpeed = 1.0
	}
	if opts.MaxSpeed <= 0 {
		opts.MaxSpeed = 10.0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		scripts: scripts,
		adapter: adapter,
		broker:  bkr,
		opts:    opts,
		log:     log,
	}
}

// Start loads the script and begins replaying it in the background.
// speed <= 0 selects the default. repeat < 1 is clamped to 1.
func (e *Engine) Start(scriptID string, speed float64, repeat int) error {
	if speed <= 0 {
		speed = e.opts.DefaultSpeed
	}
	if speed > e.opts.MaxSpeed {
		return fmt.Errorf("%w: %v exceeds max %v", ErrSpeedOutOfRange, speed, e.opts.MaxSpeed)
	}
	if repeat < 1 {
		repeat = 1
	}

	if !e.adapter.Capabilities().InputSynthesis {
		return ErrSynthesisRequired
	}

	s, err := e.scripts.Get(scriptID)
	if err != nil {
		return err
	}
	if len(s.Actions) == 0 {
		return ErrScriptEmpty
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrPlaybackActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = Status{
		Running:     true,
		ScriptID:    s.ID,
		ScriptName:  s.Name,
		Speed:       speed,
		Repeat:      repeat,
		ActionTotal: len(s.Actions),
	}
	done := e.done
	e.mu.Unlock()

	e.log.Info("playback started",
		"script_id", s.ID, "speed", speed, "repeat", repeat, "actions", len(s.Actions))
	e.broker.Publish(EventPlaybackStarted, map[string]any{
		"script_id": s.ID,
		"speed":     speed,
		"repeat":    repeat,
	})

	go func() {
		defer close(done)
		err := e.run(ctx, s, speed, repeat)
		e.finish(s.ID, err)
	}()

	return nil
}

func (e *Engine) run(ctx context.Context, s *script.Script, speed float64, repeat int) error {
	for iter := 1; iter <= repeat; iter++ {
		e.setProgress(iter, 0)

		prev := 0.0
		for i, action := range s.Actions {
			delay := time.Duration((action.Timestamp - prev) / speed * float64(time.Second))
			prev = action.Timestamp

			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
			if err := e.execute(ctx, action, speed); err != nil {
				return fmt.Errorf("action %d (%s): %w", i, action.Type, err)
			}
			e.setProgress(iter, i+1)

			if (i+1)%25 == 0 || i+1 == len(s.Actions) {
				e.broker.Publish(EventPlaybackProgress, map[string]any{
					"script_id":    s.ID,
					"iteration":    iter,
					"action_index": i + 1,
					"action_total": len(s.Actions),
				})
			}
		}
	}
	return nil
}

// execute maps one recorded action onto the platform adapter.
func (e *Engine) execute(ctx context.Context, a session.Action, speed float64) error {
	switch a.Type {
	case session.ActionMouseMove, session.ActionMouseDown, session.ActionMouseUp,
		session.ActionMouseClick, session.ActionMouseScroll:
		return e.adapter.ExecuteMouseAction(ctx, platform.MouseAction{
			Kind:   mouseKind(a.Type),
			X:      intField(a.Data, "x"),
			Y:      intField(a.Data, "y"),
			Button: strField(a.Data, "button"),
			Delta:  intField(a.Data, "delta"),
		})

	case session.ActionKeyDown, session.ActionKeyUp, session.ActionKeyType:
		return e.adapter.ExecuteKeyboardAction(ctx, platform.KeyboardAction{
			Kind: keyKind(a.Type),
			Key:  strField(a.Data, "key"),
			Text: strField(a.Data, "text"),
		})

	case session.ActionWait:
		return sleepCtx(ctx, time.Duration(a.Duration/speed*float64(time.Second)))

	case session.ActionBrowser:
		// Browser events have no desktop counterpart; replay skips them.
		return nil

	default:
		e.log.Warn("skipping unknown action type", "type", a.Type)
		return nil
	}
}

func (e *Engine) finish(scriptID string, err error) {
	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.state.Running = false
	e.mu.Unlock()

	switch {
	case err == nil:
		e.log.Info("playback completed", "script_id", scriptID)
		e.broker.Publish(EventPlaybackCompleted, map[string]any{"script_id": scriptID})
	case errors.Is(err, context.Canceled):
		e.log.Info("playback stopped", "script_id", scriptID)
		e.broker.Publish(EventPlaybackStopped, map[string]any{"script_id": scriptID})
	default:
		e.log.Error("playback failed", "script_id", scriptID, "error", err)
		e.broker.Publish(EventPlaybackError, map[string]any{
			"script_id": scriptID,
			"error":     err.Error(),
		})
	}
}

// Stop cancels the running playback and waits for the run goroutine to
// exit. Returns ErrNoPlayback if nothing is running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running || e.cancel == nil {
		e.mu.Unlock()
		return ErrNoPlayback
	}
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Status returns a snapshot of playback progress.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setProgress(iteration, index int) {
	e.mu.Lock()
	e.state.Iteration = iteration
	e.state.ActionIndex = index
	e.mu.Unlock()
}

// sleepCtx sleeps for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func mouseKind(t session.ActionType) string {
	switch t {
	case session.ActionMouseMove:
		return "move"
	case session.ActionMouseDown:
		return "down"
	case session.ActionMouseUp:
		return "up"
	case session.ActionMouseClick:
		return "click"
	case session.ActionMouseScroll:
		return "scroll"
	}
	return ""
}

func keyKind(t session.ActionType) string {
	switch t {
	case session.ActionKeyDown:
		return "down"
	case session.ActionKeyUp:
		return "up"
	case session.ActionKeyType:
		return "type"
	}
	return ""
}

// intField reads an int out of a decoded JSON map, accepting the
// float64 that encoding/json produces for numbers.
func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func strField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
