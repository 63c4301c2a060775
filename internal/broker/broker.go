// Package broker routes commands to handlers and events to
// subscribers, decoupling the framed transport from the recording and
// playback logic.
//
// Dispatch of a single command is synchronous on the calling
// goroutine; the broker owns no worker pool. Handlers that need
// background work run it on their own goroutines.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"replayd/internal/protocol"
)

// Handler processes one command and returns its response payload.
// Returning an error produces an ERROR response carrying err.Error();
// the error never travels further than the dispatch boundary.
type Handler func(ctx context.Context, msg *protocol.Message) (any, error)

// Middleware wraps command dispatch. The chain runs in registration
// order: the first middleware added is the outermost.
type Middleware func(next Handler) Handler

// Subscriber receives published events.
type Subscriber func(evt Event)

// Event is a fire-and-forget notification published on the broker.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Priority orders subscribers within one event type. High-priority
// subscribers run before normal, normal before low; within a priority
// band, subscription order (FIFO) is preserved.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

type subscription struct {
	id       uint64
	priority Priority
	seq      uint64
	fn       Subscriber
}

// Broker is the in-process command router and event bus. All methods
// are safe for concurrent use; handler and subscriber registration is
// expected to happen at startup, dispatch and publish afterwards.
type Broker struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	middleware  []Middleware
	subscribers map[string][]subscription

	nextSubID  atomic.Uint64
	nextSeq    atomic.Uint64
	dispatched atomic.Uint64
	published  atomic.Uint64

	closed atomic.Bool
	log    *slog.Logger
}

// New creates an empty broker. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		handlers:    make(map[string]Handler),
		subscribers: make(map[string][]subscription),
		log:         log,
	}
}

// RegisterCommand registers the handler for a command name. Exactly
// one handler exists per name; re-registration silently replaces the
// previous handler (last writer wins).
func (b *Broker) RegisterCommand(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// AddMiddleware appends a middleware to the dispatch chain.
func (b *Broker) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// Dispatch validates msg, runs it through the middleware chain into
// its handler, and wraps the result into a Response.
//
// Dispatch never panics and never returns an error to the transport:
// every failure mode (validation, unknown command, handler error,
// handler panic) becomes a well-formed ERROR response. After Shutdown,
// Dispatch returns nil so the transport loop can wind down.
func (b *Broker) Dispatch(ctx context.Context, msg *protocol.Message) *protocol.Response {
	if b.closed.Load() {
		return nil
	}
	b.dispatched.Add(1)

	if msg == nil {
		return protocol.Failure("", protocol.ErrMissingID.Error())
	}
	if err := msg.Validate(); err != nil {
		// Best-effort correlation: the id may be the empty string.
		return protocol.Failure(msg.ID, err.Error())
	}
	if err := protocol.ValidateParams(msg.Command, msg.Params); err != nil {
		return protocol.Failure(msg.ID, err.Error())
	}

	b.mu.RLock()
	handler, ok := b.handlers[msg.Command]
	chain := b.middleware
	b.mu.RUnlock()

	if !ok {
		return protocol.Failuref(msg.ID, "Unknown command: %s", msg.Command)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	data, err := b.invoke(ctx, handler, msg)
	if err != nil {
		b.log.Error("command failed",
			"command", msg.Command,
			"request_id", msg.ID,
			"error", err)
		return protocol.Failure(msg.ID, err.Error())
	}
	return protocol.Success(msg.ID, data)
}

// invoke runs the handler with panic containment. A panicking handler
// must not take down the transport loop.
func (b *Broker) invoke(ctx context.Context, h Handler, msg *protocol.Message) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic",
				"command", msg.Command,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return h(ctx, msg)
}

// Subscribe registers fn for an event type at normal priority and
// returns a token for Unsubscribe.
func (b *Broker) Subscribe(eventType string, fn Subscriber) uint64 {
	return b.SubscribeWithPriority(eventType, fn, PriorityNormal)
}

// SubscribeWithPriority registers fn for an event type with an
// explicit priority.
func (b *Broker) SubscribeWithPriority(eventType string, fn Subscriber, prio Priority) uint64 {
	id := b.nextSubID.Add(1)
	sub := subscription{
		id:       id,
		priority: prio,
		seq:      b.nextSeq.Add(1),
		fn:       fn,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	subs := append(b.subscribers[eventType], sub)
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subscribers[eventType] = subs
	return id
}

// Unsubscribe removes a subscription by its token. Unknown tokens are
// ignored.
func (b *Broker) Unsubscribe(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every subscriber for the event type synchronously on
// the calling goroutine, in priority-then-FIFO order. A panicking
// subscriber is logged and skipped; it does not block the rest. After
// Shutdown, Publish is a no-op.
func (b *Broker) Publish(eventType string, data any) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	evt := Event{Type: eventType, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	subs := b.subscribers[eventType]
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub, evt)
	}
}

func (b *Broker) deliver(sub subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("subscriber panic",
				"event", evt.Type,
				"subscription", sub.id,
				"panic", r)
		}
	}()
	sub.fn(evt)
}

// Shutdown turns Dispatch and Publish into no-ops. Idempotent.
func (b *Broker) Shutdown() {
	b.closed.Store(true)
}

// Closed reports whether Shutdown has been called.
func (b *Broker) Closed() bool {
	return b.closed.Load()
}

// Stats is a point-in-time snapshot of broker activity, surfaced by
// GET_STATUS.
type Stats struct {
	Commands    []string `json:"commands"`
	Subscribers int      `json:"subscribers"`
	Dispatched  uint64   `json:"dispatched"`
	Published   uint64   `json:"published"`
	Closed      bool     `json:"closed"`
}

// Stats returns a snapshot of registered commands and counters.
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	commands := make([]string, 0, len(b.handlers))
	for name := range b.handlers {
		commands = append(commands, name)
	}
	sort.Strings(commands)

	total := 0
	for _, subs := range b.subscribers {
		total += len(subs)
	}

	return Stats{
		Commands:    commands,
		Subscribers: total,
		Dispatched:  b.dispatched.Load(),
		Published:   b.published.Load(),
		Closed:      b.closed.Load(),
	}
}
