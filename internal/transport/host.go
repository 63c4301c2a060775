// Package transport moves framed protocol messages over stdio.
//
// The Host side is what the browser launches: it reads command frames
// from stdin, dispatches them on the broker, and writes response
// frames to stdout. The Client side is what replayctl uses to talk to
// a spawned host.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"replayd/internal/broker"
	"replayd/internal/protocol"
)

// Host runs the request loop of a native-messaging host.
//
// Frames are processed strictly in arrival order, so responses leave in
// the same order the requests came in. Unsolicited event frames may
// interleave between responses; clients demultiplex on the Status
// field. All writing happens on the Run goroutine: broker subscribers
// only enqueue, so publishing an event never does pipe I/O on the
// publisher's thread.
type Host struct {
	r      io.Reader
	fw     *protocol.FrameWriter
	broker *broker.Broker
	log    *slog.Logger

	forwarding atomic.Bool
	events     chan *protocol.Response
}

// NewHost creates a host reading from r and writing frames to w.
func NewHost(r io.Reader, w io.Writer, bkr *broker.Broker, log *slog.Logger) *Host {
	if log == nil {
		log = slog.Default()
	}
	return &Host{
		r:      r,
		fw:     protocol.NewFrameWriter(w),
		broker: bkr,
		log:    log,
		events: make(chan *protocol.Response, 64),
	}
}

// ForwardEvents subscribes the host to the given broker event types.
// Matching events are queued for delivery as EVENT frames whenever
// forwarding is enabled (see SetForwarding); the queue is drained by
// Run. When the queue is full further events are dropped rather than
// stalling the publisher, which may be the capture hook thread. Call
// before Run.
func (h *Host) ForwardEvents(eventTypes ...string) {
	for _, et := range eventTypes {
		h.broker.Subscribe(et, func(evt broker.Event) {
			if !h.forwarding.Load() {
				return
			}
			select {
			case h.events <- protocol.EventFrame(evt.Type, evt.Data):
			default:
				h.log.Warn("event queue full, dropping event", "event", evt.Type)
			}
		})
	}
}

// SetForwarding turns unsolicited event frames on or off. Off is the
// default so a client that never subscribed sees only responses.
func (h *Host) SetForwarding(enabled bool) {
	h.forwarding.Store(enabled)
}

// Forwarding reports whether event frames are being sent.
func (h *Host) Forwarding() bool {
	return h.forwarding.Load()
}

// inbound is one read-loop result: a frame payload or the error that
// ended reading.
type inbound struct {
	payload []byte
	err     error
}

// Run services the connection until the peer closes the stream, a
// fatal transport error occurs, or ctx is canceled. A clean close (EOF
// at a frame boundary) returns nil; cancellation returns ctx.Err().
//
// A frame that decodes to invalid JSON is logged and dropped; framing
// itself is never resynchronized after a bad length prefix, so framing
// errors are fatal.
//
// Frames are read on a separate goroutine so cancellation takes effect
// even while a read is blocked mid-frame. After cancellation that
// goroutine exits on the next frame or stream close.
func (h *Host) Run(ctx context.Context) error {
	frames := make(chan inbound)
	go func() {
		for {
			payload, err := protocol.ReadFrame(h.r)
			select {
			case frames <- inbound{payload: payload, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-h.events:
			if err := h.fw.WriteValue(evt); err != nil {
				h.log.Warn("write event frame", "error", err)
			}

		case in := <-frames:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					h.log.Info("peer closed the message stream")
					return nil
				}
				return fmt.Errorf("read frame: %w", in.err)
			}

			msg, err := protocol.DecodeMessage(in.payload)
			if err != nil {
				h.log.Warn("dropping undecodable frame", "error", err, "bytes", len(in.payload))
				continue
			}

			resp := h.broker.Dispatch(ctx, msg)
			if resp == nil {
				// Broker is shut down; nothing more will be answered.
				return nil
			}
			if err := h.fw.WriteValue(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
		}
	}
}
