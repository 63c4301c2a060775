package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"replayd/internal/protocol"
)

// Client errors.
var (
	ErrTimeout      = errors.New("request timed out")
	ErrClientClosed = errors.New("client closed")
)

// DefaultRequestTimeout bounds Call when the context carries no
// deadline of its own.
const DefaultRequestTimeout = 10 * time.Second

// Client is the requester side of the framed protocol. It correlates
// responses to in-flight requests by id and surfaces unsolicited EVENT
// frames on a separate channel.
type Client struct {
	fw      *protocol.FrameWriter
	timeout time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	closed  bool

	events chan *protocol.Response
	done   chan struct{}
}

// NewClient creates a client over the given stream and starts its read
// loop. timeout <= 0 selects DefaultRequestTimeout.
func NewClient(r io.Reader, w io.Writer, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		fw:      protocol.NewFrameWriter(w),
		timeout: timeout,
		log:     log,
		pending: make(map[string]chan *protocol.Response),
		events:  make(chan *protocol.Response, 64),
		done:    make(chan struct{}),
	}
	go c.readLoop(r)
	return c
}

// Call sends a command and waits for its response. The timeout error
// is ErrTimeout, distinct from transport failures, so callers can tell
// a slow host from a dead one.
func (c *Client) Call(ctx context.Context, command string, params map[string]any) (*protocol.Response, error) {
	id := uuid.NewString()
	ch := make(chan *protocol.Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := &protocol.Message{
		ID:        id,
		Command:   command,
		Params:    params,
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
	}
	if err := c.fw.WriteValue(msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", command, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, command, c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// Events delivers unsolicited EVENT frames. The channel is buffered;
// when the buffer is full further events are dropped rather than
// stalling the read loop.
func (c *Client) Events() <-chan *protocol.Response {
	return c.events
}

// Close stops the client. In-flight calls fail with ErrClientClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *Client) readLoop(r io.Reader) {
	for {
		payload, err := protocol.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Warn("client read loop ended", "error", err)
			}
			c.Close()
			return
		}

		resp, err := protocol.DecodeResponse(payload)
		if err != nil {
			c.log.Warn("dropping undecodable response frame", "error", err)
			continue
		}

		if resp.Status == protocol.StatusEvent {
			select {
			case c.events <- resp:
			default:
				c.log.Warn("event buffer full, dropping event")
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// Late or misaddressed response. The request it answers
			// has already failed with its own error.
			c.log.Warn("dropping response with unknown id", "id", resp.ID)
			continue
		}
		select {
		case ch <- resp:
		default:
			// A duplicate answer for an id that was already served.
			// Dropping it keeps the read loop alive for other calls.
			c.log.Warn("dropping duplicate response", "id", resp.ID)
		}
	}
}
