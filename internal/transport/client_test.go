package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"replayd/internal/protocol"
)

// =============================================================================
// Helper functions
// =============================================================================

// fakeHost answers frames on the far side of the client's pipes.
type fakeHost struct {
	in *io.PipeReader
	fw *protocol.FrameWriter
}

// startClient wires a client to a fake host. answer is invoked for
// every request; returning nil sends nothing back.
func startClient(t *testing.T, timeout time.Duration, answer func(*protocol.Message) *protocol.Response) (*Client, *fakeHost) {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	fh := &fakeHost{in: reqR, fw: protocol.NewFrameWriter(respW)}
	go func() {
		for {
			payload, err := protocol.ReadFrame(reqR)
			if err != nil {
				return
			}
			msg, err := protocol.DecodeMessage(payload)
			if err != nil {
				continue
			}
			if resp := answer(msg); resp != nil {
				fh.fw.WriteValue(resp)
			}
		}
	}()

	c := NewClient(respR, reqW, timeout, nil)
	t.Cleanup(func() {
		c.Close()
		reqW.Close()
		respW.Close()
	})
	return c, fh
}

// =============================================================================
// Tests for Call
// =============================================================================

func TestCallRoundTrip(t *testing.T) {
	c, _ := startClient(t, time.Second, func(m *protocol.Message) *protocol.Response {
		return protocol.Success(m.ID, map[string]any{"echo": m.Command})
	})

	resp, err := c.Call(context.Background(), "PING", nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("status = %q", resp.Status)
	}
	data, _ := resp.Data.(map[string]any)
	if data["echo"] != "PING" {
		t.Errorf("data = %v", data)
	}
}

func TestCallTimeoutIsDistinct(t *testing.T) {
	c, _ := startClient(t, 50*time.Millisecond, func(m *protocol.Message) *protocol.Response {
		return nil // never answer
	})

	_, err := c.Call(context.Background(), "SLOW", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestCallDropsMismatchedID(t *testing.T) {
	c, _ := startClient(t, 100*time.Millisecond, func(m *protocol.Message) *protocol.Response {
		// Answer with a wrong correlation id; the request must time
		// out rather than accept a frame addressed to nobody.
		return protocol.Success("some-other-id", nil)
	})

	_, err := c.Call(context.Background(), "X", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout after dropping mismatched frame", err)
	}
}

func TestCallHonorsContext(t *testing.T) {
	c, _ := startClient(t, 10*time.Second, func(m *protocol.Message) *protocol.Response {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, "X", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}

func TestCallAfterClose(t *testing.T) {
	c, _ := startClient(t, time.Second, func(m *protocol.Message) *protocol.Response {
		return protocol.Success(m.ID, nil)
	})
	c.Close()

	_, err := c.Call(context.Background(), "X", nil)
	if !errors.Is(err, ErrClientClosed) {
		t.Fatalf("err = %v, want ErrClientClosed", err)
	}
}

func TestDuplicateResponseDoesNotStallReadLoop(t *testing.T) {
	// A misbehaving host answers every request twice. The waiter buffer
	// holds one response, so the duplicate has nowhere to go and must
	// be dropped, leaving the read loop alive for later calls.
	var fh *fakeHost
	c, h := startClient(t, time.Second, func(m *protocol.Message) *protocol.Response {
		fh.fw.WriteValue(protocol.Success(m.ID, nil))
		return protocol.Success(m.ID, nil)
	})
	fh = h

	if _, err := c.Call(context.Background(), "FIRST", nil); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := c.Call(context.Background(), "SECOND", nil); err != nil {
		t.Fatalf("read loop stalled after a duplicate response: %v", err)
	}
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	c, _ := startClient(t, 2*time.Second, func(m *protocol.Message) *protocol.Response {
		return protocol.Success(m.ID, map[string]any{"cmd": m.Command})
	})

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			cmd := string(rune('A' + i))
			resp, err := c.Call(context.Background(), cmd, nil)
			if err != nil {
				errs <- err
				return
			}
			data, _ := resp.Data.(map[string]any)
			if data["cmd"] != cmd {
				errs <- errors.New("response correlated to the wrong request")
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}

// =============================================================================
// Tests for event frames
// =============================================================================

func TestEventDelivery(t *testing.T) {
	var fh *fakeHost
	c, h := startClient(t, time.Second, func(m *protocol.Message) *protocol.Response {
		// Interleave an event before the response.
		fh.fw.WriteValue(protocol.EventFrame("recording.started", map[string]any{"session_id": "s"}))
		return protocol.Success(m.ID, nil)
	})
	fh = h

	if _, err := c.Call(context.Background(), "SUBSCRIBE_EVENTS", nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	select {
	case evt := <-c.Events():
		if evt.Status != protocol.StatusEvent {
			t.Errorf("status = %q, want EVENT", evt.Status)
		}
		data, _ := evt.Data.(map[string]any)
		if data["type"] != "recording.started" {
			t.Errorf("event type = %v", data["type"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}
