package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize is the sanity bound on a declared payload length.
// Chrome caps native messaging payloads at 1 MiB in the
// host-to-browser direction, so anything larger is a protocol error.
const MaxFrameSize = 1 << 20

// Framing errors. ErrFrameTooLarge and ErrEmptyFrame indicate a
// corrupt or hostile length header; the stream framing can no longer
// be trusted once either is seen.
var (
	ErrFrameTooLarge = errors.New("declared frame length exceeds limit")
	ErrEmptyFrame    = errors.New("declared frame length is zero")
)

// ReadFrame reads one length-prefixed frame from r.
//
// A clean stream close before the 4-byte header returns io.EOF. A
// stream that ends mid-header or mid-payload returns
// io.ErrUnexpectedEOF. The returned payload is exactly the declared
// length; nothing is read past it.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > MaxFrameSize {
		// Do not attempt the allocation; a hostile header could
		// declare up to 4 GiB.
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// FrameWriter serializes frames onto a stream. Writes are buffered and
// flushed per frame, and serialized with a mutex so event frames and
// responses from different goroutines never interleave.
type FrameWriter struct {
	mu sync.Mutex
	bw *bufio.Writer
}

// NewFrameWriter wraps w for frame output.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{bw: bufio.NewWriter(w)}
}

// WriteFrame writes one length-prefixed frame and flushes it. An
// unflushed partial frame would stall the peer's reader, so the flush
// is part of the write, not the caller's job.
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := fw.bw.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := fw.bw.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	if err := fw.bw.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// WriteValue encodes v as JSON and writes it as one frame.
func (fw *FrameWriter) WriteValue(v any) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	return fw.WriteFrame(payload)
}
