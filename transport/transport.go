// Package transport drives the duplex byte stream (stdio pipe or TTY) that
// carries the framed protocol: a single reader feeding decoded frames to a
// handler, and a serialized writer guaranteeing at most one frame is ever
// in flight on the wire at a time.
package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/buildconf/server/frame"
)

// FrameHandler is invoked once per decoded inbound frame. It is always
// called from the same goroutine that runs Transport.Run, in frame arrival
// order, and the next frame is not read until the handler returns — this
// is the cooperative, one-handler-at-a-time scheduling model in §5 of the
// specification: a handler may block synchronously (e.g. on a long-running
// configure/compute call) and that is an accepted trade-off, not a bug.
type FrameHandler func(payload []byte)

// Transport owns the inbound and outbound halves of the duplex stream and
// serializes outbound frames behind a single-slot write gate.
type Transport struct {
	dec *frame.Decoder
	enc *frame.Encoder

	log *slog.Logger

	outbox    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Transport reading frames from r and writing frames to w.
// log may be nil, in which case writes are silently dropped from logging.
func New(r io.Reader, w io.Writer, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		dec:    frame.NewDecoder(r),
		enc:    frame.NewEncoder(w),
		log:    log,
		outbox: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

// Send enqueues an outbound frame payload. It is safe to call concurrently
// (the file-change notifier pushes "signal" frames from its own goroutine
// while the read loop may be pushing a reply) — the writer goroutine drains
// the queue one frame at a time, which is the single-slot gate described in
// §4.B: a second frame is never written before the previous write
// completes.
func (t *Transport) Send(payload []byte) {
	select {
	case t.outbox <- payload:
	case <-t.closed:
		t.log.Warn("dropped outbound frame after transport closed")
	}
}

// Run starts the writer goroutine and then drives the read loop, calling
// handle once per decoded frame, until the stream hits EOF or a fatal I/O
// error. It returns nil on a clean stdin EOF and a non-nil error otherwise,
// per the CLI exit-code contract in §6.2.
func (t *Transport) Run(ctx context.Context, handle FrameHandler) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.runWriter()
	}()

	readErr := t.runReader(ctx, handle)

	t.closeOnce.Do(func() { close(t.closed) })
	wg.Wait()

	if readErr == io.EOF {
		return nil
	}
	return readErr
}

func (t *Transport) runReader(ctx context.Context, handle FrameHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		payload, err := t.dec.Next()
		if err != nil {
			return err
		}
		handle(payload)
	}
}

func (t *Transport) runWriter() {
	for {
		select {
		case payload, ok := <-t.outbox:
			if !ok {
				return
			}
			if err := t.enc.Encode(payload); err != nil {
				t.log.Error("frame write failed", "error", err)
			}
		case <-t.closed:
			// Drain whatever is already queued so replies for requests
			// already processed still reach the client before shutdown.
			for {
				select {
				case payload := <-t.outbox:
					if err := t.enc.Encode(payload); err != nil {
						t.log.Error("frame write failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}
