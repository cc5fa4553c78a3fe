package link

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// PipeLink is an in-memory Link, backed by an io.Pipe in each
// direction, intended for unit tests and the "sim" demo where a
// simulated device and host run in the same process.
type PipeLink struct {
	w   io.Writer
	r   io.Reader
	log *zap.Logger

	mu        sync.Mutex
	scheduled int
}

// NewPipePair returns two PipeLinks wired to each other: writes on one
// side become reads on the other.
func NewPipePair(logger *zap.Logger) (a, b *PipeLink) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	a = &PipeLink{w: bw, r: ar, log: logger.Named("link.a")}
	b = &PipeLink{w: aw, r: br, log: logger.Named("link.b")}
	return a, b
}

// Write stages p by writing it directly to the peer's read side. An
// io.Pipe write blocks until a reader is ready, which models a link
// with no internal buffering — backpressure lands on the caller, same
// as a real UART with a full shift register.
func (l *PipeLink) Write(ctx context.Context, p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := l.w.Write(p)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}

// Schedule records that a drain was requested. PipeLink's Write is
// synchronous, so there is nothing to kick; the counter exists so
// tests can assert a caller actually invoked Schedule rather than
// bypassing the link.
func (l *PipeLink) Schedule() {
	l.mu.Lock()
	l.scheduled++
	l.mu.Unlock()
}

// Scheduled returns how many times Schedule has been called.
func (l *PipeLink) Scheduled() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.scheduled
}

// Read blocks until the peer writes or ctx is done.
func (l *PipeLink) Read(ctx context.Context, p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := l.r.Read(p)
		done <- result{n, err}
	}()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-done:
		return r.n, r.err
	}
}
