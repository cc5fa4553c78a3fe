package binlog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tamago-contrib/binlog/frame"
	"github.com/tamago-contrib/binlog/link"
	"github.com/tamago-contrib/binlog/ring"
)

// frameType is the fixed 2-bit "this is a log-protocol frame" marker
// every port header carries, distinguishing it from any other framing a
// shared link might someday multiplex (spec.md §4.5/§6).
const frameType = 0b11

// Transport multiplexes port payloads onto a single TX ring and a
// Link. It owns the ring outright: producers (Emitter, or any direct
// caller of EmitPort) append framed bytes and ask the transport to
// schedule a drain; the link's own DMA completion is modeled here as a
// synchronous drain loop guarded against concurrent re-entry, which is
// the idiomatic Go reading of "tx_schedule must be idempotent" when the
// link has no asynchronous completion callback of its own (see
// DESIGN.md).
type Transport struct {
	mu        sync.Mutex
	ring      *ring.Ring
	link      link.Link
	suspended bool
	draining  bool
	onResume  func()
	log       *zap.Logger
}

// NewTransport wraps txRing and lk. logger may be nil.
func NewTransport(txRing *ring.Ring, lk link.Link, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{ring: txRing, link: lk, log: logger}
}

// SetOnResume installs the callback invoked after Resume flips the
// suspended flag (the Emitter uses this to send the app-hash beacon).
func (t *Transport) SetOnResume(f func()) {
	t.mu.Lock()
	t.onResume = f
	t.mu.Unlock()
}

// TxAvail reports the TX ring's available write capacity.
func (t *Transport) TxAvail() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ring.WriteAvail()
}

// Suspended reports whether TX scheduling is currently gated off.
func (t *Transport) Suspended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspended
}

// Suspend gates off link scheduling; queued bytes remain queued.
func (t *Transport) Suspend() {
	t.mu.Lock()
	t.suspended = true
	t.mu.Unlock()
}

// Resume ungates scheduling, invokes the onResume hook, and kicks a
// drain of anything queued while suspended.
func (t *Transport) Resume() {
	t.mu.Lock()
	t.suspended = false
	cb := t.onResume
	t.mu.Unlock()
	if cb != nil {
		cb()
	}
	t.Schedule()
}

// EmitPort frames payload for port and appends it to the TX ring. If
// flushWait is true and the ring lacks room, EmitPort blocks (polling)
// until room frees up or ctx is done, matching the "port 0: flush-wait"
// backpressure policy of spec.md §4.5; otherwise it returns
// ErrBufferFull immediately.
func (t *Transport) EmitPort(ctx context.Context, port int, payload []byte, flushWait bool) error {
	if port < 0 || port > MaxPort {
		return ErrInvalidPort
	}
	header := byte(port<<2) | frameType
	raw := make([]byte, 0, len(payload)+1)
	raw = append(raw, header)
	raw = append(raw, payload...)
	framed := frame.Encode(raw)

	for {
		t.mu.Lock()
		if t.ring.WriteAvail() >= len(framed) {
			t.ring.Write(framed)
			t.mu.Unlock()
			break
		}
		t.mu.Unlock()
		if !flushWait {
			return ErrBufferFull
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}

	if !t.Suspended() {
		// spec.md §4.5: "when bytes are appended the link's tx_schedule()
		// is called — but only while TX is not suspended." The link gets
		// the notification; Transport.Schedule is what actually drains
		// the ring (see its own doc comment for why that isn't the same
		// call).
		t.link.Schedule()
		t.Schedule()
	}
	return nil
}

// Schedule drains the TX ring into the link. It is idempotent: a
// concurrent or suspended call returns immediately, the bytes are
// picked up by whichever drain is already running (or the next
// Schedule call once resumed).
func (t *Transport) Schedule() {
	t.mu.Lock()
	if t.suspended || t.draining {
		t.mu.Unlock()
		return
	}
	t.draining = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.draining = false
		t.mu.Unlock()
	}()

	for {
		t.mu.Lock()
		chunk := t.ring.Peek()
		if t.suspended || len(chunk) == 0 {
			// release the drain under the same lock that saw the ring
			// empty (or TX suspended), so a producer or Resume arriving
			// after this point finds draining false and drains itself
			t.draining = false
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		n, err := t.link.Write(context.Background(), chunk)
		if err != nil {
			t.log.Warn("binlog: link write failed", zap.Error(err))
			return
		}
		if n == 0 {
			return
		}
		t.mu.Lock()
		t.ring.Skip(n)
		t.mu.Unlock()
	}
}
