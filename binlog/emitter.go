package binlog

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tamago-contrib/binlog/apphash"
	"github.com/tamago-contrib/binlog/item"
)

// Emitter is the application-facing logging API: Emit0/EmitN/EmitMem
// build a record into a bounded scratch buffer and forward it to a
// Transport on port 0; EmitRaw forwards an arbitrary payload to an
// arbitrary port; SuspendTx/ResumeTx gate the transport's scheduling
// and, on resume, send the app-hash beacon.
type Emitter struct {
	cfg     Config
	tx      *Transport
	hash    apphash.Source
	board   string
	log     *zap.Logger
	panicFn func(error)

	mu  sync.Mutex
	buf []byte
}

// NewEmitter wires an Emitter to tx. hash supplies the fingerprint for
// the resume beacon and the device-info handshake; board is the text
// identifier sent in that same handshake. logger may be nil.
func NewEmitter(cfg Config, tx *Transport, hash apphash.Source, board string, logger *zap.Logger) *Emitter {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Emitter{
		cfg:     cfg,
		tx:      tx,
		hash:    hash,
		board:   board,
		log:     logger,
		panicFn: func(err error) { panic(err) },
		buf:     make([]byte, 0, cfg.RecordBudget),
	}
	tx.SetOnResume(e.emitBeacon)
	return e
}

// SetPanic overrides the hook EmitFatal invokes after flushing. The
// default panics.
func (e *Emitter) SetPanic(f func(error)) {
	e.mu.Lock()
	e.panicFn = f
	e.mu.Unlock()
}

// scratch resets and returns the shared build buffer, already holding
// the packed prefix header.
func (e *Emitter) scratch(kind byte, prefixID uint32) []byte {
	e.buf = e.buf[:0]
	hdr := packPrefixHeader(kind, prefixID)
	e.buf = append(e.buf, hdr[:]...)
	return e.buf
}

// truncateToBudget cuts buf at RecordBudget if it overflowed. Only Emit0
// uses it; EmitN and EmitMem clip to RecordBudget themselves while they
// build, and EmitN may cut its last slot mid-way.
func (e *Emitter) truncateToBudget(buf []byte) []byte {
	if len(buf) > e.cfg.RecordBudget {
		return buf[:e.cfg.RecordBudget]
	}
	return buf
}

// Emit0 emits a no-argument record identified by prefixID.
func (e *Emitter) Emit0(ctx context.Context, prefixID uint32) error {
	e.mu.Lock()
	buf := e.truncateToBudget(e.scratch(recordKindFormatted, prefixID))
	out := append([]byte(nil), buf...)
	e.mu.Unlock()
	return e.tx.EmitPort(ctx, PortLog, out, true)
}

// EmitN emits a formatted record with typed argument slots, identified
// by prefixID. Each arg is encoded to its fixed-width tagged slot per
// spec.md §3's Record table (encodeSlot maps Go's own runtime type
// information onto the tag a compile-time type_tags string would have
// picked, spec.md §4.4); an arg whose slot would overflow RecordBudget
// truncates the whole record at that slot, possibly mid-slot, the same
// as spec.md's "truncated at the argument that overflows."
func (e *Emitter) EmitN(ctx context.Context, prefixID uint32, args ...any) error {
	e.mu.Lock()
	buf := e.scratch(recordKindFormatted, prefixID)
	for _, a := range args {
		tag, payload, err := encodeSlot(a)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		slot := append([]byte{tag}, payload...)
		if len(buf)+len(slot) > e.cfg.RecordBudget {
			room := e.cfg.RecordBudget - len(buf)
			if room < 0 {
				room = 0
			}
			buf = append(buf, slot[:room]...)
			break
		}
		buf = append(buf, slot...)
	}
	out := append([]byte(nil), buf...)
	e.mu.Unlock()
	return e.tx.EmitPort(ctx, PortLog, out, true)
}

// EmitMem emits a memory-dump record: prefixID, srcAddr (the device
// address the dump was read from), then up to MaxMemDumpBytes raw
// bytes of src, truncated to whatever fits within both that cap and
// RecordBudget (spec.md §3: "descriptor pointer (4 bytes), source
// address (4 bytes), then up to 89 raw bytes").
func (e *Emitter) EmitMem(ctx context.Context, prefixID uint32, srcAddr uint32, src []byte) error {
	e.mu.Lock()
	buf := e.scratch(recordKindMemDump, prefixID)
	buf = append(buf, le32(srcAddr)...)
	room := e.cfg.RecordBudget - len(buf)
	if room < 0 {
		room = 0
	}
	if room > MaxMemDumpBytes {
		room = MaxMemDumpBytes
	}
	if len(src) > room {
		src = src[:room]
	}
	buf = append(buf, src...)
	out := append([]byte(nil), buf...)
	e.mu.Unlock()
	return e.tx.EmitPort(ctx, PortLog, out, true)
}

// EmitRaw forwards payload to port verbatim, bypassing the record
// build buffer entirely.
func (e *Emitter) EmitRaw(ctx context.Context, port int, payload []byte) error {
	if len(payload) > e.cfg.MaxPacketSize {
		return ErrPayloadTooLarge
	}
	return e.tx.EmitPort(ctx, port, payload, port == PortLog)
}

// SuspendTx gates transport scheduling off.
func (e *Emitter) SuspendTx() {
	e.tx.Suspend()
}

// ResumeTx gates transport scheduling back on and sends the app-hash
// beacon.
func (e *Emitter) ResumeTx() {
	e.tx.Resume()
}

// SendDeviceInfo sends the port-62 handshake: a map with the required
// app_hash and board keys. Callers wire this to the server's
// first-inbound-frame hook (spec.md §6: "sent automatically after the
// link detects a ready host and at least one RX frame has arrived").
func (e *Emitter) SendDeviceInfo(ctx context.Context) error {
	h := e.hash.Hash()
	w := item.NewWriter()
	w.WriteMap(2)
	w.WriteText("app_hash")
	w.WriteBytes(h[:])
	w.WriteText("board")
	w.WriteText(e.board)
	return e.tx.EmitPort(ctx, PortDeviceInfo, w.Bytes(), true)
}

func (e *Emitter) emitBeacon() {
	h := e.hash.Hash()
	if err := e.tx.EmitPort(context.Background(), PortAppHashBeacon, h[:], false); err != nil {
		e.log.Warn("binlog: failed to send resume beacon", zap.Error(err))
	}
}

// EmitFatal is the terminal variant: it emits src on port 0 with the
// flush-wait policy (waiting for ring room rather than failing on a full
// ring), which drains it to the link synchronously while TX is not
// suspended, then invokes the configured panic hook. With the default
// hook it never returns normally; if a hook installed with SetPanic
// returns, EmitFatal returns too.
func (e *Emitter) EmitFatal(err error, src []byte) {
	e.mu.Lock()
	fn := e.panicFn
	e.mu.Unlock()

	if len(src) > 0 {
		_ = e.tx.EmitPort(context.Background(), PortLog, src, true)
	}
	fn(err)
}
