// Package ring implements the fixed-capacity byte queue used throughout
// binlog for TX staging, RX staging, and saved-log memory.
//
// A Ring never blocks and never reports an overflow: policy on overflow
// (drop, wait, or flush) is entirely the caller's, mirroring the runtime's
// own DMA region allocator (internal/dma, internal/reg) where callers are
// trusted to respect the contracts documented on each method.
package ring

// Ring is a fixed-capacity byte queue with a read index r and write index
// w, both always in [0, N). The buffer is kept one slot short of full so
// that r == w is unambiguously "empty" and r != w is unambiguously
// "non-empty".
type Ring struct {
	storage []byte
	n       int
	r, w    int
}

// New wraps storage as a Ring. storage is retained, not copied: callers
// that need the ring's memory to survive a soft reset (see
// binlog.Persistence) must keep storage itself in retained memory.
func New(storage []byte) *Ring {
	rb := &Ring{}
	rb.Init(storage)
	return rb
}

// Init (re)binds the ring to storage and zeroes its indices.
func (rb *Ring) Init(storage []byte) {
	rb.storage = storage
	rb.n = len(storage)
	rb.r = 0
	rb.w = 0
}

// Reset zeroes both indices without touching storage contents.
func (rb *Ring) Reset() {
	rb.r = 0
	rb.w = 0
}

// Cap returns the storage capacity N.
func (rb *Ring) Cap() int {
	return rb.n
}

// ReadIndex returns the current read index r.
func (rb *Ring) ReadIndex() int {
	return rb.r
}

// WriteIndex returns the current write index w.
func (rb *Ring) WriteIndex() int {
	return rb.w
}

// Storage returns the backing slice. Callers must not resize it; it is
// exposed read/write for direct access to the ring's memory
// (binlog.Persistence does not use it; it copies out through Peek/Skip).
func (rb *Ring) Storage() []byte {
	return rb.storage
}

// SetIndices forces the read/write indices. It exists for
// binlog.Persistence's boot-time restore of the surviving indices, and for tests
// that need to set up a specific wrap state; ordinary producers/consumers
// never need it.
func (rb *Ring) SetIndices(r, w int) {
	rb.r = r
	rb.w = w
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// ReadAvail returns the number of bytes available to Read.
func (rb *Ring) ReadAvail() int {
	return mod(rb.w-rb.r, rb.n)
}

// WriteAvail returns the number of bytes available to Write without
// overwriting unread data. One slot is always reserved so readAvail and
// writeAvail unambiguously distinguish empty from full.
func (rb *Ring) WriteAvail() int {
	return mod(rb.r-rb.w-1, rb.n)
}

// Read copies len(p) bytes out, advancing r. The caller guarantees
// len(p) <= ReadAvail(); Read does not check.
func (rb *Ring) Read(p []byte) {
	n := len(p)
	for i := 0; i < n; i++ {
		p[i] = rb.storage[rb.r]
		rb.r = mod(rb.r+1, rb.n)
	}
}

// Peek returns the contiguous readable bytes starting at r, up to the
// lesser of the buffer wrap point and w. It never wraps, so a caller may
// need to call Peek/Skip twice to drain a ring that has data on both
// sides of the wrap. The returned slice aliases Ring storage and is only
// valid until the next mutating call.
func (rb *Ring) Peek() []byte {
	if rb.r == rb.w {
		return rb.storage[rb.r:rb.r]
	}
	if rb.r < rb.w {
		return rb.storage[rb.r:rb.w]
	}
	return rb.storage[rb.r:rb.n]
}

// Skip advances r by n (wrapping), consuming a prior Peek.
func (rb *Ring) Skip(n int) {
	rb.r = mod(rb.r+n, rb.n)
}

// Space returns the contiguous free bytes starting at w, up to the
// buffer wrap point. Symmetric to Peek; len(Space()) <= WriteAvail()
// because at least one slot is always reserved. The returned slice
// aliases Ring storage and is only valid until the next mutating call.
func (rb *Ring) Space() []byte {
	if rb.w < rb.r {
		return rb.storage[rb.w:rb.r]
	}
	if rb.r == 0 {
		// reserve the last slot so w can never catch r from behind
		return rb.storage[rb.w : rb.n-1]
	}
	return rb.storage[rb.w:rb.n]
}

// Commit advances w by n after a direct write into the slice returned by
// Space().
func (rb *Ring) Commit(n int) {
	rb.w = mod(rb.w+n, rb.n)
}

// Write copies len(src) bytes in, advancing w. Overflow policy is the
// caller's: Write does not check WriteAvail and will overwrite unread
// data on wrap. Callers that cannot lose data must call WriteAvail
// first.
func (rb *Ring) Write(src []byte) {
	for _, b := range src {
		rb.storage[rb.w] = b
		rb.w = mod(rb.w+1, rb.n)
	}
}
