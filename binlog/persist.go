package binlog

import (
	"github.com/tamago-contrib/binlog/apphash"
	"github.com/tamago-contrib/binlog/ring"
)

// Persistence implements the optional crash-log carryover described in
// spec.md §4.7. It is handed the TX ring's own storage slice (so it can
// read whatever survived a soft reset before the ring is reinitialised)
// and a saved-log region of the same size. In a real bare-metal build
// both slices would live in memory marked no-initialise-at-boot; this
// package has no opinion on how that memory is obtained, only on the
// validity check and copy policy run over it.
type Persistence struct {
	expectedN int
	savedLog  []byte
	savedHash [apphash.Size]byte
}

// NewPersistence wires a Persistence over a saved-log region sized to
// match txRing's capacity.
func NewPersistence(savedLogRegion []byte) *Persistence {
	return &Persistence{expectedN: len(savedLogRegion), savedLog: savedLogRegion}
}

// Recover runs the boot-time validity check against txRing's current
// (pre-reset) indices and the previously stored hash, and if valid,
// copies the ring's contents (wrap-aware) into the saved-log region
// before resetting txRing. storedR/storedW are the ring indices as
// they were found at boot (read from the no-init ring before any
// Init/Reset call); storedHash is the hash found alongside them.
//
// If the ring was empty but otherwise valid (storedR == storedW), this
// deliberately advances storedR by one before copying, so a clean
// reboot still yields a full ring's worth of saved bytes at the cost of
// one byte of head corruption — this is spec.md §4.7's documented
// behaviour, not a bug.
func (p *Persistence) Recover(txRing *ring.Ring, storedR, storedW int, storedHash [apphash.Size]byte, currentHash [apphash.Size]byte) bool {
	n := txRing.Cap()
	if storedR < 0 || storedR >= n || storedW < 0 || storedW >= n {
		return false
	}
	if n != p.expectedN {
		return false
	}
	if storedHash != currentHash {
		return false
	}

	r := storedR
	if r == storedW {
		r = mod1(r+1, n)
	}

	txRing.SetIndices(r, storedW)
	copyRingOut(txRing, p.savedLog)
	txRing.Reset()

	p.savedHash = currentHash
	return true
}

func mod1(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// copyRingOut drains everything currently readable in src into dst
// (which must be at least src.Cap() long), wrap-aware via two Peek/Skip
// passes at most.
func copyRingOut(src *ring.Ring, dst []byte) {
	off := 0
	for src.ReadAvail() > 0 {
		chunk := src.Peek()
		if len(chunk) == 0 {
			break
		}
		n := copy(dst[off:], chunk)
		src.Skip(n)
		off += n
	}
}

// SavedLog returns the read-only saved-log span from the most recent
// successful Recover (spec.md §6's savedLog() accessor).
func (p *Persistence) SavedLog() []byte {
	return p.savedLog
}

// SavedAppHash returns the hash recorded alongside the saved log
// (spec.md §6's savedAppHash() accessor).
func (p *Persistence) SavedAppHash() [apphash.Size]byte {
	return p.savedHash
}
