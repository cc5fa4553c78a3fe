// Package apphash abstracts the "current application content hash"
// that spec.md's CrashPersistence and device-info beacon both need: a
// fixed-length identity fingerprint of the running firmware image,
// normally produced by a build-system embedding step (out of scope per
// spec.md §1) rather than computed at runtime.
package apphash

// Size is the fixed fingerprint length (spec.md's LOG_APP_HASH_SIZE
// default).
const Size = 64

// Source supplies the current application hash.
type Source interface {
	Hash() [Size]byte
}

// Static is a Source that always returns a fixed value, the shape a
// build system would plug in after computing the hash once.
type Static struct {
	value [Size]byte
}

// NewStatic wraps value as a Source. value is truncated or
// zero-padded to Size if it is the wrong length.
func NewStatic(value []byte) Static {
	var s Static
	copy(s.value[:], value)
	return s
}

// Hash returns the fixed value.
func (s Static) Hash() [Size]byte {
	return s.value
}
