package binlog

import (
	"encoding/binary"
	"math"

	"github.com/tamago-contrib/binlog/internal/bits"
)

// Record kinds occupy the low two bits of a port-0 payload's first
// byte (spec.md §3 "Record"): 0 is a formatted record (Emit0/EmitN
// both produce this kind; the difference is whether any typed slots
// follow the header), 1 is a memory-dump record (EmitMem). The
// app-hash beacon on port 63 is not a Record at all — it is the raw
// hash bytes, framed like any other port payload — so it does not
// occupy this kind space.
const (
	recordKindFormatted = 0
	recordKindMemDump   = 1
)

// Exported mirrors of the record kind constants, for callers outside
// the package (binlogctl's decode/sim commands) that need to dispatch
// on a decoded header's kind without duplicating the bit layout.
const (
	RecordKindFormatted = recordKindFormatted
	RecordKindMemDump   = recordKindMemDump
)

// MaxMemDumpBytes is the "up to 89 raw bytes" cap spec.md §3 places on
// a memory-dump record's payload, after its 8-byte descriptor-pointer +
// source-address header.
const MaxMemDumpBytes = 89

// Slot tag values for a formatted record's typed-slot sequence
// (spec.md §3's Record table / §4.4's type_tags characters '0'..'5').
const (
	slotInt32    = 0
	slotInt64    = 1
	slotFloat64  = 2
	slotFloat128 = 3
	slotText     = 4
	slotPointer  = 5
)

// Exported mirrors of the slot tag constants, for callers outside the
// package that need to switch on a decoded Slot.Tag.
const (
	SlotInt32    = slotInt32
	SlotInt64    = slotInt64
	SlotFloat64  = slotFloat64
	SlotFloat128 = slotFloat128
	SlotText     = slotText
	SlotPointer  = slotPointer
)

// Pointer is an opaque 4-byte device-side reference (spec.md §3 tag 5:
// "4-byte little-endian pointer, opaque to device"). Go has no raw
// address to hand the wire format, so callers that want to emit a
// pointer-tagged slot wrap the value explicitly.
type Pointer uint32

// ExtFloat is the raw 16-byte payload of spec.md §3 tag 3 ("16-byte
// extended-precision float"). Go has no native extended-precision
// float type, so this is carried as its already-encoded wire bytes;
// callers that need this slot kind are responsible for producing them
// (e.g. from a C ABI long double via cgo, or a fixed test vector).
type ExtFloat [16]byte

// packPrefixHeader builds the 4-byte record header: byte 0 carries the
// record kind in its low two bits and the prefix ID's bits [2:8) in its
// top six; bytes 1-3 carry the prefix ID's bits [8:32) little-endian.
// This assumes prefixID's bottom two bits are caller-reserved (always
// zero), the same word-alignment trick spec.md's firmware uses to steal
// two bits from a 4-byte-aligned pointer without losing precision.
func packPrefixHeader(kind byte, prefixID uint32) [4]byte {
	var out [4]byte
	lsbs := byte((prefixID >> 2) & 0x3F)
	out[0] = bits.SetN(0, 0, 0x3, kind)
	out[0] = bits.SetN(out[0], 2, 0x3F, lsbs)
	rest := prefixID >> 8
	out[1] = byte(rest)
	out[2] = byte(rest >> 8)
	out[3] = byte(rest >> 16)
	return out
}

// unpackPrefixHeader reverses packPrefixHeader.
func unpackPrefixHeader(h [4]byte) (kind byte, prefixID uint32) {
	kind = bits.Get(h[0], 0, 0x3)
	lsbs := uint32(bits.Get(h[0], 2, 0x3F))
	rest := uint32(h[1]) | uint32(h[2])<<8 | uint32(h[3])<<16
	prefixID = (lsbs << 2) | (rest << 8)
	return kind, prefixID
}

// DecodeHeader splits a port-0 payload into its kind, prefix ID, and
// remaining body (everything packPrefixHeader/unpackPrefixHeader don't
// cover), for callers outside this package that need to route the body
// to DecodeSlots or DecodeMemDump without re-deriving the header layout.
func DecodeHeader(payload []byte) (kind byte, prefixID uint32, body []byte, err error) {
	if len(payload) < 4 {
		return 0, 0, nil, ErrFormat
	}
	kind, prefixID = unpackPrefixHeader([4]byte(payload[:4]))
	return kind, prefixID, payload[4:], nil
}

// encodeSlot maps a Go argument to a single tagged slot (tag byte plus
// its fixed-width, or NUL-terminated for text, payload) per spec.md
// §3's Record slot table. bool/int8/int16/int/int32 all promote to the
// 4-byte integer slot, matching "incl. bool/char/short/int after
// default promotion"; float32 promotes to the 8-byte double slot, the
// same promotion C's variadic calling convention performs.
func encodeSlot(a any) (tag byte, payload []byte, err error) {
	switch v := a.(type) {
	case bool:
		var n int32
		if v {
			n = 1
		}
		return slotInt32, le32(uint32(n)), nil
	case int8:
		return slotInt32, le32(uint32(int32(v))), nil
	case int16:
		return slotInt32, le32(uint32(int32(v))), nil
	case int32:
		return slotInt32, le32(uint32(v)), nil
	case int:
		return slotInt32, le32(uint32(int32(v))), nil
	case int64:
		return slotInt64, le64(uint64(v)), nil
	case float32:
		return slotFloat64, le64float(float64(v)), nil
	case float64:
		return slotFloat64, le64float(v), nil
	case ExtFloat:
		buf := make([]byte, 16)
		copy(buf, v[:])
		return slotFloat128, buf, nil
	case string:
		return slotText, append([]byte(v), 0), nil
	case Pointer:
		return slotPointer, le32(uint32(v)), nil
	default:
		return 0, nil, ErrUnsupportedSlot
	}
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func le64float(f float64) []byte {
	return le64(math.Float64bits(f))
}

// Slot is a decoded record slot, the host-side mirror of encodeSlot.
// Only the field matching Tag is meaningful.
type Slot struct {
	Tag     byte
	Int32   int32
	Int64   int64
	Float64 float64
	Text    string
	Pointer uint32
	Ext     ExtFloat
}

// DecodeSlots parses a formatted record's body (everything after the
// 4-byte prefix header) into its sequence of tagged slots, per
// spec.md §3's Record table. It stops cleanly at the end of body. A
// truncated trailing fixed-width slot (cut off by RecordBudget, spec.md
// §4.4) yields ErrFormat along with the slots decoded before it; a
// trailing text slot with no terminating NUL is returned with the bytes
// that are present and no error.
func DecodeSlots(body []byte) ([]Slot, error) {
	var slots []Slot
	i := 0
	for i < len(body) {
		tag := body[i]
		i++
		switch tag {
		case slotInt32:
			if i+4 > len(body) {
				return slots, ErrFormat
			}
			slots = append(slots, Slot{Tag: tag, Int32: int32(binary.LittleEndian.Uint32(body[i : i+4]))})
			i += 4
		case slotInt64:
			if i+8 > len(body) {
				return slots, ErrFormat
			}
			slots = append(slots, Slot{Tag: tag, Int64: int64(binary.LittleEndian.Uint64(body[i : i+8]))})
			i += 8
		case slotFloat64:
			if i+8 > len(body) {
				return slots, ErrFormat
			}
			slots = append(slots, Slot{Tag: tag, Float64: math.Float64frombits(binary.LittleEndian.Uint64(body[i : i+8]))})
			i += 8
		case slotFloat128:
			if i+16 > len(body) {
				return slots, ErrFormat
			}
			var ext ExtFloat
			copy(ext[:], body[i:i+16])
			slots = append(slots, Slot{Tag: tag, Ext: ext})
			i += 16
		case slotText:
			end := i
			for end < len(body) && body[end] != 0 {
				end++
			}
			if end >= len(body) {
				// no NUL found: truncated by the record budget, per
				// spec.md §4.4's "truncated at the argument that
				// overflows" — take what's there rather than error.
				slots = append(slots, Slot{Tag: tag, Text: string(body[i:end])})
				return slots, nil
			}
			slots = append(slots, Slot{Tag: tag, Text: string(body[i:end])})
			i = end + 1
		case slotPointer:
			if i+4 > len(body) {
				return slots, ErrFormat
			}
			slots = append(slots, Slot{Tag: tag, Pointer: binary.LittleEndian.Uint32(body[i : i+4])})
			i += 4
		default:
			return slots, ErrFormat
		}
	}
	return slots, nil
}

// MemDump is a decoded memory-dump record's body.
type MemDump struct {
	SrcAddr uint32
	Data    []byte
}

// DecodeMemDump parses a memory-dump record's body (everything after
// the 4-byte prefix header): a 4-byte little-endian source address
// followed by the raw dumped bytes (spec.md §3).
func DecodeMemDump(body []byte) (MemDump, error) {
	if len(body) < 4 {
		return MemDump{}, ErrFormat
	}
	return MemDump{
		SrcAddr: binary.LittleEndian.Uint32(body[:4]),
		Data:    append([]byte(nil), body[4:]...),
	}, nil
}
