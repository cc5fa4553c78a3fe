package item

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"
)

// ValidateUTF8 gates text-string validation on decode. It mirrors the
// compile-time feature named in the wire mapping; in this Go port it is
// a package variable rather than a build tag.
var ValidateUTF8 = true

const selfDescribeTag = 55799

// ReadAny consumes one top-level item from s.
func ReadAny(s *Stream) (Item, error) {
	return readAny(s, 1)
}

func readAny(s *Stream, depth int) (Item, error) {
	if s.err != nil {
		return Item{}, s.err
	}

	b, err := s.take(1)
	if err != nil {
		return Item{}, err
	}
	major := b[0] >> 5
	ai := b[0] & 0x1F

	// Only containers and tags count as a nesting level; a scalar inside
	// the deepest permitted container does not.
	if depth > MaxRecursion && major >= 4 && major <= 6 {
		return Item{}, s.fail(ErrRecursionExceeded)
	}

	switch major {
	case 0:
		v, _, err := s.readArgument(ai, false)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindUint, U: v}, nil
	case 1:
		v, _, err := s.readArgument(ai, false)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindNInt, U: v}, nil
	case 2:
		return s.readStringLike(ai, 2, depth)
	case 3:
		return s.readStringLike(ai, 3, depth)
	case 4:
		return s.readContainer(ai, false, depth)
	case 5:
		return s.readContainer(ai, true, depth)
	case 6:
		return s.readTag(ai, depth)
	case 7:
		return readSimpleOrFloat(s, ai)
	default:
		return Item{}, s.fail(ErrInvalidAdditional)
	}
}

// readArgument parses the additional-information field of an initial
// byte. indefiniteAllowed governs whether ai==31 is accepted (only legal
// for major types 2, 3, 4, 5, and the major-7 BREAK marker).
func (s *Stream) readArgument(ai byte, indefiniteAllowed bool) (value uint64, indefinite bool, err error) {
	switch {
	case ai <= 23:
		return uint64(ai), false, nil
	case ai == 24:
		b, err := s.take(1)
		if err != nil {
			return 0, false, err
		}
		return uint64(b[0]), false, nil
	case ai == 25:
		b, err := s.take(2)
		if err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint16(b)), false, nil
	case ai == 26:
		b, err := s.take(4)
		if err != nil {
			return 0, false, err
		}
		return uint64(binary.BigEndian.Uint32(b)), false, nil
	case ai == 27:
		b, err := s.take(8)
		if err != nil {
			return 0, false, err
		}
		return binary.BigEndian.Uint64(b), false, nil
	case ai >= 28 && ai <= 30:
		return 0, false, s.fail(ErrInvalidAdditional)
	case ai == 31:
		if !indefiniteAllowed {
			return 0, false, s.fail(ErrInvalidAdditional)
		}
		return 0, true, nil
	}
	return 0, false, s.fail(ErrInvalidAdditional)
}

func readSimpleOrFloat(s *Stream, ai byte) (Item, error) {
	switch {
	case ai <= 19:
		return Item{Kind: KindSimple, U: uint64(ai)}, nil
	case ai == 20:
		return Item{Kind: KindBool, Bool: false}, nil
	case ai == 21:
		return Item{Kind: KindBool, Bool: true}, nil
	case ai == 22:
		return Item{Kind: KindNull}, nil
	case ai == 23:
		return Item{Kind: KindUndefined}, nil
	case ai == 24:
		b, err := s.take(1)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindSimple, U: uint64(b[0])}, nil
	case ai == 25:
		b, err := s.take(2)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindFloat16, Float: float16ToFloat64(binary.BigEndian.Uint16(b))}, nil
	case ai == 26:
		b, err := s.take(4)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindFloat32, Float: float64(math.Float32frombits(binary.BigEndian.Uint32(b)))}, nil
	case ai == 27:
		b, err := s.take(8)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindFloat64, Float: math.Float64frombits(binary.BigEndian.Uint64(b))}, nil
	default:
		// ai 28-30 invalid, ai 31 is BREAK encountered outside a
		// container context
		return Item{}, s.fail(ErrInvalidAdditional)
	}
}

// readStringLike decodes major types 2 (bytes) and 3 (text), including
// the indefinite-length chunked form.
func (s *Stream) readStringLike(ai byte, major byte, depth int) (Item, error) {
	arg, indef, err := s.readArgument(ai, true)
	if err != nil {
		return Item{}, err
	}

	var buf []byte
	if indef {
		for {
			pb, err := s.peekByte()
			if err != nil {
				return Item{}, err
			}
			if pb == 0xFF {
				s.take(1)
				break
			}
			chunkHdr, err := s.take(1)
			if err != nil {
				return Item{}, err
			}
			chunkMajor := chunkHdr[0] >> 5
			chunkAI := chunkHdr[0] & 0x1F
			if chunkMajor != major {
				return Item{}, s.fail(ErrInvalidNesting)
			}
			chunkLen, chunkIndef, err := s.readArgument(chunkAI, false)
			if chunkIndef || err != nil {
				return Item{}, s.fail(ErrInvalidNesting)
			}
			data, err := s.take(int(chunkLen))
			if err != nil {
				return Item{}, err
			}
			buf = append(buf, data...)
		}
	} else {
		data, err := s.take(int(arg))
		if err != nil {
			return Item{}, err
		}
		buf = append(buf, data...)
	}

	if major == 2 {
		return Item{Kind: KindBytes, Bytes: buf}, nil
	}

	if ValidateUTF8 && !utf8.Valid(buf) {
		return Item{}, s.fail(ErrInvalidUTF8)
	}
	return Item{Kind: KindText, Text: string(buf)}, nil
}

// readContainer decodes major types 4 (array) and 5 (map). It measures
// the container's encoded extent by fully scanning its contents once
// (recursively, subject to the same recursion bound), so the returned
// Item's Sub stream is a properly bounded sub-stream per the "strictly
// inside its parent" invariant, and the parent stream's cursor advances
// past the whole container in one step.
func (s *Stream) readContainer(ai byte, isMap bool, depth int) (Item, error) {
	arg, indef, err := s.readArgument(ai, true)
	if err != nil {
		return Item{}, err
	}

	start := s.cur
	scan := s.clone()

	var count int64
	if indef {
		for {
			pb, err := scan.peekByte()
			if err != nil {
				return Item{}, s.fail(err)
			}
			if pb == 0xFF {
				scan.take(1)
				break
			}
			if _, err := readAny(scan, depth+1); err != nil {
				return Item{}, s.fail(scan.err)
			}
			count++
		}
		if isMap && count%2 != 0 {
			return Item{}, s.fail(ErrOddMapLength)
		}
		if isMap {
			count /= 2
		}
	} else {
		n := int64(arg)
		items := n
		if isMap {
			items = n * 2
		}
		for i := int64(0); i < items; i++ {
			if _, err := readAny(scan, depth+1); err != nil {
				return Item{}, s.fail(scan.err)
			}
		}
		count = n
	}

	length := scan.cur - start
	sub := s.sub(start, length)
	if _, err := s.take(length); err != nil {
		return Item{}, err
	}

	kind := KindArray
	if isMap {
		kind = KindMap
	}
	return Item{Kind: kind, Sub: sub, Count: count}, nil
}

// readTag decodes major type 6: the tag number, then the tagged value.
// Recognised tags convert inline into their semantic Item kind; the
// self-describe tag (55799) is unwrapped entirely. Unrecognised tags
// yield Tag(subStream, tag) so the application can inspect the raw
// tagged value itself.
func (s *Stream) readTag(ai byte, depth int) (Item, error) {
	tagNum, _, err := s.readArgument(ai, false)
	if err != nil {
		return Item{}, err
	}

	start := s.cur
	scan := s.clone()
	if _, err := readAny(scan, depth+1); err != nil {
		return Item{}, s.fail(scan.err)
	}
	length := scan.cur - start
	sub := s.sub(start, length)
	if _, err := s.take(length); err != nil {
		return Item{}, err
	}

	switch tagNum {
	case selfDescribeTag:
		sub.Reset()
		return readAny(sub, depth)
	case 0:
		sub.Reset()
		inner, err := readAny(sub, depth+1)
		if err != nil {
			return Item{}, s.fail(err)
		}
		if inner.Kind != KindText {
			return Item{}, s.fail(ErrTypeMismatch)
		}
		t, perr := time.Parse(time.RFC3339Nano, inner.Text)
		if perr != nil {
			return Item{}, s.fail(ErrFormat)
		}
		return Item{Kind: KindDatetime, Float: float64(t.UnixNano()) / 1e9}, nil
	case 1:
		sub.Reset()
		inner, err := readAny(sub, depth+1)
		if err != nil {
			return Item{}, s.fail(err)
		}
		f, ferr := inner.AsFloat64()
		if ferr != nil {
			return Item{}, s.fail(ferr)
		}
		return Item{Kind: KindDatetime, Float: f}, nil
	case 4:
		sub.Reset()
		inner, err := readAny(sub, depth+1)
		if err != nil {
			return Item{}, s.fail(err)
		}
		if inner.Kind != KindArray || inner.Count != 2 {
			return Item{}, s.fail(ErrTypeMismatch)
		}
		exp, eerr := idxInt64(inner.Sub, inner.Count, 0)
		if eerr != nil {
			return Item{}, s.fail(eerr)
		}
		mant, merr := idxInt64(inner.Sub, inner.Count, 1)
		if merr != nil {
			return Item{}, s.fail(merr)
		}
		return Item{Kind: KindDecimal, Mantissa: mant, Exponent: exp}, nil
	case 30:
		sub.Reset()
		inner, err := readAny(sub, depth+1)
		if err != nil {
			return Item{}, s.fail(err)
		}
		if inner.Kind != KindArray || inner.Count != 2 {
			return Item{}, s.fail(ErrTypeMismatch)
		}
		num, nerr := idxInt64(inner.Sub, inner.Count, 0)
		if nerr != nil {
			return Item{}, s.fail(nerr)
		}
		den, derr := idxAny(inner.Sub, inner.Count, 1)
		if derr != nil {
			return Item{}, s.fail(derr)
		}
		denU, uerr := den.AsUint64()
		if uerr != nil {
			return Item{}, s.fail(uerr)
		}
		return Item{Kind: KindRational, Mantissa: num, U: denU}, nil
	case 24:
		sub.Reset()
		inner, err := readAny(sub, depth+1)
		if err != nil {
			return Item{}, s.fail(err)
		}
		if inner.Kind != KindBytes {
			return Item{}, s.fail(ErrTypeMismatch)
		}
		return Item{Kind: KindEncoded, Sub: NewStream(inner.Bytes)}, nil
	default:
		return Item{Kind: KindTag, Sub: sub, U: tagNum}, nil
	}
}

func idxInt64(s *Stream, n int64, i int64) (int64, error) {
	it, err := idxAny(s, n, i)
	if err != nil {
		return 0, err
	}
	return it.AsInt64()
}
