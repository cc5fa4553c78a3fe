// Package frame implements the byte-stuffed wire framing binlog uses to
// delimit packets on a single byte-stream link: consistent-overhead byte
// stuffing (COBS) between sentinel bytes, so a frame never contains the
// sentinel except as its two delimiters.
package frame

import "errors"

// Sentinel is the single byte value that delimits a frame on the wire.
const Sentinel byte = 0x00

// MaxChunk is COBS's maximum run length between length bytes.
const MaxChunk = 254

var (
	// ErrMalformed is returned by Decode when the length-byte chain does
	// not consume exactly the input.
	ErrMalformed = errors.New("frame: malformed cobs stuffing")
)

// EncodedLen returns the maximum stuffed size for a payload of length l,
// not including the two delimiting sentinels: l + ceil(l/254) + 1 (the
// trailing +1 covers the worst case where a chunk boundary falls exactly
// on the payload end and still needs its own code byte).
func EncodedLen(l int) int {
	return l + (l+MaxChunk-1)/MaxChunk + 1
}

// Encode returns [Sentinel, cobs(payload), Sentinel]. The result never
// contains Sentinel except at its first and last byte.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, EncodedLen(len(payload))+2)
	out = append(out, Sentinel)
	out = appendCOBS(out, payload)
	out = append(out, Sentinel)
	return out
}

// appendCOBS appends the COBS stuffing of payload (without delimiters) to
// dst and returns the extended slice.
func appendCOBS(dst, payload []byte) []byte {
	// placeholder index for the running chunk's length byte
	codeIdx := len(dst)
	dst = append(dst, 0)
	code := byte(1)

	flush := func() {
		dst[codeIdx] = code
		codeIdx = len(dst)
		dst = append(dst, 0)
		code = 1
	}

	for _, b := range payload {
		if b == Sentinel {
			flush()
			continue
		}
		dst = append(dst, b)
		code++
		if code == 255 {
			flush()
		}
	}
	dst[codeIdx] = code

	return dst
}

// Decode consumes COBS-stuffed bytes (as produced between two sentinels
// by Encode, i.e. without the delimiters) and returns the original
// payload, or ErrMalformed if the length-byte chain does not exactly
// consume the input. Decoding is done in a freshly allocated buffer; the
// input is not modified.
func Decode(stuffed []byte) ([]byte, error) {
	out := make([]byte, 0, len(stuffed))
	i := 0
	for i < len(stuffed) {
		code := stuffed[i]
		if code == 0 {
			return nil, ErrMalformed
		}
		chunk := int(code) - 1
		if i+1+chunk > len(stuffed) {
			return nil, ErrMalformed
		}
		out = append(out, stuffed[i+1:i+1+chunk]...)
		i += 1 + chunk
		if code != 255 && i < len(stuffed) {
			out = append(out, Sentinel)
		}
	}
	return out, nil
}
