package frame

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, payload []byte) {
	t.Helper()
	framed := Encode(payload)
	require.Equal(t, Sentinel, framed[0])
	require.Equal(t, Sentinel, framed[len(framed)-1])

	stuffed := framed[1 : len(framed)-1]
	require.False(t, bytes.Contains(stuffed, []byte{Sentinel}), "stuffed body must not contain sentinel")

	decoded, err := Decode(stuffed)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

func TestRoundTripLengths(t *testing.T) {
	for _, l := range []int{0, 1, 2, 253, 254, 255, 500, 1500} {
		payload := make([]byte, l)
		rng := rand.New(rand.NewSource(int64(l)))
		rng.Read(payload)
		roundTrip(t, payload)
	}
}

func TestRoundTripAllZeros(t *testing.T) {
	for _, l := range []int{0, 1, 253, 254, 255, 600} {
		roundTrip(t, make([]byte, l))
	}
}

func TestRoundTripRandomFuzz(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		l := rng.Intn(600)
		payload := make([]byte, l)
		rng.Read(payload)
		roundTrip(t, payload)
	}
}

func TestEmptyFrameDedup(t *testing.T) {
	// a leading double sentinel, per S4, decodes to a zero-length payload
	decoded, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, decoded)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte{0})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte{5, 1, 2})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFrameResyncScenario(t *testing.T) {
	// S4: 0x00 0x00 0x03 0xFC 0x55 0x00 (0x03 is the COBS code byte for
	// a two-byte run with no zero in it)
	wire := []byte{0x00, 0x00, 0x03, 0xFC, 0x55, 0x00}

	// first sentinel-to-sentinel span is empty -> empty frame, ignored
	empty, err := Decode(wire[1:1])
	require.NoError(t, err)
	require.Empty(t, empty)

	// second span is the stuffed body between the 2nd and 3rd sentinel
	body := wire[2:5]
	decoded, err := Decode(body)
	require.NoError(t, err)
	require.Equal(t, []byte{0xFC, 0x55}, decoded)

	typ := decoded[0] & 0x3
	port := decoded[0] >> 2
	require.Equal(t, byte(0), typ)
	require.Equal(t, byte(63), port)
}

func TestMaxChunkBoundary(t *testing.T) {
	payload := bytes.Repeat([]byte{0x41}, 254)
	framed := Encode(payload)
	stuffed := framed[1 : len(framed)-1]
	require.Equal(t, byte(255), stuffed[0])

	decoded, err := Decode(stuffed)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}
