package item

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUintBoundaries(t *testing.T) {
	cases := []uint64{0, 23, 24, 255, 256, 65535, 65536, 1 << 32, 1<<32 + 1, 1<<64 - 1}
	for _, v := range cases {
		w := NewWriter()
		w.WriteUint(v)
		s := NewStream(w.Bytes())
		it, err := ReadAny(s)
		require.NoError(t, err)
		require.Equal(t, KindUint, it.Kind)
		require.Equal(t, v, it.U)
	}
}

func TestNegativeIntBoundaries(t *testing.T) {
	cases := []int64{-1, -24, -25, -256, -257, -1 << 31, -1 << 63}
	for _, v := range cases {
		w := NewWriter()
		w.WriteInt64(v)
		s := NewStream(w.Bytes())
		it, err := ReadAny(s)
		require.NoError(t, err)
		got, err := it.AsInt64()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestInt64MinEdge(t *testing.T) {
	// S2: INT64_MIN has no positive counterpart, must round-trip via NInt.
	const v = int64(-1 << 63)
	w := NewWriter()
	w.WriteInt64(v)
	s := NewStream(w.Bytes())
	it, err := ReadAny(s)
	require.NoError(t, err)
	require.Equal(t, KindNInt, it.Kind)
	got, err := it.AsInt64()
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestIndefiniteTextChunks(t *testing.T) {
	// zero chunks
	raw := []byte{3<<5 | 31, 0xFF}
	it, err := ReadAny(NewStream(raw))
	require.NoError(t, err)
	require.Equal(t, KindText, it.Kind)
	require.Equal(t, "", it.Text)

	// one chunk
	raw = []byte{3<<5 | 31, 3<<5 | 2, 'h', 'i', 0xFF}
	it, err = ReadAny(NewStream(raw))
	require.NoError(t, err)
	require.Equal(t, "hi", it.Text)

	// mixed chunks
	raw = []byte{3<<5 | 31, 3<<5 | 2, 'h', 'i', 3<<5 | 1, '!', 0xFF}
	it, err = ReadAny(NewStream(raw))
	require.NoError(t, err)
	require.Equal(t, "hi!", it.Text)
}

func TestNestedDepthBoundary(t *testing.T) {
	w := NewWriter()
	// four nested arrays of one element each: depth 1..4 succeeds
	for i := 0; i < 4; i++ {
		w.WriteArray(1)
	}
	w.WriteUint(7)
	s := NewStream(w.Bytes())
	it, err := ReadAny(s)
	require.NoError(t, err)
	require.Equal(t, KindArray, it.Kind)
}

func TestNestedDepthExceeded(t *testing.T) {
	w := NewWriter()
	for i := 0; i < 5; i++ {
		w.WriteArray(1)
	}
	w.WriteUint(7)
	s := NewStream(w.Bytes())
	_, err := ReadAny(s)
	require.ErrorIs(t, err, ErrRecursionExceeded)
}

func TestSelfDescribeTagUnwrap(t *testing.T) {
	// S3: D9 D9 F7 64 "test" -> Text("test")
	raw := []byte{0xD9, 0xD9, 0xF7, 0x64, 't', 'e', 's', 't'}
	it, err := ReadAny(NewStream(raw))
	require.NoError(t, err)
	require.Equal(t, KindText, it.Kind)
	require.Equal(t, "test", it.Text)
}

func TestMixedMapRoundTrip(t *testing.T) {
	// S1: {.a:i,.b:s,.c:[i,i,i]}
	w := NewWriter()
	require.NoError(t, Pack(w, "{.a:i,.b:s,.c:[i,i,i]}", int64(1), "hello", int64(2), int64(3), int64(4)))

	s := NewStream(w.Bytes())
	var a, c0, c1, c2 int32
	var b string
	require.NoError(t, Unpack(s, "{.a:i,.b:s,.c:[i,i,i]}", &a, &b, &c0, &c1, &c2))
	require.Equal(t, int32(1), a)
	require.Equal(t, "hello", b)
	require.Equal(t, int32(2), c0)
	require.Equal(t, int32(3), c1)
	require.Equal(t, int32(4), c2)
}

func TestDecimalAndRationalRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteDecimal(314, -2)
	it, err := ReadAny(NewStream(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, KindDecimal, it.Kind)
	f, err := it.AsFloat64()
	require.NoError(t, err)
	require.InDelta(t, 3.14, f, 1e-9)

	w = NewWriter()
	w.WriteRational(1, 4)
	it, err = ReadAny(NewStream(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, KindRational, it.Kind)
	f, err = it.AsFloat64()
	require.NoError(t, err)
	require.InDelta(t, 0.25, f, 1e-9)
}

func TestGetAnyDoesNotSkipFollowingPair(t *testing.T) {
	w := NewWriter()
	w.WriteMap(3)
	w.WriteText("x")
	w.WriteUint(1)
	w.WriteText("y")
	w.WriteUint(2)
	w.WriteText("z")
	w.WriteUint(3)

	it, err := ReadAny(NewStream(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, KindMap, it.Kind)

	v, err := GetAny(it.Sub, it.Count, "y")
	require.NoError(t, err)
	u, err := v.AsUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(2), u)

	v, err = GetAny(it.Sub, it.Count, "z")
	require.NoError(t, err)
	u, err = v.AsUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(3), u)

	_, err = GetAny(it.Sub, it.Count, "missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFloatDowncastSearch(t *testing.T) {
	w := NewWriter()
	w.WriteFloat64(1.5) // exactly representable in float16
	it, err := ReadAny(NewStream(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, KindFloat16, it.Kind)
	require.Equal(t, 1.5, it.Float)

	w = NewWriter()
	w.WriteFloat64(0.1) // not exact at any narrower width
	it, err = ReadAny(NewStream(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, KindFloat64, it.Kind)
	require.InDelta(t, 0.1, it.Float, 1e-15)
}
