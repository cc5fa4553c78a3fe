package item

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackScalarTable(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "[i I q Q s b ? d]",
		int64(-7), uint64(9), int64(-8), uint64(11),
		"hi", []byte{1, 2, 3}, true, float64(2.5)))

	s := NewStream(w.Bytes())
	var i32 int32
	var u32 uint32
	var i64 int64
	var u64 uint64
	var str string
	var b []byte
	var bl bool
	var f float64
	require.NoError(t, Unpack(s, "[i I q Q s b ? d]", &i32, &u32, &i64, &u64, &str, &b, &bl, &f))

	require.Equal(t, int32(-7), i32)
	require.Equal(t, uint32(9), u32)
	require.Equal(t, int64(-8), i64)
	require.Equal(t, uint64(11), u64)
	require.Equal(t, "hi", str)
	require.Equal(t, []byte{1, 2, 3}, b)
	require.True(t, bl)
	require.Equal(t, 2.5, f)
}

func TestPackUnpackDynamicKeys(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "{s:i}", "dyn", int64(42)))
	s := NewStream(w.Bytes())
	var v int32
	require.NoError(t, Unpack(s, "{s:i}", "dyn", &v))
	require.Equal(t, int32(42), v)
}

func TestPackUnpackOptionalFieldPresent(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "{.a:i}", int64(5)))
	s := NewStream(w.Bytes())
	var present bool
	var v int32
	require.NoError(t, Unpack(s, "{.a:?i}", &present, &v))
	require.True(t, present)
	require.Equal(t, int32(5), v)
}

func TestPackUnpackOptionalFieldAbsent(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "{.b:i}", int64(9)))
	s := NewStream(w.Bytes())
	var present bool
	var v int32
	require.NoError(t, Unpack(s, "{.a:?i}", &present, &v))
	require.False(t, present)
	require.Equal(t, int32(0), v)
}

func TestPackUnpackNestedMap(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "{.outer:{.inner:i}}", int64(99)))
	s := NewStream(w.Bytes())
	var v int32
	require.NoError(t, Unpack(s, "{.outer:{.inner:i}}", &v))
	require.Equal(t, int32(99), v)
}

func TestPackUnpackVerbCapturesSubStream(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "[s]", "deferred"))
	s := NewStream(w.Bytes())
	var sub *Stream
	require.NoError(t, Unpack(s, "[v]", &sub))
	inner, err := ReadAny(sub)
	require.NoError(t, err)
	require.Equal(t, KindText, inner.Kind)
	require.Equal(t, "deferred", inner.Text)
}

func TestUnpackTypeMismatch(t *testing.T) {
	w := NewWriter()
	w.WriteText("not a number")
	s := NewStream(w.Bytes())
	var v int32
	err := Unpack(s, "i", &v)
	require.Error(t, err)
}

func TestUnpackMissingRequiredKey(t *testing.T) {
	w := NewWriter()
	require.NoError(t, Pack(w, "{.other:i}", int64(1)))
	s := NewStream(w.Bytes())
	var v int32
	err := Unpack(s, "{.a:i}", &v)
	require.ErrorIs(t, err, ErrKeyNotFound)
}
