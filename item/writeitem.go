package item

// WriteItem serialises an already-decoded Item back onto w. It is used
// by the pack/unpack 'v' verb to hand a caller a self-contained stream
// over a value's own encoding, regardless of whether that value came
// from a container's Sub (which already has raw bytes available) or a
// decoded scalar (which does not, and must be re-encoded).
func WriteItem(w *Writer, it Item) error {
	switch it.Kind {
	case KindUint:
		w.WriteUint(it.U)
	case KindNInt:
		w.WriteNInt(it.U)
	case KindBytes:
		w.WriteBytes(it.Bytes)
	case KindText:
		w.WriteText(it.Text)
	case KindArray:
		n := it.Count
		w.WriteArray(int(n))
		for i := int64(0); i < n; i++ {
			elem, err := IdxAny(it.Sub, n, i)
			if err != nil {
				return err
			}
			if err := WriteItem(w, elem); err != nil {
				return err
			}
		}
	case KindMap:
		n := it.Count
		w.WriteMap(int(n))
		sub := it.Sub
		sub.Reset()
		for i := int64(0); i < n; i++ {
			k, err := ReadAny(sub)
			if err != nil {
				return err
			}
			v, err := ReadAny(sub)
			if err != nil {
				return err
			}
			if err := WriteItem(w, k); err != nil {
				return err
			}
			if err := WriteItem(w, v); err != nil {
				return err
			}
		}
	case KindTag:
		w.WriteTag(it.U)
		sub := it.Sub
		sub.Reset()
		inner, err := ReadAny(sub)
		if err != nil {
			return err
		}
		if err := WriteItem(w, inner); err != nil {
			return err
		}
	case KindSimple:
		w.WriteSimple(byte(it.U))
	case KindBool:
		w.WriteBool(it.Bool)
	case KindNull:
		w.WriteNull()
	case KindUndefined:
		w.WriteUndefined()
	case KindFloat16:
		w.WriteFloat16(it.Float)
	case KindFloat32:
		w.WriteFloat32(float32(it.Float))
	case KindFloat64:
		w.WriteFloat64(it.Float)
	case KindDatetime:
		w.WriteDatetime(it.Float)
	case KindDecimal:
		w.WriteDecimal(it.Mantissa, it.Exponent)
	case KindRational:
		w.WriteRational(it.Mantissa, it.U)
	case KindEncoded:
		sub := it.Sub
		sub.Reset()
		w.WriteEncoded(sub.Bytes())
	default:
		return ErrFormat
	}
	return nil
}

// reencode returns it's own encoding as a fresh byte slice.
func reencode(it Item) ([]byte, error) {
	w := NewWriter()
	if err := WriteItem(w, it); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
