package item

// Pack and Unpack drive a single-pass format string that mirrors the
// firmware-side variadic argument convention (spec table in this
// module's design notes): '{'/'}' and '['/']' bracket indefinite
// map/array forms, ".NAME:" is a literal text key, "s:"/"i:" are
// dynamic text/integer keys drawn from an argument, and a small set of
// single-character verbs (i I q Q s b ? d f e R D t v) each consume one
// or more arguments (pack) or pointer arguments (unpack).
//
// Go's slice semantics remove the need for the C "(ptr, capacity-in/
// length-out)" convention for 's'/'b': Pack takes string/[]byte
// directly and Unpack assigns through a *string/*[]byte.

type fmtCursor struct {
	s string
	i int
}

func (f *fmtCursor) peek() (byte, bool) {
	if f.i >= len(f.s) {
		return 0, false
	}
	return f.s[f.i], true
}

func (f *fmtCursor) next() (byte, bool) {
	b, ok := f.peek()
	if ok {
		f.i++
	}
	return b, ok
}

func (f *fmtCursor) skipSeparators() {
	for {
		b, ok := f.peek()
		if !ok || (b != ',' && b != ' ') {
			return
		}
		f.i++
	}
}

type argCursor struct {
	args []any
	i    int
}

func (a *argCursor) next() (any, error) {
	if a.i >= len(a.args) {
		return nil, ErrFormat
	}
	v := a.args[a.i]
	a.i++
	return v, nil
}

// ---- Pack ----

// Pack encodes args onto w according to format.
func Pack(w *Writer, format string, args ...any) error {
	fc := &fmtCursor{s: format}
	ac := &argCursor{args: args}
	return packValue(w, fc, ac)
}

func packValue(w *Writer, fc *fmtCursor, ac *argCursor) error {
	fc.skipSeparators()
	b, ok := fc.next()
	if !ok {
		return ErrFormat
	}
	switch b {
	case '{':
		w.WriteMapStart()
		for {
			fc.skipSeparators()
			pb, ok := fc.peek()
			if !ok {
				return ErrFormat
			}
			if pb == '}' {
				fc.next()
				w.WriteEnd()
				return nil
			}
			if err := packMapField(w, fc, ac); err != nil {
				return err
			}
		}
	case '[':
		w.WriteArrayStart()
		for {
			fc.skipSeparators()
			pb, ok := fc.peek()
			if !ok {
				return ErrFormat
			}
			if pb == ']' {
				fc.next()
				w.WriteEnd()
				return nil
			}
			if err := packValue(w, fc, ac); err != nil {
				return err
			}
		}
	default:
		fc.i--
		return packScalar(w, fc, ac)
	}
}

func packMapField(w *Writer, fc *fmtCursor, ac *argCursor) error {
	fc.skipSeparators()
	b, ok := fc.peek()
	if !ok {
		return ErrFormat
	}
	switch b {
	case '.':
		fc.next()
		start := fc.i
		for {
			pb, ok := fc.peek()
			if !ok {
				return ErrFormat
			}
			if pb == ':' {
				break
			}
			fc.next()
		}
		w.WriteText(fc.s[start:fc.i])
		fc.next() // consume ':'
	case 's':
		fc.next()
		if pb, ok := fc.next(); !ok || pb != ':' {
			return ErrFormat
		}
		v, err := ac.next()
		if err != nil {
			return err
		}
		sv, ok := v.(string)
		if !ok {
			return ErrFormat
		}
		w.WriteText(sv)
	case 'i':
		fc.next()
		if pb, ok := fc.next(); !ok || pb != ':' {
			return ErrFormat
		}
		v, err := ac.next()
		if err != nil {
			return err
		}
		iv, ok := toInt64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteInt64(iv)
	default:
		return ErrFormat
	}
	return packValue(w, fc, ac)
}

func packScalar(w *Writer, fc *fmtCursor, ac *argCursor) error {
	b, ok := fc.next()
	if !ok {
		return ErrFormat
	}
	next := func() (any, error) { return ac.next() }

	switch b {
	case 'i':
		v, err := next()
		if err != nil {
			return err
		}
		iv, ok := toInt64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteInt64(iv)
	case 'I':
		v, err := next()
		if err != nil {
			return err
		}
		uv, ok := toUint64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteUint(uv)
	case 'q':
		v, err := next()
		if err != nil {
			return err
		}
		iv, ok := toInt64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteInt64(iv)
	case 'Q':
		v, err := next()
		if err != nil {
			return err
		}
		uv, ok := toUint64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteUint(uv)
	case 's':
		v, err := next()
		if err != nil {
			return err
		}
		sv, ok := v.(string)
		if !ok {
			return ErrFormat
		}
		w.WriteText(sv)
	case 'b':
		v, err := next()
		if err != nil {
			return err
		}
		bv, ok := v.([]byte)
		if !ok {
			return ErrFormat
		}
		w.WriteBytes(bv)
	case '?':
		v, err := next()
		if err != nil {
			return err
		}
		bv, ok := v.(bool)
		if !ok {
			return ErrFormat
		}
		w.WriteBool(bv)
	case 'd':
		v, err := next()
		if err != nil {
			return err
		}
		fv, ok := toFloat64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteFloat64(fv)
	case 'f':
		v, err := next()
		if err != nil {
			return err
		}
		fv, ok := toFloat64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteFloat32(float32(fv))
	case 'e':
		v, err := next()
		if err != nil {
			return err
		}
		fv, ok := toFloat64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteFloat16(fv)
	case 'R':
		numV, err := next()
		if err != nil {
			return err
		}
		denV, err := next()
		if err != nil {
			return err
		}
		num, ok1 := toInt64(numV)
		den, ok2 := toUint64(denV)
		if !ok1 || !ok2 {
			return ErrFormat
		}
		w.WriteRational(num, den)
	case 'D':
		mantV, err := next()
		if err != nil {
			return err
		}
		expV, err := next()
		if err != nil {
			return err
		}
		mant, ok1 := toInt64(mantV)
		exp, ok2 := toInt64(expV)
		if !ok1 || !ok2 {
			return ErrFormat
		}
		w.WriteDecimal(mant, exp)
	case 't':
		v, err := next()
		if err != nil {
			return err
		}
		fv, ok := toFloat64(v)
		if !ok {
			return ErrFormat
		}
		w.WriteDatetime(fv)
	default:
		return ErrFormat
	}
	return nil
}

// ---- Unpack ----

// Unpack decodes one top-level item from s according to format,
// assigning through the pointer args named by each verb.
func Unpack(s *Stream, format string, args ...any) error {
	fc := &fmtCursor{s: format}
	ac := &argCursor{args: args}

	fc.skipSeparators()
	b, ok := fc.peek()
	if !ok {
		return nil
	}
	if b == '{' || b == '[' {
		it, err := ReadAny(s)
		if err != nil {
			return err
		}
		return unpackContainer(it, fc, ac)
	}
	it, err := ReadAny(s)
	if err != nil {
		return err
	}
	return unpackScalar(it, fc, ac)
}

func unpackValueToken(it Item, fc *fmtCursor, ac *argCursor) error {
	fc.skipSeparators()
	b, ok := fc.peek()
	if !ok {
		return ErrFormat
	}
	if b == '{' || b == '[' {
		return unpackContainer(it, fc, ac)
	}
	return unpackScalar(it, fc, ac)
}

func unpackContainer(it Item, fc *fmtCursor, ac *argCursor) error {
	b, _ := fc.next()
	if b == '{' {
		if it.Kind != KindMap {
			return ErrTypeMismatch
		}
		for {
			fc.skipSeparators()
			pb, ok := fc.peek()
			if !ok {
				return ErrFormat
			}
			if pb == '}' {
				fc.next()
				return nil
			}
			if err := unpackMapField(it, fc, ac); err != nil {
				return err
			}
		}
	}

	if it.Kind != KindArray {
		return ErrTypeMismatch
	}
	idx := int64(0)
	for {
		fc.skipSeparators()
		pb, ok := fc.peek()
		if !ok {
			return ErrFormat
		}
		if pb == ']' {
			fc.next()
			return nil
		}
		elem, err := IdxAny(it.Sub, it.Count, idx)
		if err != nil {
			return err
		}
		if err := unpackValueToken(elem, fc, ac); err != nil {
			return err
		}
		idx++
	}
}

func unpackMapField(mapItem Item, fc *fmtCursor, ac *argCursor) error {
	fc.skipSeparators()
	b, ok := fc.peek()
	if !ok {
		return ErrFormat
	}

	var key string
	var intKey int64
	isIntKey := false

	switch b {
	case '.':
		fc.next()
		start := fc.i
		for {
			pb, ok := fc.peek()
			if !ok {
				return ErrFormat
			}
			if pb == ':' {
				break
			}
			fc.next()
		}
		key = fc.s[start:fc.i]
		fc.next()
	case 's':
		fc.next()
		if pb, ok := fc.next(); !ok || pb != ':' {
			return ErrFormat
		}
		v, err := ac.next()
		if err != nil {
			return err
		}
		sp, ok := v.(string)
		if !ok {
			return ErrFormat
		}
		key = sp
	case 'i':
		fc.next()
		if pb, ok := fc.next(); !ok || pb != ':' {
			return ErrFormat
		}
		v, err := ac.next()
		if err != nil {
			return err
		}
		iv, ok := toInt64(v)
		if !ok {
			return ErrFormat
		}
		isIntKey = true
		intKey = iv
	default:
		return ErrFormat
	}

	optional := false
	var presence *bool
	if pb, ok := fc.peek(); ok && pb == '?' {
		fc.next()
		optional = true
		v, err := ac.next()
		if err != nil {
			return err
		}
		bp, ok := v.(*bool)
		if !ok {
			return ErrFormat
		}
		presence = bp
	}

	if nb, ok := fc.peek(); ok && optional && (nb == '{' || nb == '[') {
		return ErrFormat // optional nested containers are not supported
	}

	var val Item
	var lookupErr error
	if isIntKey {
		val, lookupErr = getMapIntKey(mapItem.Sub, mapItem.Count, intKey)
	} else {
		val, lookupErr = GetAny(mapItem.Sub, mapItem.Count, key)
	}

	if lookupErr != nil {
		if lookupErr == ErrKeyNotFound {
			if optional {
				if presence != nil {
					*presence = false
				}
				return skipValueToken(fc)
			}
			return ErrKeyNotFound
		}
		return lookupErr
	}
	if presence != nil {
		*presence = true
	}

	return unpackValueToken(val, fc, ac)
}

// getMapIntKey mirrors GetAny but compares integer keys, for the "i:"
// dynamic-integer-key form.
func getMapIntKey(s *Stream, n int64, key int64) (Item, error) {
	s.Reset()
	for i := int64(0); i < n; i++ {
		k, err := ReadAny(s)
		if err != nil {
			return Item{}, err
		}
		v, err := ReadAny(s)
		if err != nil {
			return Item{}, err
		}
		if kv, err := k.AsInt64(); err == nil && kv == key {
			return v, nil
		}
	}
	return Item{}, ErrKeyNotFound
}

// skipValueToken advances fc past one scalar verb or one balanced
// bracketed group, without touching ac — used when an optional map
// field's key is absent but the argument list still carries its slot.
func skipValueToken(fc *fmtCursor) error {
	fc.skipSeparators()
	b, ok := fc.next()
	if !ok {
		return ErrFormat
	}
	if b != '{' && b != '[' {
		return nil
	}
	closing := byte('}')
	if b == '[' {
		closing = ']'
	}
	depth := 1
	for depth > 0 {
		c, ok := fc.next()
		if !ok {
			return ErrFormat
		}
		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			if c == closing || depth > 1 {
				depth--
			}
		}
	}
	return nil
}

func unpackScalar(it Item, fc *fmtCursor, ac *argCursor) error {
	b, ok := fc.next()
	if !ok {
		return ErrFormat
	}

	argPtr, err := ac.next()
	if err != nil {
		return err
	}

	switch b {
	case 'i':
		p, ok := argPtr.(*int32)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsInt32()
		if err != nil {
			return err
		}
		*p = v
	case 'I':
		p, ok := argPtr.(*uint32)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsUint32()
		if err != nil {
			return err
		}
		*p = v
	case 'q':
		p, ok := argPtr.(*int64)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsInt64()
		if err != nil {
			return err
		}
		*p = v
	case 'Q':
		p, ok := argPtr.(*uint64)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsUint64()
		if err != nil {
			return err
		}
		*p = v
	case 's':
		p, ok := argPtr.(*string)
		if !ok {
			return ErrFormat
		}
		if it.Kind != KindText {
			return ErrTypeMismatch
		}
		*p = it.Text
	case 'b':
		p, ok := argPtr.(*[]byte)
		if !ok {
			return ErrFormat
		}
		if it.Kind != KindBytes {
			return ErrTypeMismatch
		}
		*p = it.Bytes
	case '?':
		p, ok := argPtr.(*bool)
		if !ok {
			return ErrFormat
		}
		if it.Kind != KindBool {
			return ErrTypeMismatch
		}
		*p = it.Bool
	case 'd':
		p, ok := argPtr.(*float64)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsFloat64()
		if err != nil {
			return err
		}
		*p = v
	case 'f':
		p, ok := argPtr.(*float32)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsFloat64()
		if err != nil {
			return err
		}
		*p = float32(v)
	case 'e':
		p, ok := argPtr.(*float64)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsFloat64()
		if err != nil {
			return err
		}
		*p = v
	case 'R':
		numP, ok1 := argPtr.(*int64)
		if !ok1 {
			return ErrFormat
		}
		denVal, err := ac.next()
		if err != nil {
			return err
		}
		denP, ok2 := denVal.(*uint64)
		if !ok2 {
			return ErrFormat
		}
		if it.Kind != KindRational {
			return ErrTypeMismatch
		}
		*numP = it.Mantissa
		*denP = it.U
	case 'D':
		mantP, ok1 := argPtr.(*int64)
		if !ok1 {
			return ErrFormat
		}
		expVal, err := ac.next()
		if err != nil {
			return err
		}
		expP, ok2 := expVal.(*int64)
		if !ok2 {
			return ErrFormat
		}
		if it.Kind != KindDecimal {
			return ErrTypeMismatch
		}
		*mantP = it.Mantissa
		*expP = it.Exponent
	case 't':
		p, ok := argPtr.(*float64)
		if !ok {
			return ErrFormat
		}
		v, err := it.AsFloat64()
		if err != nil {
			return err
		}
		*p = v
	case 'v':
		p, ok := argPtr.(**Stream)
		if !ok {
			return ErrFormat
		}
		if it.Kind == KindArray || it.Kind == KindMap || it.Kind == KindTag || it.Kind == KindEncoded {
			sub := it.Sub
			sub.Reset()
			*p = sub
			return nil
		}
		raw, rerr := reencode(it)
		if rerr != nil {
			return rerr
		}
		*p = NewStream(raw)
	default:
		return ErrFormat
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	default:
		return 0, false
	}
}

func toUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint:
		return uint64(t), true
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		iv, ok := toInt64(v)
		if ok {
			return float64(iv), true
		}
		return 0, false
	}
}
