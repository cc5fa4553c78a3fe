package item

// GetAny scans n key/value pairs in s (a Map's Sub stream, reset to its
// start) for a text key matching key, first match wins. Duplicate keys
// are accepted, reflecting the non-strict decoder policy. The scan is
// precise: for each pair it reads exactly one key item and exactly one
// value item, comparing only after both are consumed, so a non-matching
// key never causes the following pair to be misaligned. ErrKeyNotFound
// is returned per-call; it does not stick to s.
func GetAny(s *Stream, n int64, key string) (Item, error) {
	return getAny(s, n, key)
}

func getAny(s *Stream, n int64, key string) (Item, error) {
	s.Reset()
	for i := int64(0); i < n; i++ {
		k, err := readAny(s, 1)
		if err != nil {
			return Item{}, err
		}
		v, err := readAny(s, 1)
		if err != nil {
			return Item{}, err
		}
		if k.Kind == KindText && k.Text == key {
			return v, nil
		}
	}
	return Item{}, ErrKeyNotFound
}

// IdxAny returns the i-th of n items in s (an Array's Sub stream). It
// fails with ErrIndexOutOfRange (per-call, not sticky) if i >= n.
func IdxAny(s *Stream, n int64, i int64) (Item, error) {
	return idxAny(s, n, i)
}

func idxAny(s *Stream, n int64, i int64) (Item, error) {
	if i < 0 || i >= n {
		return Item{}, ErrIndexOutOfRange
	}
	s.Reset()
	var it Item
	var err error
	for k := int64(0); k <= i; k++ {
		it, err = readAny(s, 1)
		if err != nil {
			return Item{}, err
		}
	}
	return it, nil
}
