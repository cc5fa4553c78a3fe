package item

// Stream is a cursor over a borrowed byte range: (start, cur, remaining,
// sticky error). Operations that fail set the sticky error and every
// subsequent read on the same Stream short-circuits with it. Streams do
// not own the bytes they view; a sub-stream's range is always strictly
// inside its parent's.
type Stream struct {
	data     []byte
	start    int
	cur      int
	remain   int
	err      error
}

// NewStream wraps buf as a top-level Stream over its whole length.
func NewStream(buf []byte) *Stream {
	return &Stream{data: buf, start: 0, cur: 0, remain: len(buf)}
}

// Err returns the sticky error, if any.
func (s *Stream) Err() error {
	return s.err
}

// Reset rewinds the stream to its start, clearing the sticky error. It is
// used by lookup helpers that need to re-scan a map or array from the
// beginning.
func (s *Stream) Reset() {
	s.cur = s.start
	s.remain = len(s.data) - s.start
	s.err = nil
}

// Remaining returns the number of unread bytes.
func (s *Stream) Remaining() int {
	return s.remain
}

// Bytes returns the unread portion of the stream without consuming it.
func (s *Stream) Bytes() []byte {
	return s.data[s.cur : s.cur+s.remain]
}

func (s *Stream) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

// take returns the next n bytes and advances the cursor, or fails with
// ErrEndOfStream if fewer than n bytes remain.
func (s *Stream) take(n int) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n > s.remain {
		return nil, s.fail(ErrEndOfStream)
	}
	b := s.data[s.cur : s.cur+n]
	s.cur += n
	s.remain -= n
	return b, nil
}

// peekByte returns the next byte without consuming it.
func (s *Stream) peekByte() (byte, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.remain < 1 {
		return 0, s.fail(ErrEndOfStream)
	}
	return s.data[s.cur], nil
}

// sub carves out a bounded child Stream over the next n bytes of s,
// without advancing s; the caller advances s separately once the child's
// extent is known (used by container/tag decoding, which measures extent
// by scanning before committing the parent's cursor).
func (s *Stream) sub(from, n int) *Stream {
	return &Stream{data: s.data[:from+n], start: from, cur: from, remain: n}
}

// clone returns an independent cursor over the same backing bytes,
// starting at s's current position, used to measure a container's
// encoded length without disturbing s.
func (s *Stream) clone() *Stream {
	return &Stream{data: s.data, start: s.cur, cur: s.cur, remain: s.remain}
}
