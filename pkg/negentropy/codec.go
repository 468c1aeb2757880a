package negentropy

func encodeVarint(n uint64) []byte {
	if n == 0 {
		return []byte{0}
	}
	var out []byte
	for n > 0 {
		out = append(out, byte(n&0x7f))
		n >>= 7
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for i := 0; i < len(out)-1; i++ {
		out[i] |= 0x80
	}
	return out
}

// writer accumulates a message, timestamps delta encoded against the last
// one written.
type writer struct {
	buf           []byte
	lastTimestamp uint64
}

func (w *writer) byte(b byte)     { w.buf = append(w.buf, b) }
func (w *writer) raw(b []byte)    { w.buf = append(w.buf, b...) }
func (w *writer) varint(n uint64) { w.buf = append(w.buf, encodeVarint(n)...) }

func (w *writer) timestamp(ts uint64) {
	if ts == maxTimestamp {
		w.lastTimestamp = maxTimestamp
		w.varint(0)
		return
	}
	delta := ts - w.lastTimestamp
	w.lastTimestamp = ts
	w.varint(delta + 1)
}

func (w *writer) bound(b Bound) {
	w.timestamp(b.Timestamp)
	w.varint(uint64(len(b.Prefix)))
	w.raw(b.Prefix)
}

type reader struct {
	buf           []byte
	lastTimestamp uint64
}

func (r *reader) len() int { return len(r.buf) }

func (r *reader) byte() (b byte, err error) {
	if len(r.buf) < 1 {
		return 0, ErrTruncated
	}
	b, r.buf = r.buf[0], r.buf[1:]
	return
}

func (r *reader) bytes(n int) (b []byte, err error) {
	if len(r.buf) < n {
		return nil, ErrTruncated
	}
	b, r.buf = r.buf[:n], r.buf[n:]
	return
}

func (r *reader) varint() (n uint64, err error) {
	for {
		var b byte
		if b, err = r.byte(); err != nil {
			return
		}
		n = n<<7 | uint64(b&0x7f)
		if b&0x80 == 0 {
			return
		}
	}
}

func (r *reader) timestamp() (ts uint64, err error) {
	if ts, err = r.varint(); err != nil {
		return
	}
	if ts == 0 {
		ts = maxTimestamp
	} else {
		ts--
	}
	if r.lastTimestamp == maxTimestamp || ts == maxTimestamp {
		r.lastTimestamp = maxTimestamp
		return maxTimestamp, nil
	}
	ts += r.lastTimestamp
	r.lastTimestamp = ts
	return
}

func (r *reader) bound() (b Bound, err error) {
	if b.Timestamp, err = r.timestamp(); err != nil {
		return
	}
	var l uint64
	if l, err = r.varint(); err != nil {
		return
	}
	if l > IDSize {
		return b, ErrTruncated
	}
	var p []byte
	if p, err = r.bytes(int(l)); err != nil {
		return
	}
	b.Prefix = p
	return
}
