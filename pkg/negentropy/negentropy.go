// Package negentropy implements the range based set reconciliation used by
// relays for NIP-77 syncing. Both sides hold a sorted list of (timestamp, id)
// items; messages carry fingerprints of ranges, recursively split until the
// differing ids are exchanged.
package negentropy

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/minio/sha256-simd"
)

const (
	// ProtocolVersion is the first byte of every message.
	ProtocolVersion = 0x61

	IDSize          = 32
	FingerprintSize = 16
	buckets         = 16
	doubleBuckets   = buckets * 2
	maxTimestamp    = math.MaxUint64
)

type Mode uint64

const (
	Skip Mode = iota
	Fingerprint
	IdList
)

var (
	ErrVersion   = errors.New("negentropy: unsupported protocol version")
	ErrTruncated = errors.New("negentropy: truncated message")
	ErrMode      = errors.New("negentropy: unknown range mode")
)

type ID [IDSize]byte

type Item struct {
	Timestamp uint64
	ID        ID
}

func (a Item) less(b Item) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

// Bound is an exclusive upper limit of a range: a timestamp and the shortest
// id prefix that tells the neighbouring items apart.
type Bound struct {
	Timestamp uint64
	Prefix    []byte
}

func (b Bound) item() (it Item) {
	it.Timestamp = b.Timestamp
	copy(it.ID[:], b.Prefix)
	return
}

// Negentropy is one side of a reconciliation.
type Negentropy struct {
	items     []Item
	initiator bool
}

// New returns a reconciler over items, which are sorted in place.
func New(items []Item) *Negentropy {
	sort.Slice(items, func(i, j int) bool { return items[i].less(items[j]) })
	return &Negentropy{items: items}
}

// Initiate returns the first message of the client side.
func (n *Negentropy) Initiate() []byte {
	n.initiator = true
	w := &writer{}
	w.byte(ProtocolVersion)
	n.splitRange(w, 0, len(n.items), Bound{Timestamp: maxTimestamp})
	return w.buf
}

// Reconcile processes a message from the other side. The initiator gets the
// ids only it has, the ids only the other side has, and the next message,
// which is nil once the sets are reconciled. The responder only gets the
// reply.
func (n *Negentropy) Reconcile(msg []byte) (out []byte, have, need []ID, err error) {
	r := &reader{buf: msg}
	var v byte
	if v, err = r.byte(); err != nil {
		return
	}
	if v != ProtocolVersion {
		err = fmt.Errorf("%w: 0x%x", ErrVersion, v)
		return
	}
	w := &writer{}
	w.byte(ProtocolVersion)
	var prevBound Bound
	prevIndex := 0
	skip := false
	for r.len() > 0 {
		o := &writer{lastTimestamp: w.lastTimestamp}
		doSkip := func() {
			if skip {
				skip = false
				o.bound(prevBound)
				o.varint(uint64(Skip))
			}
		}
		var curr Bound
		if curr, err = r.bound(); err != nil {
			return
		}
		var mode uint64
		if mode, err = r.varint(); err != nil {
			return
		}
		lower := prevIndex
		upper := n.findLowerBound(prevIndex, len(n.items), curr)
		switch Mode(mode) {
		case Skip:
			skip = true
		case Fingerprint:
			var theirs []byte
			if theirs, err = r.bytes(FingerprintSize); err != nil {
				return
			}
			if ours := n.fingerprint(lower, upper); !bytes.Equal(theirs, ours[:]) {
				doSkip()
				n.splitRange(o, lower, upper, curr)
			} else {
				skip = true
			}
		case IdList:
			var count uint64
			if count, err = r.varint(); err != nil {
				return
			}
			theirs := make(map[ID]struct{}, count)
			for i := uint64(0); i < count; i++ {
				var b []byte
				if b, err = r.bytes(IDSize); err != nil {
					return
				}
				theirs[ID(b)] = struct{}{}
			}
			if n.initiator {
				skip = true
				for _, it := range n.items[lower:upper] {
					if _, ok := theirs[it.ID]; ok {
						delete(theirs, it.ID)
					} else {
						have = append(have, it.ID)
					}
				}
				for id := range theirs {
					need = append(need, id)
				}
			} else {
				doSkip()
				o.bound(curr)
				o.varint(uint64(IdList))
				o.varint(uint64(upper - lower))
				for _, it := range n.items[lower:upper] {
					o.raw(it.ID[:])
				}
			}
		default:
			err = fmt.Errorf("%w: %d", ErrMode, mode)
			return
		}
		w.raw(o.buf)
		w.lastTimestamp = o.lastTimestamp
		prevIndex = upper
		prevBound = curr
	}
	if n.initiator && len(w.buf) == 1 {
		return nil, have, need, nil
	}
	return w.buf, have, need, nil
}

func (n *Negentropy) splitRange(w *writer, lower, upper int, upperBound Bound) {
	num := upper - lower
	if num < doubleBuckets {
		w.bound(upperBound)
		w.varint(uint64(IdList))
		w.varint(uint64(num))
		for _, it := range n.items[lower:upper] {
			w.raw(it.ID[:])
		}
		return
	}
	per, extra := num/buckets, num%buckets
	curr := lower
	for i := 0; i < buckets; i++ {
		size := per
		if i < extra {
			size++
		}
		fp := n.fingerprint(curr, curr+size)
		curr += size
		next := upperBound
		if curr != upper {
			next = minimalBound(n.items[curr-1], n.items[curr])
		}
		w.bound(next)
		w.varint(uint64(Fingerprint))
		w.raw(fp[:])
	}
}

func (n *Negentropy) findLowerBound(begin, end int, b Bound) int {
	target := b.item()
	return begin + sort.Search(end-begin, func(i int) bool {
		return !n.items[begin+i].less(target)
	})
}

// fingerprint is the first 16 bytes of the sha256 of the little endian sum
// of the ids modulo 2^256 followed by the varint item count.
func (n *Negentropy) fingerprint(lower, upper int) (fp [FingerprintSize]byte) {
	var sum [IDSize]byte
	for _, it := range n.items[lower:upper] {
		var carry uint16
		for i := 0; i < IDSize; i++ {
			s := uint16(sum[i]) + uint16(it.ID[i]) + carry
			sum[i] = byte(s)
			carry = s >> 8
		}
	}
	h := sha256.Sum256(append(sum[:], encodeVarint(uint64(upper-lower))...))
	copy(fp[:], h[:FingerprintSize])
	return
}

func minimalBound(prev, curr Item) Bound {
	if curr.Timestamp != prev.Timestamp {
		return Bound{Timestamp: curr.Timestamp}
	}
	shared := 0
	for shared < IDSize && prev.ID[shared] == curr.ID[shared] {
		shared++
	}
	return Bound{Timestamp: curr.Timestamp, Prefix: bytes.Clone(curr.ID[:shared+1])}
}
