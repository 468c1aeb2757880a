// Package index builds the badger keys of the event store. Every key starts
// with a one byte prefix P; integers are big endian so keys sort by value and
// a reverse iteration walks from newest to oldest.
package index

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"
)

type P byte

const (
	// Event is the raw event record, the value is the event JSON.
	//
	//   [ 0 ][ 8 bytes serial ]
	Event P = iota

	// CreatedAt indexes every event by timestamp only.
	//
	//   [ 1 ][ 8 bytes timestamp ][ 8 bytes serial ]
	CreatedAt

	// Id holds the first 8 bytes of the event id.
	//
	//   [ 2 ][ 8 bytes id prefix ][ 8 bytes serial ]
	Id

	// Kind holds the kind and timestamp.
	//
	//   [ 3 ][ 2 bytes kind ][ 8 bytes timestamp ][ 8 bytes serial ]
	Kind

	// Pubkey holds the author pubkey prefix and timestamp.
	//
	//   [ 4 ][ 8 bytes pubkey prefix ][ 8 bytes timestamp ][ 8 bytes serial ]
	Pubkey

	// PubkeyKind holds author pubkey prefix, kind and timestamp.
	//
	//   [ 5 ][ 8 bytes pubkey prefix ][ 2 bytes kind ][ 8 bytes timestamp ][ 8 bytes serial ]
	PubkeyKind

	// Tag holds the single letter tag name and a hash of the tag value so
	// every tag key has the same length.
	//
	//   [ 6 ][ 1 byte tag name ][ 8 bytes value hash ][ 8 bytes timestamp ][ 8 bytes serial ]
	Tag

	// Tombstone marks an event id removed by a deletion event, the value is
	// the pubkey of the deleting author.
	//
	//   [ 7 ][ 32 bytes id ]
	Tombstone
)

// Version is the key of the store layout version, a 16 bit value.
//
//	[ 255 ]
const Version P = 255

const (
	SerialLen    = 8
	TimestampLen = 8
	PrefixLen    = 8
	KindLen      = 2
	// MaxTagValueLen is the longest tag value given a Tag key.
	MaxTagValueLen = 100
)

// Prefixes are every event related prefix, for wiping the store.
var Prefixes = [][]byte{
	{byte(Event)}, {byte(CreatedAt)}, {byte(Id)}, {byte(Kind)},
	{byte(Pubkey)}, {byte(PubkeyKind)}, {byte(Tag)}, {byte(Tombstone)},
}

// B returns the prefix as a byte.
func (p P) B() byte { return byte(p) }

// Key is the prefix followed by the given parts.
func (p P) Key(parts ...[]byte) (k []byte) {
	n := 1
	for _, b := range parts {
		n += len(b)
	}
	k = make([]byte, 0, n)
	k = append(k, byte(p))
	for _, b := range parts {
		k = append(k, b...)
	}
	return
}

// HasTimestamp is false for prefixes whose keys carry no timestamp before the
// serial.
func (p P) HasTimestamp() bool { return p != Id && p != Event && p != Tombstone }

func Serial(s uint64) []byte { return binary.BigEndian.AppendUint64(nil, s) }

func Timestamp(ts nostr.Timestamp) []byte {
	if ts < 0 {
		ts = 0
	}
	return binary.BigEndian.AppendUint64(nil, uint64(ts))
}

func KindBytes(k int) []byte { return binary.BigEndian.AppendUint16(nil, uint16(k)) }

// HexPrefix decodes the first 8 bytes of a hex id or pubkey. Short or
// malformed input gives a zero prefix, which only ever matches by accident
// and is then rejected by the full filter match.
func HexPrefix(h string) []byte {
	b := make([]byte, PrefixLen)
	if len(h) >= PrefixLen*2 {
		_, _ = hex.Decode(b, []byte(h[:PrefixLen*2]))
	}
	return b
}

// TagValue hashes a tag value into the fixed width used in Tag keys.
func TagValue(v string) []byte {
	h := sha256.Sum256([]byte(v))
	return h[:PrefixLen]
}

// SerialFromKey reads the serial that ends every index key.
func SerialFromKey(k []byte) uint64 {
	if len(k) < SerialLen {
		return 0
	}
	return binary.BigEndian.Uint64(k[len(k)-SerialLen:])
}

// TimestampFromKey reads the timestamp that precedes the serial.
func TimestampFromKey(k []byte) uint64 {
	if len(k) < SerialLen+TimestampLen {
		return 0
	}
	return binary.BigEndian.Uint64(k[len(k)-SerialLen-TimestampLen : len(k)-SerialLen])
}

// ForEvent generates all the index keys of an event stored under serial ser.
// Tags are indexed when the name is a single letter and the value is 1 to
// 100 bytes; repeated name/value pairs are indexed once.
func ForEvent(ev *nostr.Event, ser uint64) (keys [][]byte) {
	s := Serial(ser)
	ca := Timestamp(ev.CreatedAt)
	ki := KindBytes(ev.Kind)
	pk := HexPrefix(ev.PubKey)
	keys = make([][]byte, 0, 6+len(ev.Tags))
	keys = append(keys,
		Id.Key(HexPrefix(ev.ID), s),
		Pubkey.Key(pk, ca, s),
		Kind.Key(ki, ca, s),
		PubkeyKind.Key(pk, ki, ca, s),
		CreatedAt.Key(ca, s),
	)
	seen := make(map[string]struct{})
	for _, t := range ev.Tags {
		if len(t) < 2 || len(t[0]) != 1 || len(t[1]) == 0 || len(t[1]) > MaxTagValueLen {
			continue
		}
		k := t[0] + t[1]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, Tag.Key([]byte{t[0][0]}, TagValue(t[1]), ca, s))
	}
	return
}
