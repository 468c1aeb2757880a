package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger/index"
	"github.com/dgraph-io/badger/v4"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type query struct {
	prefix []byte
	start  []byte
	// timed is false for id keys, which carry no timestamp.
	timed bool
}

var maxSuffix = bytes.Repeat([]byte{0xff}, index.TimestampLen+index.SerialLen)

// prepareQueries picks the most selective index for the filter and returns
// one range per value to scan in reverse. Every candidate is matched against
// the whole filter afterwards, so the index only has to cover a superset.
func prepareQueries(f nostr.Filter) (queries []query) {
	var prefixes [][]byte
	timed := true
	switch {
	case len(f.IDs) > 0:
		timed = false
		for _, id := range f.IDs {
			prefixes = append(prefixes, index.Id.Key(index.HexPrefix(id)))
		}
	case len(f.Authors) > 0 && len(f.Kinds) > 0:
		for _, pk := range f.Authors {
			for _, k := range f.Kinds {
				prefixes = append(prefixes, index.PubkeyKind.Key(
					index.HexPrefix(pk), index.KindBytes(k)))
			}
		}
	case len(f.Authors) > 0:
		for _, pk := range f.Authors {
			prefixes = append(prefixes, index.Pubkey.Key(index.HexPrefix(pk)))
		}
	case tagKey(f) != "":
		name := tagKey(f)
		for _, v := range f.Tags[name] {
			prefixes = append(prefixes, index.Tag.Key([]byte{name[0]},
				index.TagValue(v)))
		}
	case len(f.Kinds) > 0:
		for _, k := range f.Kinds {
			prefixes = append(prefixes, index.Kind.Key(index.KindBytes(k)))
		}
	default:
		prefixes = append(prefixes, index.CreatedAt.Key())
	}
	for _, p := range prefixes {
		q := query{prefix: p, timed: timed}
		switch {
		case !timed:
			q.start = append(slices.Clone(p), maxSuffix[:index.SerialLen]...)
		case f.Until != nil:
			q.start = append(index.Timestamp(*f.Until), maxSuffix[:index.SerialLen]...)
			q.start = append(slices.Clone(p), q.start...)
		default:
			q.start = append(slices.Clone(p), maxSuffix...)
		}
		queries = append(queries, q)
	}
	return
}

// tagKey returns the single letter tag of the filter with the fewest values,
// or "" when the filter has none. A tag with a value too long to be indexed
// cannot be looked up by the Tag index and is passed over.
func tagKey(f nostr.Filter) (name string) {
	keys := maps.Keys(f.Tags)
	sort.Strings(keys)
	for _, k := range keys {
		if len(k) != 1 || len(f.Tags[k]) == 0 {
			continue
		}
		if slices.ContainsFunc(f.Tags[k], func(v string) bool {
			return len(v) > index.MaxTagValueLen
		}) {
			continue
		}
		if name == "" || len(f.Tags[k]) < len(f.Tags[name]) {
			name = k
		}
	}
	return
}

func getEvent(txn *badger.Txn, ser uint64) (ev *nostr.Event, err error) {
	var item *badger.Item
	if item, err = txn.Get(index.Event.Key(index.Serial(ser))); err != nil {
		return
	}
	ev = &nostr.Event{}
	err = item.Value(func(val []byte) error { return json.Unmarshal(val, ev) })
	return
}

// each calls fn with every stored event matching f, each query range in
// descending time order, at most perQuery matches per range when perQuery is
// above zero. fn returning false stops the scan.
func each(c context.Context, txn *badger.Txn, f nostr.Filter, perQuery int,
	fn func(ser uint64, ev *nostr.Event) bool) (err error) {

	var since uint64
	if f.Since != nil && *f.Since > 0 {
		since = uint64(*f.Since)
	}
	seen := make(map[uint64]struct{})
	for _, q := range prepareQueries(f) {
		if err = c.Err(); err != nil {
			return
		}
		var n int
		stop := func() bool {
			it := txn.NewIterator(badger.IteratorOptions{
				Reverse: true,
				Prefix:  q.prefix,
			})
			defer it.Close()
			for it.Seek(q.start); it.ValidForPrefix(q.prefix); it.Next() {
				k := it.Item().Key()
				if q.timed && index.TimestampFromKey(k) < since {
					break
				}
				ser := index.SerialFromKey(k)
				if _, ok := seen[ser]; ok {
					continue
				}
				seen[ser] = struct{}{}
				var ev *nostr.Event
				if ev, err = getEvent(txn, ser); chk.E(err) {
					// an index without its event is skipped, not fatal
					err = nil
					continue
				}
				if !f.Matches(ev) {
					continue
				}
				if !fn(ser, ev) {
					return true
				}
				if n++; perQuery > 0 && n >= perQuery {
					break
				}
			}
			return false
		}()
		if stop {
			return
		}
	}
	return
}

func sortNewest(evs []*nostr.Event) {
	slices.SortFunc(evs, func(a, b *nostr.Event) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return bytes.Compare([]byte(a.ID), []byte(b.ID))
	})
}

func (b *Backend) limit(f nostr.Filter) int {
	if f.Limit > 0 && f.Limit < b.MaxLimit {
		return f.Limit
	}
	return b.MaxLimit
}

// Query returns the events matching f, newest first.
func (b *Backend) Query(c context.Context, f nostr.Filter) (evs []*nostr.Event, err error) {
	limit := b.limit(f)
	err = b.View(func(txn *badger.Txn) error {
		return each(c, txn, f, limit, func(_ uint64, ev *nostr.Event) bool {
			evs = append(evs, ev)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewest(evs)
	if len(evs) > limit {
		evs = evs[:limit]
	}
	return
}

// Scan calls fn with every event matching f, ignoring its limit.
func (b *Backend) Scan(c context.Context, f nostr.Filter, fn func(ev *nostr.Event) bool) error {
	return b.View(func(txn *badger.Txn) error {
		return each(c, txn, f, 0, func(_ uint64, ev *nostr.Event) bool { return fn(ev) })
	})
}

// Count returns the number of events matching f, ignoring its limit.
func (b *Backend) Count(c context.Context, f nostr.Filter) (n int, err error) {
	err = b.View(func(txn *badger.Txn) error {
		return each(c, txn, f, 0, func(uint64, *nostr.Event) bool {
			n++
			return true
		})
	})
	return
}
