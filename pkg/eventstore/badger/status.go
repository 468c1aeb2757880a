package badger

import (
	"context"
	"encoding/binary"

	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger/index"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/dgraph-io/badger/v4"
	"github.com/nbd-wtf/go-nostr"
)

// EventByID returns the stored event with the id, or nil.
func (b *Backend) EventByID(c context.Context, id string) (ev *nostr.Event, err error) {
	err = b.View(func(txn *badger.Txn) (err error) {
		_, ev, err = findByID(txn, id)
		return
	})
	return
}

// CheckStatus tells apart a stored id, one removed by a deletion event and
// one the store has never seen.
func (b *Backend) CheckStatus(c context.Context, id string) (st eventstore.EventStatus, err error) {
	err = b.View(func(txn *badger.Txn) (err error) {
		var ev *nostr.Event
		if _, ev, err = findByID(txn, id); err != nil {
			return
		}
		if ev != nil {
			st = eventstore.Saved
			return
		}
		var deleter string
		if deleter, err = tombstone(txn, id); err != nil {
			return
		}
		if deleter != "" {
			st = eventstore.Deleted
		}
		return
	})
	return
}

// Profile returns the newest metadata event of the author, or nil.
func (b *Backend) Profile(c context.Context, pubkey string) (ev *nostr.Event, err error) {
	prefix := index.PubkeyKind.Key(index.HexPrefix(pubkey),
		binary.BigEndian.AppendUint16(nil, kind.ProfileMetadata.ToUint16()))
	err = b.View(func(txn *badger.Txn) (err error) {
		it := txn.NewIterator(badger.IteratorOptions{Reverse: true, Prefix: prefix})
		defer it.Close()
		for it.Seek(append(prefix, maxSuffix...)); it.ValidForPrefix(prefix); it.Next() {
			var candidate *nostr.Event
			if candidate, err = getEvent(txn, index.SerialFromKey(it.Item().Key())); chk.E(err) {
				err = nil
				continue
			}
			if candidate.PubKey == pubkey && candidate.Kind == kind.ProfileMetadata.ToInt() {
				ev = candidate
				return
			}
		}
		return
	})
	return
}
