package badger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger/index"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/dgraph-io/badger/v4"
	"github.com/nbd-wtf/go-nostr"
)

// Save verifies and stores an event. A stored id is a Duplicate with no
// error. Ephemeral events, ids deleted by their author, and replaceable
// events older than the stored version are Rejected with the reason as the
// error.
func (b *Backend) Save(c context.Context, ev *nostr.Event) (st eventstore.SaveStatus, err error) {
	if err = eventstore.Verify(ev); err != nil {
		log.D.Ln(err)
		return eventstore.Rejected, err
	}
	if kind.Of(ev).IsEphemeral() {
		return eventstore.Rejected, eventstore.ErrEphemeral
	}
	if err = c.Err(); err != nil {
		return eventstore.Rejected, err
	}
	var raw []byte
	if raw, err = json.Marshal(ev); chk.E(err) {
		return eventstore.Rejected, fmt.Errorf("%v: %w", err, errs.InvalidInput)
	}
	b.writeMx.Lock()
	defer b.writeMx.Unlock()
	st = eventstore.Success
	err = b.Update(func(txn *badger.Txn) (err error) {
		var deleter string
		if deleter, err = tombstone(txn, ev.ID); err != nil {
			return
		}
		if deleter == ev.PubKey {
			st = eventstore.Rejected
			return eventstore.ErrDeleted
		}
		var found *nostr.Event
		if _, found, err = findByID(txn, ev.ID); err != nil {
			return
		}
		if found != nil {
			st = eventstore.Duplicate
			return
		}
		if f, ok := eventstore.ReplaceableFilter(ev); ok {
			var older []*nostr.Event
			var olderSer []uint64
			if err = each(c, txn, f, 0, func(ser uint64, prev *nostr.Event) bool {
				if !eventstore.IsOlder(prev, ev) {
					st = eventstore.Rejected
					return false
				}
				older, olderSer = append(older, prev), append(olderSer, ser)
				return true
			}); err != nil {
				return
			}
			if st == eventstore.Rejected {
				return eventstore.ErrSuperseded
			}
			for i := range older {
				log.T.F("replacing %s with %s", older[i].ID, ev.ID)
				if err = deleteEvent(txn, olderSer[i], older[i]); chk.E(err) {
					return
				}
			}
		}
		if ev.Kind == int(kind.Deletion) {
			if err = applyDeletion(txn, ev); chk.E(err) {
				return
			}
		}
		var ser uint64
		if ser, err = b.Serial(); err != nil {
			return
		}
		if err = txn.Set(index.Event.Key(index.Serial(ser)), raw); err != nil {
			return
		}
		for _, k := range index.ForEvent(ev, ser) {
			if err = txn.Set(k, nil); err != nil {
				return
			}
		}
		return
	})
	if err != nil {
		if st == eventstore.Success {
			st = eventstore.Rejected
		}
		return
	}
	log.T.F("saved %s kind %d status %s", ev.ID, ev.Kind, st)
	return
}

// applyDeletion removes the events referenced by a deletion that belong to
// its author and records a tombstone for every referenced id.
func applyDeletion(txn *badger.Txn, del *nostr.Event) (err error) {
	for _, t := range del.Tags {
		if len(t) < 2 || t[0] != "e" {
			continue
		}
		id := t[1]
		var idb []byte
		if idb, err = hex.DecodeString(id); err != nil || len(idb) != 32 {
			err = nil
			continue
		}
		var ser uint64
		var target *nostr.Event
		if ser, target, err = findByID(txn, id); err != nil {
			return
		}
		if target != nil {
			if target.PubKey != del.PubKey {
				log.D.F("%s may not delete %s owned by %s", del.PubKey,
					id, target.PubKey)
				continue
			}
			if err = deleteEvent(txn, ser, target); err != nil {
				return
			}
		}
		if err = txn.Set(index.Tombstone.Key(idb), []byte(del.PubKey)); err != nil {
			return
		}
	}
	return
}

// findByID returns the serial and event stored under the full id, or a nil
// event.
func findByID(txn *badger.Txn, id string) (ser uint64, ev *nostr.Event, err error) {
	prefix := index.Id.Key(index.HexPrefix(id))
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		s := index.SerialFromKey(it.Item().Key())
		var candidate *nostr.Event
		if candidate, err = getEvent(txn, s); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				err = nil
				continue
			}
			return
		}
		if candidate.ID == id {
			return s, candidate, nil
		}
	}
	return
}

// tombstone returns the pubkey that deleted id, or "".
func tombstone(txn *badger.Txn, id string) (deleter string, err error) {
	idb, e := hex.DecodeString(id)
	if e != nil || len(idb) != 32 {
		return
	}
	var item *badger.Item
	if item, err = txn.Get(index.Tombstone.Key(idb)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = nil
		}
		return
	}
	err = item.Value(func(val []byte) error {
		deleter = string(bytes.Clone(val))
		return nil
	})
	return
}

func deleteEvent(txn *badger.Txn, ser uint64, ev *nostr.Event) (err error) {
	for _, k := range index.ForEvent(ev, ser) {
		if err = txn.Delete(k); err != nil {
			return
		}
	}
	return txn.Delete(index.Event.Key(index.Serial(ser)))
}
