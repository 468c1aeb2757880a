package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/nbd-wtf/go-nostr"
)

// deleteBatch is the number of events removed per transaction.
const deleteBatch = 256

type stored struct {
	ser uint64
	ev  *nostr.Event
}

// DeleteByFilter removes every event matching f regardless of its limit and
// returns how many were removed.
func (b *Backend) DeleteByFilter(c context.Context, f nostr.Filter) (n int, err error) {
	b.writeMx.Lock()
	defer b.writeMx.Unlock()
	var found []stored
	if err = b.View(func(txn *badger.Txn) error {
		return each(c, txn, f, 0, func(ser uint64, ev *nostr.Event) bool {
			found = append(found, stored{ser, ev})
			return true
		})
	}); chk.E(err) {
		return
	}
	for len(found) > 0 {
		batch := found[:min(deleteBatch, len(found))]
		found = found[len(batch):]
		if err = b.Update(func(txn *badger.Txn) (err error) {
			for _, s := range batch {
				if err = deleteEvent(txn, s.ser, s.ev); err != nil {
					return
				}
			}
			return
		}); chk.E(err) {
			return
		}
		n += len(batch)
	}
	if n > 0 {
		b.gc()
	}
	log.D.F("deleted %d events", n)
	return
}

// gc reclaims value log space after deletes.
func (b *Backend) gc() {
	if err := b.RunValueLogGC(0.8); err != nil &&
		!errors.Is(err, badger.ErrNoRewrite) &&
		!errors.Is(err, badger.ErrGCInMemoryMode) {
		log.D.Ln("value log gc:", err)
	}
}
