package badger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger/index"
	"github.com/dgraph-io/badger/v4"
)

// currentVersion is the layout documented in the index package.
const currentVersion uint16 = 1

func (b *Backend) runMigrations() (err error) {
	return b.Update(func(txn *badger.Txn) (err error) {
		var version uint16
		var item *badger.Item
		item, err = txn.Get([]byte{byte(index.Version)})
		if errors.Is(err, badger.ErrKeyNotFound) {
			version = 0
		} else if err != nil {
			return
		} else if err = item.Value(func(val []byte) (err error) {
			if len(val) == 2 {
				version = binary.BigEndian.Uint16(val)
			}
			return nil
		}); chk.E(err) {
			return
		}
		if version > currentVersion {
			return fmt.Errorf("store layout version %d is newer than %d",
				version, currentVersion)
		}
		// do the migrations in increasing steps (there is no rollback)
		if version < 1 {
			if err = b.bumpVersion(txn, 1); chk.E(err) {
				return
			}
		}
		return nil
	})
}

func (b *Backend) bumpVersion(txn *badger.Txn, version uint16) (err error) {
	log.D.F("store layout version %d", version)
	return txn.Set([]byte{byte(index.Version)},
		binary.BigEndian.AppendUint16(nil, version))
}

func (b *Backend) version() (v uint16, err error) {
	err = b.View(func(txn *badger.Txn) (err error) {
		var item *badger.Item
		if item, err = txn.Get([]byte{byte(index.Version)}); err != nil {
			return
		}
		return item.Value(func(val []byte) (err error) {
			if len(val) == 2 {
				v = binary.BigEndian.Uint16(val)
			}
			return
		})
	})
	return
}
