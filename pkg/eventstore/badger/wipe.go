package badger

import (
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore/badger/index"
)

// Wipe drops every event, index and tombstone, keeping the layout version.
func (b *Backend) Wipe() (err error) {
	b.writeMx.Lock()
	defer b.writeMx.Unlock()
	if err = b.DropPrefix(index.Prefixes...); chk.E(err) {
		return
	}
	log.I.Ln("event store wiped", b.Path)
	return
}
