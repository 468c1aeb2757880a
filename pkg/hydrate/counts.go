package hydrate

import (
	"context"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
)

// InteractionCounts are the reactions, reposts, zapped sats and replies
// referencing a note, and whether the user did each of them.
type InteractionCounts struct {
	Reactions   int    `json:"reactions"`
	Reposts     int    `json:"reposts"`
	Zaps        uint64 `json:"zaps"`
	Replies     int    `json:"replies"`
	HasReacted  bool   `json:"hasReacted"`
	HasReposted bool   `json:"hasReposted"`
	HasZapped   bool   `json:"hasZapped"`
}

// InteractionKinds are the kinds counted as interactions with a note.
var InteractionKinds = kind.Ints(kind.Reaction, kind.Repost, kind.Zap, kind.TextNote)

// Counts tallies the stored interactions with each note. An event counts
// once for every note it references however many e tags repeat it. user may
// be empty. Invalid ids are left out of the result.
func Counts(c context.Context, store eventstore.Store, noteIDs []string,
	user string) (counts map[string]InteractionCounts, err error) {

	ids := normalize.ValidHex32(noteIDs)
	counts = make(map[string]InteractionCounts, len(ids))
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		counts[id] = InteractionCounts{}
	}
	var evs []*nostr.Event
	if evs, err = store.Query(c, nostr.Filter{
		Kinds: InteractionKinds,
		Tags:  nostr.TagMap{"e": ids},
	}); chk.E(err) {
		return
	}
	for _, ev := range evs {
		var sats uint64
		var zapper string
		if kind.Of(ev) == kind.Zap {
			sats, zapper = decode.ZapAmountSats(ev), decode.ZapSender(ev)
		}
		counted := make(map[string]struct{})
		for _, ref := range decode.ReferencedIDs(ev) {
			ic, ok := counts[ref]
			if !ok {
				continue
			}
			if _, dup := counted[ref]; dup {
				continue
			}
			counted[ref] = struct{}{}
			mine := user != "" && ev.PubKey == user
			switch kind.Of(ev) {
			case kind.Reaction:
				ic.Reactions++
				ic.HasReacted = ic.HasReacted || mine
			case kind.Repost:
				ic.Reposts++
				ic.HasReposted = ic.HasReposted || mine
			case kind.Zap:
				ic.Zaps += sats
				ic.HasZapped = ic.HasZapped || (user != "" && zapper == user)
			case kind.TextNote:
				ic.Replies++
			}
			counts[ref] = ic
		}
	}
	return
}
