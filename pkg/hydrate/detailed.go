package hydrate

import (
	"context"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
)

// Interaction is one reaction, repost or zap of a note. For zaps PubKey is
// the sender and Content the zap comment.
type Interaction struct {
	Type      string `json:"type"`
	PubKey    string `json:"pubkey"`
	Content   string `json:"content"`
	ZapAmount uint64 `json:"zapAmount,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// Detailed lists the stored interactions with a note, newest first.
func Detailed(c context.Context, store eventstore.Store, noteID string) (rows []Interaction, err error) {
	if noteID, err = normalize.Hex32(noteID); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = store.Query(c, nostr.Filter{
		Kinds: kind.Ints(kind.Reaction, kind.Repost, kind.Zap),
		Tags:  nostr.TagMap{"e": []string{noteID}},
	}); chk.E(err) {
		return
	}
	rows = make([]Interaction, 0, len(evs))
	for _, ev := range evs {
		row := Interaction{PubKey: ev.PubKey, CreatedAt: int64(ev.CreatedAt)}
		switch kind.Of(ev) {
		case kind.Reaction:
			row.Type, row.Content = TypeReaction, ev.Content
		case kind.Repost:
			row.Type = TypeRepost
		case kind.Zap:
			row.Type = TypeZap
			row.PubKey = decode.ZapSender(ev)
			row.Content = decode.ZapComment(ev)
			row.ZapAmount = decode.ZapAmountSats(ev)
		}
		rows = append(rows, row)
	}
	return
}
