package hydrate

import (
	"context"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/nbd-wtf/go-nostr"
)

// Note is a feed entry. For a repost the fields describe the reposted note
// and RepostedBy is the author of the repost.
type Note struct {
	ID            string     `json:"id"`
	PubKey        string     `json:"pubkey"`
	Content       string     `json:"content"`
	CreatedAt     int64      `json:"created_at"`
	Tags          nostr.Tags `json:"tags"`
	IsRepost      bool       `json:"isRepost"`
	RepostedBy    string     `json:"repostedBy,omitempty"`
	IsReply       bool       `json:"isReply"`
	RootID        string     `json:"rootId,omitempty"`
	ParentID      string     `json:"parentId,omitempty"`
	AuthorName    string     `json:"authorName,omitempty"`
	AuthorImage   string     `json:"authorImage,omitempty"`
	ReactionCount int        `json:"reactionCount"`
	RepostCount   int        `json:"repostCount"`
	ReplyCount    int        `json:"replyCount"`
	// ZapCount is the sum of zapped sats.
	ZapCount uint64 `json:"zapCount"`
}

type Options struct {
	// FilterReplies leaves replies out. Reposts are always kept.
	FilterReplies bool
	MutedPubkeys  []string
	MutedWords    []string
}

// Notes hydrates events in the order given, unwrapping reposts and dropping
// muted events. A repost that only names its note by tag is filled in from
// the store when the note is there.
func Notes(c context.Context, store eventstore.Store, evs []*nostr.Event, o Options) (notes []Note, err error) {
	notes = make([]Note, 0, len(evs))
	for _, ev := range evs {
		if decode.IsMuted(ev, o.MutedPubkeys, o.MutedWords) {
			continue
		}
		var n Note
		if kind.Of(ev).IsRepost() {
			var ok bool
			if n, ok = unwrap(c, store, ev); !ok {
				continue
			}
		} else {
			n = fromEvent(ev)
			if o.FilterReplies && n.IsReply {
				continue
			}
		}
		notes = append(notes, n)
	}
	if len(notes) == 0 {
		return
	}
	ids := make([]string, 0, len(notes))
	authors := make([]string, 0, len(notes))
	for _, n := range notes {
		ids = append(ids, n.ID)
		authors = append(authors, n.PubKey)
	}
	var profiles map[string]*Profile
	if profiles, err = Profiles(c, store, authors); err != nil {
		return
	}
	var counts map[string]InteractionCounts
	if counts, err = Counts(c, store, ids, ""); err != nil {
		return
	}
	for i := range notes {
		n := &notes[i]
		if p, ok := profiles[n.PubKey]; ok {
			n.AuthorName, n.AuthorImage = p.BestName(), p.image()
		}
		ic := counts[n.ID]
		n.ReactionCount, n.RepostCount = ic.Reactions, ic.Reposts
		n.ReplyCount, n.ZapCount = ic.Replies, ic.Zaps
	}
	return
}

func fromEvent(ev *nostr.Event) (n Note) {
	n = Note{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		Content:   ev.Content,
		CreatedAt: int64(ev.CreatedAt),
		Tags:      ev.Tags,
		IsReply:   decode.IsReply(ev),
	}
	if n.Tags == nil {
		n.Tags = nostr.Tags{}
	}
	if n.IsReply {
		l := decode.ThreadLinkage(ev)
		n.RootID, n.ParentID = l.Root, l.Parent
	}
	return
}

func unwrap(c context.Context, store eventstore.Store, ev *nostr.Event) (n Note, ok bool) {
	var r decode.Repost
	if r, ok = decode.RepostTarget(ev); !ok {
		return
	}
	inner := r.Event
	if !r.Embedded {
		stored, err := store.EventByID(c, r.ID)
		chk.D(err)
		inner = stored
	}
	if inner != nil {
		n = fromEvent(inner)
		if n.ID == "" {
			n.ID = r.ID
		}
	} else {
		n = Note{ID: r.ID, PubKey: r.Author, CreatedAt: int64(ev.CreatedAt), Tags: nostr.Tags{}}
	}
	n.IsRepost, n.RepostedBy = true, ev.PubKey
	return
}
