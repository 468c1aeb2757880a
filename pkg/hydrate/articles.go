package hydrate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
)

// Article is a long form post.
type Article struct {
	ID          string   `json:"id"`
	PubKey      string   `json:"pubkey"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Image       string   `json:"image,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	DTag        string   `json:"dTag"`
	PublishedAt int64    `json:"publishedAt"`
	Hashtags    []string `json:"hashtags"`
}

// ArticleFromEvent decodes a kind 30023 event. The publication time is the
// published_at tag, or the creation time when it is missing or malformed.
func ArticleFromEvent(ev *nostr.Event) (a Article) {
	a = Article{
		ID:          ev.ID,
		PubKey:      ev.PubKey,
		Title:       decode.FirstTagValue(ev, "title"),
		Content:     ev.Content,
		Image:       decode.FirstTagValue(ev, "image"),
		Summary:     decode.FirstTagValue(ev, "summary"),
		DTag:        decode.FirstTagValue(ev, "d"),
		PublishedAt: int64(ev.CreatedAt),
		Hashtags:    decode.Hashtags(ev),
	}
	if v := decode.FirstTagValue(ev, "published_at"); v != "" {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil && ts > 0 {
			a.PublishedAt = ts
		}
	}
	if a.Hashtags == nil {
		a.Hashtags = []string{}
	}
	return
}

// Articles lists stored articles newest first, of the given authors or of
// everyone when authors is empty.
func Articles(c context.Context, store eventstore.Store, authors []string, limit int) (as []Article, err error) {
	f := nostr.Filter{Kinds: kind.Ints(kind.Article), Limit: limit}
	if len(authors) > 0 {
		if f.Authors = normalize.ValidHex32(authors); len(f.Authors) == 0 {
			return nil, fmt.Errorf("no valid authors: %w", errs.InvalidInput)
		}
	}
	var evs []*nostr.Event
	if evs, err = store.Query(c, f); chk.E(err) {
		return
	}
	as = make([]Article, 0, len(evs))
	for _, ev := range evs {
		as = append(as, ArticleFromEvent(ev))
	}
	return
}
