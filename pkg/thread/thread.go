// Package thread walks reply threads: it finds the root of a note, pulls
// the replies under it from relays and arranges them into a tree.
package thread

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

const (
	MaxHops = 15
	// MaxReplies caps the events one SyncReplies or Collect gathers.
	MaxReplies = 500
	// DefaultDepth is used when SyncReplies is given no depth.
	DefaultDepth   = 3
	DefaultTimeout = 10 * time.Second
)

// Fetcher queries relays, as relaypool.Pool does.
type Fetcher interface {
	Fetch(c context.Context, filters nostr.Filters, timeout time.Duration) ([]*nostr.Event, error)
}

// Resolver reads threads from the store, fetching what is missing from
// relays when it has a Fetcher. Fetched events are saved into the store.
type Resolver struct {
	Store   eventstore.Store
	Fetcher Fetcher
	Timeout time.Duration
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return DefaultTimeout
}

func (r *Resolver) save(c context.Context, evs []*nostr.Event) {
	for _, ev := range evs {
		_, err := r.Store.Save(c, ev)
		chk.D(err)
	}
}

// event loads an event from the store or, on a miss, from relays. It is nil
// when neither has it.
func (r *Resolver) event(c context.Context, id string) (ev *nostr.Event, err error) {
	if ev, err = r.Store.EventByID(c, id); err != nil || ev != nil {
		return
	}
	if r.Fetcher == nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = r.Fetcher.Fetch(c, nostr.Filters{{IDs: []string{id}, Limit: 1}},
		r.timeout()); err != nil {
		return
	}
	for _, e := range evs {
		if e.ID == id {
			r.save(c, []*nostr.Event{e})
			return e, nil
		}
	}
	return
}

// ResolveRoot follows the thread linkage of a note upwards. It stops at a
// note that names its root explicitly, at a note without a parent, on a
// cycle, on a note that cannot be found or after MaxHops, and returns the
// last id it reached.
func (r *Resolver) ResolveRoot(c context.Context, noteID string) (root string, err error) {
	if root, err = normalize.Hex32(noteID); err != nil {
		return
	}
	visited := make(map[string]struct{})
	for hop := 0; hop < MaxHops; hop++ {
		if _, ok := visited[root]; ok {
			log.D.Ln("thread cycle at", root)
			return root, nil
		}
		visited[root] = struct{}{}
		ev, e := r.event(c, root)
		if e != nil {
			log.D.F("resolving %s: %v", root, e)
			return root, nil
		}
		if ev == nil {
			return root, nil
		}
		l := decode.ThreadLinkage(ev)
		switch {
		case !l.IsReply():
			return root, nil
		case l.RootMarked:
			return l.Root, nil
		}
		root = l.Parent
	}
	return
}

// SyncReplies fetches the replies under a note breadth first, one relay
// round trip per level, down to maxDepth levels and at most MaxReplies
// events, then fetches the profiles of their authors the store lacks. It
// returns the number of replies fetched.
func (r *Resolver) SyncReplies(c context.Context, noteID string, maxDepth int) (fetched int, err error) {
	if r.Fetcher == nil {
		return 0, fmt.Errorf("no relays: %w", errs.NotInitialized)
	}
	if noteID, err = normalize.Hex32(noteID); err != nil {
		return
	}
	if maxDepth <= 0 {
		maxDepth = DefaultDepth
	}
	var root *nostr.Event
	if root, err = r.event(c, noteID); chk.D(err) {
		return
	}
	known := map[string]struct{}{noteID: {}}
	authors := make(map[string]struct{})
	if root != nil {
		authors[root.PubKey] = struct{}{}
	}
	frontier := []string{noteID}
	for depth := 0; depth < maxDepth && len(frontier) > 0 && fetched < MaxReplies; depth++ {
		var evs []*nostr.Event
		if evs, err = r.Fetcher.Fetch(c, nostr.Filters{{
			Kinds: kind.Ints(kind.TextNote),
			Tags:  nostr.TagMap{"e": frontier},
			Limit: MaxReplies - fetched,
		}}, r.timeout()); err != nil {
			return
		}
		var next, saved []*nostr.Event
		for _, ev := range evs {
			if _, ok := known[ev.ID]; ok {
				continue
			}
			known[ev.ID] = struct{}{}
			authors[ev.PubKey] = struct{}{}
			next, saved = append(next, ev), append(saved, ev)
			if fetched++; fetched >= MaxReplies {
				break
			}
		}
		r.save(c, saved)
		frontier = frontier[:0]
		for _, ev := range next {
			frontier = append(frontier, ev.ID)
		}
		log.D.F("thread %s level %d: %d replies", noteID, depth+1, len(next))
	}
	var missing []string
	for pk := range authors {
		ev, e := r.Store.Profile(c, pk)
		if e == nil && ev == nil {
			missing = append(missing, pk)
		}
	}
	if len(missing) > 0 {
		profiles, e := r.Fetcher.Fetch(c, nostr.Filters{{
			Kinds:   kind.Ints(kind.ProfileMetadata),
			Authors: missing,
		}}, r.timeout())
		if !chk.D(e) {
			r.save(c, profiles)
		}
	}
	return
}

// Collect gathers the stored replies under rootID breadth first, at most
// MaxReplies of them.
func Collect(c context.Context, store eventstore.Store, rootID string) (root *nostr.Event, replies []*nostr.Event, err error) {
	if rootID, err = normalize.Hex32(rootID); err != nil {
		return
	}
	if root, err = store.EventByID(c, rootID); err != nil {
		return
	}
	known := map[string]*nostr.Event{rootID: root}
	frontier := []string{rootID}
	for len(frontier) > 0 && len(replies) < MaxReplies {
		var evs []*nostr.Event
		if evs, err = store.Query(c, nostr.Filter{
			Kinds: kind.Ints(kind.TextNote),
			Tags:  nostr.TagMap{"e": frontier},
			Limit: MaxReplies - len(replies),
		}); chk.E(err) {
			return
		}
		var next []string
		for _, ev := range evs {
			if _, ok := known[ev.ID]; ok {
				continue
			}
			known[ev.ID] = ev
			replies = append(replies, ev)
			next = append(next, ev.ID)
		}
		frontier = next
	}
	log.T.F("thread %s: %d stored replies", rootID, len(replies))
	return
}
