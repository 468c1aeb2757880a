package engine

import (
	"context"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/hydrate"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/slices"
)

// BatchResult counts the outcomes of saving a set of events.
type BatchResult struct {
	Saved     int `json:"saved"`
	Duplicate int `json:"duplicate"`
	Rejected  int `json:"rejected"`
}

// Stats are the number of stored events per kind of interest.
type Stats struct {
	TotalEvents int `json:"totalEvents"`
	TextNotes   int `json:"textNotes"`
	Metadata    int `json:"metadata"`
	Contacts    int `json:"contacts"`
	Reactions   int `json:"reactions"`
	Reposts     int `json:"reposts"`
	Zaps        int `json:"zaps"`
	Articles    int `json:"articles"`
}

// CleanupKinds are the kinds CleanupOldEvents removes.
var CleanupKinds = kind.Ints(kind.TextNote, kind.Repost, kind.Reaction, kind.Zap)

const day = 24 * 60 * 60

// saveAll stores evs one by one and never stops on a failure.
func (e *Engine) saveAll(c context.Context, s eventstore.Store, evs []*nostr.Event) (res BatchResult) {
	for _, ev := range evs {
		st, err := s.Save(c, ev)
		switch {
		case err != nil:
			log.T.F("not storing %s: %v", ev.ID, err)
			res.Rejected++
		case st == eventstore.Success:
			res.Saved++
		case st == eventstore.Duplicate:
			res.Duplicate++
		default:
			res.Rejected++
		}
	}
	return
}

// SaveEvent stores ev and reports whether it was new. A duplicate is not an
// error; a rejected event is.
func (e *Engine) SaveEvent(c context.Context, ev *nostr.Event) (saved bool, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	var st eventstore.SaveStatus
	if st, err = s.Save(c, ev); err != nil {
		return
	}
	return st == eventstore.Success, nil
}

// SaveEvents stores every event it can.
func (e *Engine) SaveEvents(c context.Context, evs []*nostr.Event) (res BatchResult, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return e.saveAll(c, s, evs), nil
}

// Event is the stored event with the id, nil when there is none.
func (e *Engine) Event(c context.Context, id string) (ev *nostr.Event, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if id, err = normalize.Hex32(id); err != nil {
		return
	}
	return s.EventByID(c, id)
}

func (e *Engine) EventExists(c context.Context, id string) (ok bool, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if id, err = normalize.Hex32(id); err != nil {
		return
	}
	var st eventstore.EventStatus
	st, err = s.CheckStatus(c, id)
	return st == eventstore.Saved, err
}

func (e *Engine) QueryEvents(c context.Context, f nostr.Filter) (evs []*nostr.Event, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return s.Query(c, f)
}

func (e *Engine) Count(c context.Context, f nostr.Filter) (n int, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return s.Count(c, f)
}

// Wipe removes every stored event.
func (e *Engine) Wipe() (err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	log.W.Ln("wiping event store")
	return s.Wipe()
}

// OldestEvents are the limit oldest stored events, oldest first.
func (e *Engine) OldestEvents(c context.Context, limit int) (evs []*nostr.Event, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	limit = limitOr(limit)
	// the scan runs newest first, so the last limit events seen are the oldest
	ring := make([]*nostr.Event, 0, limit)
	var seen int
	if err = s.Scan(c, nostr.Filter{}, func(ev *nostr.Event) bool {
		if len(ring) < limit {
			ring = append(ring, ev)
		} else {
			ring[seen%limit] = ev
		}
		seen++
		return true
	}); chk.E(err) {
		return
	}
	evs = make([]*nostr.Event, 0, len(ring))
	if seen > limit {
		start := seen % limit
		evs = append(append(evs, ring[start:]...), ring[:start]...)
	} else {
		evs = append(evs, ring...)
	}
	slices.Reverse(evs)
	return
}

// CleanupOldEvents removes notes, reposts, reactions and zaps older than
// days, or the configured retention when days is not positive.
func (e *Engine) CleanupOldEvents(c context.Context, days int) (removed int, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if days <= 0 {
		days = e.cfg.CleanupDays
	}
	if days <= 0 {
		return 0, fmt.Errorf("cleanup needs a retention in days: %w", errs.InvalidInput)
	}
	cutoff := nostr.Now() - nostr.Timestamp(days*day)
	if removed, err = s.DeleteByFilter(c, nostr.Filter{
		Kinds: CleanupKinds,
		Until: &cutoff,
	}); chk.E(err) {
		return
	}
	log.I.F("removed %d events older than %d days", removed, days)
	return
}

func (e *Engine) Stats(c context.Context) (st Stats, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	for _, q := range []struct {
		n *int
		k []kind.T
	}{
		{&st.TotalEvents, nil},
		{&st.TextNotes, []kind.T{kind.TextNote}},
		{&st.Metadata, []kind.T{kind.ProfileMetadata}},
		{&st.Contacts, []kind.T{kind.FollowList}},
		{&st.Reactions, []kind.T{kind.Reaction}},
		{&st.Reposts, []kind.T{kind.Repost}},
		{&st.Zaps, []kind.T{kind.Zap}},
		{&st.Articles, []kind.T{kind.Article}},
	} {
		f := nostr.Filter{}
		if len(q.k) > 0 {
			f.Kinds = kind.Ints(q.k...)
		}
		if *q.n, err = s.Count(c, f); chk.E(err) {
			return
		}
	}
	return
}

// InteractionCounts counts the stored interactions with one note. user may
// be empty.
func (e *Engine) InteractionCounts(c context.Context, noteID, user string) (ic hydrate.InteractionCounts, err error) {
	var counts map[string]hydrate.InteractionCounts
	if counts, err = e.BatchInteractionCounts(c, []string{noteID}, user); err != nil {
		return
	}
	if noteID, err = normalize.Hex32(noteID); err != nil {
		return
	}
	return counts[noteID], nil
}

func (e *Engine) BatchInteractionCounts(c context.Context, noteIDs []string,
	user string) (counts map[string]hydrate.InteractionCounts, err error) {

	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return hydrate.Counts(c, s, noteIDs, user)
}

// userInteraction returns the newest event of kind k by user referencing
// noteID.
func (e *Engine) userInteraction(c context.Context, noteID, user string, k kind.T) (ev *nostr.Event, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if noteID, err = normalize.Hex32(noteID); err != nil {
		return
	}
	if user, err = normalize.Hex32(user); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = s.Query(c, nostr.Filter{
		Authors: []string{user},
		Kinds:   kind.Ints(k),
		Tags:    nostr.TagMap{"e": []string{noteID}},
		Limit:   1,
	}); err != nil || len(evs) == 0 {
		return
	}
	return evs[0], nil
}

func (e *Engine) HasUserReacted(c context.Context, noteID, user string) (ok bool, err error) {
	var ev *nostr.Event
	ev, err = e.userInteraction(c, noteID, user, kind.Reaction)
	return ev != nil, err
}

func (e *Engine) HasUserReposted(c context.Context, noteID, user string) (ok bool, err error) {
	var ev *nostr.Event
	ev, err = e.userInteraction(c, noteID, user, kind.Repost)
	return ev != nil, err
}

// FindUserRepost is the id of the repost of noteID by user, empty when there
// is none. Deleting it undoes the repost.
func (e *Engine) FindUserRepost(c context.Context, user, noteID string) (id string, err error) {
	var ev *nostr.Event
	if ev, err = e.userInteraction(c, noteID, user, kind.Repost); err != nil || ev == nil {
		return
	}
	return ev.ID, nil
}

func (e *Engine) DetailedInteractions(c context.Context, noteID string) (rows []hydrate.Interaction, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return hydrate.Detailed(c, s, noteID)
}
