package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/hydrate"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
	"lukechampine.com/frand"
)

const (
	// ProfileScanLimit is the number of profiles SearchProfiles looks at.
	ProfileScanLimit = 2000
	// NoteScanLimit is the number of notes SearchNotes looks at.
	NoteScanLimit = 500
	DefaultLimit  = 50
)

// FeedKinds are the kinds shown in feeds.
var FeedKinds = kind.Ints(kind.TextNote, kind.Repost)

func limitOr(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// Profile is the stored profile of pubkey, nil when there is none.
func (e *Engine) Profile(c context.Context, pubkey string) (p *hydrate.Profile, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if pubkey, err = normalize.Hex32(pubkey); err != nil {
		return
	}
	var ev *nostr.Event
	if ev, err = s.Profile(c, pubkey); err != nil || ev == nil {
		return
	}
	return hydrate.ParseProfile(ev)
}

// Profiles maps each pubkey with a stored, readable profile to it.
func (e *Engine) Profiles(c context.Context, pubkeys []string) (ps map[string]*hydrate.Profile, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return hydrate.Profiles(c, s, pubkeys)
}

func (e *Engine) HasProfile(c context.Context, pubkey string) (ok bool, err error) {
	return e.has(c, pubkey, kind.ProfileMetadata)
}

func (e *Engine) HasFollowingList(c context.Context, pubkey string) (ok bool, err error) {
	return e.has(c, pubkey, kind.FollowList)
}

func (e *Engine) HasMuteList(c context.Context, pubkey string) (ok bool, err error) {
	return e.has(c, pubkey, kind.MuteList)
}

func (e *Engine) has(c context.Context, pubkey string, k kind.T) (ok bool, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if pubkey, err = normalize.Hex32(pubkey); err != nil {
		return
	}
	var n int
	n, err = s.Count(c, nostr.Filter{Authors: []string{pubkey}, Kinds: kind.Ints(k), Limit: 1})
	return n > 0, err
}

// profiles parses up to scan stored profiles, newest first, keeping those
// keep accepts until limit are found.
func (e *Engine) profiles(c context.Context, scan, limit int,
	keep func(p *hydrate.Profile) bool) (ps []*hydrate.Profile, evs []*nostr.Event, err error) {

	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if evs, err = s.Query(c, nostr.Filter{
		Kinds: kind.Ints(kind.ProfileMetadata),
		Limit: scan,
	}); chk.E(err) {
		return
	}
	if keep == nil {
		return
	}
	ps = []*hydrate.Profile{}
	for _, ev := range evs {
		p, perr := hydrate.ParseProfile(ev)
		if chk.T(perr) || !keep(p) {
			continue
		}
		if ps = append(ps, p); len(ps) >= limit {
			break
		}
	}
	return
}

// SearchProfiles finds stored profiles whose name, display name or nip05
// contains query, ignoring case.
func (e *Engine) SearchProfiles(c context.Context, query string, limit int) (ps []*hydrate.Profile, err error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("empty profile search: %w", errs.InvalidInput)
	}
	ps, _, err = e.profiles(c, ProfileScanLimit, limitOr(limit), func(p *hydrate.Profile) bool {
		return strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.DisplayName), q) ||
			strings.Contains(strings.ToLower(p.Nip05), q)
	})
	return
}

// RandomProfiles picks stored profiles that have a picture.
func (e *Engine) RandomProfiles(c context.Context, limit int) (ps []*hydrate.Profile, err error) {
	limit = limitOr(limit)
	var evs []*nostr.Event
	if _, evs, err = e.profiles(c, limit*3, limit, nil); err != nil {
		return
	}
	frand.Shuffle(len(evs), func(i, j int) { evs[i], evs[j] = evs[j], evs[i] })
	ps = []*hydrate.Profile{}
	for _, ev := range evs {
		p, perr := hydrate.ParseProfile(ev)
		if chk.T(perr) || p.Picture == "" {
			continue
		}
		if ps = append(ps, p); len(ps) >= limit {
			break
		}
	}
	return
}

func (e *Engine) latest(c context.Context, pubkey string, k kind.T) (ev *nostr.Event, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	if pubkey, err = normalize.Hex32(pubkey); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = s.Query(c, nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   kind.Ints(k),
		Limit:   1,
	}); err != nil || len(evs) == 0 {
		return
	}
	return evs[0], nil
}

// FollowingList is the p tags of the stored follow list of pubkey.
func (e *Engine) FollowingList(c context.Context, pubkey string) (follows []string, err error) {
	var ev *nostr.Event
	if ev, err = e.latest(c, pubkey, kind.FollowList); err != nil || ev == nil {
		return
	}
	return normalize.ValidHex32(decode.TagValues(ev, "p")), nil
}

// MuteList is the muted pubkeys and words of the stored mute list of pubkey.
func (e *Engine) MuteList(c context.Context, pubkey string) (pubkeys, words []string, err error) {
	var ev *nostr.Event
	if ev, err = e.latest(c, pubkey, kind.MuteList); err != nil || ev == nil {
		return
	}
	return normalize.ValidHex32(decode.TagValues(ev, "p")), decode.TagValues(ev, "word"), nil
}

// noteOptions applies the reply filter of the configuration and the mute
// list of the signer, if there is one.
func (e *Engine) noteOptions(c context.Context, filterReplies bool) (o hydrate.Options) {
	o.FilterReplies = filterReplies
	if pk := e.PublicKey(); pk != "" {
		var err error
		if o.MutedPubkeys, o.MutedWords, err = e.MuteList(c, pk); chk.D(err) {
			o.MutedPubkeys, o.MutedWords = nil, nil
		}
	}
	return
}

func (e *Engine) notes(c context.Context, f nostr.Filter, filterReplies bool) (ns []hydrate.Note, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = s.Query(c, f); chk.E(err) {
		return
	}
	return hydrate.Notes(c, s, evs, e.noteOptions(c, filterReplies))
}

// FeedNotes are the notes and reposts of authors, or of everyone when no
// authors are given, newest first.
func (e *Engine) FeedNotes(c context.Context, authors []string, limit int) (ns []hydrate.Note, err error) {
	f := nostr.Filter{Kinds: FeedKinds, Limit: limitOr(limit)}
	if len(authors) > 0 {
		if f.Authors = normalize.ValidHex32(authors); len(f.Authors) == 0 {
			return nil, fmt.Errorf("no valid authors: %w", errs.InvalidInput)
		}
	}
	return e.notes(c, f, e.cfg.FilterReplies)
}

func (e *Engine) ProfileNotes(c context.Context, pubkey string, limit int) (ns []hydrate.Note, err error) {
	if pubkey, err = normalize.Hex32(pubkey); err != nil {
		return
	}
	return e.notes(c, nostr.Filter{
		Authors: []string{pubkey},
		Kinds:   FeedKinds,
		Limit:   limitOr(limit),
	}, false)
}

func (e *Engine) HashtagNotes(c context.Context, hashtag string, limit int) (ns []hydrate.Note, err error) {
	tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hashtag), "#"))
	if tag == "" {
		return nil, fmt.Errorf("empty hashtag: %w", errs.InvalidInput)
	}
	return e.notes(c, nostr.Filter{
		Kinds: kind.Ints(kind.TextNote),
		Tags:  nostr.TagMap{"t": []string{tag}},
		Limit: limitOr(limit),
	}, e.cfg.FilterReplies)
}

// Replies are the stored notes referencing noteID.
func (e *Engine) Replies(c context.Context, noteID string, limit int) (ns []hydrate.Note, err error) {
	if noteID, err = normalize.Hex32(noteID); err != nil {
		return
	}
	return e.notes(c, nostr.Filter{
		Kinds: kind.Ints(kind.TextNote),
		Tags:  nostr.TagMap{"e": []string{noteID}},
		Limit: limitOr(limit),
	}, false)
}

// SearchNotes finds recent stored notes containing query, ignoring case.
func (e *Engine) SearchNotes(c context.Context, query string, limit int) (ns []hydrate.Note, err error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("empty note search: %w", errs.InvalidInput)
	}
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = s.Query(c, nostr.Filter{
		Kinds: kind.Ints(kind.TextNote),
		Limit: NoteScanLimit,
	}); chk.E(err) {
		return
	}
	limit = limitOr(limit)
	var found []*nostr.Event
	for _, ev := range evs {
		if strings.Contains(strings.ToLower(ev.Content), q) {
			if found = append(found, ev); len(found) >= limit {
				break
			}
		}
	}
	return hydrate.Notes(c, s, found, e.noteOptions(c, false))
}

// Notifications are the stored events tagging user, newest first.
func (e *Engine) Notifications(c context.Context, user string, limit int) (ns []hydrate.Notification, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return hydrate.Notifications(c, s, user, limit)
}

func (e *Engine) Articles(c context.Context, authors []string, limit int) (as []hydrate.Article, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	return hydrate.Articles(c, s, authors, limitOr(limit))
}
