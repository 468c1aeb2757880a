// Package compose builds the events the engine publishes. Builders return
// unsigned events; Finish signs them.
package compose

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/slices"
)

// Finish signs ev with s and returns it.
func Finish(s signer.Signer, ev *nostr.Event) (*nostr.Event, error) {
	if err := signer.Sign(ev, s); err != nil {
		return nil, err
	}
	return ev, nil
}

func event(k kind.T, content string, tags nostr.Tags) *nostr.Event {
	if tags == nil {
		tags = nostr.Tags{}
	}
	return &nostr.Event{
		Kind:      k.ToInt(),
		Content:   content,
		Tags:      tags,
		CreatedAt: nostr.Now(),
	}
}

// Note is a text note with a t tag for every hashtag given or written in the
// content.
func Note(content string, hashtags ...string) *nostr.Event {
	for _, w := range strings.Fields(content) {
		if len(w) > 1 && w[0] == '#' {
			hashtags = append(hashtags, strings.TrimRight(w[1:], ".,;:!?"))
		}
	}
	var tags nostr.Tags
	var seen []string
	for _, h := range hashtags {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "#"))
		if h == "" || slices.Contains(seen, h) {
			continue
		}
		seen = append(seen, h)
		tags = append(tags, nostr.Tag{"t", h})
	}
	return event(kind.TextNote, content, tags)
}

// Reaction reacts to target; an empty content is a like.
func Reaction(target *nostr.Event, content string) *nostr.Event {
	if content == "" {
		content = "+"
	}
	return event(kind.Reaction, content, nostr.Tags{
		{"e", target.ID},
		{"p", target.PubKey},
		{"k", strconv.Itoa(target.Kind)},
	})
}

// Reply answers parent with root and reply markers, mentioning the parent
// author and everyone the parent mentioned.
func Reply(parent *nostr.Event, content string) *nostr.Event {
	root := parent.ID
	if l := decode.ThreadLinkage(parent); l.Root != "" {
		root = l.Root
	}
	tags := nostr.Tags{{"e", root, "", "root"}}
	if root != parent.ID {
		tags = append(tags, nostr.Tag{"e", parent.ID, "", "reply"})
	}
	tags = append(tags, nostr.Tag{"p", parent.PubKey})
	for _, p := range decode.TagValues(parent, "p") {
		if p != parent.PubKey {
			tags = append(tags, nostr.Tag{"p", p})
		}
	}
	return event(kind.TextNote, content, tags)
}

// Repost embeds target as JSON content.
func Repost(target *nostr.Event, relayHint string) *nostr.Event {
	raw, _ := json.Marshal(target)
	return event(kind.Repost, string(raw), nostr.Tags{
		{"e", target.ID, relayHint},
		{"p", target.PubKey},
	})
}

// Quote is a note citing target with a q tag.
func Quote(target *nostr.Event, content string) *nostr.Event {
	return event(kind.TextNote, content, nostr.Tags{
		{"q", target.ID},
		{"p", target.PubKey},
	})
}

// Deletion requests removal of the given ids.
func Deletion(ids []string, reason string) *nostr.Event {
	var tags nostr.Tags
	for _, id := range normalize.ValidHex32(ids) {
		tags = append(tags, nostr.Tag{"e", id})
	}
	return event(kind.Deletion, reason, tags)
}

// ProfileMetadata encodes metadata, usually a hydrate.Profile, as a kind 0.
func ProfileMetadata(metadata any) (ev *nostr.Event, err error) {
	var raw []byte
	if raw, err = json.Marshal(metadata); err != nil {
		return
	}
	return event(kind.ProfileMetadata, string(raw), nil), nil
}

func FollowList(pubkeys []string) *nostr.Event {
	var tags nostr.Tags
	for _, p := range normalize.ValidHex32(pubkeys) {
		tags = append(tags, nostr.Tag{"p", p})
	}
	return event(kind.FollowList, "", tags)
}

// MuteList holds muted pubkeys as p tags and muted words as word tags.
func MuteList(pubkeys, words []string) *nostr.Event {
	var tags nostr.Tags
	for _, p := range normalize.ValidHex32(pubkeys) {
		tags = append(tags, nostr.Tag{"p", p})
	}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			tags = append(tags, nostr.Tag{"word", w})
		}
	}
	return event(kind.MuteList, "", tags)
}

// ZapRequest asks the recipient's lightning service to zap, optionally for
// a note. It is sent to the service, not to relays.
type ZapRequest struct {
	Recipient   string
	EventID     string
	AmountMsats uint64
	Relays      []string
	LNURL       string
	Comment     string
}

func (z ZapRequest) Event() *nostr.Event {
	relays := nostr.Tag{"relays"}
	for _, r := range z.Relays {
		if n := normalize.URL(r); n != "" {
			relays = append(relays, n)
		}
	}
	tags := nostr.Tags{
		relays,
		{"amount", strconv.FormatUint(z.AmountMsats, 10)},
		{"p", z.Recipient},
	}
	if z.LNURL != "" {
		tags = append(tags, nostr.Tag{"lnurl", z.LNURL})
	}
	if z.EventID != "" {
		tags = append(tags, nostr.Tag{"e", z.EventID})
	}
	return event(kind.ZapRequest, z.Comment, tags)
}

// RelayEntry is one relay of a relay list.
type RelayEntry struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// RelayList is the author's outbox and inbox relays; a relay used both ways
// carries no marker.
func RelayList(relays []RelayEntry) *nostr.Event {
	var tags nostr.Tags
	for _, r := range relays {
		u := normalize.URL(r.URL)
		switch {
		case u == "" || (!r.Read && !r.Write):
		case r.Read && r.Write:
			tags = append(tags, nostr.Tag{"r", u})
		case r.Read:
			tags = append(tags, nostr.Tag{"r", u, "read"})
		default:
			tags = append(tags, nostr.Tag{"r", u, "write"})
		}
	}
	return event(kind.RelayListMetadata, "", tags)
}

// AllRelays is the relay tag value of a vanish request addressed to every
// relay.
const AllRelays = "ALL_RELAYS"

// Vanish asks the given relays, or every relay when none are given, to drop
// everything from the author.
func Vanish(relays []string, reason string) *nostr.Event {
	var tags nostr.Tags
	for _, r := range relays {
		if r == AllRelays {
			continue
		}
		if n := normalize.URL(r); n != "" {
			tags = append(tags, nostr.Tag{"relay", n})
		}
	}
	if len(tags) == 0 {
		tags = nostr.Tags{{"relay", AllRelays}}
	}
	return event(kind.Vanish, reason, tags)
}

// HTTPAuth authorizes one HTTP request; payload is the hex sha256 of the
// body, if any.
func HTTPAuth(url, method, payload string) *nostr.Event {
	tags := nostr.Tags{{"u", url}, {"method", strings.ToUpper(method)}}
	if payload != "" {
		tags = append(tags, nostr.Tag{"payload", payload})
	}
	return event(kind.HTTPAuth, "", tags)
}

// BlossomAuth authorizes a blob server action such as upload, get or delete
// on the given blob hashes until it expires.
func BlossomAuth(action, content string, hashes []string, expires time.Time) *nostr.Event {
	tags := nostr.Tags{{"t", action}}
	for _, h := range hashes {
		tags = append(tags, nostr.Tag{"x", h})
	}
	tags = append(tags, nostr.Tag{"expiration", strconv.FormatInt(expires.Unix(), 10)})
	return event(kind.BlossomAuth, content, tags)
}

// Auth answers the AUTH challenge of a relay.
func Auth(relayURL, challenge string) *nostr.Event {
	return event(kind.ClientAuthentication, "", nostr.Tags{
		{"relay", relayURL},
		{"challenge", challenge},
	})
}
