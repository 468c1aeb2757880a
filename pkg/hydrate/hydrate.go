// Package hydrate turns stored events into the records a client shows:
// notes with their authors and interaction counts, notifications, articles
// and profiles.
package hydrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
)

var log, chk = slog.New(os.Stderr)

// Profile is the kind 0 metadata of an author.
type Profile struct {
	PubKey      string `json:"pubkey"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
	Picture     string `json:"picture"`
	Banner      string `json:"banner"`
	Nip05       string `json:"nip05"`
	Lud16       string `json:"lud16"`
	Website     string `json:"website"`
}

// ParseProfile decodes the content of a kind 0 event.
func ParseProfile(ev *nostr.Event) (p *Profile, err error) {
	if ev == nil || ev.Kind != int(kind.ProfileMetadata) {
		return nil, fmt.Errorf("not a profile event: %w", errs.InvalidInput)
	}
	p = &Profile{}
	if err = json.Unmarshal([]byte(ev.Content), p); err != nil {
		return nil, fmt.Errorf("profile of %s: %v: %w", ev.PubKey, err, errs.InvalidInput)
	}
	p.PubKey = ev.PubKey
	return
}

// BestName is the display name, or the name when there is none.
func (p *Profile) BestName() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

func (p *Profile) image() string {
	if p == nil {
		return ""
	}
	return p.Picture
}

// Profiles loads the stored profile of each author. Authors without a
// stored or readable profile are missing from the map.
func Profiles(c context.Context, store eventstore.Store, pubkeys []string) (profiles map[string]*Profile, err error) {
	profiles = make(map[string]*Profile, len(pubkeys))
	for _, pk := range pubkeys {
		if _, ok := profiles[pk]; ok || pk == "" {
			continue
		}
		var ev *nostr.Event
		if ev, err = store.Profile(c, pk); chk.E(err) {
			return
		}
		if ev == nil {
			continue
		}
		p, e := ParseProfile(ev)
		if chk.D(e) {
			continue
		}
		profiles[pk] = p
	}
	return
}
