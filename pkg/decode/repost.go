package decode

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
)

// Repost is the note a repost points at.
type Repost struct {
	ID        string
	Author    string
	Content   string
	CreatedAt nostr.Timestamp
	Tags      nostr.Tags
	// Embedded is set when the fields came from the JSON encoded note in the
	// repost content rather than from its e and p tags.
	Embedded bool
	// Event is the embedded note when Embedded is set.
	Event *nostr.Event
}

// RepostTarget unwraps a repost. The original note is taken from the JSON
// content when it decodes as an event, else only the id and author are known
// from the e and p tags. ok is false when neither source names a note.
func RepostTarget(ev *nostr.Event) (r Repost, ok bool) {
	if ev.Content != "" {
		inner := &nostr.Event{}
		if err := json.Unmarshal([]byte(ev.Content), inner); err == nil &&
			(inner.ID != "" || inner.PubKey != "") {
			r = Repost{
				ID:        inner.ID,
				Author:    inner.PubKey,
				Content:   inner.Content,
				CreatedAt: inner.CreatedAt,
				Tags:      inner.Tags,
				Embedded:  true,
				Event:     inner,
			}
			if r.ID == "" {
				r.ID = FirstTagValue(ev, "e")
			}
			return r, true
		}
	}
	r = Repost{
		ID:     FirstTagValue(ev, "e"),
		Author: FirstTagValue(ev, "p"),
	}
	return r, r.ID != ""
}
