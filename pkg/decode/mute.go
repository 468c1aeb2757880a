package decode

import (
	"strings"

	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/nbd-wtf/go-nostr"
)

// IsMuted reports whether an event should be hidden: its author is muted,
// its content contains a muted word (case insensitive), or it is a repost of
// a note by a muted author. Empty words never match.
func IsMuted(ev *nostr.Event, mutedPubkeys, mutedWords []string) bool {
	if len(mutedPubkeys) == 0 && len(mutedWords) == 0 {
		return false
	}
	for _, pk := range mutedPubkeys {
		if pk == ev.PubKey {
			return true
		}
	}
	if len(mutedWords) > 0 {
		content := strings.ToLower(ev.Content)
		for _, w := range mutedWords {
			if w != "" && strings.Contains(content, strings.ToLower(w)) {
				return true
			}
		}
	}
	if kind.Of(ev).IsRepost() {
		original := FirstTagValue(ev, "p")
		if r, ok := RepostTarget(ev); ok && r.Author != "" {
			original = r.Author
		}
		for _, pk := range mutedPubkeys {
			if original != "" && pk == original {
				return true
			}
		}
	}
	return false
}
