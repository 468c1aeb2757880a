// Package decode derives facts from the tags and content of events: zap
// amounts and senders, thread position, repost targets and mute matches. All
// functions are pure.
package decode

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// FirstTagValue is the value of the first tag with the given name.
func FirstTagValue(ev *nostr.Event, name string) string {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1]
		}
	}
	return ""
}

// TagValues lists the values of every tag with the given name, without
// duplicates and in tag order.
func TagValues(ev *nostr.Event, name string) (values []string) {
	seen := make(map[string]struct{})
	for _, t := range ev.Tags {
		if len(t) < 2 || t[0] != name || t[1] == "" {
			continue
		}
		if _, ok := seen[t[1]]; ok {
			continue
		}
		seen[t[1]] = struct{}{}
		values = append(values, t[1])
	}
	return
}

// ReferencedIDs are the event ids named in e tags.
func ReferencedIDs(ev *nostr.Event) []string { return TagValues(ev, "e") }

// Hashtags are the lower-cased values of t tags.
func Hashtags(ev *nostr.Event) (h []string) {
	seen := make(map[string]struct{})
	for _, v := range TagValues(ev, "t") {
		v = strings.ToLower(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		h = append(h, v)
	}
	return
}
