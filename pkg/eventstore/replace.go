package eventstore

import (
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/nbd-wtf/go-nostr"
)

// IsOlder reports whether previous is superseded by next: it was created
// earlier, or at the same second with a greater id.
func IsOlder(previous, next *nostr.Event) bool {
	return previous.CreatedAt < next.CreatedAt ||
		(previous.CreatedAt == next.CreatedAt && previous.ID > next.ID)
}

// ReplaceableFilter returns the filter selecting the stored versions an
// event replaces, and false when the kind is not replaceable.
func ReplaceableFilter(ev *nostr.Event) (f nostr.Filter, ok bool) {
	k := kind.Of(ev)
	switch {
	case k.IsReplaceable():
		return nostr.Filter{Authors: []string{ev.PubKey}, Kinds: []int{ev.Kind}}, true
	case k.IsParameterizedReplaceable():
		var d string
		if t := ev.Tags.GetFirst([]string{"d", ""}); t != nil {
			d = t.Value()
		}
		return nostr.Filter{
			Authors: []string{ev.PubKey},
			Kinds:   []int{ev.Kind},
			Tags:    nostr.TagMap{"d": []string{d}},
		}, true
	}
	return
}
