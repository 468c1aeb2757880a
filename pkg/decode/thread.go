package decode

import (
	"github.com/nbd-wtf/go-nostr"
)

// Linkage is the position of an event in a reply thread.
type Linkage struct {
	// Root is the id of the first note of the thread.
	Root string
	// Parent is the id of the note being replied to directly.
	Parent string
	// RootMarked is set when Root came from an e tag explicitly marked root.
	RootMarked bool
}

// IsReply is true when the event has any thread linkage.
func (l Linkage) IsReply() bool { return l.Root != "" || l.Parent != "" }

// ThreadLinkage decodes the e tags of an event into its thread position.
//
// Tags marked "root" and "reply" win. Without markers the positional
// convention applies: a single e tag is both root and parent, with several
// the first is the root and the last the parent. e tags marked "mention" and
// e tags repeating a q tag reference are quotes and never link a thread.
// When only a root is known the parent is the root.
func ThreadLinkage(ev *nostr.Event) (l Linkage) {
	quoted := make(map[string]struct{})
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "q" {
			quoted[t[1]] = struct{}{}
		}
	}
	var unmarked []string
	for _, t := range ev.Tags {
		if len(t) < 2 || t[0] != "e" || t[1] == "" {
			continue
		}
		marker := ""
		if len(t) >= 4 {
			marker = t[3]
		}
		switch marker {
		case "root":
			if l.Root == "" {
				l.Root, l.RootMarked = t[1], true
			}
		case "reply":
			if l.Parent == "" {
				l.Parent = t[1]
			}
		case "":
			if _, ok := quoted[t[1]]; !ok {
				unmarked = append(unmarked, t[1])
			}
		}
	}
	if l.Root == "" && l.Parent == "" && len(unmarked) > 0 {
		l.Root = unmarked[0]
		l.Parent = unmarked[len(unmarked)-1]
	}
	if l.Root != "" && l.Parent == "" {
		l.Parent = l.Root
	}
	return
}

// IsQuote is true for events that quote another event with a q tag.
func IsQuote(ev *nostr.Event) bool {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "q" && t[1] != "" {
			return true
		}
	}
	return false
}

// IsReply is true for an event that links into a thread and is not a quote.
func IsReply(ev *nostr.Event) bool {
	return !IsQuote(ev) && ThreadLinkage(ev).IsReply()
}
