package thread

import (
	"strings"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/slices"
)

// Tree is a thread arranged by parent. ChildrenByParent lists ids oldest
// first.
type Tree struct {
	Root             *nostr.Event            `json:"rootNote"`
	NotesByID        map[string]*nostr.Event `json:"notesById"`
	ChildrenByParent map[string][]string     `json:"childrenByParentId"`
}

// BuildTree hangs every reply under its parent when the parent is in the
// thread, else under its root when that is, else under the thread root.
func BuildTree(root *nostr.Event, replies []*nostr.Event) (t Tree) {
	t = Tree{
		Root:             root,
		NotesByID:        make(map[string]*nostr.Event, len(replies)+1),
		ChildrenByParent: make(map[string][]string),
	}
	if root == nil {
		return
	}
	t.NotesByID[root.ID] = root
	for _, ev := range replies {
		if ev != nil {
			t.NotesByID[ev.ID] = ev
		}
	}
	for id, ev := range t.NotesByID {
		if id == root.ID {
			continue
		}
		l := decode.ThreadLinkage(ev)
		parent := root.ID
		switch {
		case t.known(l.Parent, id):
			parent = l.Parent
		case t.known(l.Root, id):
			parent = l.Root
		}
		t.ChildrenByParent[parent] = append(t.ChildrenByParent[parent], id)
	}
	for _, ids := range t.ChildrenByParent {
		slices.SortFunc(ids, func(a, b string) int {
			ea, eb := t.NotesByID[a], t.NotesByID[b]
			switch {
			case ea.CreatedAt < eb.CreatedAt:
				return -1
			case ea.CreatedAt > eb.CreatedAt:
				return 1
			}
			return strings.Compare(a, b)
		})
	}
	return
}

func (t Tree) known(id, self string) bool {
	if id == "" || id == self {
		return false
	}
	_, ok := t.NotesByID[id]
	return ok
}

// Children returns the events directly under id, oldest first.
func (t Tree) Children(id string) (evs []*nostr.Event) {
	for _, c := range t.ChildrenByParent[id] {
		evs = append(evs, t.NotesByID[c])
	}
	return
}

// Walk visits the tree depth first from the root, children oldest first.
// Notes sitting in a parent cycle detached from the root are not visited.
func (t Tree) Walk(fn func(ev *nostr.Event, depth int)) {
	if t.Root == nil {
		return
	}
	var visit func(id string, depth int)
	seen := make(map[string]struct{})
	visit = func(id string, depth int) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		fn(t.NotesByID[id], depth)
		for _, c := range t.ChildrenByParent[id] {
			visit(c, depth+1)
		}
	}
	visit(t.Root.ID, 0)
}
