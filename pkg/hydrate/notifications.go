package hydrate

import (
	"context"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/nbd-wtf/go-nostr"
)

// Notification types.
const (
	TypeReply    = "reply"
	TypeMention  = "mention"
	TypeRepost   = "repost"
	TypeReaction = "reaction"
	TypeZap      = "zap"
)

// DefaultNotificationLimit applies when no limit is given.
const DefaultNotificationLimit = 100

type Notification struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	FromPubkey   string `json:"fromPubkey"`
	TargetNoteID string `json:"targetNoteId,omitempty"`
	Content      string `json:"content"`
	CreatedAt    int64  `json:"createdAt"`
	FromName     string `json:"fromName,omitempty"`
	FromImage    string `json:"fromImage,omitempty"`
	ZapAmount    uint64 `json:"zapAmount,omitempty"`
}

// NotificationKinds are the kinds that notify the user they tag.
var NotificationKinds = kind.Ints(kind.TextNote, kind.Repost, kind.Reaction, kind.Zap)

// Classify turns an event tagging the user into a notification. ok is false
// for kinds that do not notify.
func Classify(ev *nostr.Event) (n Notification, ok bool) {
	n = Notification{
		ID:         ev.ID,
		FromPubkey: ev.PubKey,
		Content:    ev.Content,
		CreatedAt:  int64(ev.CreatedAt),
	}
	switch kind.Of(ev) {
	case kind.TextNote:
		n.Type = TypeMention
		if l := decode.ThreadLinkage(ev); markedE(ev) && l.IsReply() {
			n.Type, n.TargetNoteID = TypeReply, l.Parent
		} else {
			n.TargetNoteID = decode.FirstTagValue(ev, "e")
		}
	case kind.Repost:
		n.Type, n.Content = TypeRepost, ""
		if r, found := decode.RepostTarget(ev); found {
			n.TargetNoteID = r.ID
		}
	case kind.Reaction:
		n.Type = TypeReaction
		if refs := decode.ReferencedIDs(ev); len(refs) > 0 {
			n.TargetNoteID = refs[len(refs)-1]
		}
	case kind.Zap:
		n.Type = TypeZap
		if sender := decode.ZapSender(ev); sender != "" {
			n.FromPubkey = sender
		}
		n.ZapAmount = decode.ZapAmountSats(ev)
		n.Content = decode.ZapComment(ev)
		n.TargetNoteID = decode.FirstTagValue(ev, "e")
	default:
		return n, false
	}
	return n, true
}

// markedE is true when an e tag carries a root or reply marker.
func markedE(ev *nostr.Event) bool {
	for _, t := range ev.Tags {
		if len(t) >= 4 && t[0] == "e" && (t[3] == "root" || t[3] == "reply") {
			return true
		}
	}
	return false
}

// Notifications lists the stored events tagging user, newest first,
// leaving out those the user made, zaps included.
func Notifications(c context.Context, store eventstore.Store, user string, limit int) (ns []Notification, err error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	ns = []Notification{}
	var evs []*nostr.Event
	if evs, err = store.Query(c, nostr.Filter{
		Kinds: NotificationKinds,
		Tags:  nostr.TagMap{"p": []string{user}},
		Limit: limit,
	}); chk.E(err) {
		return
	}
	var from []string
	for _, ev := range evs {
		if ev.PubKey == user {
			continue
		}
		n, ok := Classify(ev)
		if !ok || n.FromPubkey == user {
			continue
		}
		ns = append(ns, n)
		from = append(from, n.FromPubkey)
	}
	var profiles map[string]*Profile
	if profiles, err = Profiles(c, store, from); err != nil {
		return
	}
	for i := range ns {
		if p, ok := profiles[ns[i].FromPubkey]; ok {
			ns[i].FromName, ns[i].FromImage = p.BestName(), p.image()
		}
	}
	return
}
