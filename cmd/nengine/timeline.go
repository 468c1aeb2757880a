package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/engine"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/hydrate"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/thread"
	"github.com/gookit/color"
	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"
)

// refresh fetches f into the store. A failure is logged and the command
// goes on with what is stored.
func refresh(cCtx *cli.Context, f nostr.Filter) {
	e := eng(cCtx)
	if _, err := e.Connect(cCtx.Context); chk.D(err) {
		return
	}
	if _, err := e.Fetch(cCtx.Context, f, e.Config().FetchTimeout); err != nil {
		log.W.Ln("showing stored events only:", err)
	}
}

func short(pk string) string {
	if len(pk) > 12 {
		return pk[:8] + ".." + pk[len(pk)-4:]
	}
	return pk
}

func when(ts int64) string { return time.Unix(ts, 0).Format("2006-01-02 15:04") }

func printJSON(v any) (err error) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printNotes(cCtx *cli.Context, notes []hydrate.Note) (err error) {
	if cCtx.Bool("json") {
		for _, n := range notes {
			if err = printJSON(n); chk.E(err) {
				return
			}
		}
		return
	}
	// oldest first, so the newest ends up above the prompt
	for i := len(notes) - 1; i >= 0; i-- {
		printNote(notes[i])
	}
	return
}

func printNote(n hydrate.Note) {
	name := n.AuthorName
	if name == "" {
		name = short(n.PubKey)
	}
	if n.IsRepost {
		color.Gray.Printf("reposted by %s\n", short(n.RepostedBy))
	}
	color.Red.Print(name)
	fmt.Print(" ")
	color.Gray.Println(when(n.CreatedAt))
	fmt.Println(n.Content)
	color.Blue.Print(n.ID)
	fmt.Printf(" %d reactions %d reposts %d replies", n.ReactionCount, n.RepostCount, n.ReplyCount)
	if n.ZapCount > 0 {
		fmt.Printf(" %d sats", n.ZapCount)
	}
	fmt.Println()
	fmt.Println()
}

// follows are the configured key and the keys it follows, fetching the
// follow list first unless offline.
func follows(cCtx *cli.Context, offline bool) (authors []string, err error) {
	e := eng(cCtx)
	pk := e.PublicKey()
	if pk == "" {
		return
	}
	if !offline {
		refresh(cCtx, nostr.Filter{Authors: []string{pk}, Kinds: kind.Ints(kind.FollowList), Limit: 1})
	}
	if authors, err = e.FollowingList(cCtx.Context, pk); err != nil {
		return
	}
	return append(authors, pk), nil
}

func doTimeline(cCtx *cli.Context) (err error) {
	e, n, offline := eng(cCtx), cCtx.Int("n"), cCtx.Bool("offline")
	var authors []string
	if authors, err = follows(cCtx, offline); err != nil {
		return
	}
	if !offline {
		refresh(cCtx, nostr.Filter{Authors: authors, Kinds: engine.FeedKinds, Limit: n})
	}
	var notes []hydrate.Note
	if notes, err = e.FeedNotes(cCtx.Context, authors, n); err != nil {
		return
	}
	return printNotes(cCtx, notes)
}

func me(e *engine.Engine) (pk string, err error) {
	if pk = e.PublicKey(); pk == "" {
		err = fmt.Errorf("no key configured: %w", errs.NotInitialized)
	}
	return
}

var verbs = map[string]string{
	hydrate.TypeReply:    "replied",
	hydrate.TypeMention:  "mentioned you",
	hydrate.TypeRepost:   "reposted",
	hydrate.TypeReaction: "reacted",
	hydrate.TypeZap:      "zapped",
}

func doNotify(cCtx *cli.Context) (err error) {
	e, n := eng(cCtx), cCtx.Int("n")
	var pk string
	if pk, err = me(e); err != nil {
		return
	}
	refresh(cCtx, nostr.Filter{
		Kinds: hydrate.NotificationKinds,
		Tags:  nostr.TagMap{"p": []string{pk}},
		Limit: n,
	})
	var ns []hydrate.Notification
	if ns, err = e.Notifications(cCtx.Context, pk, n); err != nil {
		return
	}
	for i := len(ns) - 1; i >= 0; i-- {
		nt := ns[i]
		if cCtx.Bool("json") {
			if err = printJSON(nt); chk.E(err) {
				return
			}
			continue
		}
		from := nt.FromName
		if from == "" {
			from = short(nt.FromPubkey)
		}
		color.Red.Print(from)
		fmt.Print(" ", verbs[nt.Type])
		if nt.Type == hydrate.TypeZap {
			fmt.Printf(" %d sats", nt.ZapAmount)
		}
		fmt.Print(" ")
		color.Gray.Println(when(nt.CreatedAt))
		if nt.Content != "" {
			fmt.Println(nt.Content)
		}
		if nt.TargetNoteID != "" {
			color.Blue.Println(nt.TargetNoteID)
		}
		fmt.Println()
	}
	return
}

func doThread(cCtx *cli.Context) (err error) {
	e, c := eng(cCtx), cCtx.Context
	if _, err = e.Connect(c); chk.D(err) {
		err = nil
	}
	var root string
	if root, err = e.ResolveRoot(c, cCtx.String("id")); err != nil {
		return
	}
	if _, err = e.SyncReplies(c, root, cCtx.Int("depth")); chk.D(err) {
		log.W.Ln("showing stored replies only:", err)
	}
	var tree thread.Tree
	if tree, err = e.Thread(c, root); err != nil {
		return
	}
	if cCtx.Bool("json") {
		return printJSON(tree)
	}
	printBranch(tree, root, 0)
	return
}

func printBranch(t thread.Tree, id string, depth int) {
	ev := t.NotesByID[id]
	if ev == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Print(indent)
	color.Red.Print(short(ev.PubKey))
	fmt.Print(" ")
	color.Gray.Print(when(int64(ev.CreatedAt)))
	fmt.Print(" ")
	color.Blue.Println(ev.ID)
	for _, line := range strings.Split(ev.Content, "\n") {
		fmt.Println(indent + line)
	}
	for _, child := range t.ChildrenByParent[id] {
		printBranch(t, child, depth+1)
	}
}

func doProfile(cCtx *cli.Context) (err error) {
	e := eng(cCtx)
	pk := cCtx.String("u")
	if pk == "" {
		if pk, err = me(e); err != nil {
			return
		}
	}
	refresh(cCtx, nostr.Filter{Authors: []string{pk}, Kinds: kind.Ints(kind.ProfileMetadata), Limit: 1})
	var p *hydrate.Profile
	if p, err = e.Profile(cCtx.Context, pk); err != nil {
		return
	}
	if p == nil {
		return fmt.Errorf("no profile for %s", pk)
	}
	if cCtx.Bool("json") {
		return printJSON(p)
	}
	color.Red.Println(p.BestName())
	for _, f := range [][2]string{
		{"pubkey", p.PubKey},
		{"about", p.About},
		{"picture", p.Picture},
		{"nip05", p.Nip05},
		{"lud16", p.Lud16},
		{"website", p.Website},
	} {
		if f[1] != "" {
			color.Gray.Printf("%-8s ", f[0])
			fmt.Println(f[1])
		}
	}
	return
}

func doSearch(cCtx *cli.Context) (err error) {
	e, c, n := eng(cCtx), cCtx.Context, cCtx.Int("n")
	if tag := cCtx.String("tag"); tag != "" {
		refresh(cCtx, nostr.Filter{
			Kinds: kind.Ints(kind.TextNote),
			Tags:  nostr.TagMap{"t": []string{strings.ToLower(strings.TrimPrefix(tag, "#"))}},
			Limit: n,
		})
		var notes []hydrate.Note
		if notes, err = e.HashtagNotes(c, tag, n); err != nil {
			return
		}
		return printNotes(cCtx, notes)
	}
	q := strings.Join(cCtx.Args().Slice(), " ")
	if cCtx.Bool("profiles") {
		var ps []*hydrate.Profile
		if ps, err = e.SearchProfiles(c, q, n); err != nil {
			return
		}
		for _, p := range ps {
			if cCtx.Bool("json") {
				if err = printJSON(p); chk.E(err) {
					return
				}
				continue
			}
			color.Red.Print(p.BestName())
			fmt.Println(" " + p.PubKey)
		}
		return
	}
	var notes []hydrate.Note
	if notes, err = e.SearchNotes(c, q, n); err != nil {
		return
	}
	return printNotes(cCtx, notes)
}
