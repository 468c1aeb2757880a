package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/config"
	"github.com/Hubmakerlabs/nostrengine/pkg/engine"
	"github.com/Hubmakerlabs/nostrengine/pkg/interrupt"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/alexflint/go-arg"
	"github.com/nbd-wtf/go-nostr"
)

var (
	AppName = "nostrengine"
	Version = "v0.1.0"
)

var log, chk = slog.New(os.Stderr)

func main() {
	args := config.GetDefaultConfig()
	arg.MustParse(args)
	var err error
	var path string
	if path, err = args.Path(); chk.E(err) {
		os.Exit(1)
	}
	if args.InitCfgCmd != nil {
		if args.SecKey == "" {
			args.SecKey = nostr.GeneratePrivateKey()
		}
		if err = args.Save(path); chk.E(err) {
			log.E.F("failed to write configuration: '%s'", err)
			os.Exit(1)
		}
		log.I.Ln("configuration written to", path)
		return
	}
	file := &config.Config{}
	if err = file.Load(path); err != nil {
		log.D.F("no configuration at %s, using arguments only", path)
	} else {
		args.Merge(file)
	}
	if !slog.SetLogLevelName(args.LogLevel) {
		log.W.Ln("unknown log level", args.LogLevel)
	}
	log.D.F("%s %s", AppName, Version)
	log.T.S(args)
	if err = run(args); err != nil {
		log.E.Ln(err)
		os.Exit(1)
	}
}

func run(args *config.Config) (err error) {
	var e *engine.Engine
	if e, err = engine.New(args); err != nil {
		return
	}
	defer func() { chk.E(e.Close()) }()
	if err = e.Init(args.Relays, nil); err != nil {
		return
	}
	c := interrupt.Context(context.Background())
	switch {
	case args.StatsCmd != nil:
		var st engine.Stats
		if st, err = e.Stats(c); err != nil {
			return
		}
		return printJSON(st)
	case args.WipeCmd != nil:
		return e.Wipe()
	case args.CleanupCmd != nil:
		var n int
		if n, err = e.CleanupOldEvents(c, args.CleanupCmd.Days); err != nil {
			return
		}
		fmt.Println(n)
		return
	}
	if _, err = e.Connect(c); chk.E(err) {
		return
	}
	switch {
	case args.FetchCmd != nil:
		return fetch(c, e, args.FetchCmd)
	case args.SyncCmd != nil:
		return doSync(c, e, args.SyncCmd)
	case args.DiscoverCmd != nil:
		return discover(c, e, args.DiscoverCmd.Authors)
	case args.ThreadCmd != nil:
		return thread(c, e, args.ThreadCmd)
	}
	return follow(c, e)
}

func printJSON(v any) (err error) {
	var b []byte
	if b, err = json.MarshalIndent(v, "", "    "); chk.E(err) {
		return
	}
	fmt.Println(string(b))
	return
}

func parseFilter(s string) (f nostr.Filter, err error) {
	if err = json.Unmarshal([]byte(s), &f); err != nil {
		err = fmt.Errorf("filter %q: %w", s, err)
	}
	return
}

func fetch(c context.Context, e *engine.Engine, cmd *config.Fetch) (err error) {
	var f nostr.Filter
	if f, err = parseFilter(cmd.Filter); err != nil {
		return
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.Config().FetchTimeout
	}
	var evs []*nostr.Event
	if evs, err = e.Fetch(c, f, timeout); err != nil {
		return
	}
	for _, ev := range evs {
		fmt.Println(ev.String())
	}
	log.I.F("fetched %d events", len(evs))
	return
}

func doSync(c context.Context, e *engine.Engine, cmd *config.Sync) (err error) {
	var f nostr.Filter
	if f, err = parseFilter(cmd.Filter); err != nil {
		return
	}
	var dir relaypool.Direction
	if dir, err = relaypool.ParseDirection(cmd.Direction); err != nil {
		return
	}
	var rep relaypool.SyncReport
	if rep, err = e.Sync(c, f, dir); err != nil {
		return
	}
	return printJSON(rep)
}

// discover adds the outbox relays of authors, or of the follows of the
// configured key when none are given.
func discover(c context.Context, e *engine.Engine, authors []string) (err error) {
	if len(authors) == 0 {
		if authors, err = follows(c, e); err != nil {
			return
		}
	}
	if len(authors) == 0 {
		log.I.Ln("no authors to discover relays for")
		return
	}
	res, err := e.DiscoverOutbox(c, authors)
	if err != nil {
		return
	}
	return printJSON(res)
}

// follows is the stored follow list of the configured key, fetched from the
// relays when it is not stored yet.
func follows(c context.Context, e *engine.Engine) (pks []string, err error) {
	pk := e.PublicKey()
	if pk == "" {
		return
	}
	var ok bool
	if ok, err = e.HasFollowingList(c, pk); err != nil {
		return
	}
	if !ok {
		if _, err = e.Fetch(c, nostr.Filter{
			Authors: []string{pk},
			Kinds:   kind.Ints(kind.FollowList),
			Limit:   1,
		}, e.Config().FetchTimeout); err != nil {
			return
		}
	}
	return e.FollowingList(c, pk)
}

func thread(c context.Context, e *engine.Engine, cmd *config.Thread) (err error) {
	var root string
	if root, err = e.ResolveRoot(c, cmd.ID); err != nil {
		return
	}
	var n int
	if n, err = e.SyncReplies(c, root, cmd.Depth); err != nil {
		return
	}
	log.I.F("fetched %d replies under %s", n, root)
	tree, err := e.Thread(c, root)
	if err != nil {
		return
	}
	return printJSON(tree)
}

// follow runs until interrupted, storing the notes of the follows of the
// configured key, or every new note without one.
func follow(c context.Context, e *engine.Engine) (err error) {
	authors, err := follows(c, e)
	if chk.E(err) {
		authors, err = nil, nil
	}
	if len(authors) > 0 {
		if res, derr := e.DiscoverOutbox(c, authors); !chk.E(derr) {
			log.I.F("discovered %d outbox relays, %d connected", res.Added, res.Connected)
		}
		authors = append(authors, e.PublicKey())
	}
	since := nostr.Timestamp(time.Now().Add(-time.Hour).Unix())
	var sub *relaypool.Subscription
	if sub, err = e.Subscribe(c, nostr.Filter{
		Authors: authors,
		Kinds:   engine.FeedKinds,
		Since:   &since,
	}); err != nil {
		return
	}
	defer sub.Close()
	log.I.F("following %d authors, interrupt to stop", len(authors))
	var stored int
	for {
		select {
		case <-c.Done():
			log.I.F("stored %d new events", stored)
			return
		case n, ok := <-sub.Notifications:
			if !ok {
				return
			}
			log.D.Ln(n.Type, n.Relay, n.Message)
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			saved, serr := e.SaveEvent(c, ev)
			if chk.D(serr) {
				continue
			}
			if saved {
				stored++
				log.T.Ln("stored", ev.ID, kind.Of(ev))
			}
		}
	}
}
