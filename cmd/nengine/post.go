package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Hubmakerlabs/nostrengine/pkg/compose"
	"github.com/Hubmakerlabs/nostrengine/pkg/engine"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/nbd-wtf/go-nostr"
	"github.com/urfave/cli/v2"
)

func text(cCtx *cli.Context) (s string, err error) {
	if cCtx.Bool("stdin") {
		var b []byte
		if b, err = io.ReadAll(os.Stdin); chk.E(err) {
			return
		}
		s = string(b)
	} else {
		s = strings.Join(cCtx.Args().Slice(), " ")
	}
	if s = strings.TrimSpace(s); s == "" {
		err = errors.New("nothing to post")
	}
	return
}

func report(res engine.BroadcastResult) {
	if res.ID != "" {
		fmt.Println(res.ID)
	}
	log.I.F("accepted by %d relays, refused by %d", res.TotalSuccess, res.TotalFailed)
}

func publish(cCtx *cli.Context, ev *nostr.Event) (err error) {
	var res engine.BroadcastResult
	if res, err = eng(cCtx).Publish(cCtx.Context, ev); err != nil {
		return
	}
	report(res)
	return
}

// note is the stored event with the id, fetched when it is not stored.
func note(cCtx *cli.Context, id string) (ev *nostr.Event, err error) {
	e := eng(cCtx)
	if ev, err = e.Event(cCtx.Context, id); err != nil || ev != nil {
		return
	}
	if ev, err = e.FetchByID(cCtx.Context, id, e.Config().FetchTimeout); err != nil {
		return
	}
	if ev == nil {
		err = fmt.Errorf("note %s not found: %w", id, errs.InvalidInput)
	}
	return
}

func doPost(cCtx *cli.Context) (err error) {
	var s string
	if s, err = text(cCtx); err != nil {
		return
	}
	return publish(cCtx, compose.Note(s, cCtx.StringSlice("t")...))
}

func doReply(cCtx *cli.Context) (err error) {
	var s string
	if s, err = text(cCtx); err != nil {
		return
	}
	var parent *nostr.Event
	if parent, err = note(cCtx, cCtx.String("id")); err != nil {
		return
	}
	if cCtx.Bool("quote") {
		return publish(cCtx, compose.Quote(parent, s))
	}
	return publish(cCtx, compose.Reply(parent, s))
}

func doLike(cCtx *cli.Context) (err error) {
	var target *nostr.Event
	if target, err = note(cCtx, cCtx.String("id")); err != nil {
		return
	}
	return publish(cCtx, compose.Reaction(target, cCtx.String("content")))
}

func doRepost(cCtx *cli.Context) (err error) {
	e, id := eng(cCtx), cCtx.String("id")
	if cCtx.Bool("undo") {
		var pk, repost string
		if pk, err = me(e); err != nil {
			return
		}
		if repost, err = e.FindUserRepost(cCtx.Context, pk, id); err != nil {
			return
		}
		if repost == "" {
			return fmt.Errorf("no repost of %s stored: %w", id, errs.InvalidInput)
		}
		var res engine.BroadcastResult
		if res, err = e.DeleteEvents(cCtx.Context, []string{repost}, ""); err != nil {
			return
		}
		report(res)
		return
	}
	var target *nostr.Event
	if target, err = note(cCtx, id); err != nil {
		return
	}
	return publish(cCtx, compose.Repost(target, ""))
}

func doDelete(cCtx *cli.Context) (err error) {
	var res engine.BroadcastResult
	if res, err = eng(cCtx).DeleteEvents(cCtx.Context, cCtx.StringSlice("id"),
		cCtx.String("reason")); err != nil {
		return
	}
	if res.ID == "" {
		return fmt.Errorf("no valid ids to delete: %w", errs.InvalidInput)
	}
	report(res)
	return
}

func doVanish(cCtx *cli.Context) (err error) {
	relays := cCtx.Args().Slice()
	if len(relays) == 0 {
		relays = []string{compose.AllRelays}
	}
	if !cCtx.Bool("yes") {
		fmt.Printf("ask %s to delete everything you published? type yes: ",
			strings.Join(relays, ", "))
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			return errors.New("not confirmed")
		}
	}
	var res engine.BroadcastResult
	if res, err = eng(cCtx).RequestToVanish(cCtx.Context, relays, cCtx.String("reason")); err != nil {
		return
	}
	report(res)
	return
}
