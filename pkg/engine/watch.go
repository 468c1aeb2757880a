package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/hydrate"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/nbd-wtf/go-nostr"
)

// DefaultCountInterval is the coalescing window of WatchCounts.
const DefaultCountInterval = 250 * time.Millisecond

// Counts is one update of WatchCounts.
type Counts map[string]hydrate.InteractionCounts

// WatchCounts subscribes to the interactions with the notes, stores them as
// they arrive and sends the recomputed counts, the first time straight away
// and then at most once per interval while new interactions come in. The
// channel is closed when c is done or the pool shuts the subscription down.
func (e *Engine) WatchCounts(c context.Context, noteIDs []string, user string,
	interval time.Duration) (updates <-chan Counts, err error) {

	ids := normalize.ValidHex32(noteIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no valid note ids to watch: %w", errs.InvalidInput)
	}
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if interval <= 0 {
		if interval = e.cfg.CountInterval; interval <= 0 {
			interval = DefaultCountInterval
		}
	}
	var sub *relaypool.Subscription
	if sub, err = p.Subscribe(c, nostr.Filters{{
		Kinds: hydrate.InteractionKinds,
		Tags:  nostr.TagMap{"e": ids},
	}}); err != nil {
		return
	}
	out := make(chan Counts, 1)
	go e.watch(c, s, sub, ids, user, interval, out)
	return out, nil
}

func (e *Engine) watch(c context.Context, s eventstore.Store, sub *relaypool.Subscription,
	ids []string, user string, interval time.Duration, out chan<- Counts) {

	defer close(out)
	defer sub.Close()
	emit := func() bool {
		counts, err := hydrate.Counts(c, s, ids, user)
		if chk.E(err) {
			return c.Err() == nil
		}
		select {
		case out <- counts:
			return true
		case <-c.Done():
			return false
		}
	}
	if !emit() {
		return
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	dirty := false
	for {
		select {
		case <-c.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				if dirty {
					emit()
				}
				return
			}
			if st, err := s.Save(c, ev); err == nil && st == eventstore.Success {
				dirty = true
			}
		case <-tick.C:
			if dirty {
				dirty = false
				if !emit() {
					return
				}
			}
		}
	}
}
