package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/compose"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
)

// BroadcastResult sums the relays that accepted and refused a set of sends.
// ID is set when a single event was sent.
type BroadcastResult struct {
	ID           string `json:"id,omitempty"`
	TotalSuccess int    `json:"totalSuccess"`
	TotalFailed  int    `json:"totalFailed"`
}

func (b *BroadcastResult) add(r relaypool.SendResult) {
	if len(r.Success) == 0 && len(r.Failed) == 0 {
		b.TotalFailed++
		return
	}
	b.TotalSuccess += len(r.Success)
	b.TotalFailed += len(r.Failed)
}

// Fetch queries the read relays and stores what they return. A zero timeout
// returns nothing without touching the network.
func (e *Engine) Fetch(c context.Context, f nostr.Filter, timeout time.Duration) (evs []*nostr.Event, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if evs, err = p.Fetch(c, nostr.Filters{f}, timeout); chk.E(err) {
		return
	}
	e.saveAll(c, s, evs)
	return
}

// FetchByID fetches one event from the read relays and stores it. A missing
// event is nil without error.
func (e *Engine) FetchByID(c context.Context, id string, timeout time.Duration) (ev *nostr.Event, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if ev, err = p.FetchByID(c, id, timeout); err != nil || ev == nil {
		return
	}
	e.saveAll(c, s, []*nostr.Event{ev})
	return
}

// Send publishes a signed event to the user relays, or to every write relay
// of the pool when there are none, and stores it. The error wraps
// errs.PartialFailure when some relays refused it; the result says which.
func (e *Engine) Send(c context.Context, ev *nostr.Event) (res relaypool.SendResult, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if err = eventstore.Verify(ev); err != nil {
		return
	}
	e.saveAll(c, s, []*nostr.Event{ev})
	res = p.Send(c, ev, e.UserRelays()...)
	err = res.Err()
	return
}

// target adds urls to the pool for reading and writing and returns them
// normalized. Malformed urls are dropped.
func (e *Engine) target(p *relaypool.Pool, urls []string) (targets []string) {
	for _, u := range urls {
		n, err := normalize.RelayURL(u)
		if chk.D(err) {
			continue
		}
		if _, err = p.AddRelay(n, relaypool.Read|relaypool.Write); chk.D(err) {
			continue
		}
		targets = append(targets, n)
	}
	return
}

// SendTo publishes ev to the given relays, adding any that are not in the
// pool yet.
func (e *Engine) SendTo(c context.Context, ev *nostr.Event, urls []string) (res relaypool.SendResult, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if err = eventstore.Verify(ev); err != nil {
		return
	}
	targets := e.target(p, urls)
	if len(targets) == 0 {
		return res, fmt.Errorf("no valid relay urls: %w", errs.InvalidInput)
	}
	e.saveAll(c, s, []*nostr.Event{ev})
	res = p.Send(c, ev, targets...)
	err = res.Err()
	return
}

// Broadcast sends each event to urls, or to the write relays when urls is
// empty. It never stops on a failure; an event that could not be sent
// anywhere counts as one failure.
func (e *Engine) Broadcast(c context.Context, evs []*nostr.Event, urls []string) (res BroadcastResult, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	var targets []string
	if len(urls) > 0 {
		if targets = e.target(p, urls); len(targets) == 0 {
			return res, fmt.Errorf("no valid relay urls: %w", errs.InvalidInput)
		}
	}
	for _, ev := range evs {
		if chk.D(eventstore.Verify(ev)) {
			res.TotalFailed++
			continue
		}
		res.add(p.Send(c, ev, targets...))
	}
	log.D.F("broadcast %d events: %d accepted, %d refused", len(evs),
		res.TotalSuccess, res.TotalFailed)
	return
}

// SendAsync runs Send in the background.
func (e *Engine) SendAsync(c context.Context, ev *nostr.Event) *Task {
	return runTask(c, func(c context.Context) (relaypool.SendResult, error) {
		return e.Send(c, ev)
	})
}

// signAndSend signs ev with the engine signer and sends it to targets, or to
// the user relays when there are none.
func (e *Engine) signAndSend(c context.Context, ev *nostr.Event, targets []string) (res BroadcastResult, err error) {
	var s signer.Signer
	if s, err = e.sign(); err != nil {
		return
	}
	if ev, err = compose.Finish(s, ev); chk.E(err) {
		return
	}
	var sr relaypool.SendResult
	if len(targets) > 0 {
		sr, err = e.SendTo(c, ev, targets)
	} else {
		sr, err = e.Send(c, ev)
	}
	if err != nil && !errs.Is(err, errs.PartialFailure) {
		return
	}
	res.ID = ev.ID
	res.add(sr)
	return
}

// Publish signs an unsigned event from compose and sends it to the user
// relays.
func (e *Engine) Publish(c context.Context, ev *nostr.Event) (res BroadcastResult, err error) {
	return e.signAndSend(c, ev, nil)
}

// RequestToVanish asks relays to delete everything from the signer. Given
// compose.AllRelays alone, or nothing, the request names every relay and is
// sent to the user relays.
func (e *Engine) RequestToVanish(c context.Context, relays []string, reason string) (res BroadcastResult, err error) {
	var targets []string
	for _, r := range relays {
		if r != compose.AllRelays {
			targets = append(targets, r)
		}
	}
	return e.signAndSend(c, compose.Vanish(targets, reason), targets)
}

// DeleteEvents publishes a deletion of the given ids to the user relays. The
// deletion is stored too, so the local copies are removed. Invalid ids are
// skipped; with none left nothing is sent.
func (e *Engine) DeleteEvents(c context.Context, ids []string, reason string) (res BroadcastResult, err error) {
	if ids = normalize.ValidHex32(ids); len(ids) == 0 {
		return
	}
	return e.signAndSend(c, compose.Deletion(ids, reason), nil)
}

// Subscribe opens a live subscription on the read relays. The caller stores
// what it wants to keep.
func (e *Engine) Subscribe(c context.Context, filters ...nostr.Filter) (sub *relaypool.Subscription, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("subscribe without a filter: %w", errs.InvalidInput)
	}
	return p.Subscribe(c, filters)
}

// Sync reconciles the stored events matching f with the read relays.
func (e *Engine) Sync(c context.Context, f nostr.Filter, dir relaypool.Direction) (rep relaypool.SyncReport, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	return p.Sync(c, f, s, relaypool.SyncOptions{Direction: dir})
}
