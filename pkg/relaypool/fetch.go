package relaypool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/exp/slices"
)

// Fetch queries every read and discovery relay and returns the union of
// their stored events, the first copy of each id, newest first. A relay's
// part ends at its EOSE or the timeout; relays that cannot be reached add
// nothing. A zero timeout returns no events. Identical fetches running at
// the same time share one round trip.
func (p *Pool) Fetch(c context.Context, filters nostr.Filters, timeout time.Duration) (evs []*nostr.Event, err error) {
	if timeout <= 0 {
		return []*nostr.Event{}, nil
	}
	rs := p.list(readable)
	if len(rs) == 0 {
		return nil, fmt.Errorf("no read relays: %w", errs.NotInitialized)
	}
	var key []byte
	if key, err = json.Marshal(filters); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.InvalidInput)
	}
	v, _, shared := p.fetches.Do(string(key)+"|"+timeout.String(), func() (any, error) {
		return p.fetch(c, rs, filters, timeout), nil
	})
	if shared {
		log.T.Ln("fetch shared with a concurrent caller")
	}
	return slices.Clone(v.([]*nostr.Event)), nil
}

func (p *Pool) fetch(c context.Context, rs []*relay, filters nostr.Filters, timeout time.Duration) (evs []*nostr.Event) {
	ctx, cancel := context.WithTimeout(c, timeout)
	defer cancel()
	seen := xsync.NewMapOf[struct{}]()
	var mx sync.Mutex
	var wg sync.WaitGroup
	for _, r := range rs {
		wg.Add(1)
		go func(r *relay) {
			defer wg.Done()
			if err := r.connect(ctx, p.opts.ConnectTimeout); err != nil {
				return
			}
			err := r.stream(ctx, newSubID(), filters, true, func(ev *nostr.Event) {
				if _, dup := seen.LoadOrStore(ev.ID, struct{}{}); dup {
					return
				}
				mx.Lock()
				evs = append(evs, ev)
				mx.Unlock()
			}, nil)
			chk.T(err)
		}(r)
	}
	wg.Wait()
	slices.SortFunc(evs, func(a, b *nostr.Event) int {
		switch {
		case a.CreatedAt > b.CreatedAt:
			return -1
		case a.CreatedAt < b.CreatedAt:
			return 1
		}
		return 0
	})
	if evs == nil {
		evs = []*nostr.Event{}
	}
	return
}

// FetchByID fetches one event by id, nil when no relay has it.
func (p *Pool) FetchByID(c context.Context, id string, timeout time.Duration) (ev *nostr.Event, err error) {
	if id, err = normalize.Hex32(id); err != nil {
		return
	}
	var evs []*nostr.Event
	if evs, err = p.Fetch(c, nostr.Filters{{IDs: []string{id}, Limit: 1}}, timeout); err != nil {
		return
	}
	for _, e := range evs {
		if e.ID == id {
			return e, nil
		}
	}
	return
}
