package relaypool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
)

// SendResult is the outcome of a send per relay. Failed maps a relay to the
// reason it gave, or to the local error.
type SendResult struct {
	ID      string            `json:"id"`
	Success []string          `json:"success"`
	Failed  map[string]string `json:"failed"`
}

// Err is nil when every relay accepted the event, and wraps
// errs.PartialFailure when any of them did not.
func (r SendResult) Err() error {
	switch {
	case len(r.Success) == 0 && len(r.Failed) == 0:
		return fmt.Errorf("event %s sent nowhere: %w", r.ID, errs.NotInitialized)
	case len(r.Failed) > 0:
		return fmt.Errorf("event %s accepted by %d of %d relays: %w", r.ID,
			len(r.Success), len(r.Success)+len(r.Failed), errs.PartialFailure)
	}
	return nil
}

// Send publishes ev to the targets, or to every write relay when none are
// given, waiting for each relay's OK up to the send timeout. A failing relay
// never stops the others.
func (p *Pool) Send(c context.Context, ev *nostr.Event, targets ...string) (res SendResult) {
	res = SendResult{ID: ev.ID, Success: []string{}, Failed: map[string]string{}}
	var rs []*relay
	if len(targets) == 0 {
		rs = p.list(writable)
	} else {
		for _, t := range targets {
			u := normalize.URL(t)
			if r, ok := p.relays.Load(u); ok {
				rs = append(rs, r)
			} else {
				res.Failed[t] = ErrUnknownRelay.Error()
			}
		}
	}
	var mx sync.Mutex
	var wg sync.WaitGroup
	for _, r := range rs {
		wg.Add(1)
		go func(r *relay) {
			defer wg.Done()
			ok, reason, err := p.sendOne(c, r, ev)
			mx.Lock()
			defer mx.Unlock()
			switch {
			case err != nil:
				res.Failed[r.url] = err.Error()
			case !ok:
				res.Failed[r.url] = reason
			default:
				res.Success = append(res.Success, r.url)
			}
		}(r)
	}
	wg.Wait()
	sort.Strings(res.Success)
	log.D.F("sent %s: %d ok, %d failed", ev.ID, len(res.Success), len(res.Failed))
	return
}

func (p *Pool) sendOne(c context.Context, r *relay, ev *nostr.Event) (ok bool, reason string, err error) {
	ctx, cancel := context.WithTimeout(c, p.opts.SendTimeout)
	defer cancel()
	if err = r.connect(ctx, p.opts.ConnectTimeout); err != nil {
		return
	}
	return r.publish(ctx, ev)
}
