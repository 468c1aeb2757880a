package engine

import (
	"context"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/outbox"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"golang.org/x/exp/slices"
)

// AddRelay adds a user relay and dials it. A relay already in the pool is
// left as it is and false is returned. Failing to connect is logged, not
// returned.
func (e *Engine) AddRelay(c context.Context, url string, read, write bool) (added bool, err error) {
	var flags relaypool.Flags
	if read {
		flags |= relaypool.Read
	}
	if write {
		flags |= relaypool.Write
	}
	if flags == 0 {
		return false, fmt.Errorf("relay %s is neither read nor write: %w", url, errs.InvalidInput)
	}
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	if added, err = p.AddRelay(url, flags); err != nil || !added {
		return
	}
	u := normalize.URL(url)
	e.mx.Lock()
	if !slices.Contains(e.userRelays, u) {
		e.userRelays = append(e.userRelays, u)
	}
	e.mx.Unlock()
	chk.D(p.Connect(c, u))
	return
}

func (e *Engine) RemoveRelay(url string) (removed bool, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	u := normalize.URL(url)
	removed = p.RemoveRelay(u)
	e.mx.Lock()
	e.userRelays = slices.DeleteFunc(e.userRelays, func(s string) bool { return s == u })
	e.mx.Unlock()
	return
}

// UserRelays are the relays given to Init or AddRelay that are still in the
// pool. Sends without explicit targets go to them.
func (e *Engine) UserRelays() []string {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return slices.Clone(e.userRelays)
}

func discoveryOnly(i relaypool.Info) bool { return i.IsDiscovery && !i.Read && !i.Write }

// RelayList lists every relay of the pool except those only used for
// discovery.
func (e *Engine) RelayList() (urls []string, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	for _, i := range p.Relays() {
		if !discoveryOnly(i) {
			urls = append(urls, i.URL)
		}
	}
	return
}

func (e *Engine) ConnectedRelayCount() (n int, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	for _, i := range p.Relays() {
		if !discoveryOnly(i) && i.Status == relaypool.Connected.String() {
			n++
		}
	}
	return
}

// RelayStatus describes every relay. The totals leave out relays only used
// for discovery.
func (e *Engine) RelayStatus() (s relaypool.Summary, err error) {
	var p *relaypool.Pool
	if p, err = e.relays(); err != nil {
		return
	}
	s = p.Status()
	s.TotalRelays, s.ConnectedRelays = 0, 0
	for _, i := range s.Relays {
		if discoveryOnly(i) {
			continue
		}
		s.TotalRelays++
		if i.Status == relaypool.Connected.String() {
			s.ConnectedRelays++
		}
	}
	return
}

// DiscoverOutbox adds and connects the relays the authors publish to, and
// keeps the relay lists it found in the store.
func (e *Engine) DiscoverOutbox(c context.Context, authors []string) (res outbox.Result, err error) {
	var p *relaypool.Pool
	var s eventstore.Store
	if p, s, err = e.both(); err != nil {
		return
	}
	if res, err = outbox.Discover(c, p, authors); chk.E(err) {
		return
	}
	saved := e.saveAll(c, s, res.Lists)
	log.D.F("outbox discovery: %d relays found, %d added, %d relay lists stored",
		res.Discovered, res.Added, saved.Saved)
	return
}
