package relaypool

import (
	"context"
	"fmt"
	"sync"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Pool struct {
	opts   Options
	dialer Dialer
	relays *xsync.MapOf[string, *relay]
	// mx guards urls, the configured relays in the order they were added.
	mx   sync.RWMutex
	urls []string

	signerMx sync.RWMutex
	signer   signer.Signer

	subs    *xsync.MapOf[string, *Subscription]
	fetches singleflight.Group
}

// New returns an empty pool. A nil dialer uses WebsocketDialer.
func New(d Dialer, o Options) *Pool {
	if d == nil {
		d = WebsocketDialer{}
	}
	def := DefaultOptions()
	if o.SendTimeout <= 0 {
		o.SendTimeout = def.SendTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = def.FetchTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = def.SyncTimeout
	}
	if o.ReconnectEvery <= 0 {
		o.ReconnectEvery = def.ReconnectEvery
	}
	if o.ReconnectBurst <= 0 {
		o.ReconnectBurst = def.ReconnectBurst
	}
	return &Pool{
		opts:   o,
		dialer: d,
		relays: xsync.NewMapOf[*relay](),
		subs:   xsync.NewMapOf[*Subscription](),
	}
}

func (p *Pool) Options() Options { return p.opts }

func (p *Pool) SetSigner(s signer.Signer) {
	p.signerMx.Lock()
	defer p.signerMx.Unlock()
	p.signer = s
}

func (p *Pool) Signer() signer.Signer {
	p.signerMx.RLock()
	defer p.signerMx.RUnlock()
	return p.signer
}

// AddRelay adds a relay, by default for reading and writing. Adding a relay
// already in the pool changes nothing and returns false.
func (p *Pool) AddRelay(url string, flags Flags) (added bool, err error) {
	var u string
	if u, err = normalize.RelayURL(url); err != nil {
		return
	}
	if flags == 0 {
		flags = Read | Write
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	if _, ok := p.relays.Load(u); ok {
		return false, nil
	}
	p.relays.Store(u, newRelay(u, flags, p.dialer, p.opts, p.Signer))
	p.urls = append(p.urls, u)
	log.D.F("added relay %s (%s)", u, flags)
	return true, nil
}

func (p *Pool) AddDiscoveryRelay(url string) (bool, error) {
	return p.AddRelay(url, Discovery)
}

// RemoveRelay terminates the connection of a relay and forgets it.
func (p *Pool) RemoveRelay(url string) (removed bool) {
	u := normalize.URL(url)
	p.mx.Lock()
	defer p.mx.Unlock()
	r, ok := p.relays.LoadAndDelete(u)
	if !ok {
		return false
	}
	p.urls = slices.DeleteFunc(p.urls, func(s string) bool { return s == u })
	r.removed.Store(true)
	r.disconnect(Terminated)
	log.D.Ln("removed relay", u)
	return true
}

func (p *Pool) SetFlags(url string, flags Flags) (err error) {
	p.mx.RLock()
	defer p.mx.RUnlock()
	r, ok := p.relays.Load(normalize.URL(url))
	if !ok {
		return fmt.Errorf("%s: %w", url, ErrUnknownRelay)
	}
	r.flags.Store(uint32(flags))
	return
}

// list returns the relays in configuration order whose flags satisfy keep.
func (p *Pool) list(keep func(Flags) bool) (rs []*relay) {
	p.mx.RLock()
	defer p.mx.RUnlock()
	for _, u := range p.urls {
		if r, ok := p.relays.Load(u); ok && (keep == nil || keep(r.Flags())) {
			rs = append(rs, r)
		}
	}
	return
}

func readable(f Flags) bool { return f.Has(Read) || f.Has(Discovery) }
func writable(f Flags) bool { return f.Has(Write) && !f.Has(Discovery) }

// URLs are the configured relays in the order they were added.
func (p *Pool) URLs() []string {
	p.mx.RLock()
	defer p.mx.RUnlock()
	return slices.Clone(p.urls)
}

func (p *Pool) ConnectedCount() (n int) {
	for _, r := range p.list(nil) {
		if r.Status() == Connected {
			n++
		}
	}
	return
}

// Connect dials one relay of the pool.
func (p *Pool) Connect(c context.Context, url string) (err error) {
	r, ok := p.relays.Load(normalize.URL(url))
	if !ok {
		return fmt.Errorf("%s: %w", url, ErrUnknownRelay)
	}
	return r.connect(c, p.opts.ConnectTimeout)
}

// ConnectAll dials every relay not yet connected in parallel and returns how
// many are connected afterwards. Failures are logged, not returned.
func (p *Pool) ConnectAll(c context.Context) (connected int, err error) {
	rs := p.list(nil)
	if len(rs) == 0 {
		return 0, fmt.Errorf("no relays: %w", errs.NotInitialized)
	}
	var g errgroup.Group
	for _, r := range rs {
		if r.connected() {
			continue
		}
		r.setStatus(Pending)
		r := r
		g.Go(func() error {
			chk.D(r.connect(c, p.opts.ConnectTimeout))
			return nil
		})
	}
	_ = g.Wait()
	return p.ConnectedCount(), nil
}

// DisconnectAll tells every live subscription it is shut down, closes them,
// then closes every connection.
func (p *Pool) DisconnectAll() {
	p.subs.Range(func(_ string, s *Subscription) bool {
		s.notify(Notification{Type: Shutdown})
		s.Close()
		return true
	})
	for _, r := range p.list(nil) {
		r.disconnect(Terminated)
	}
	log.D.Ln("pool disconnected")
}
