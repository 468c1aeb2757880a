package relaypool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
)

type NotificationType int

const (
	// EndOfStoredEvents is sent once every relay has sent its stored events.
	EndOfStoredEvents NotificationType = iota
	// Closed is sent when a relay ends the subscription; Message is the
	// reason.
	Closed
	// Shutdown is the last notification before the pool closes the
	// subscription.
	Shutdown
)

func (t NotificationType) String() string {
	switch t {
	case EndOfStoredEvents:
		return "eose"
	case Closed:
		return "closed"
	default:
		return "shutdown"
	}
}

type Notification struct {
	Type    NotificationType
	Relay   string
	Message string
}

// Subscription is a live REQ across the read relays of the pool. Events are
// delivered once per id whichever relay sends them first. Both channels are
// closed after Close.
type Subscription struct {
	ID            string
	Filters       nostr.Filters
	Events        <-chan *nostr.Event
	Notifications <-chan Notification

	events chan *nostr.Event
	notes  chan Notification
	ctx    context.Context
	cancel context.CancelFunc
	seen   *xsync.MapOf[string, struct{}]
	wg     sync.WaitGroup
	done   chan struct{}
	// notesMx keeps notify from sending on notes once it is closed.
	notesMx sync.Mutex
	closed  bool
	eoseMx  sync.Mutex
	// pending counts relays that have not sent EOSE yet.
	pending int
}

// Subscribe opens a subscription on every read relay, reconnecting relays
// that drop until the subscription is closed.
func (p *Pool) Subscribe(c context.Context, filters nostr.Filters) (s *Subscription, err error) {
	rs := p.list(readable)
	if len(rs) == 0 {
		return nil, fmt.Errorf("no read relays: %w", errs.NotInitialized)
	}
	s = &Subscription{
		ID:      newSubID(),
		Filters: filters,
		events:  make(chan *nostr.Event, 64),
		notes:   make(chan Notification, 8),
		seen:    xsync.NewMapOf[struct{}](),
		done:    make(chan struct{}),
		pending: len(rs),
	}
	s.Events, s.Notifications = s.events, s.notes
	s.ctx, s.cancel = context.WithCancel(c)
	p.subs.Store(s.ID, s)
	for _, r := range rs {
		s.wg.Add(1)
		go p.follow(s, r)
	}
	go func() {
		<-s.ctx.Done()
		s.wg.Wait()
		p.subs.Delete(s.ID)
		s.notesMx.Lock()
		s.closed = true
		close(s.events)
		close(s.notes)
		s.notesMx.Unlock()
		close(s.done)
	}()
	return
}

// Close ends the subscription on every relay and waits for its channels to
// be closed.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription) notify(n Notification) {
	s.notesMx.Lock()
	defer s.notesMx.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notes <- n:
	default:
		log.D.F("subscription %s dropped %s notification", s.ID, n.Type)
	}
}

func (s *Subscription) eose(url string) {
	s.eoseMx.Lock()
	defer s.eoseMx.Unlock()
	if s.pending == 0 {
		return
	}
	if s.pending--; s.pending == 0 {
		s.notify(Notification{Type: EndOfStoredEvents, Relay: url})
	}
}

func (s *Subscription) deliver(ev *nostr.Event) {
	if _, dup := s.seen.LoadOrStore(ev.ID, struct{}{}); dup {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (p *Pool) follow(s *Subscription, r *relay) {
	defer s.wg.Done()
	filters := s.Filters
	eosed := false
	for s.ctx.Err() == nil {
		if err := r.connect(s.ctx, p.opts.ConnectTimeout); err != nil {
			// a relay that cannot be reached has no stored events to wait for
			if !eosed {
				eosed = true
				s.eose(r.url)
			}
			if errs.Is(err, ErrBanned) || errs.Is(err, ErrRemoved) {
				return
			}
			select {
			case <-time.After(p.opts.ReconnectEvery):
				continue
			case <-s.ctx.Done():
				return
			}
		}
		err := r.stream(s.ctx, s.ID, filters, false, s.deliver, func() {
			if !eosed {
				eosed = true
				s.eose(r.url)
			}
		})
		if s.ctx.Err() != nil {
			return
		}
		if err != nil && !errs.Is(err, ErrNotConnected) {
			s.notify(Notification{Type: Closed, Relay: r.url, Message: err.Error()})
			if !eosed {
				s.eose(r.url)
			}
			return
		}
		// the connection dropped, resume from now
		now := nostr.Now()
		filters = make(nostr.Filters, len(s.Filters))
		for i, f := range s.Filters {
			f.Since = &now
			filters[i] = f
		}
	}
}
