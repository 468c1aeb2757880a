package relaypool

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/compose"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/negentropy"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/time/rate"
	"lukechampine.com/frand"
)

// session is the life of one connection; it is cancelled when the
// connection drops.
type session struct {
	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc
}

type okResult struct {
	ok     bool
	reason string
}

// relaySub is a REQ open on one relay.
type relaySub struct {
	id       string
	filters  nostr.Filters
	events   chan *nostr.Event
	eose     chan struct{}
	eoseOnce sync.Once
	closed   chan string
	done     chan struct{}
}

func (s *relaySub) dispatch(ev *nostr.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

type relay struct {
	url     string
	flags   atomic.Uint32
	status  atomic.Int32
	removed atomic.Bool

	attempts      *xsync.Counter
	successes     *xsync.Counter
	bytesSent     *xsync.Counter
	bytesReceived *xsync.Counter
	connectedAt   atomic.Int64

	dialer  Dialer
	limiter *rate.Limiter
	signer  func() signer.Signer

	connMx  sync.Mutex
	sessMx  sync.RWMutex
	sess    *session
	writeMx sync.Mutex

	subs *xsync.MapOf[string, *relaySub]
	oks  *xsync.MapOf[string, chan okResult]
	negs *xsync.MapOf[string, chan negentropy.Envelope]
}

func newRelay(url string, flags Flags, d Dialer, o Options, s func() signer.Signer) (r *relay) {
	r = &relay{
		url:           url,
		attempts:      xsync.NewCounter(),
		successes:     xsync.NewCounter(),
		bytesSent:     xsync.NewCounter(),
		bytesReceived: xsync.NewCounter(),
		dialer:        d,
		limiter:       rate.NewLimiter(rate.Every(o.ReconnectEvery), o.ReconnectBurst),
		signer:        s,
		subs:          xsync.NewMapOf[*relaySub](),
		oks:           xsync.NewMapOf[chan okResult](),
		negs:          xsync.NewMapOf[chan negentropy.Envelope](),
	}
	r.flags.Store(uint32(flags))
	return
}

func newSubID() string { return hex.EncodeToString(frand.Bytes(8)) }

func (r *relay) Flags() Flags       { return Flags(r.flags.Load()) }
func (r *relay) Status() Status     { return Status(r.status.Load()) }
func (r *relay) setStatus(s Status) { r.status.Store(int32(s)) }

func (r *relay) session() *session {
	r.sessMx.RLock()
	defer r.sessMx.RUnlock()
	return r.sess
}

func (r *relay) connected() bool { return r.session() != nil }

// connect dials the relay unless it is already connected. Each dial takes a
// token from the reconnect limiter; without one the relay goes to sleep.
func (r *relay) connect(c context.Context, timeout time.Duration) (err error) {
	r.connMx.Lock()
	defer r.connMx.Unlock()
	if r.removed.Load() {
		return fmt.Errorf("%s: %w", r.url, ErrRemoved)
	}
	if r.Status() == Banned {
		return fmt.Errorf("%s: %w", r.url, ErrBanned)
	}
	if r.connected() {
		return nil
	}
	if !r.limiter.Allow() {
		r.setStatus(Sleeping)
		return fmt.Errorf("%s: %w", r.url, ErrSleeping)
	}
	r.setStatus(Connecting)
	r.attempts.Inc()
	ctx, cancel := context.WithTimeout(c, timeout)
	defer cancel()
	var conn Conn
	if conn, err = r.dialer.Dial(ctx, r.url); err != nil {
		if errs.Is(err, ErrBanned) {
			r.setStatus(Banned)
		} else {
			r.setStatus(Disconnected)
		}
		if ctx.Err() != nil {
			err = fmt.Errorf("connecting to %s: %v: %w", r.url, err, errs.Timeout)
		}
		log.D.Ln(err)
		return
	}
	s := &session{conn: conn}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	r.sessMx.Lock()
	r.sess = s
	r.sessMx.Unlock()
	r.successes.Inc()
	r.connectedAt.Store(time.Now().Unix())
	r.setStatus(Connected)
	log.D.Ln("connected to", r.url)
	go r.readLoop(s)
	return
}

// drop ends a session. The status becomes next unless the relay was banned
// or terminated meanwhile.
func (r *relay) drop(s *session, next Status, reason error) {
	r.sessMx.Lock()
	current := r.sess == s
	if current {
		r.sess = nil
	}
	r.sessMx.Unlock()
	s.cancel()
	_ = s.conn.Close()
	if !current {
		return
	}
	switch r.Status() {
	case Banned, Terminated:
	default:
		r.setStatus(next)
	}
	if reason != nil {
		log.D.F("%s disconnected: %v", r.url, reason)
	}
}

// disconnect closes the current session, if any, and sets the status.
func (r *relay) disconnect(st Status) {
	if s := r.session(); s != nil {
		r.drop(s, st, nil)
	}
	r.setStatus(st)
}

func (r *relay) readLoop(s *session) {
	for {
		msg, err := s.conn.ReadMessage(s.ctx)
		if err != nil {
			if errs.Is(err, ErrBanned) {
				r.setStatus(Banned)
			}
			r.drop(s, Disconnected, err)
			return
		}
		r.bytesReceived.Add(int64(len(msg)))
		r.handle(s, msg)
	}
}

func (r *relay) handle(s *session, msg []byte) {
	if negentropy.IsNeg(msg) {
		if e, ok := negentropy.Parse(msg); ok {
			if ch, ok := r.negs.Load(e.SubID); ok {
				select {
				case ch <- e:
				default:
				}
			}
		}
		return
	}
	switch env := nostr.ParseMessage(msg).(type) {
	case *nostr.EventEnvelope:
		if env.SubscriptionID == nil {
			return
		}
		sub, ok := r.subs.Load(*env.SubscriptionID)
		if !ok {
			return
		}
		ev := env.Event
		if !sub.filters.Match(&ev) {
			log.T.F("{%s} event %s does not match the filters of %s", r.url,
				ev.ID, sub.id)
			return
		}
		if err := eventstore.Verify(&ev); err != nil {
			log.D.F("{%s} %v", r.url, err)
			return
		}
		sub.dispatch(&ev)
	case *nostr.EOSEEnvelope:
		if sub, ok := r.subs.Load(string(*env)); ok {
			sub.eoseOnce.Do(func() { close(sub.eose) })
		}
	case *nostr.ClosedEnvelope:
		if sub, ok := r.subs.Load(env.SubscriptionID); ok {
			select {
			case sub.closed <- env.Reason:
			default:
			}
		}
		if banReason(env.Reason) {
			log.W.F("{%s} closed %s: %s", r.url, env.SubscriptionID, env.Reason)
			r.setStatus(Banned)
			go r.drop(s, Banned, nil)
		}
	case *nostr.OKEnvelope:
		if ch, ok := r.oks.Load(env.EventID); ok {
			select {
			case ch <- okResult{env.OK, env.Reason}:
			default:
			}
		}
	case *nostr.NoticeEnvelope:
		log.I.F("NOTICE from %s: '%s'", r.url, string(*env))
		r.negs.Range(func(id string, ch chan negentropy.Envelope) bool {
			select {
			case ch <- negentropy.Envelope{Label: "NOTICE", SubID: id, Payload: string(*env)}:
			default:
			}
			return true
		})
	case *nostr.AuthEnvelope:
		if env.Challenge != nil {
			go r.auth(s, *env.Challenge)
		}
	}
}

// auth answers a challenge when the pool has a signer.
func (r *relay) auth(s *session, challenge string) {
	sig := r.signer()
	if sig == nil {
		return
	}
	ev, err := compose.Finish(sig, compose.Auth(r.url, challenge))
	if chk.E(err) {
		return
	}
	var msg []byte
	if msg, err = (nostr.AuthEnvelope{Event: *ev}).MarshalJSON(); chk.E(err) {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	chk.D(r.write(ctx, msg))
}

func (r *relay) write(c context.Context, msg []byte) (err error) {
	s := r.session()
	if s == nil {
		return fmt.Errorf("%s: %w", r.url, ErrNotConnected)
	}
	r.writeMx.Lock()
	defer r.writeMx.Unlock()
	if err = s.conn.WriteMessage(c, msg); err != nil {
		r.drop(s, Disconnected, err)
		return
	}
	r.bytesSent.Add(int64(len(msg)))
	return
}

// stream sends a REQ and hands every event to fn until the context ends,
// the relay closes the subscription or, with untilEOSE, the stored events
// are done. onEOSE may be nil.
func (r *relay) stream(c context.Context, id string, filters nostr.Filters,
	untilEOSE bool, fn func(*nostr.Event), onEOSE func()) (err error) {

	s := r.session()
	if s == nil {
		return fmt.Errorf("%s: %w", r.url, ErrNotConnected)
	}
	sub := &relaySub{
		id:      id,
		filters: filters,
		events:  make(chan *nostr.Event),
		eose:    make(chan struct{}),
		closed:  make(chan string, 1),
		done:    make(chan struct{}),
	}
	r.subs.Store(id, sub)
	defer func() {
		close(sub.done)
		r.subs.Delete(id)
		if s.ctx.Err() == nil {
			if msg, e := nostr.CloseEnvelope(id).MarshalJSON(); e == nil {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				chk.T(r.write(ctx, msg))
				cancel()
			}
		}
	}()
	var msg []byte
	if msg, err = (nostr.ReqEnvelope{SubscriptionID: id, Filters: filters}).MarshalJSON(); chk.E(err) {
		return
	}
	if err = r.write(c, msg); err != nil {
		return
	}
	eose := sub.eose
	for {
		select {
		case ev := <-sub.events:
			fn(ev)
		case <-eose:
			if onEOSE != nil {
				onEOSE()
			}
			if untilEOSE {
				return nil
			}
			eose = nil
		case reason := <-sub.closed:
			return fmt.Errorf("%s closed subscription: %s", r.url, reason)
		case <-s.ctx.Done():
			return fmt.Errorf("%s: %w", r.url, ErrNotConnected)
		case <-c.Done():
			if untilEOSE {
				return fmt.Errorf("%s: %w", r.url, errs.Timeout)
			}
			return nil
		}
	}
}

// publish sends an event and waits for the relay's OK.
func (r *relay) publish(c context.Context, ev *nostr.Event) (ok bool, reason string, err error) {
	s := r.session()
	if s == nil {
		return false, "", fmt.Errorf("%s: %w", r.url, ErrNotConnected)
	}
	ch := make(chan okResult, 1)
	r.oks.Store(ev.ID, ch)
	defer r.oks.Delete(ev.ID)
	var msg []byte
	if msg, err = (nostr.EventEnvelope{Event: *ev}).MarshalJSON(); chk.E(err) {
		return
	}
	if err = r.write(c, msg); err != nil {
		return
	}
	select {
	case res := <-ch:
		return res.ok, res.reason, nil
	case <-s.ctx.Done():
		return false, "", fmt.Errorf("%s: %w", r.url, ErrNotConnected)
	case <-c.Done():
		return false, "", fmt.Errorf("%s: no OK: %w", r.url, errs.Timeout)
	}
}
