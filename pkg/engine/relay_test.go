package engine

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Hubmakerlabs/nostrengine/pkg/negentropy"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
	"golang.org/x/net/websocket"
)

// testRelay is a relay speaking the wire protocol over a real websocket. It
// does not support negentropy.
type testRelay struct {
	mx     sync.Mutex
	events []*nostr.Event
	// reject, when set, is the reason every EVENT is refused with.
	reject string
	live   map[*websocket.Conn]*peer
	srv    *httptest.Server
}

type peer struct {
	mx   sync.Mutex
	conn *websocket.Conn
	subs map[string]nostr.Filters
}

func (p *peer) send(b []byte) {
	p.mx.Lock()
	defer p.mx.Unlock()
	_ = websocket.Message.Send(p.conn, string(b))
}

func newTestRelay(t *testing.T, evs ...*nostr.Event) *testRelay {
	return newRejectingRelay(t, "", evs...)
}

// newRejectingRelay refuses every EVENT with reason, unless reason is empty.
func newRejectingRelay(t *testing.T, reason string, evs ...*nostr.Event) (r *testRelay) {
	r = &testRelay{events: evs, reject: reason, live: map[*websocket.Conn]*peer{}}
	r.srv = httptest.NewServer(&websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   r.serve,
	})
	t.Cleanup(r.srv.Close)
	return
}

func (r *testRelay) URL() string { return "ws" + strings.TrimPrefix(r.srv.URL, "http") }

func (r *testRelay) stored() (evs []*nostr.Event) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append(evs, r.events...)
}

func (r *testRelay) has(id string) bool {
	for _, ev := range r.stored() {
		if ev.ID == id {
			return true
		}
	}
	return false
}

// publish stores ev as if another client sent it and pushes it to the
// matching live subscriptions.
func (r *testRelay) publish(ev *nostr.Event) {
	r.mx.Lock()
	r.events = append(r.events, ev)
	type target struct {
		p  *peer
		id string
	}
	var targets []target
	for _, p := range r.live {
		for id, fs := range p.subs {
			if fs.Match(ev) {
				targets = append(targets, target{p, id})
			}
		}
	}
	r.mx.Unlock()
	for _, t := range targets {
		id := t.id
		b, _ := nostr.EventEnvelope{SubscriptionID: &id, Event: *ev}.MarshalJSON()
		t.p.send(b)
	}
}

func (r *testRelay) serve(conn *websocket.Conn) {
	p := &peer{conn: conn, subs: map[string]nostr.Filters{}}
	r.mx.Lock()
	r.live[conn] = p
	r.mx.Unlock()
	defer func() {
		r.mx.Lock()
		delete(r.live, conn)
		r.mx.Unlock()
	}()
	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return
		}
		if negentropy.IsNeg(msg) {
			if negentropy.Label(msg) == negentropy.LabelOpen {
				id := gjson.GetBytes(msg, "1").String()
				p.send([]byte(`["` + negentropy.LabelErr + `","` + id +
					`","error: negentropy disabled"]`))
			}
			continue
		}
		switch env := nostr.ParseMessage(msg).(type) {
		case *nostr.ReqEnvelope:
			var out []*nostr.Event
			r.mx.Lock()
			p.subs[env.SubscriptionID] = env.Filters
			for _, ev := range r.events {
				if env.Filters.Match(ev) {
					out = append(out, ev)
				}
			}
			r.mx.Unlock()
			for _, ev := range out {
				id := env.SubscriptionID
				b, _ := nostr.EventEnvelope{SubscriptionID: &id, Event: *ev}.MarshalJSON()
				p.send(b)
			}
			b, _ := nostr.EOSEEnvelope(env.SubscriptionID).MarshalJSON()
			p.send(b)
		case *nostr.CloseEnvelope:
			r.mx.Lock()
			delete(p.subs, string(*env))
			r.mx.Unlock()
		case *nostr.EventEnvelope:
			ev := env.Event
			ok, reason := r.reject == "", r.reject
			if ok {
				r.publish(&ev)
			}
			b, _ := nostr.OKEnvelope{EventID: ev.ID, OK: ok, Reason: reason}.MarshalJSON()
			p.send(b)
		}
	}
}
