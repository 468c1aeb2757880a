package relaypool

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/negentropy"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// memConn is an in-memory websocket; in carries relay messages to the
// client and out carries client messages to the relay.
type memConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newMemConn() *memConn {
	return &memConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (m *memConn) ReadMessage(c context.Context) ([]byte, error) {
	select {
	case b := <-m.in:
		return b, nil
	case <-m.closed:
		return nil, io.EOF
	}
}

func (m *memConn) WriteMessage(c context.Context, b []byte) error {
	select {
	case m.out <- b:
		return nil
	case <-m.closed:
		return io.EOF
	case <-c.Done():
		return c.Err()
	}
}

func (m *memConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memConn) send(b []byte) {
	select {
	case m.in <- b:
	case <-m.closed:
	}
}

// fakeRelay serves the wire protocol from memory.
type fakeRelay struct {
	mx     sync.Mutex
	events []*nostr.Event
	// reject, when set, is the reason every EVENT is refused with.
	reject string
	// noNeg answers NEG-OPEN with NEG-ERR.
	noNeg bool
	// silent relays accept connections and never answer.
	silent bool
	// closeWith answers every REQ with CLOSED and this reason.
	closeWith string
	live      map[*memConn]map[string]nostr.Filters
	reqs      int
}

func newFakeRelay(evs ...*nostr.Event) *fakeRelay {
	return &fakeRelay{events: evs, live: map[*memConn]map[string]nostr.Filters{}}
}

func (f *fakeRelay) stored() (evs []*nostr.Event) {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append(evs, f.events...)
}

func (f *fakeRelay) has(id string) bool {
	for _, ev := range f.stored() {
		if ev.ID == id {
			return true
		}
	}
	return false
}

func (f *fakeRelay) serve(conn *memConn) {
	f.mx.Lock()
	f.live[conn] = map[string]nostr.Filters{}
	f.mx.Unlock()
	defer func() {
		f.mx.Lock()
		delete(f.live, conn)
		f.mx.Unlock()
	}()
	negs := map[string]*negentropy.Negentropy{}
	for {
		var msg []byte
		select {
		case msg = <-conn.out:
		case <-conn.closed:
			return
		}
		if f.silent {
			continue
		}
		if negentropy.IsNeg(msg) {
			f.negentropy(conn, negs, msg)
			continue
		}
		switch env := nostr.ParseMessage(msg).(type) {
		case *nostr.ReqEnvelope:
			if f.closeWith != "" {
				b, _ := nostr.ClosedEnvelope{SubscriptionID: env.SubscriptionID,
					Reason: f.closeWith}.MarshalJSON()
				conn.send(b)
				continue
			}
			f.mx.Lock()
			f.reqs++
			f.live[conn][env.SubscriptionID] = env.Filters
			var out []*nostr.Event
			for _, ev := range f.events {
				if env.Filters.Match(ev) {
					out = append(out, ev)
				}
			}
			f.mx.Unlock()
			for _, ev := range out {
				id := env.SubscriptionID
				b, _ := nostr.EventEnvelope{SubscriptionID: &id, Event: *ev}.MarshalJSON()
				conn.send(b)
			}
			b, _ := nostr.EOSEEnvelope(env.SubscriptionID).MarshalJSON()
			conn.send(b)
		case *nostr.CloseEnvelope:
			f.mx.Lock()
			delete(f.live[conn], string(*env))
			f.mx.Unlock()
		case *nostr.EventEnvelope:
			ev := env.Event
			ok, reason := f.reject == "", f.reject
			if ok {
				f.mx.Lock()
				f.events = append(f.events, &ev)
				type target struct {
					c  *memConn
					id string
				}
				var targets []target
				for c, subs := range f.live {
					for id, fs := range subs {
						if fs.Match(&ev) {
							targets = append(targets, target{c, id})
						}
					}
				}
				f.mx.Unlock()
				for _, t := range targets {
					id := t.id
					b, _ := nostr.EventEnvelope{SubscriptionID: &id, Event: ev}.MarshalJSON()
					t.c.send(b)
				}
			}
			b, _ := nostr.OKEnvelope{EventID: ev.ID, OK: ok, Reason: reason}.MarshalJSON()
			conn.send(b)
		}
	}
}

func (f *fakeRelay) negentropy(conn *memConn, negs map[string]*negentropy.Negentropy, msg []byte) {
	label := negentropy.Label(msg)
	id := gjson.GetBytes(msg, "1").String()
	reply := func(label, payload string) {
		conn.send([]byte(`["` + label + `","` + id + `","` + payload + `"]`))
	}
	var raw string
	switch label {
	case negentropy.LabelClose:
		delete(negs, id)
		return
	case negentropy.LabelOpen:
		if f.noNeg {
			reply(negentropy.LabelErr, "error: negentropy disabled")
			return
		}
		var filter nostr.Filter
		if err := filter.UnmarshalJSON([]byte(gjson.GetBytes(msg, "2").Raw)); err != nil {
			reply(negentropy.LabelErr, "error: bad filter")
			return
		}
		var items []negentropy.Item
		for _, ev := range f.stored() {
			if filter.Matches(ev) {
				b, _ := hex.DecodeString(ev.ID)
				items = append(items, negentropy.Item{Timestamp: uint64(ev.CreatedAt),
					ID: negentropy.ID(b)})
			}
		}
		negs[id] = negentropy.New(items)
		raw = gjson.GetBytes(msg, "3").String()
	case negentropy.LabelMsg:
		raw = gjson.GetBytes(msg, "2").String()
	}
	neg, ok := negs[id]
	if !ok {
		reply(negentropy.LabelErr, "closed: unknown session")
		return
	}
	in, _ := hex.DecodeString(raw)
	out, _, _, err := neg.Reconcile(in)
	if err != nil {
		reply(negentropy.LabelErr, "error: "+err.Error())
		return
	}
	reply(negentropy.LabelMsg, hex.EncodeToString(out))
}

// fakeDialer connects to fake relays by url. Urls without a relay refuse
// the connection; urls in banned are refused by policy.
type fakeDialer struct {
	mx     sync.Mutex
	relays map[string]*fakeRelay
	banned map[string]bool
	dials  int
}

func (d *fakeDialer) Dial(c context.Context, url string) (Conn, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.dials++
	if d.banned[url] {
		return nil, ErrBanned
	}
	f, ok := d.relays[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	conn := newMemConn()
	go f.serve(conn)
	return conn, nil
}

func testPool(t *testing.T, relays map[string]*fakeRelay) (*Pool, *fakeDialer) {
	d := &fakeDialer{relays: relays, banned: map[string]bool{}}
	p := New(d, Options{ReconnectEvery: 10 * time.Millisecond,
		ReconnectBurst: 5})
	for u := range relays {
		_, err := p.AddRelay(u, Read|Write)
		require.NoError(t, err)
	}
	t.Cleanup(p.DisconnectAll)
	return p, d
}

func note(t *testing.T, sk string, ts nostr.Timestamp, content string) *nostr.Event {
	ev := &nostr.Event{Kind: 1, CreatedAt: ts, Content: content, Tags: nostr.Tags{}}
	require.NoError(t, ev.Sign(sk))
	return ev
}
