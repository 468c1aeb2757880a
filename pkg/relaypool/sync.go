package relaypool

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/negentropy"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"
)

// Direction says which side of a sync receives the missing events.
type Direction int

const (
	// Down fetches the events only the relays have into the store.
	Down Direction = iota
	// Up sends the events only the store has to the relays.
	Up
	Both
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Both:
		return "both"
	default:
		return "down"
	}
}

func ParseDirection(s string) (d Direction, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "down":
		return Down, nil
	case "up":
		return Up, nil
	case "both":
		return Both, nil
	}
	return Down, fmt.Errorf("sync direction %q: %w", s, errs.InvalidInput)
}

type SyncOptions struct {
	Direction Direction
	// Relays limits the sync to these relays; empty means every read relay.
	Relays []string
	// Timeout bounds the whole sync; zero means the pool's sync timeout.
	Timeout time.Duration
}

// SyncReport sums a sync over all relays. LocalOnly and RemoteOnly count
// distinct ids; Fallback lists relays that could not reconcile and were
// compared by listing their events instead.
type SyncReport struct {
	Relays     int               `json:"relays"`
	Sent       int               `json:"sent"`
	Received   int               `json:"received"`
	LocalOnly  int               `json:"localOnly"`
	RemoteOnly int               `json:"remoteOnly"`
	Fallback   []string          `json:"fallback,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
}

var errNegUnsupported = errors.New("negentropy not supported")

// fetchBatch is the number of ids requested per REQ when downloading.
const fetchBatch = 100

type syncState struct {
	mx         sync.Mutex
	report     SyncReport
	localOnly  map[string]struct{}
	remoteOnly map[string]struct{}
}

func (st *syncState) record(have, need []string) {
	st.mx.Lock()
	defer st.mx.Unlock()
	for _, id := range have {
		st.localOnly[id] = struct{}{}
	}
	for _, id := range need {
		st.remoteOnly[id] = struct{}{}
	}
}

func (st *syncState) add(f func(r *SyncReport)) {
	st.mx.Lock()
	defer st.mx.Unlock()
	f(&st.report)
}

// Sync reconciles the events matching f in the store with each relay using
// negentropy, then moves the missing events in the given direction.
func (p *Pool) Sync(c context.Context, f nostr.Filter, store eventstore.Store, o SyncOptions) (rep SyncReport, err error) {
	if store == nil {
		return rep, fmt.Errorf("no store: %w", errs.NotInitialized)
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = p.opts.SyncTimeout
	}
	ctx, cancel := context.WithTimeout(c, timeout)
	defer cancel()
	var rs []*relay
	if len(o.Relays) > 0 {
		for _, u := range o.Relays {
			if r, ok := p.relays.Load(normalize.URL(u)); ok {
				rs = append(rs, r)
			}
		}
	} else {
		rs = p.list(readable)
	}
	if len(rs) == 0 {
		return rep, fmt.Errorf("no relays to sync with: %w", errs.NotInitialized)
	}
	var items []negentropy.Item
	localIDs := make(map[string]struct{})
	if err = store.Scan(ctx, f, func(ev *nostr.Event) bool {
		b, e := hex.DecodeString(ev.ID)
		if e != nil || len(b) != negentropy.IDSize {
			return true
		}
		items = append(items, negentropy.Item{Timestamp: uint64(ev.CreatedAt), ID: negentropy.ID(b)})
		localIDs[ev.ID] = struct{}{}
		return true
	}); chk.E(err) {
		return
	}
	st := &syncState{
		report:     SyncReport{Relays: len(rs), Failed: map[string]string{}},
		localOnly:  map[string]struct{}{},
		remoteOnly: map[string]struct{}{},
	}
	var g errgroup.Group
	for _, r := range rs {
		r := r
		g.Go(func() error {
			if e := p.syncRelay(ctx, r, f, items, localIDs, store, o.Direction, st); e != nil {
				log.D.Ln("sync", r.url, e)
				st.add(func(rep *SyncReport) { rep.Failed[r.url] = e.Error() })
			}
			return nil
		})
	}
	_ = g.Wait()
	rep = st.report
	rep.LocalOnly, rep.RemoteOnly = len(st.localOnly), len(st.remoteOnly)
	if len(rep.Failed) == 0 {
		rep.Failed = nil
	}
	log.I.F("sync %s with %d relays: %d local only, %d remote only, "+
		"%d sent, %d received", o.Direction, rep.Relays, rep.LocalOnly,
		rep.RemoteOnly, rep.Sent, rep.Received)
	return
}

func (p *Pool) syncRelay(c context.Context, r *relay, f nostr.Filter, items []negentropy.Item,
	localIDs map[string]struct{}, store eventstore.Store, dir Direction, st *syncState) (err error) {

	if err = r.connect(c, p.opts.ConnectTimeout); err != nil {
		return
	}
	var have, need []string
	var listed map[string]*nostr.Event
	if have, need, err = p.reconcile(c, r, f, items); err != nil {
		if !errs.Is(err, errNegUnsupported) {
			return
		}
		log.D.Ln(err, "listing ids instead")
		st.add(func(rep *SyncReport) { rep.Fallback = append(rep.Fallback, r.url) })
		if listed, err = p.listAll(c, r, f); err != nil {
			return
		}
		have, need = diff(localIDs, listed)
	}
	st.record(have, need)
	if dir == Down || dir == Both {
		n := p.download(c, r, need, listed, store)
		st.add(func(rep *SyncReport) { rep.Received += n })
	}
	if dir == Up || dir == Both {
		n := p.upload(c, r, have, store)
		st.add(func(rep *SyncReport) { rep.Sent += n })
	}
	return
}

// reconcile runs the NEG-OPEN/NEG-MSG exchange and returns the hex ids only
// the store has and only the relay has.
func (p *Pool) reconcile(c context.Context, r *relay, f nostr.Filter,
	items []negentropy.Item) (have, need []string, err error) {

	s := r.session()
	if s == nil {
		return nil, nil, fmt.Errorf("%s: %w", r.url, ErrNotConnected)
	}
	id := newSubID()
	ch := make(chan negentropy.Envelope, 4)
	r.negs.Store(id, ch)
	defer func() {
		r.negs.Delete(id)
		if msg, e := negentropy.CloseEnvelope(id); e == nil && s.ctx.Err() == nil {
			chk.T(r.write(c, msg))
		}
	}()
	neg := negentropy.New(append([]negentropy.Item(nil), items...))
	var msg []byte
	if msg, err = negentropy.OpenEnvelope(id, f, neg.Initiate()); chk.E(err) {
		return
	}
	if err = r.write(c, msg); err != nil {
		return
	}
	for {
		select {
		case e := <-ch:
			if e.Label != negentropy.LabelMsg {
				return nil, nil, fmt.Errorf("%s: %s %s: %w", r.url, e.Label,
					e.Payload, errNegUnsupported)
			}
			var in, out []byte
			if in, err = e.Message(); err != nil {
				return nil, nil, fmt.Errorf("%s: %v: %w", r.url, err, errs.ProtocolViolation)
			}
			var h, n []negentropy.ID
			if out, h, n, err = neg.Reconcile(in); err != nil {
				return nil, nil, fmt.Errorf("%s: %v: %w", r.url, err, errs.ProtocolViolation)
			}
			for _, x := range h {
				have = append(have, hex.EncodeToString(x[:]))
			}
			for _, x := range n {
				need = append(need, hex.EncodeToString(x[:]))
			}
			if out == nil {
				return
			}
			if msg, err = negentropy.MsgEnvelope(id, out); chk.E(err) {
				return
			}
			if err = r.write(c, msg); err != nil {
				return
			}
		case <-s.ctx.Done():
			return nil, nil, fmt.Errorf("%s: %w", r.url, ErrNotConnected)
		case <-c.Done():
			return nil, nil, fmt.Errorf("%s: %w", r.url, errs.Timeout)
		}
	}
}

// listAll fetches every event of the relay matching f, for relays without
// negentropy.
func (p *Pool) listAll(c context.Context, r *relay, f nostr.Filter) (evs map[string]*nostr.Event, err error) {
	evs = make(map[string]*nostr.Event)
	err = r.stream(c, newSubID(), nostr.Filters{f}, true, func(ev *nostr.Event) {
		evs[ev.ID] = ev
	}, nil)
	return
}

func diff(local map[string]struct{}, remote map[string]*nostr.Event) (have, need []string) {
	for id := range local {
		if _, ok := remote[id]; !ok {
			have = append(have, id)
		}
	}
	for id := range remote {
		if _, ok := local[id]; !ok {
			need = append(need, id)
		}
	}
	return
}

func (p *Pool) download(c context.Context, r *relay, need []string,
	listed map[string]*nostr.Event, store eventstore.Store) (saved int) {

	save := func(ev *nostr.Event) {
		if st, err := store.Save(c, ev); err == nil && st == eventstore.Success {
			saved++
		}
	}
	if listed != nil {
		for _, id := range need {
			if ev, ok := listed[id]; ok {
				save(ev)
			}
		}
		return
	}
	for len(need) > 0 {
		batch := need[:min(fetchBatch, len(need))]
		need = need[len(batch):]
		got := map[string]*nostr.Event{}
		err := r.stream(c, newSubID(), nostr.Filters{{IDs: batch}}, true,
			func(ev *nostr.Event) { got[ev.ID] = ev }, nil)
		for _, ev := range got {
			save(ev)
		}
		if err != nil {
			log.D.Ln(err)
			return
		}
	}
	return
}

func (p *Pool) upload(c context.Context, r *relay, have []string, store eventstore.Store) (sent int) {
	for _, id := range have {
		ev, err := store.EventByID(c, id)
		if err != nil || ev == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(c, p.opts.SendTimeout)
		ok, reason, err := r.publish(ctx, ev)
		cancel()
		switch {
		case err != nil:
			log.D.Ln(err)
			return
		case ok:
			sent++
		default:
			log.D.F("%s refused %s: %s", r.url, id, reason)
		}
	}
	return
}
