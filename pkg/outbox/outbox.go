// Package outbox finds the relays the authors a user follows publish to,
// from their kind 10002 relay lists, and adds the popular ones to the pool.
package outbox

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

var log, chk = slog.New(os.Stderr)

const (
	// BatchSize is the number of authors per relay list request.
	BatchSize    = 50
	FetchTimeout = 10 * time.Second
	// MinFrequency is the number of authors that must list a relay before it
	// is added.
	MinFrequency = 2
	MaxRelays    = 30
)

// Pool is the part of a relay pool discovery works with.
type Pool interface {
	URLs() []string
	Fetch(c context.Context, filters nostr.Filters, timeout time.Duration) ([]*nostr.Event, error)
	AddRelay(url string, flags relaypool.Flags) (bool, error)
	ConnectAll(c context.Context) (int, error)
	ConnectedCount() int
}

type Result struct {
	Discovered int `json:"discoveredRelays"`
	Added      int `json:"addedRelays"`
	Connected  int `json:"totalConnected"`
	// Lists are the relay list events that were fetched, for the caller to
	// store.
	Lists []*nostr.Event `json:"-"`
}

// Candidate is a relay found in relay lists. Write is set when an author
// publishes there and Read when an author reads mentions there.
type Candidate struct {
	URL   string
	Count int
	Write bool
	Read  bool
}

// Flags are the pool flags for the candidate: we read from the relays
// authors write to and write to the relays they read from.
func (c Candidate) Flags() (f relaypool.Flags) {
	if c.Write {
		f |= relaypool.Read
	}
	if c.Read {
		f |= relaypool.Write
	}
	return
}

// Tally counts, for every relay url, the number of distinct authors whose
// newest relay list names it.
func Tally(lists []*nostr.Event) (tally map[string]*Candidate) {
	newest := make(map[string]*nostr.Event)
	for _, ev := range lists {
		if ev.Kind != int(kind.RelayListMetadata) {
			continue
		}
		if prev, ok := newest[ev.PubKey]; !ok || ev.CreatedAt > prev.CreatedAt {
			newest[ev.PubKey] = ev
		}
	}
	tally = make(map[string]*Candidate)
	for _, ev := range newest {
		listed := make(map[string]struct{})
		for _, t := range ev.Tags {
			if len(t) < 2 || t[0] != "r" {
				continue
			}
			u := normalize.URL(t[1])
			if u == "" {
				continue
			}
			c, ok := tally[u]
			if !ok {
				c = &Candidate{URL: u}
				tally[u] = c
			}
			marker := ""
			if len(t) > 2 {
				marker = t[2]
			}
			switch marker {
			case "write":
				c.Write = true
			case "read":
				c.Read = true
			default:
				c.Write, c.Read = true, true
			}
			if _, dup := listed[u]; !dup {
				listed[u] = struct{}{}
				c.Count++
			}
		}
	}
	return
}

// Select drops known relays and those below MinFrequency and returns the
// rest most popular first, at most MaxRelays of them.
func Select(tally map[string]*Candidate, known []string) (cs []Candidate) {
	skip := make(map[string]struct{}, len(known))
	for _, u := range known {
		skip[normalize.URL(u)] = struct{}{}
	}
	for u, c := range tally {
		if _, ok := skip[u]; ok || c.Count < MinFrequency {
			continue
		}
		cs = append(cs, *c)
	}
	slices.SortFunc(cs, func(a, b Candidate) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.URL, b.URL)
	})
	if len(cs) > MaxRelays {
		cs = cs[:MaxRelays]
	}
	return
}

// Discover fetches the relay lists of authors in batches, adds the selected
// relays to the pool and connects them. Invalid author keys are skipped. An
// error is returned only when every batch failed.
func Discover(c context.Context, pool Pool, authors []string) (res Result, err error) {
	authors = normalize.ValidHex32(authors)
	if len(authors) == 0 {
		return
	}
	var mx sync.Mutex
	var failed int
	var firstErr error
	var g errgroup.Group
	g.SetLimit(4)
	batches := 0
	for len(authors) > 0 {
		batch := authors[:min(BatchSize, len(authors))]
		authors = authors[len(batch):]
		batches++
		g.Go(func() error {
			evs, e := pool.Fetch(c, nostr.Filters{{
				Authors: batch,
				Kinds:   []int{int(kind.RelayListMetadata)},
				Limit:   len(batch),
			}}, FetchTimeout)
			mx.Lock()
			defer mx.Unlock()
			if e != nil {
				log.D.Ln("fetching relay lists:", e)
				if failed++; firstErr == nil {
					firstErr = e
				}
				return nil
			}
			res.Lists = append(res.Lists, evs...)
			return nil
		})
	}
	_ = g.Wait()
	if failed == batches {
		return res, firstErr
	}
	cs := Select(Tally(res.Lists), pool.URLs())
	res.Discovered = len(cs)
	for _, cand := range cs {
		added, e := pool.AddRelay(cand.URL, cand.Flags())
		if chk.D(e) {
			continue
		}
		if added {
			res.Added++
		}
	}
	if res.Added > 0 {
		if res.Connected, err = pool.ConnectAll(c); chk.E(err) {
			return
		}
	} else {
		res.Connected = pool.ConnectedCount()
	}
	log.I.F("outbox: %d relay lists, %d relays discovered, %d added, %d connected",
		len(res.Lists), res.Discovered, res.Added, res.Connected)
	return
}
