package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	mx      sync.Mutex
	known   []string
	lists   []*nostr.Event
	fail    error
	batches []int
	added   map[string]relaypool.Flags
}

func (p *fakePool) URLs() []string { return p.known }

func (p *fakePool) Fetch(c context.Context, filters nostr.Filters, timeout time.Duration) (evs []*nostr.Event, err error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.batches = append(p.batches, len(filters[0].Authors))
	if p.fail != nil {
		return nil, p.fail
	}
	for _, ev := range p.lists {
		if filters.Match(ev) {
			evs = append(evs, ev)
		}
	}
	return
}

func (p *fakePool) AddRelay(url string, flags relaypool.Flags) (bool, error) {
	if p.added == nil {
		p.added = map[string]relaypool.Flags{}
	}
	p.added[url] = flags
	return true, nil
}

func (p *fakePool) ConnectAll(context.Context) (int, error) { return len(p.known) + len(p.added), nil }
func (p *fakePool) ConnectedCount() int                    { return len(p.known) }

func relayList(t *testing.T, ts nostr.Timestamp, tags ...nostr.Tag) (ev *nostr.Event, pk string) {
	sk := nostr.GeneratePrivateKey()
	ev = &nostr.Event{Kind: 10002, CreatedAt: ts, Tags: tags}
	require.NoError(t, ev.Sign(sk))
	return ev, ev.PubKey
}

func TestTallyCountsAuthorsOnce(t *testing.T) {
	a, _ := relayList(t, 10,
		nostr.Tag{"r", "wss://x.test", "write"},
		nostr.Tag{"r", "wss://x.test/", "read"},
		nostr.Tag{"r", "not a url at all ::"},
	)
	older := &nostr.Event{Kind: 10002, PubKey: a.PubKey, CreatedAt: 5,
		Tags: nostr.Tags{{"r", "wss://old.test"}}}
	tally := Tally([]*nostr.Event{older, a})
	require.Contains(t, tally, "wss://x.test")
	x := tally["wss://x.test"]
	assert.Equal(t, 1, x.Count)
	assert.True(t, x.Write)
	assert.True(t, x.Read)
	assert.NotContains(t, tally, "wss://old.test")
}

func TestSelectThreshold(t *testing.T) {
	var lists []*nostr.Event
	for i := 0; i < 3; i++ {
		ev, _ := relayList(t, 10, nostr.Tag{"r", "wss://x.test", "write"})
		lists = append(lists, ev)
	}
	ev, _ := relayList(t, 10, nostr.Tag{"r", "wss://y.test", "write"})
	lists = append(lists, ev)
	cs := Select(Tally(lists), nil)
	require.Len(t, cs, 1)
	assert.Equal(t, "wss://x.test", cs[0].URL)
	assert.Equal(t, 3, cs[0].Count)
	assert.Equal(t, relaypool.Read, cs[0].Flags())

	assert.Empty(t, Select(Tally(lists), []string{"X.test"}))
}

func TestSelectCapAndOrder(t *testing.T) {
	tally := map[string]*Candidate{}
	for i := 0; i < 40; i++ {
		u := fmt.Sprintf("wss://r%02d.test", i)
		tally[u] = &Candidate{URL: u, Count: 2 + i%7, Read: true}
	}
	cs := Select(tally, nil)
	require.Len(t, cs, MaxRelays)
	for i := 1; i < len(cs); i++ {
		assert.GreaterOrEqual(t, cs[i-1].Count, cs[i].Count)
	}
	assert.Equal(t, relaypool.Write, cs[0].Flags())
	assert.Equal(t, relaypool.Read|relaypool.Write, Candidate{Read: true, Write: true}.Flags())
}

func TestDiscover(t *testing.T) {
	p := &fakePool{known: []string{"wss://known.test"}}
	var authors []string
	for i := 0; i < 3; i++ {
		ev, pk := relayList(t, 10,
			nostr.Tag{"r", "wss://x.test", "write"},
			nostr.Tag{"r", "wss://known.test"},
		)
		p.lists = append(p.lists, ev)
		authors = append(authors, pk)
	}
	ev, pk := relayList(t, 10, nostr.Tag{"r", "wss://y.test", "write"},
		nostr.Tag{"r", "wss://z.test", "read"})
	p.lists = append(p.lists, ev)
	authors = append(authors, pk)
	ev, pk = relayList(t, 10, nostr.Tag{"r", "wss://z.test"})
	p.lists = append(p.lists, ev)
	authors = append(authors, pk)
	for i := 0; i < 120; i++ {
		authors = append(authors, fmt.Sprintf("%064x", i))
	}
	authors = append(authors, "not-hex", authors[0])

	res, err := Discover(context.Background(), p, authors)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Discovered)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 3, res.Connected)
	assert.Len(t, res.Lists, 5)
	assert.Equal(t, map[string]relaypool.Flags{
		"wss://x.test": relaypool.Read,
		"wss://z.test": relaypool.Read | relaypool.Write,
	}, p.added)
	assert.ElementsMatch(t, []int{50, 50, 25}, p.batches)
}

func TestDiscoverNothingToDo(t *testing.T) {
	p := &fakePool{}
	res, err := Discover(context.Background(), p, []string{"nope"})
	require.NoError(t, err)
	assert.Zero(t, res)
	assert.Empty(t, p.batches)

	p.fail = fmt.Errorf("no read relays: %w", errs.NotInitialized)
	_, err = Discover(context.Background(), p, []string{fmt.Sprintf("%064x", 1)})
	assert.True(t, errors.Is(err, errs.NotInitialized))
}
