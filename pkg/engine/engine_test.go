package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/compose"
	"github.com/Hubmakerlabs/nostrengine/pkg/config"
	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/hydrate"
	"github.com/Hubmakerlabs/nostrengine/pkg/kind"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/Hubmakerlabs/nostrengine/pkg/relaypool"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zeroID = "0000000000000000000000000000000000000000000000000000000000000000"

func testConfig(t *testing.T) *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Discover = nil
	cfg.SecKey = nostr.GeneratePrivateKey()
	cfg.StoreCapacities = []int64{16}
	cfg.SendTimeout = 2 * time.Second
	cfg.ConnectTimeout = 2 * time.Second
	cfg.FetchTimeout = 2 * time.Second
	cfg.SyncTimeout = 5 * time.Second
	cfg.ReconnectEvery = 10 * time.Millisecond
	cfg.ReconnectBurst = 10
	return cfg
}

func testEngineWith(t *testing.T, tweak func(cfg *config.Config), relays ...*testRelay) *Engine {
	t.Helper()
	cfg := testConfig(t)
	if tweak != nil {
		tweak(cfg)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	var urls []string
	for _, r := range relays {
		urls = append(urls, r.URL())
	}
	require.NoError(t, e.Init(urls, nil))
	return e
}

func testEngine(t *testing.T, relays ...*testRelay) *Engine {
	return testEngineWith(t, nil, relays...)
}

func signed(t *testing.T, sk string, k kind.T, ts nostr.Timestamp, content string, tags ...nostr.Tag) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{Kind: k.ToInt(), CreatedAt: ts, Content: content, Tags: nostr.Tags{}}
	ev.Tags = append(ev.Tags, tags...)
	require.NoError(t, ev.Sign(sk))
	return ev
}

func pub(t *testing.T, sk string) string {
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return pk
}

func TestLifecycle(t *testing.T) {
	c := context.Background()
	cfg := testConfig(t)
	e, err := New(cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.False(t, e.IsInitialized())
	assert.Equal(t, pub(t, cfg.SecKey), e.PublicKey())
	assert.Equal(t, int64(16), e.OpenResult().Capacity)
	assert.False(t, e.OpenResult().Recreated)

	_, err = e.Fetch(c, nostr.Filter{}, time.Second)
	assert.ErrorIs(t, err, errs.NotInitialized)
	_, err = e.RelayList()
	assert.ErrorIs(t, err, errs.NotInitialized)

	// the store works before Init
	note := signed(t, cfg.SecKey, kind.TextNote, nostr.Now(), "kept")
	saved, err := e.SaveEvent(c, note)
	require.NoError(t, err)
	assert.True(t, saved)
	saved, err = e.SaveEvent(c, note)
	require.NoError(t, err)
	assert.False(t, saved)

	require.NoError(t, e.Init(nil, nil))
	assert.True(t, e.IsInitialized())
	n, err := e.Connect(c)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, e.Close())
	assert.False(t, e.IsInitialized())
	_, err = e.Event(c, note.ID)
	assert.ErrorIs(t, err, errs.NotInitialized)
	assert.ErrorIs(t, e.Disconnect(), errs.NotInitialized)

	require.NoError(t, e.Init(nil, nil))
	ev, err := e.Event(c, note.ID)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "kept", ev.Content)
}

func TestNoSigner(t *testing.T) {
	e := testEngineWith(t, func(cfg *config.Config) { cfg.SecKey = "" })
	assert.Empty(t, e.PublicKey())
	_, err := e.DeleteEvents(context.Background(), []string{zeroID}, "")
	assert.ErrorIs(t, err, errs.NotInitialized)
}

func TestSendAndFetch(t *testing.T) {
	c := context.Background()
	other := nostr.GeneratePrivateKey()
	remote := signed(t, other, kind.TextNote, nostr.Now()-10, "from elsewhere")
	r := newTestRelay(t, remote)
	e := testEngine(t, r)

	note, err := compose.Finish(e.Signer(), compose.Note("hello #nostr"))
	require.NoError(t, err)
	res, err := e.Send(c, note)
	require.NoError(t, err)
	assert.Equal(t, []string{normalize.URL(r.URL())}, res.Success)
	assert.Empty(t, res.Failed)
	assert.True(t, r.has(note.ID))
	ok, err := e.EventExists(c, note.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	evs, err := e.Fetch(c, nostr.Filter{Authors: []string{remote.PubKey}}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	stored, err := e.Event(c, remote.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	evs, err = e.Fetch(c, nostr.Filter{Kinds: []int{1}}, 0)
	require.NoError(t, err)
	assert.Empty(t, evs)

	ev, err := e.FetchByID(c, remote.ID, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, remote.ID, ev.ID)

	_, err = e.Send(c, &nostr.Event{Kind: 1, Content: "unsigned"})
	assert.ErrorIs(t, err, errs.ProtocolViolation)
}

func TestSendPartialFailure(t *testing.T) {
	c := context.Background()
	good := newTestRelay(t)
	bad := newRejectingRelay(t, "invalid: not today")
	e := testEngine(t, good, bad)

	note, err := compose.Finish(e.Signer(), compose.Note("half heard"))
	require.NoError(t, err)
	res, err := e.Send(c, note)
	assert.ErrorIs(t, err, errs.PartialFailure)
	assert.Equal(t, []string{normalize.URL(good.URL())}, res.Success)
	assert.Contains(t, res.Failed[normalize.URL(bad.URL())], "not today")
	assert.True(t, good.has(note.ID))
	assert.False(t, bad.has(note.ID))

	task := e.SendAsync(c, note)
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("send did not finish")
	}
	res, err = task.Wait(c)
	assert.ErrorIs(t, err, errs.PartialFailure)
	assert.Len(t, res.Success, 1)
}

func TestPublish(t *testing.T) {
	c := context.Background()
	r := newTestRelay(t)
	e := testEngine(t, r)
	target := signed(t, nostr.GeneratePrivateKey(), kind.TextNote, nostr.Now(), "nice")

	res, err := e.Publish(c, compose.Reaction(target, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSuccess)
	assert.True(t, r.has(res.ID))
	ok, err := e.HasUserReacted(c, target.ID, e.PublicKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSendTo(t *testing.T) {
	c := context.Background()
	home, elsewhere := newTestRelay(t), newTestRelay(t)
	e := testEngine(t, home)

	note, err := compose.Finish(e.Signer(), compose.Note("only there"))
	require.NoError(t, err)
	res, err := e.SendTo(c, note, []string{elsewhere.URL()})
	require.NoError(t, err)
	assert.Equal(t, []string{normalize.URL(elsewhere.URL())}, res.Success)
	assert.True(t, elsewhere.has(note.ID))
	assert.False(t, home.has(note.ID))

	_, err = e.SendTo(c, note, []string{""})
	assert.ErrorIs(t, err, errs.InvalidInput)
}

func TestBroadcast(t *testing.T) {
	c := context.Background()
	r, other := newTestRelay(t), newTestRelay(t)
	e := testEngine(t, r)

	sk := nostr.GeneratePrivateKey()
	a := signed(t, sk, kind.TextNote, nostr.Now()-2, "one")
	b := signed(t, sk, kind.TextNote, nostr.Now()-1, "two")
	tampered := *b
	tampered.Content = "three"

	res, err := e.Broadcast(c, []*nostr.Event{a, b, &tampered}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSuccess)
	assert.Equal(t, 1, res.TotalFailed)
	assert.True(t, r.has(a.ID))
	assert.True(t, r.has(b.ID))

	res, err = e.Broadcast(c, []*nostr.Event{a}, []string{other.URL()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSuccess)
	assert.True(t, other.has(a.ID))

	_, err = e.Broadcast(c, []*nostr.Event{a}, []string{""})
	assert.ErrorIs(t, err, errs.InvalidInput)
}

func TestDeleteEvents(t *testing.T) {
	c := context.Background()
	r := newTestRelay(t)
	e := testEngine(t, r)

	note, err := compose.Finish(e.Signer(), compose.Note("oops"))
	require.NoError(t, err)
	_, err = e.Send(c, note)
	require.NoError(t, err)

	res, err := e.DeleteEvents(c, []string{note.ID, "nothex"}, "mistake")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSuccess)
	assert.Zero(t, res.TotalFailed)
	require.NotEmpty(t, res.ID)
	assert.True(t, r.has(res.ID))
	ok, err := e.EventExists(c, note.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	before := len(r.stored())
	res, err = e.DeleteEvents(c, []string{"zz"}, "")
	require.NoError(t, err)
	assert.Equal(t, BroadcastResult{}, res)
	assert.Len(t, r.stored(), before)
}

func TestRequestToVanish(t *testing.T) {
	c := context.Background()
	home, other := newTestRelay(t), newTestRelay(t)
	e := testEngine(t, home)

	res, err := e.RequestToVanish(c, []string{compose.AllRelays}, "bye")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSuccess)
	var req *nostr.Event
	for _, ev := range home.stored() {
		if ev.ID == res.ID {
			req = ev
		}
	}
	require.NotNil(t, req)
	assert.Equal(t, kind.Vanish.ToInt(), req.Kind)
	assert.Equal(t, nostr.Tags{{"relay", compose.AllRelays}}, req.Tags)
	assert.Equal(t, "bye", req.Content)

	res, err = e.RequestToVanish(c, []string{other.URL()}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSuccess)
	assert.True(t, other.has(res.ID))
	assert.False(t, home.has(res.ID))
}

func TestRelayManagement(t *testing.T) {
	c := context.Background()
	r1, r2, disc := newTestRelay(t), newTestRelay(t), newTestRelay(t)
	e := testEngineWith(t, func(cfg *config.Config) {
		cfg.Discover = []string{disc.URL()}
	}, r1)

	_, err := e.AddRelay(c, r2.URL(), false, false)
	assert.ErrorIs(t, err, errs.InvalidInput)
	added, err := e.AddRelay(c, r2.URL(), true, false)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = e.AddRelay(c, r2.URL(), true, true)
	require.NoError(t, err)
	assert.False(t, added)

	want := []string{normalize.URL(r1.URL()), normalize.URL(r2.URL())}
	list, err := e.RelayList()
	require.NoError(t, err)
	assert.Equal(t, want, list)
	assert.Equal(t, want, e.UserRelays())

	n, err := e.Connect(c)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = e.ConnectedRelayCount()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	st, err := e.RelayStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalRelays)
	assert.Equal(t, 2, st.ConnectedRelays)
	assert.Len(t, st.Relays, 3)

	removed, err := e.RemoveRelay(r2.URL())
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, want[:1], e.UserRelays())
	list, err = e.RelayList()
	require.NoError(t, err)
	assert.Equal(t, want[:1], list)

	require.NoError(t, e.Disconnect())
	n, err = e.ConnectedRelayCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDiscoverOutbox(t *testing.T) {
	c := context.Background()
	out := newTestRelay(t)
	a, b := nostr.GeneratePrivateKey(), nostr.GeneratePrivateKey()
	listA := signed(t, a, kind.RelayListMetadata, nostr.Now(), "", nostr.Tag{"r", out.URL(), "write"})
	listB := signed(t, b, kind.RelayListMetadata, nostr.Now(), "", nostr.Tag{"r", out.URL()})
	home := newTestRelay(t, listA, listB)
	e := testEngine(t, home)

	res, err := e.DiscoverOutbox(c, []string{pub(t, a), pub(t, b), "junk"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Discovered)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 2, res.Connected)

	st, err := e.RelayStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalRelays)
	for _, l := range []*nostr.Event{listA, listB} {
		ok, err := e.EventExists(c, l.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestWatchCounts(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	target := signed(t, sk, kind.TextNote, nostr.Now()-100, "watch me")
	r := newTestRelay(t, target)
	e := testEngine(t, r)

	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.SaveEvent(c, target)
	require.NoError(t, err)

	_, err = e.WatchCounts(c, []string{"junk"}, "", 0)
	assert.ErrorIs(t, err, errs.InvalidInput)

	updates, err := e.WatchCounts(c, []string{target.ID}, e.PublicKey(), 200*time.Millisecond)
	require.NoError(t, err)
	first, ok := <-updates
	require.True(t, ok)
	assert.Zero(t, first[target.ID].Reactions)

	for i := 0; i < 5; i++ {
		r.publish(signed(t, nostr.GeneratePrivateKey(), kind.Reaction, nostr.Now(), "+",
			nostr.Tag{"e", target.ID}, nostr.Tag{"p", target.PubKey}))
	}
	n := 0
	for got := 0; got < 5; {
		select {
		case counts, ok := <-updates:
			require.True(t, ok)
			got = counts[target.ID].Reactions
			n++
		case <-c.Done():
			t.Fatal("reactions were not counted")
		}
	}
	assert.LessOrEqual(t, n, 2)

	cancel()
	for range updates {
	}
}

func TestSync(t *testing.T) {
	c := context.Background()
	sk := nostr.GeneratePrivateKey()
	remote := []*nostr.Event{
		signed(t, sk, kind.TextNote, nostr.Now()-3, "a"),
		signed(t, sk, kind.TextNote, nostr.Now()-2, "b"),
	}
	r := newTestRelay(t, remote...)
	e := testEngine(t, r)
	local := signed(t, sk, kind.TextNote, nostr.Now()-1, "c")
	_, err := e.SaveEvent(c, local)
	require.NoError(t, err)

	rep, err := e.Sync(c, nostr.Filter{Authors: []string{pub(t, sk)}}, relaypool.Down)
	require.NoError(t, err)
	assert.Equal(t, []string{normalize.URL(r.URL())}, rep.Fallback)
	assert.Equal(t, 2, rep.Received)
	assert.Equal(t, 2, rep.RemoteOnly)
	assert.Equal(t, 1, rep.LocalOnly)
	assert.Zero(t, rep.Sent)
	for _, ev := range remote {
		ok, err := e.EventExists(c, ev.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.False(t, r.has(local.ID))
}

func TestThread(t *testing.T) {
	c := context.Background()
	sk := nostr.GeneratePrivateKey()
	root := signed(t, sk, kind.TextNote, nostr.Now()-30, "root")
	reply := signed(t, sk, kind.TextNote, nostr.Now()-20, "reply",
		nostr.Tag{"e", root.ID, "", "root"})
	nested := signed(t, sk, kind.TextNote, nostr.Now()-10, "nested",
		nostr.Tag{"e", root.ID, "", "root"}, nostr.Tag{"e", reply.ID, "", "reply"})
	r := newTestRelay(t, root, reply, nested)
	e := testEngine(t, r)

	id, err := e.ResolveRoot(c, nested.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, id)

	fetched, err := e.SyncReplies(c, root.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fetched)

	tree, err := e.Thread(c, root.ID)
	require.NoError(t, err)
	require.NotNil(t, tree.Root)
	assert.Equal(t, root.ID, tree.Root.ID)
	assert.Len(t, tree.NotesByID, 3)
	assert.Equal(t, []string{reply.ID}, tree.ChildrenByParent[root.ID])
	assert.Equal(t, []string{nested.ID}, tree.ChildrenByParent[reply.ID])

	_, err = e.Thread(c, zeroID)
	assert.ErrorIs(t, err, errs.InvalidInput)
}

func TestStoreViews(t *testing.T) {
	c := context.Background()
	e := testEngine(t)
	me := e.PublicKey()
	now := nostr.Now()
	alice, bob, carol := nostr.GeneratePrivateKey(), nostr.GeneratePrivateKey(), nostr.GeneratePrivateKey()
	pkA, pkB, pkC := pub(t, alice), pub(t, bob), pub(t, carol)
	mine := e.Config().SecKey

	profA := signed(t, alice, kind.ProfileMetadata, now-100,
		`{"name":"alice","picture":"https://a.example/p.png","nip05":"alice@example.com"}`)
	profB := signed(t, bob, kind.ProfileMetadata, now-100, `{"name":"bob","display_name":"Bobby"}`)
	follows := signed(t, mine, kind.FollowList, now-90, "",
		nostr.Tag{"p", pkA}, nostr.Tag{"p", pkB}, nostr.Tag{"p", "bad"})
	mutes := signed(t, mine, kind.MuteList, now-80, "", nostr.Tag{"p", pkC}, nostr.Tag{"word", "spam"})
	n1 := signed(t, alice, kind.TextNote, now-50, "gm #nostr", nostr.Tag{"t", "nostr"})
	n2 := signed(t, bob, kind.TextNote, now-40, "buy SPAM now")
	n3 := signed(t, carol, kind.TextNote, now-30, "hi")
	n4 := signed(t, alice, kind.TextNote, now-20, "replying to myself",
		nostr.Tag{"e", n1.ID, "", "root"}, nostr.Tag{"p", pkA})
	raw, err := json.Marshal(n1)
	require.NoError(t, err)
	repost := signed(t, bob, kind.Repost, now-10, string(raw), nostr.Tag{"e", n1.ID}, nostr.Tag{"p", pkA})
	like := signed(t, mine, kind.Reaction, now-5, "+", nostr.Tag{"e", n1.ID}, nostr.Tag{"p", pkA})
	ancient := signed(t, alice, kind.TextNote, now-40*day, "ancient")
	all := []*nostr.Event{profA, profB, follows, mutes, n1, n2, n3, n4, repost, like, ancient}

	tampered := *n3
	tampered.Content = "changed"
	res, err := e.SaveEvents(c, append(all, &tampered))
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Saved: len(all), Rejected: 1}, res)
	res, err = e.SaveEvents(c, all[:2])
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Duplicate: 2}, res)

	t.Run("feed", func(t *testing.T) {
		ns, err := e.FeedNotes(c, nil, 0)
		require.NoError(t, err)
		require.Len(t, ns, 4)
		assert.Equal(t, n1.ID, ns[0].ID)
		assert.True(t, ns[0].IsRepost)
		assert.Equal(t, pkB, ns[0].RepostedBy)
		assert.Equal(t, n4.ID, ns[1].ID)
		assert.True(t, ns[1].IsReply)
		assert.Equal(t, n1.ID, ns[2].ID)
		assert.Equal(t, "alice", ns[2].AuthorName)
		assert.Equal(t, 1, ns[2].ReactionCount)
		assert.Equal(t, 1, ns[2].RepostCount)
		assert.Equal(t, 1, ns[2].ReplyCount)
		assert.Equal(t, ancient.ID, ns[3].ID)

		e.Config().FilterReplies = true
		ns, err = e.FeedNotes(c, nil, 0)
		e.Config().FilterReplies = false
		require.NoError(t, err)
		assert.Len(t, ns, 3)

		ns, err = e.FeedNotes(c, []string{pkB}, 10)
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.True(t, ns[0].IsRepost)

		_, err = e.FeedNotes(c, []string{"junk"}, 10)
		assert.ErrorIs(t, err, errs.InvalidInput)

		ns, err = e.ProfileNotes(c, pkA, 0)
		require.NoError(t, err)
		assert.Len(t, ns, 3)
	})

	t.Run("hashtags and replies", func(t *testing.T) {
		ns, err := e.HashtagNotes(c, "#NOSTR", 0)
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, n1.ID, ns[0].ID)
		_, err = e.HashtagNotes(c, "#", 0)
		assert.ErrorIs(t, err, errs.InvalidInput)

		ns, err = e.Replies(c, n1.ID, 0)
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, n4.ID, ns[0].ID)
	})

	t.Run("search", func(t *testing.T) {
		ns, err := e.SearchNotes(c, "GM", 0)
		require.NoError(t, err)
		require.Len(t, ns, 1)
		assert.Equal(t, n1.ID, ns[0].ID)
		ns, err = e.SearchNotes(c, "spam", 0)
		require.NoError(t, err)
		assert.Empty(t, ns)

		ps, err := e.SearchProfiles(c, "ALI", 0)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, "alice", ps[0].Name)
		ps, err = e.SearchProfiles(c, "bobby", 0)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		ps, err = e.SearchProfiles(c, "example.com", 0)
		require.NoError(t, err)
		assert.Len(t, ps, 1)
		_, err = e.SearchProfiles(c, " ", 0)
		assert.ErrorIs(t, err, errs.InvalidInput)

		ps, err = e.RandomProfiles(c, 10)
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, "https://a.example/p.png", ps[0].Picture)
	})

	t.Run("profiles and lists", func(t *testing.T) {
		p, err := e.Profile(c, pkA)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "alice", p.BestName())
		p, err = e.Profile(c, pkC)
		require.NoError(t, err)
		assert.Nil(t, p)
		ps, err := e.Profiles(c, []string{pkA, pkB, pkC})
		require.NoError(t, err)
		assert.Len(t, ps, 2)

		ok, err := e.HasProfile(c, pkA)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.HasFollowingList(c, me)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.HasMuteList(c, pkA)
		require.NoError(t, err)
		assert.False(t, ok)

		fl, err := e.FollowingList(c, me)
		require.NoError(t, err)
		assert.Equal(t, []string{pkA, pkB}, fl)
		pks, words, err := e.MuteList(c, me)
		require.NoError(t, err)
		assert.Equal(t, []string{pkC}, pks)
		assert.Equal(t, []string{"spam"}, words)
	})

	t.Run("interactions", func(t *testing.T) {
		ok, err := e.HasUserReacted(c, n1.ID, me)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.HasUserReposted(c, n1.ID, pkB)
		require.NoError(t, err)
		assert.True(t, ok)
		id, err := e.FindUserRepost(c, pkB, n1.ID)
		require.NoError(t, err)
		assert.Equal(t, repost.ID, id)
		id, err = e.FindUserRepost(c, pkA, n1.ID)
		require.NoError(t, err)
		assert.Empty(t, id)

		ic, err := e.InteractionCounts(c, n1.ID, me)
		require.NoError(t, err)
		assert.Equal(t, hydrate.InteractionCounts{Reactions: 1, Reposts: 1, Replies: 1, HasReacted: true}, ic)
		rows, err := e.DetailedInteractions(c, n1.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 2)

		ns, err := e.Notifications(c, pkA, 0)
		require.NoError(t, err)
		require.Len(t, ns, 2)
		assert.Equal(t, hydrate.TypeReaction, ns[0].Type)
		assert.Equal(t, hydrate.TypeRepost, ns[1].Type)
		assert.Equal(t, "bob", ns[1].FromName)
	})

	t.Run("stats and cleanup", func(t *testing.T) {
		st, err := e.Stats(c)
		require.NoError(t, err)
		assert.Equal(t, Stats{TotalEvents: 11, TextNotes: 5, Metadata: 2, Contacts: 1,
			Reactions: 1, Reposts: 1}, st)

		old, err := e.OldestEvents(c, 2)
		require.NoError(t, err)
		require.Len(t, old, 2)
		assert.Equal(t, ancient.ID, old[0].ID)
		assert.Equal(t, now-100, old[1].CreatedAt)

		removed, err := e.CleanupOldEvents(c, 30)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		ok, err := e.EventExists(c, ancient.ID)
		require.NoError(t, err)
		assert.False(t, ok)
		n, err := e.Count(c, nostr.Filter{Kinds: []int{1}, Authors: []string{pkA}})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		evs, err := e.QueryEvents(c, nostr.Filter{Kinds: []int{1}, Authors: []string{pkA}})
		require.NoError(t, err)
		assert.Len(t, evs, 2)

		require.NoError(t, e.Wipe())
		st, err = e.Stats(c)
		require.NoError(t, err)
		assert.Zero(t, st.TotalEvents)
	})
}

func TestOldestEventsSharedTimestamp(t *testing.T) {
	c := context.Background()
	e := testEngine(t)
	sk := e.Config().SecKey
	evs := make([]*nostr.Event, 0, 1001)
	for i := 0; i < 999; i++ {
		evs = append(evs, signed(t, sk, kind.TextNote, nostr.Timestamp(5000+i), "newer"))
	}
	a := signed(t, sk, kind.TextNote, 1000, "oldest a")
	b := signed(t, sk, kind.TextNote, 1000, "oldest b")
	evs = append(evs, a, b)
	res, err := e.SaveEvents(c, evs)
	require.NoError(t, err)
	assert.Equal(t, 1001, res.Saved)

	old, err := e.OldestEvents(c, 2)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, []string{old[0].ID, old[1].ID})

	old, err = e.OldestEvents(c, 3)
	require.NoError(t, err)
	require.Len(t, old, 3)
	assert.Equal(t, nostr.Timestamp(5000), old[2].CreatedAt)
}
