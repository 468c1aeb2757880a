package compose

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/decode"
	"github.com/Hubmakerlabs/nostrengine/pkg/signer"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = strings.Repeat("a", 64)
	bob   = strings.Repeat("b", 64)
	carol = strings.Repeat("c", 64)
	root  = strings.Repeat("1", 64)
	mid   = strings.Repeat("2", 64)
)

func TestNoteHashtags(t *testing.T) {
	ev := Note("gm #Nostr and #nostr, #go!", "Zaps", "#go")
	assert.Equal(t, nostr.Tags{{"t", "zaps"}, {"t", "go"}, {"t", "nostr"}}, ev.Tags)
	assert.Equal(t, 1, ev.Kind)
}

func TestReactionTags(t *testing.T) {
	target := &nostr.Event{ID: root, PubKey: alice, Kind: 1}
	ev := Reaction(target, "")
	assert.Equal(t, "+", ev.Content)
	assert.Equal(t, nostr.Tags{{"e", root}, {"p", alice}, {"k", "1"}}, ev.Tags)
}

func TestReplyMarkers(t *testing.T) {
	top := &nostr.Event{ID: root, PubKey: alice, Kind: 1, Tags: nostr.Tags{}}
	first := Reply(top, "first")
	l := decode.ThreadLinkage(first)
	assert.Equal(t, root, l.Root)
	assert.Equal(t, root, l.Parent)

	reply := &nostr.Event{ID: mid, PubKey: bob, Kind: 1, Tags: nostr.Tags{
		{"e", root, "", "root"}, {"p", alice}}}
	second := Reply(reply, "second")
	l = decode.ThreadLinkage(second)
	assert.Equal(t, root, l.Root)
	assert.Equal(t, mid, l.Parent)
	assert.ElementsMatch(t, []string{bob, alice}, decode.TagValues(second, "p"))
}

func TestRepostEmbeds(t *testing.T) {
	target := &nostr.Event{ID: root, PubKey: alice, Kind: 1, Content: "hi",
		Tags: nostr.Tags{}}
	r, ok := decode.RepostTarget(Repost(target, "wss://relay.example.com"))
	require.True(t, ok)
	assert.Equal(t, root, r.ID)
	assert.Equal(t, "hi", r.Content)
	assert.True(t, r.Embedded)
}

func TestListsAndRequests(t *testing.T) {
	del := Deletion([]string{root, "junk", root}, "oops")
	assert.Equal(t, nostr.Tags{{"e", root}}, del.Tags)

	mute := MuteList([]string{bob}, []string{" Spam ", ""})
	assert.Equal(t, nostr.Tags{{"p", bob}, {"word", "spam"}}, mute.Tags)

	rl := RelayList([]RelayEntry{
		{URL: "relay.one", Read: true, Write: true},
		{URL: "wss://relay.two/", Read: true},
		{URL: "relay.three", Write: true},
		{URL: "relay.none"},
	})
	assert.Equal(t, nostr.Tags{
		{"r", "wss://relay.one"},
		{"r", "wss://relay.two", "read"},
		{"r", "wss://relay.three", "write"},
	}, rl.Tags)

	assert.Equal(t, nostr.Tags{{"relay", AllRelays}}, Vanish(nil, "bye").Tags)
	assert.Equal(t, nostr.Tags{{"relay", AllRelays}},
		Vanish([]string{AllRelays}, "bye").Tags)
	assert.Equal(t, nostr.Tags{{"relay", "wss://relay.one"}},
		Vanish([]string{"relay.one"}, "").Tags)

	zap := ZapRequest{Recipient: carol, EventID: root, AmountMsats: 21000,
		Relays: []string{"relay.one"}, Comment: "great"}.Event()
	assert.Equal(t, 9734, zap.Kind)
	assert.Equal(t, "21000", decode.FirstTagValue(zap, "amount"))
	assert.Equal(t, nostr.Tag{"relays", "wss://relay.one"}, zap.Tags[0])

	exp := time.Unix(1700000000, 0)
	b := BlossomAuth("upload", "upload blob", []string{mid}, exp)
	assert.Equal(t, "1700000000", decode.FirstTagValue(b, "expiration"))
	h := HTTPAuth("https://example.com/api", "post", "")
	assert.Equal(t, "POST", decode.FirstTagValue(h, "method"))
	q := Quote(&nostr.Event{ID: root, PubKey: alice}, "look")
	assert.True(t, decode.IsQuote(q))
}

func TestFinish(t *testing.T) {
	k, err := signer.Generate()
	require.NoError(t, err)
	meta, err := ProfileMetadata(map[string]string{"name": "alice"})
	require.NoError(t, err)
	ev, err := Finish(k, meta)
	require.NoError(t, err)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(ev.Content), &m))
	assert.Equal(t, "alice", m["name"])
}
