package decode

import (
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepostTargetEmbedded(t *testing.T) {
	orig := &nostr.Event{
		ID:        "orig",
		PubKey:    "author",
		CreatedAt: 1700000000,
		Kind:      1,
		Content:   "hello",
		Tags:      nostr.Tags{{"t", "nostr"}},
	}
	b, err := json.Marshal(orig)
	require.NoError(t, err)
	rp := &nostr.Event{Kind: 6, PubKey: "booster", Content: string(b),
		Tags: nostr.Tags{{"e", "orig"}, {"p", "author"}}}
	r, ok := RepostTarget(rp)
	require.True(t, ok)
	assert.True(t, r.Embedded)
	assert.Equal(t, "orig", r.ID)
	assert.Equal(t, "author", r.Author)
	assert.Equal(t, "hello", r.Content)
	assert.Equal(t, nostr.Timestamp(1700000000), r.CreatedAt)
	assert.Equal(t, nostr.Tags{{"t", "nostr"}}, r.Tags)
}

func TestRepostTargetTags(t *testing.T) {
	rp := &nostr.Event{Kind: 6, Tags: nostr.Tags{{"e", "orig"}, {"p", "author"}}}
	r, ok := RepostTarget(rp)
	require.True(t, ok)
	assert.False(t, r.Embedded)
	assert.Equal(t, "orig", r.ID)
	assert.Equal(t, "author", r.Author)

	_, ok = RepostTarget(&nostr.Event{Kind: 6, Content: "{}"})
	assert.False(t, ok)
}

func TestTagHelpers(t *testing.T) {
	ev := &nostr.Event{Tags: nostr.Tags{
		{"t", "Nostr"}, {"t", "nostr"}, {"t", "go"},
		{"e", "a"}, {"e", "b"}, {"e", "a"}, {"e"},
		{"title", "x"},
	}}
	assert.Equal(t, []string{"nostr", "go"}, Hashtags(ev))
	assert.Equal(t, []string{"a", "b"}, ReferencedIDs(ev))
	assert.Equal(t, "x", FirstTagValue(ev, "title"))
	assert.Equal(t, "", FirstTagValue(ev, "image"))
}
