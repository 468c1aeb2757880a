package signer

import (
	"testing"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	k, err := FromHex(sk)
	require.NoError(t, err)
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	assert.Equal(t, pk, k.PublicKey())

	ev := &nostr.Event{Kind: 1, Content: "signed by keys"}
	require.NoError(t, Sign(ev, k))
	assert.Equal(t, pk, ev.PubKey)
	assert.NotZero(t, ev.CreatedAt)
	assert.Equal(t, ev.GetID(), ev.ID)
	ok, err := ev.CheckSignature()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFromHexInvalid(t *testing.T) {
	_, err := FromHex("not a key")
	assert.ErrorIs(t, err, errs.InvalidInput)
	assert.ErrorIs(t, Sign(&nostr.Event{}, nil), errs.NotInitialized)
}
