// Package signer holds the key capabilities the engine is given. Nothing
// outside Keys ever sees a private key.
package signer

import (
	"encoding/hex"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"
)

// Signer produces BIP-340 signatures over event id digests.
type Signer interface {
	PublicKey() string
	SignDigest(digest [32]byte) ([]byte, error)
}

// Keys is a Signer backed by a secp256k1 private key held in memory.
type Keys struct {
	sec *btcec.PrivateKey
	pub string
}

var _ Signer = (*Keys)(nil)

// FromHex loads a hex encoded private key.
func FromHex(sk string) (k *Keys, err error) {
	if sk, err = normalize.Hex32(sk); err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	var b []byte
	if b, err = hex.DecodeString(sk); err != nil {
		return nil, fmt.Errorf("secret key: %v: %w", err, errs.InvalidInput)
	}
	sec, pub := btcec.PrivKeyFromBytes(b)
	return &Keys{sec: sec, pub: hex.EncodeToString(schnorr.SerializePubKey(pub))}, nil
}

// Generate returns fresh keys.
func Generate() (*Keys, error) { return FromHex(nostr.GeneratePrivateKey()) }

func (k *Keys) PublicKey() string { return k.pub }

func (k *Keys) SignDigest(digest [32]byte) (sig []byte, err error) {
	var s *schnorr.Signature
	if s, err = schnorr.Sign(k.sec, digest[:]); err != nil {
		return
	}
	return s.Serialize(), nil
}

// Sign sets the author, id and signature of ev using s. A zero timestamp is
// set to now.
func Sign(ev *nostr.Event, s Signer) (err error) {
	if s == nil {
		return fmt.Errorf("no signer: %w", errs.NotInitialized)
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = nostr.Now()
	}
	if ev.Tags == nil {
		ev.Tags = nostr.Tags{}
	}
	ev.PubKey = s.PublicKey()
	digest := sha256.Sum256(ev.Serialize())
	ev.ID = hex.EncodeToString(digest[:])
	var sig []byte
	if sig, err = s.SignDigest(digest); err != nil {
		return fmt.Errorf("signing %s: %w", ev.ID, err)
	}
	ev.Sig = hex.EncodeToString(sig)
	return
}
