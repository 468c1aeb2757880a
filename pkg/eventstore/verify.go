package eventstore

import (
	"encoding/hex"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/minio/sha256-simd"
	"github.com/nbd-wtf/go-nostr"
)

// Verify checks that the event id is the hash of its canonical form and that
// the signature is valid for the author. Failures wrap errs.ProtocolViolation.
func Verify(ev *nostr.Event) (err error) {
	if ev == nil {
		return fmt.Errorf("nil event: %w", errs.ProtocolViolation)
	}
	h := sha256.Sum256(ev.Serialize())
	if hex.EncodeToString(h[:]) != ev.ID {
		return fmt.Errorf("event id %q does not match its content: %w",
			ev.ID, errs.ProtocolViolation)
	}
	var ok bool
	if ok, err = ev.CheckSignature(); err != nil || !ok {
		reason := "invalid signature"
		if err != nil {
			reason = err.Error()
		}
		return fmt.Errorf("event %s: %s: %w", ev.ID, reason, errs.ProtocolViolation)
	}
	return nil
}
