// Package errs holds the sentinel errors every engine operation wraps its
// failures in, so callers can branch with errors.Is.
package errs

import (
	"errors"
)

var (
	// NotInitialized is returned when the pool or store is used before the
	// engine has been set up or after it has been closed.
	NotInitialized = errors.New("not initialized")
	// InvalidInput marks malformed hex ids and keys, relay URLs, filters and
	// event JSON. These are never retried.
	InvalidInput = errors.New("invalid input")
	// Timeout marks a relay that did not answer within the deadline of the
	// operation. The caller may retry.
	Timeout = errors.New("timeout")
	// PartialFailure marks a send that was accepted by some relays and
	// refused by others. The per relay detail is in the send result.
	PartialFailure = errors.New("partial failure")
	// StoreCorruption is returned when the embedded store could not be opened
	// even after it was recreated.
	StoreCorruption = errors.New("store corruption")
	// ProtocolViolation marks an event with a bad id or signature, or one that
	// is otherwise malformed. The event is discarded.
	ProtocolViolation = errors.New("protocol violation")
)

// Is reports whether err is or wraps target. It is a shortcut so packages
// that only need the taxonomy do not also import errors.
func Is(err, target error) bool { return errors.Is(err, target) }
