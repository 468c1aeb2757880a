// Package eventstore defines the local event store the engine persists
// received events into, and the rules every backend applies when saving.
package eventstore

import (
	"context"
	"errors"

	"github.com/nbd-wtf/go-nostr"
)

// SaveStatus is the outcome of a Save.
type SaveStatus int

const (
	Success SaveStatus = iota
	Duplicate
	Rejected
)

func (s SaveStatus) String() string {
	switch s {
	case Success:
		return "success"
	case Duplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// EventStatus is what the store knows about an event id.
type EventStatus int

const (
	NotFound EventStatus = iota
	Saved
	Deleted
)

func (s EventStatus) String() string {
	switch s {
	case Saved:
		return "saved"
	case Deleted:
		return "deleted"
	default:
		return "not_found"
	}
}

var (
	ErrDeleted    = errors.New("blocked: event was deleted by its author")
	ErrEphemeral  = errors.New("blocked: ephemeral events are not stored")
	ErrSuperseded = errors.New("blocked: a newer version of this replaceable event is stored")
)

// Store is the persistence layer of the engine.
//
// Query returns events newest first. A filter Limit of zero or less means
// the backend maximum. Scan visits every matching event whatever the limit,
// newest first within each indexed value, so an empty filter is scanned
// newest first overall; fn returning false stops it. EventByID
// returns nil and no error when the event is not stored.
type Store interface {
	Save(c context.Context, ev *nostr.Event) (SaveStatus, error)
	Query(c context.Context, f nostr.Filter) ([]*nostr.Event, error)
	Scan(c context.Context, f nostr.Filter, fn func(ev *nostr.Event) bool) error
	Count(c context.Context, f nostr.Filter) (int, error)
	DeleteByFilter(c context.Context, f nostr.Filter) (int, error)
	Wipe() error
	EventByID(c context.Context, id string) (*nostr.Event, error)
	CheckStatus(c context.Context, id string) (EventStatus, error)
	Profile(c context.Context, pubkey string) (*nostr.Event, error)
	Close() error
}
