// Package kind names the event kinds the engine understands, as kind.T so
// they read as kind.TextNote rather than nostr.KindTextNote.
package kind

import (
	"github.com/nbd-wtf/go-nostr"
)

// T is the event type in the nostr protocol.
type T uint16

func (ki T) ToInt() int       { return int(ki) }
func (ki T) ToUint16() uint16 { return uint16(ki) }

const (
	// ProfileMetadata is a replaceable event carrying the author's profile as
	// JSON content: name, about, picture, nip05, lud16 and so on.
	ProfileMetadata T = 0
	// TextNote is a short plain text note.
	TextNote T = 1
	// FollowList carries the followed pubkeys as p tags.
	FollowList T = 3
	// Deletion requests deletion of the e-tagged events of the same author.
	Deletion T = 5
	// Repost wraps a text note, usually as JSON content.
	Repost T = 6
	// Reaction is a like or emoji reaction to an e-tagged event.
	Reaction T = 7
	// GenericRepost reposts events of kinds other than text notes.
	GenericRepost T = 16
	// Vanish asks relays to delete everything from the author.
	Vanish T = 62
	// ZapRequest is the signed request embedded in a zap receipt description.
	ZapRequest T = 9734
	// Zap is a zap receipt published by a lightning service.
	Zap T = 9735

	ReplaceableStart T = 10000
	// MuteList carries muted pubkeys as p tags and muted words as word tags.
	MuteList T = 10000
	// RelayListMetadata is the author's outbox/inbox relay list as r tags.
	RelayListMetadata T = 10002
	ReplaceableEnd    T = 20000

	EphemeralStart T = 20000
	// BlossomAuth authorizes blob uploads.
	BlossomAuth T = 24242
	// ClientAuthentication answers a relay AUTH challenge.
	ClientAuthentication T = 22242
	// HTTPAuth authorizes an HTTP request.
	HTTPAuth     T = 27235
	EphemeralEnd T = 30000

	ParameterizedReplaceableStart T = 30000
	// Article is a long form markdown post addressed by its d tag.
	Article                     T = 30023
	ParameterizedReplaceableEnd T = 40000
)

var Map = map[T]string{
	ProfileMetadata:      "ProfileMetadata",
	TextNote:             "TextNote",
	FollowList:           "FollowList",
	Deletion:             "Deletion",
	Repost:               "Repost",
	Reaction:             "Reaction",
	GenericRepost:        "GenericRepost",
	Vanish:               "Vanish",
	ZapRequest:           "ZapRequest",
	Zap:                  "Zap",
	MuteList:             "MuteList",
	RelayListMetadata:    "RelayListMetadata",
	BlossomAuth:          "BlossomAuth",
	ClientAuthentication: "ClientAuthentication",
	HTTPAuth:             "HTTPAuth",
	Article:              "Article",
}

func (ki T) String() string {
	if s, ok := Map[ki]; ok {
		return s
	}
	return "Unknown"
}

func (ki T) IsReplaceable() bool {
	return ki == ProfileMetadata || ki == FollowList ||
		(ki >= ReplaceableStart && ki < ReplaceableEnd)
}

func (ki T) IsEphemeral() bool {
	return ki >= EphemeralStart && ki < EphemeralEnd
}

func (ki T) IsParameterizedReplaceable() bool {
	return ki >= ParameterizedReplaceableStart &&
		ki < ParameterizedReplaceableEnd
}

// IsRepost is true for both the text note and the generic repost kinds.
func (ki T) IsRepost() bool { return ki == Repost || ki == GenericRepost }

// Of returns the kind of an event.
func Of(ev *nostr.Event) T { return T(ev.Kind) }

// Is reports whether the event has any of the given kinds.
func Is(ev *nostr.Event, kinds ...T) bool {
	for _, k := range kinds {
		if ev.Kind == int(k) {
			return true
		}
	}
	return false
}

// Ints converts kinds into the form used by nostr.Filter.
func Ints(kinds ...T) (ki []int) {
	ki = make([]int, len(kinds))
	for i := range kinds {
		ki[i] = int(kinds[i])
	}
	return
}
