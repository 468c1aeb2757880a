// Package relaypool keeps a set of relay connections and runs sends,
// fetches, live subscriptions and negentropy syncs across them.
package relaypool

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/Hubmakerlabs/nostrengine/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// Flags select what a relay is used for.
type Flags uint8

const (
	Read Flags = 1 << iota
	Write
	// Discovery relays are only read, for finding profiles and relay lists.
	Discovery
)

func (f Flags) Has(o Flags) bool { return f&o != 0 }

func (f Flags) String() string {
	var s []string
	if f.Has(Read) {
		s = append(s, "read")
	}
	if f.Has(Write) {
		s = append(s, "write")
	}
	if f.Has(Discovery) {
		s = append(s, "discovery")
	}
	return strings.Join(s, "|")
}

// Status is the connection state of a relay.
type Status int32

const (
	Initialized Status = iota
	Pending
	Connecting
	Connected
	Disconnected
	Terminated
	// Banned relays refused us by policy and are not dialled again.
	Banned
	// Sleeping relays were denied a reconnect by the rate limiter.
	Sleeping
)

var statusNames = [...]string{
	"initialized", "pending", "connecting", "connected", "disconnected",
	"terminated", "banned", "sleeping",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

var (
	ErrBanned       = errors.New("refused by relay policy")
	ErrSleeping     = errors.New("reconnect limit reached")
	ErrNotConnected = errors.New("not connected")
	ErrRemoved      = errors.New("relay removed from pool")
	ErrUnknownRelay = errors.New("relay not in pool")
)

// banReason reports whether a CLOSED reason means the relay will not serve
// us at all.
func banReason(reason string) bool {
	for _, p := range []string{"blocked:", "restricted:", "auth-required:"} {
		if strings.HasPrefix(reason, p) {
			return true
		}
	}
	return false
}

// Options are the timeouts and reconnect limits of a pool.
type Options struct {
	SendTimeout    time.Duration
	FetchTimeout   time.Duration
	ConnectTimeout time.Duration
	SyncTimeout    time.Duration
	// ReconnectEvery and ReconnectBurst rate limit dials per relay.
	ReconnectEvery time.Duration
	ReconnectBurst int
}

func DefaultOptions() Options {
	return Options{
		SendTimeout:    7 * time.Second,
		FetchTimeout:   10 * time.Second,
		ConnectTimeout: 5 * time.Second,
		SyncTimeout:    30 * time.Second,
		ReconnectEvery: 10 * time.Second,
		ReconnectBurst: 3,
	}
}
