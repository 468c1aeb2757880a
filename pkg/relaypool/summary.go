package relaypool

import (
	"github.com/Hubmakerlabs/nostrengine/pkg/normalize"
)

// Info is the state of one relay.
type Info struct {
	URL           string `json:"url"`
	Status        string `json:"status"`
	IsDiscovery   bool   `json:"isDiscovery"`
	Read          bool   `json:"read"`
	Write         bool   `json:"write"`
	Attempts      int64  `json:"attempts"`
	Success       int64  `json:"success"`
	BytesSent     int64  `json:"bytesSent"`
	BytesReceived int64  `json:"bytesReceived"`
	// ConnectedAt is the unix time of the last successful connect.
	ConnectedAt int64 `json:"connectedAt"`
}

type Summary struct {
	TotalRelays     int    `json:"totalRelays"`
	ConnectedRelays int    `json:"connectedRelays"`
	Relays          []Info `json:"relays"`
}

func (r *relay) info() Info {
	f := r.Flags()
	return Info{
		URL:           r.url,
		Status:        r.Status().String(),
		IsDiscovery:   f.Has(Discovery),
		Read:          f.Has(Read),
		Write:         f.Has(Write),
		Attempts:      r.attempts.Value(),
		Success:       r.successes.Value(),
		BytesSent:     r.bytesSent.Value(),
		BytesReceived: r.bytesReceived.Value(),
		ConnectedAt:   r.connectedAt.Load(),
	}
}

// Relays lists every relay in the order they were added.
func (p *Pool) Relays() (infos []Info) {
	for _, r := range p.list(nil) {
		infos = append(infos, r.info())
	}
	return
}

func (p *Pool) Relay(url string) (info Info, ok bool) {
	var r *relay
	if r, ok = p.relays.Load(normalize.URL(url)); ok {
		info = r.info()
	}
	return
}

func (p *Pool) Status() (s Summary) {
	s.Relays = p.Relays()
	if s.Relays == nil {
		s.Relays = []Info{}
	}
	s.TotalRelays = len(s.Relays)
	for _, i := range s.Relays {
		if i.Status == Connected.String() {
			s.ConnectedRelays++
		}
	}
	return
}
