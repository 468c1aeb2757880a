package decode

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// bolt11 human readable prefixes, longest first so lnbcrt is not read as
// lnbc with an amount starting with "rt".
var bolt11Prefixes = []string{"lnbcrt", "lnbc", "lntbs", "lntb"}

// Bolt11AmountSats reads the amount encoded in the human readable part of a
// lightning invoice and returns it in satoshis (floor). ok is false for an
// unknown network prefix, a missing or malformed amount, or an overflow.
func Bolt11AmountSats(invoice string) (sats uint64, ok bool) {
	lower := strings.ToLower(invoice)
	sep := strings.LastIndexByte(lower, '1')
	if sep < 0 {
		return
	}
	hrp := lower[:sep]
	var rest string
	for _, p := range bolt11Prefixes {
		if strings.HasPrefix(hrp, p) {
			rest = hrp[len(p):]
			ok = true
			break
		}
	}
	if !ok || rest == "" {
		return 0, false
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	amount, err := strconv.ParseUint(rest[:i], 10, 64)
	if err != nil {
		return 0, false
	}
	var msats uint64
	if i < len(rest) {
		switch rest[i] {
		case 'm':
			msats, ok = mul(amount, 100_000_000)
		case 'u':
			msats, ok = mul(amount, 100_000)
		case 'n':
			msats, ok = mul(amount, 100)
		case 'p':
			msats, ok = amount/10, true
		default:
			ok = false
		}
	} else {
		msats, ok = mul(amount, 100_000_000_000)
	}
	if !ok {
		return 0, false
	}
	return msats / 1000, true
}

func mul(a, b uint64) (uint64, bool) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, false
	}
	return a * b, true
}

// ZapRequest parses the zap request embedded as JSON in the description tag
// of a zap receipt.
func ZapRequest(ev *nostr.Event) (req *nostr.Event, ok bool) {
	for _, t := range ev.Tags {
		if len(t) < 2 || t[0] != "description" {
			continue
		}
		r := &nostr.Event{}
		if err := json.Unmarshal([]byte(t[1]), r); err != nil {
			continue
		}
		return r, true
	}
	return
}

// ZapAmountSats is the amount of a zap receipt in satoshis, from its bolt11
// invoice or else from the amount tag of the embedded zap request. Receipts
// with neither give 0.
func ZapAmountSats(ev *nostr.Event) uint64 {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == "bolt11" {
			if sats, ok := Bolt11AmountSats(t[1]); ok {
				return sats
			}
		}
	}
	req, ok := ZapRequest(ev)
	if !ok {
		return 0
	}
	for _, t := range req.Tags {
		if len(t) >= 2 && t[0] == "amount" {
			if msats, err := strconv.ParseUint(t[1], 10, 64); err == nil {
				return msats / 1000
			}
		}
	}
	return 0
}

// ZapSender is the pubkey that signed the zap request, which is the real
// sender; the receipt itself is signed by the lightning service.
func ZapSender(ev *nostr.Event) string {
	if req, ok := ZapRequest(ev); ok {
		return req.PubKey
	}
	return ""
}

// ZapComment is the message the sender attached to the zap request.
func ZapComment(ev *nostr.Event) string {
	if req, ok := ZapRequest(ev); ok {
		return req.Content
	}
	return ""
}
