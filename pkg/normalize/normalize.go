// Package normalize canonicalizes relay URLs and hex identifiers so they can
// be used as map keys and compared byte for byte.
package normalize

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
)

// URL normalizes a relay url, adding wss:// when no scheme is given,
// replacing http/https by ws/wss and removing a trailing slash. An
// unparseable url gives an empty string.
func URL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return ""
	}
	if !(strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "ws://") ||
		strings.HasPrefix(u, "wss://")) {
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil || p.Host == "" {
		return ""
	}
	switch p.Scheme {
	case "https":
		p.Scheme = "wss"
	case "http":
		p.Scheme = "ws"
	}
	p.Path = strings.TrimRight(p.Path, "/")
	return p.String()
}

// RelayURL is URL that reports a malformed url as errs.InvalidInput.
func RelayURL(u string) (n string, err error) {
	if n = URL(u); n == "" {
		err = fmt.Errorf("relay url %q: %w", u, errs.InvalidInput)
	}
	return
}

// Hex32 lower-cases s and checks it is the hex encoding of 32 bytes, the
// form of event ids and public keys.
func Hex32(s string) (h string, err error) {
	h = strings.ToLower(strings.TrimSpace(s))
	if len(h) != 64 {
		return "", fmt.Errorf("%q is not 64 hex characters: %w", s,
			errs.InvalidInput)
	}
	if _, err = hex.DecodeString(h); err != nil {
		return "", fmt.Errorf("%q: %v: %w", s, err, errs.InvalidInput)
	}
	return
}

// ValidHex32 drops every entry of s that is not a valid 32 byte hex string
// and returns the rest normalized, keeping order and removing duplicates.
func ValidHex32(s []string) (valid []string) {
	seen := make(map[string]struct{}, len(s))
	for _, v := range s {
		h, err := Hex32(v)
		if err != nil {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		valid = append(valid, h)
	}
	return
}
