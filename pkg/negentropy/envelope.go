package negentropy

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

// Wire labels of the NIP-77 messages.
const (
	LabelOpen  = "NEG-OPEN"
	LabelMsg   = "NEG-MSG"
	LabelErr   = "NEG-ERR"
	LabelClose = "NEG-CLOSE"
)

// Envelope is a parsed NEG-MSG or NEG-ERR from a relay. Payload is the hex
// message or the error reason.
type Envelope struct {
	Label   string
	SubID   string
	Payload string
}

// Message decodes the hex payload of a NEG-MSG.
func (e Envelope) Message() ([]byte, error) { return hex.DecodeString(e.Payload) }

// Label returns the first element of a relay message without decoding the
// rest of it.
func Label(raw []byte) string {
	return gjson.GetBytes(raw, "0").String()
}

// IsNeg reports whether the message belongs to the negentropy protocol.
func IsNeg(raw []byte) bool { return strings.HasPrefix(Label(raw), "NEG-") }

// Parse reads a NEG-MSG or NEG-ERR.
func Parse(raw []byte) (e Envelope, ok bool) {
	r := gjson.ParseBytes(raw)
	if !r.IsArray() {
		return
	}
	arr := r.Array()
	if len(arr) < 3 {
		return
	}
	e.Label = arr[0].String()
	if e.Label != LabelMsg && e.Label != LabelErr {
		return
	}
	e.SubID, e.Payload = arr[1].String(), arr[2].String()
	return e, true
}

func OpenEnvelope(subID string, f nostr.Filter, msg []byte) ([]byte, error) {
	return json.Marshal([]any{LabelOpen, subID, f, hex.EncodeToString(msg)})
}

func MsgEnvelope(subID string, msg []byte) ([]byte, error) {
	return json.Marshal([]any{LabelMsg, subID, hex.EncodeToString(msg)})
}

func CloseEnvelope(subID string) ([]byte, error) {
	return json.Marshal([]any{LabelClose, subID})
}
