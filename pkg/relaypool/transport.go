package relaypool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fasthttp/websocket"
)

// Conn is one websocket connection to a relay. ReadMessage is only called
// from one goroutine and WriteMessage calls are serialized by the caller.
type Conn interface {
	ReadMessage(c context.Context) ([]byte, error)
	WriteMessage(c context.Context, msg []byte) error
	Close() error
}

// Dialer opens connections. A dial refused by relay policy returns an error
// wrapping ErrBanned.
type Dialer interface {
	Dial(c context.Context, url string) (Conn, error)
}

// MaxMessageSize is the read limit on relay messages.
const MaxMessageSize = 1 << 22

// WebsocketDialer dials relays with fasthttp/websocket.
type WebsocketDialer struct {
	Header http.Header
}

func (d WebsocketDialer) Dial(c context.Context, url string) (Conn, error) {
	dialer := &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: true,
	}
	conn, resp, err := dialer.DialContext(c, url, d.Header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden,
				http.StatusUnavailableForLegalReasons:
				return nil, fmt.Errorf("dialing %s: %s: %w", url, resp.Status, ErrBanned)
			}
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	conn.SetReadLimit(MaxMessageSize)
	return &wsConn{conn}, nil
}

type wsConn struct {
	*websocket.Conn
}

func (w *wsConn) ReadMessage(context.Context) (msg []byte, err error) {
	for {
		var typ int
		if typ, msg, err = w.Conn.ReadMessage(); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && (ce.Code == websocket.ClosePolicyViolation ||
				banReason(ce.Text)) {
				err = fmt.Errorf("%s: %w", ce.Text, ErrBanned)
			}
			return
		}
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return
		}
	}
}

func (w *wsConn) WriteMessage(c context.Context, msg []byte) (err error) {
	if dl, ok := c.Deadline(); ok {
		_ = w.Conn.SetWriteDeadline(dl)
		defer w.Conn.SetWriteDeadline(time.Time{})
	}
	return w.Conn.WriteMessage(websocket.TextMessage, msg)
}
