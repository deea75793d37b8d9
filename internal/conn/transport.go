package conn

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"

	"github.com/coder/websocket"
)

// Close codes with meaning to the manager.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	CloseSuperseded   = 4000
	CloseUnauthorized = 4001
)

// Transport is one established bidirectional connection.
type Transport interface {
	// Read blocks until a frame arrives, ctx is done, or the peer closes.
	// A peer close is reported as *CloseError.
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens transports. token travels as a connection parameter, never as a frame.
type Dialer interface {
	Dial(ctx context.Context, endpoint, token string) (Transport, error)
}

// CloseError reports that the peer closed the connection with a status code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("connection closed: status %d: %s", e.Code, e.Reason)
}

// WSDialer dials WebSocket transports with coder/websocket.
type WSDialer struct {
	HTTPClient *stdhttp.Client
	// ReadLimit caps inbound frame size in bytes. Zero keeps the library default.
	ReadLimit int64
}

// Dial connects to endpoint with the credential in the "token" query parameter.
func (d *WSDialer) Dial(ctx context.Context, endpoint, token string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	c, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		if resp != nil && (resp.StatusCode == stdhttp.StatusUnauthorized || resp.StatusCode == stdhttp.StatusForbidden) {
			return nil, &CloseError{Code: CloseUnauthorized, Reason: resp.Status}
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsTransport{conn: c}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return translate(t.conn.Write(ctx, websocket.MessageText, data))
}

func (t *wsTransport) Close(code int, reason string) error {
	return t.conn.Close(websocket.StatusCode(code), reason)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: int(ce.Code), Reason: ce.Reason}
	}
	return err
}
