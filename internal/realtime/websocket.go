package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/net/websocket"
)

// WebsocketDialer dials the push endpoint with the session token in the query
// string.
type WebsocketDialer struct {
	URL    string
	Origin string
	Token  string
}

func (d WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid push url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.Token)
	u.RawQuery = q.Encode()

	origin := d.Origin
	if origin == "" {
		origin = "http://localhost/"
	}
	cfg, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		// DialError prints the URL, which carries the token.
		var dialErr *websocket.DialError
		if errors.As(err, &dialErr) {
			err = dialErr.Err
		}
		return nil, fmt.Errorf("websocket dial %s://%s%s: %w", u.Scheme, u.Host, u.Path, err)
	}
	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) Send(msg string) error {
	return websocket.Message.Send(c.ws, msg)
}

func (c *websocketConn) Receive() (string, error) {
	var msg string
	if err := websocket.Message.Receive(c.ws, &msg); err != nil {
		return "", err
	}
	return msg, nil
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}
