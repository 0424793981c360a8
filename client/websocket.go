package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/wsupgrade"
)

// WebSocketOptions is the specialized builder spec.md §4.6 describes:
// optional subprotocol list plus the force_http2 switch that picks the
// RFC 8441 Extended CONNECT handshake over the default HTTP/1.1 Upgrade.
type WebSocketOptions struct {
	Subprotocols []string
	Header       http.Header
	ForceHTTP2   bool
}

// WebSocket performs the handshake spec.md §4.6 describes and returns a
// wsupgrade.Conn ready for message-framed send/receive. rawURL may use
// ws/wss or http/https; ws/wss are normalized the same way NewRequest
// normalizes them.
func (c *Client) WebSocket(ctx context.Context, rawURL string, opts WebSocketOptions) (wsupgrade.Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.New(errs.KindRequest, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, errs.New(errs.KindBadScheme, fmt.Errorf("unsupported websocket scheme %q", u.Scheme))
	}

	header := opts.Header
	if header == nil {
		header = http.Header{}
	}

	if opts.ForceHTTP2 {
		return c.webSocketHTTP2(ctx, u, opts.Subprotocols, header)
	}
	return c.webSocketHTTP1(ctx, u, opts.Subprotocols, header)
}

// webSocketHTTP1 drives the default RFC 6455 Upgrade handshake over
// HTTP/1.1, routing the TCP/TLS dial through the same connector stack
// ordinary requests use.
func (c *Client) webSocketHTTP1(ctx context.Context, u *url.URL, subprotocols []string, header http.Header) (wsupgrade.Conn, error) {
	conn, _, err := wsupgrade.DialHTTP1(ctx, u, header, subprotocols, c.sender.dialPlain, c.sender.dialTLSHTTP1)
	return conn, err
}

// webSocketHTTP2 drives the RFC 8441 Extended CONNECT handshake: dial a
// TLS connection negotiating "h2" via ALPN, then open an Extended CONNECT
// stream on it carrying :protocol=websocket.
func (c *Client) webSocketHTTP2(ctx context.Context, u *url.URL, subprotocols []string, header http.Header) (wsupgrade.Conn, error) {
	if u.Scheme != "https" {
		return nil, errs.New(errs.KindBadScheme, fmt.Errorf("HTTP/2 websocket requires https, got %q", u.Scheme))
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "443")
	}
	conn, err := c.sender.dialTLSHTTP2(ctx, "tcp", addr, nil)
	if err != nil {
		return nil, err
	}
	origin := header.Get("Origin")
	wsConn, err := wsupgrade.ConnectExtended(ctx, conn, u, subprotocols, origin)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return wsConn, nil
}
