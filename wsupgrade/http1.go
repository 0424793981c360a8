package wsupgrade

import (
	"context"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/firasghr/browserclient/errs"
)

// DialHTTP1 performs the classic RFC 6455 HTTP/1.1 Upgrade handshake using
// github.com/gorilla/websocket, the library every websocket-client call
// site in the example pack (dexidp-dex's oidc-proxy, zmb3/gravitational's
// teleport app-access tests) reaches for.
//
// netDial and netDialTLS let the caller route the TCP and TCP+TLS dials
// through this module's own connector stack (routing.Router, tlsconn.Dialer)
// instead of gorilla's default net.Dialer/tls.Client, so a wss:// upgrade
// rides over the same fingerprinted uTLS handshake plain HTTPS requests
// use rather than gorilla wrapping the raw socket in a stock tls.Client.
// netDialTLS may be nil for a ws:// (non-TLS) target.
func DialHTTP1(ctx context.Context, u *url.URL, header http.Header, subprotocols []string, netDial func(ctx context.Context, network, addr string) (net.Conn, error), netDialTLS func(ctx context.Context, network, addr string) (net.Conn, error)) (Conn, string, error) {
	dialer := &websocket.Dialer{
		NetDialContext:    netDial,
		NetDialTLSContext: netDialTLS,
		Subprotocols:      subprotocols,
		HandshakeTimeout:  defaultHandshakeTimeout,
	}

	raw, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, "", errs.New(errs.KindUpgrade, &upgradeError{status: status, cause: err})
	}

	chosen := resp.Header.Get("Sec-WebSocket-Protocol")
	if _, err := NegotiateSubprotocol(subprotocols, chosen); err != nil {
		_ = raw.Close()
		return nil, "", errs.New(errs.KindUpgrade, err)
	}
	return &gorillaConn{conn: raw}, chosen, nil
}

const defaultHandshakeTimeout = 0 // rely on ctx's deadline instead of a fixed timeout

type upgradeError struct {
	status int
	cause  error
}

func (e *upgradeError) Error() string { return e.cause.Error() }
func (e *upgradeError) Unwrap() error { return e.cause }

// gorillaConn adapts *websocket.Conn to this package's Conn interface.
type gorillaConn struct {
	conn *websocket.Conn
}

func (g *gorillaConn) Protocol() string { return g.conn.Subprotocol() }

func (g *gorillaConn) Close() error { return g.conn.Close() }

func (g *gorillaConn) WriteMessage(msg Message) error {
	switch msg.Type {
	case Close:
		data := websocket.FormatCloseMessage(msg.CloseCode, msg.CloseReason)
		return g.conn.WriteMessage(websocket.CloseMessage, data)
	case Ping:
		return g.conn.WriteMessage(websocket.PingMessage, msg.Payload)
	case Pong:
		return g.conn.WriteMessage(websocket.PongMessage, msg.Payload)
	case Text:
		return g.conn.WriteMessage(websocket.TextMessage, msg.Payload)
	default:
		return g.conn.WriteMessage(websocket.BinaryMessage, msg.Payload)
	}
}

func (g *gorillaConn) ReadMessage() (Message, error) {
	kind, payload, err := g.conn.ReadMessage()
	if err != nil {
		return Message{}, errs.New(errs.KindWebSocket, err)
	}
	switch kind {
	case websocket.TextMessage:
		return Message{Type: Text, Payload: payload}, nil
	case websocket.BinaryMessage:
		return Message{Type: Binary, Payload: payload}, nil
	case websocket.PingMessage:
		return Message{Type: Ping, Payload: payload}, nil
	case websocket.PongMessage:
		return Message{Type: Pong, Payload: payload}, nil
	case websocket.CloseMessage:
		code, reason := websocket.CloseNoStatusReceived, ""
		if len(payload) >= 2 {
			code = int(payload[0])<<8 | int(payload[1])
			reason = string(payload[2:])
		}
		return Message{Type: Close, CloseCode: code, CloseReason: reason}, nil
	default:
		return Message{Type: Binary, Payload: payload}, nil
	}
}
