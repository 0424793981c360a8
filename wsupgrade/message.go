// Package wsupgrade implements the WebSocket Upgrade component of spec.md
// §4.8: negotiating a WebSocket connection either via the classic
// HTTP/1.1 Upgrade handshake (RFC 6455) or, when the underlying connection
// is already HTTP/2, via Extended CONNECT (RFC 8441).
//
// The HTTP/1.1 path is grounded on github.com/gorilla/websocket, which
// appears across the example pack's manifests as the conventional choice
// for Go WebSocket clients. The HTTP/2 path is grounded on
// other_examples/ea5dc6a8_balookrd-outline-cli-ws's raw-HTTP/2 Extended
// CONNECT implementation (dialRFC8441RawH2/rawH2Conn/rawH2Stream),
// generalized here from a one-off CLI helper into a connector consumed by
// the client pipeline, using golang.org/x/net/http2 and its hpack
// sub-package exactly as that file does.
package wsupgrade

// MessageType tags the taxonomy of frames a WebSocket connection can
// produce, per spec.md §4.8 and RFC 6455 §5.6/§5.5.
type MessageType int

const (
	Text MessageType = iota
	Binary
	Ping
	Pong
	Close
)

// Message is one received (or to-be-sent) WebSocket frame.
type Message struct {
	Type    MessageType
	Payload []byte
	// CloseCode and CloseReason are only meaningful when Type == Close.
	CloseCode   int
	CloseReason string
}
