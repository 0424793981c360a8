package wsupgrade

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/firasghr/browserclient/errs"
)

// websocketGUID is the RFC 6455 §1.3 magic value folded into Sec-WebSocket-Key
// to produce Sec-WebSocket-Accept.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// settingEnableConnectProtocol is RFC 8441 §3's SETTINGS_ENABLE_CONNECT_PROTOCOL,
// which golang.org/x/net/http2 has no named constant for.
const settingEnableConnectProtocol http2.SettingID = 0x8

// ConnectExtended opens a WebSocket over an HTTP/2 connection via RFC 8441
// Extended CONNECT. The caller supplies an already-TLS-established conn
// (ALPN must have negotiated "h2"); this function owns the connection's
// HTTP/2 preface, SETTINGS exchange, and the single Extended CONNECT
// stream, and returns a Conn pumping Messages over it.
//
// Adapted from other_examples' dialRFC8441RawH2/rawH2Conn/rawH2Stream,
// generalized from a one-shot CLI dialer into a reusable connector and
// renamed to this package's Conn/Message vocabulary.
func ConnectExtended(ctx context.Context, conn net.Conn, u *url.URL, requestedProtocols []string, origin string) (Conn, error) {
	h2c, err := newH2Conn(conn)
	if err != nil {
		return nil, errs.New(errs.KindUpgrade, err)
	}
	if err := h2c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, errs.New(errs.KindUpgrade, err)
	}
	stream, chosenProtocol, err := h2c.openWebSocketStream(ctx, u, requestedProtocols, origin)
	if err != nil {
		_ = conn.Close()
		return nil, errs.New(errs.KindWebSocket, err)
	}
	return newConn(stream, chosenProtocol), nil
}

// h2Conn is one raw HTTP/2 connection dedicated to a single Extended
// CONNECT stream: enough of the protocol to exchange SETTINGS and run one
// bidirectional stream, not a general-purpose multiplexer.
type h2Conn struct {
	conn   net.Conn
	framer *http2.Framer

	mu           sync.Mutex
	connSendWin  uint32
	streamSendWin uint32
	hpackEnc     *hpack.Encoder
	hpackBuf     *bytes.Buffer
}

func newH2Conn(conn net.Conn) (*h2Conn, error) {
	buf := new(bytes.Buffer)
	return &h2Conn{
		conn:          conn,
		framer:        http2.NewFramer(conn, conn),
		connSendWin:   65535,
		streamSendWin: 65535,
		hpackBuf:      buf,
		hpackEnc:      hpack.NewEncoder(buf),
	}, nil
}

func (c *h2Conn) handshake(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer c.conn.SetDeadline(time.Time{})
	}

	if _, err := io.WriteString(c.conn, http2.ClientPreface); err != nil {
		return fmt.Errorf("wsupgrade: writing http/2 preface: %w", err)
	}
	if err := c.framer.WriteSettings(http2.Setting{ID: settingEnableConnectProtocol, Val: 1}); err != nil {
		return fmt.Errorf("wsupgrade: writing settings: %w", err)
	}

	sawConnectProtocol := false
	gotSettings := false
	for !gotSettings {
		fr, err := c.framer.ReadFrame()
		if err != nil {
			return fmt.Errorf("wsupgrade: reading server settings: %w", err)
		}
		settings, ok := fr.(*http2.SettingsFrame)
		if !ok {
			continue
		}
		if settings.IsAck() {
			continue
		}
		err = settings.ForeachSetting(func(s http2.Setting) error {
			if s.ID == settingEnableConnectProtocol && s.Val == 1 {
				sawConnectProtocol = true
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("wsupgrade: reading settings payload: %w", err)
		}
		if err := c.framer.WriteSettingsAck(); err != nil {
			return fmt.Errorf("wsupgrade: acking settings: %w", err)
		}
		gotSettings = true
	}
	if !sawConnectProtocol {
		return fmt.Errorf("wsupgrade: server did not advertise SETTINGS_ENABLE_CONNECT_PROTOCOL")
	}
	return nil
}

// openWebSocketStream sends the Extended CONNECT request on stream 1 and
// waits for the 200 response, per RFC 8441 §4, returning the stream and
// the subprotocol the server chose.
func (c *h2Conn) openWebSocketStream(ctx context.Context, u *url.URL, requestedProtocols []string, origin string) (*rawStream, string, error) {
	key, err := newWebSocketKey()
	if err != nil {
		return nil, "", err
	}

	c.mu.Lock()
	c.hpackBuf.Reset()
	enc := c.hpackEnc
	writeHeader := func(name, value string) {
		_ = enc.WriteField(hpack.HeaderField{Name: name, Value: value})
	}
	writeHeader(":method", "CONNECT")
	writeHeader(":protocol", "websocket")
	writeHeader(":scheme", "https")
	writeHeader(":path", u.RequestURI())
	writeHeader(":authority", u.Host)
	writeHeader("sec-websocket-version", "13")
	writeHeader("sec-websocket-key", key)
	for _, proto := range requestedProtocols {
		writeHeader("sec-websocket-protocol", proto)
	}
	if origin != "" {
		writeHeader("origin", origin)
	}
	block := append([]byte(nil), c.hpackBuf.Bytes()...)
	c.mu.Unlock()

	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: block,
		EndStream:     false,
		EndHeaders:    true,
	}); err != nil {
		return nil, "", fmt.Errorf("wsupgrade: writing headers frame: %w", err)
	}

	status, headers, err := c.readResponseHeaders(1)
	if err != nil {
		return nil, "", err
	}
	if status != "200" {
		return nil, "", fmt.Errorf("wsupgrade: extended connect refused: status %s", status)
	}
	accept := headerValue(headers, "sec-websocket-accept")
	if accept != computeAccept(key) {
		return nil, "", fmt.Errorf("wsupgrade: sec-websocket-accept mismatch")
	}
	chosen := headerValue(headers, "sec-websocket-protocol")
	if _, err := NegotiateSubprotocol(requestedProtocols, chosen); err != nil {
		return nil, "", err
	}

	stream := &rawStream{parent: c, id: 1}
	stream.pr, stream.pw = io.Pipe()
	go stream.readLoop()
	return stream, chosen, nil
}

// readResponseHeaders buffers HEADERS/CONTINUATION fragments for streamID
// and HPACK-decodes them once END_HEADERS arrives. Framer.ReadMetaHeaders
// is left unset deliberately so this function owns decoding, matching the
// reference implementation this is grounded on.
func (c *h2Conn) readResponseHeaders(streamID uint32) (status string, headers []hpack.HeaderField, err error) {
	var block []byte
	dec := hpack.NewDecoder(4096, nil)
	for {
		fr, ferr := c.framer.ReadFrame()
		if ferr != nil {
			return "", nil, fmt.Errorf("wsupgrade: reading response headers: %w", ferr)
		}
		switch f := fr.(type) {
		case *http2.HeadersFrame:
			if f.StreamID != streamID {
				continue
			}
			block = append(block, f.HeaderBlockFragment()...)
			if f.HeadersEnded() {
				fields, derr := dec.DecodeFull(block)
				if derr != nil {
					return "", nil, fmt.Errorf("wsupgrade: hpack decode: %w", derr)
				}
				headers = fields
				status = headerValue(fields, ":status")
				return status, headers, nil
			}
		case *http2.ContinuationFrame:
			if f.StreamID != streamID {
				continue
			}
			block = append(block, f.HeaderFragment()...)
			if f.HeadersEnded() {
				fields, derr := dec.DecodeFull(block)
				if derr != nil {
					return "", nil, fmt.Errorf("wsupgrade: hpack decode: %w", derr)
				}
				headers = fields
				status = headerValue(fields, ":status")
				return status, headers, nil
			}
		case *http2.GoAwayFrame:
			return "", nil, fmt.Errorf("wsupgrade: server sent GOAWAY: %v", f.ErrCode)
		case *http2.RSTStreamFrame:
			if f.StreamID == streamID {
				return "", nil, fmt.Errorf("wsupgrade: stream reset: %v", f.ErrCode)
			}
		case *http2.SettingsFrame:
			if !f.IsAck() {
				_ = c.framer.WriteSettingsAck()
			}
		}
	}
}

func headerValue(fields []hpack.HeaderField, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func newWebSocketKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("wsupgrade: generating key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

func computeAccept(key string) string {
	h := sha1.New()
	io.WriteString(h, key)
	io.WriteString(h, websocketGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// rawStream is one HTTP/2 stream carrying a WebSocket's DATA frames, pumped
// through an io.Pipe so Conn can present ordinary blocking Read/Write.
const maxDataFrameSize = 16 * 1024

type rawStream struct {
	parent *h2Conn
	id     uint32

	pr *io.PipeReader
	pw *io.PipeWriter

	closeOnce sync.Once
}

func (s *rawStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *rawStream) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxDataFrameSize {
			chunk = chunk[:maxDataFrameSize]
		}
		s.parent.mu.Lock()
		err := s.parent.framer.WriteData(s.id, false, chunk)
		s.parent.mu.Unlock()
		if err != nil {
			return total, fmt.Errorf("wsupgrade: writing data frame: %w", err)
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (s *rawStream) readLoop() {
	for {
		fr, err := s.parent.framer.ReadFrame()
		if err != nil {
			_ = s.pw.CloseWithError(err)
			return
		}
		switch f := fr.(type) {
		case *http2.DataFrame:
			if f.StreamID != s.id {
				continue
			}
			data := f.Data()
			if len(data) > 0 {
				if _, err := s.pw.Write(data); err != nil {
					_ = s.pw.CloseWithError(err)
					return
				}
				s.parent.mu.Lock()
				_ = s.parent.framer.WriteWindowUpdate(0, uint32(len(data)))
				_ = s.parent.framer.WriteWindowUpdate(s.id, uint32(len(data)))
				s.parent.mu.Unlock()
			}
			if f.StreamEnded() {
				_ = s.pw.Close()
				return
			}
		case *http2.RSTStreamFrame:
			if f.StreamID == s.id {
				_ = s.pw.CloseWithError(fmt.Errorf("wsupgrade: stream reset: %v", f.ErrCode))
				return
			}
		case *http2.GoAwayFrame:
			_ = s.pw.CloseWithError(fmt.Errorf("wsupgrade: server sent GOAWAY: %v", f.ErrCode))
			return
		case *http2.SettingsFrame:
			if !f.IsAck() {
				s.parent.mu.Lock()
				_ = s.parent.framer.WriteSettingsAck()
				s.parent.mu.Unlock()
			}
		}
	}
}

func (s *rawStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.parent.mu.Lock()
		err = s.parent.framer.WriteRSTStream(s.id, http2.ErrCodeCancel)
		s.parent.mu.Unlock()
		_ = s.pr.Close()
		err2 := s.parent.conn.Close()
		if err == nil {
			err = err2
		}
	})
	return err
}

