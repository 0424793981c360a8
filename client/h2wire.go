package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/header"
	"github.com/firasghr/browserclient/pool"
)

const h2ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// errH2ConnDead signals that a cached h2Conn can no longer serve requests
// (GOAWAY seen, or a previous round trip failed); roundTripH2 evicts it and
// dials a fresh connection.
var errH2ConnDead = fmt.Errorf("h2: connection no longer usable")

// h2Conn is a minimal HTTP/2 client connection: connection preface, a
// SETTINGS exchange, and a per-connection HPACK encoder/decoder, built
// directly on golang.org/x/net/http2's Framer and hpack packages instead of
// golang.org/x/net/http2.Transport/ClientConn, whose RoundTrip always
// HPACK-encodes headers by ranging over an http.Header map in Go's
// randomized order. Requests are serialized one at a time per connection
// (mu guards roundTrip end to end): this sender does not implement true
// concurrent stream multiplexing, trading some throughput for a
// self-contained frame-level implementation that preserves exact header
// order. See DESIGN.md's Open Questions for the rationale.
//
// Grounded on WhileEndless-go-rawhttp/pkg/http2's Transport/Connection
// (preface + SETTINGS handshake shape, one HPACK encoder/decoder pair per
// connection) and on golang.org/x/net/http2's own Framer/hpack primitives,
// which are already a go.mod dependency via the teacher's H2 transport.
type h2Conn struct {
	mu sync.Mutex

	conn   net.Conn
	framer *http2.Framer

	encBuf *bytes.Buffer
	henc   *hpack.Encoder
	hdec   *hpack.Decoder

	nextStreamID uint32
	peerMaxFrame uint32
	sendWindow   int64
	pending      []http2.Frame
	dead         bool

	pseudoOrder []string
}

func newH2Conn(conn net.Conn, pseudoOrder []string, headerTableSize, maxHeaderListSize uint32) (*h2Conn, error) {
	if _, err := conn.Write([]byte(h2ClientPreface)); err != nil {
		return nil, err
	}

	c := &h2Conn{
		conn:         conn,
		framer:       http2.NewFramer(conn, conn),
		nextStreamID: 1,
		peerMaxFrame: 16384,
		sendWindow:   65535,
		pseudoOrder:  pseudoOrder,
	}
	tableSize := headerTableSize
	if tableSize == 0 {
		tableSize = 4096
	}
	c.encBuf = &bytes.Buffer{}
	c.henc = hpack.NewEncoder(c.encBuf)
	c.henc.SetMaxDynamicTableSize(tableSize)
	c.hdec = hpack.NewDecoder(tableSize, nil)

	settings := []http2.Setting{
		{ID: http2.SettingEnablePush, Val: 0},
		{ID: http2.SettingInitialWindowSize, Val: 65535},
	}
	if maxHeaderListSize > 0 {
		settings = append(settings, http2.Setting{ID: http2.SettingMaxHeaderListSize, Val: maxHeaderListSize})
	}
	if err := c.framer.WriteSettings(settings...); err != nil {
		return nil, err
	}
	if err := c.awaitSettingsAck(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *h2Conn) awaitSettingsAck() error {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return err
		}
		switch fr := f.(type) {
		case *http2.SettingsFrame:
			if fr.IsAck() {
				return nil
			}
			_ = fr.ForeachSetting(func(s http2.Setting) error {
				if s.ID == http2.SettingMaxFrameSize {
					c.peerMaxFrame = s.Val
				}
				return nil
			})
			if err := c.framer.WriteSettingsAck(); err != nil {
				return err
			}
		case *http2.WindowUpdateFrame:
			c.sendWindow += int64(fr.Increment)
		case *http2.PingFrame:
			if !fr.IsAck() {
				if err := c.framer.WritePing(true, fr.Data); err != nil {
					return err
				}
			}
		case *http2.GoAwayFrame:
			return fmt.Errorf("h2: GOAWAY during handshake: %v", fr.ErrCode)
		}
	}
}

// nextRelevantFrame reads frames, handling connection-level control frames
// (SETTINGS, connection-scoped WINDOW_UPDATE, PING) internally, and returns
// the first frame that needs stream-level handling by the caller.
func (c *h2Conn) nextRelevantFrame() (http2.Frame, error) {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			return nil, err
		}
		switch fr := f.(type) {
		case *http2.SettingsFrame:
			if fr.IsAck() {
				continue
			}
			_ = fr.ForeachSetting(func(s http2.Setting) error {
				if s.ID == http2.SettingMaxFrameSize {
					c.peerMaxFrame = s.Val
				}
				return nil
			})
			if err := c.framer.WriteSettingsAck(); err != nil {
				return nil, err
			}
		case *http2.WindowUpdateFrame:
			if fr.StreamID == 0 {
				c.sendWindow += int64(fr.Increment)
				continue
			}
			return fr, nil
		case *http2.PingFrame:
			if fr.IsAck() {
				continue
			}
			if err := c.framer.WritePing(true, fr.Data); err != nil {
				return nil, err
			}
		default:
			return f, nil
		}
	}
}

func (c *h2Conn) pumpControlFrame() error {
	f, err := c.nextRelevantFrame()
	if err != nil {
		return err
	}
	switch fr := f.(type) {
	case *http2.WindowUpdateFrame:
		c.sendWindow += int64(fr.Increment)
	case *http2.GoAwayFrame:
		c.dead = true
		return fmt.Errorf("h2: GOAWAY: %v", fr.ErrCode)
	default:
		c.pending = append(c.pending, f)
	}
	return nil
}

// roundTrip sends req as one HTTP/2 stream and returns its response.
// Concurrent callers serialize on mu: this sender processes one request at
// a time per connection rather than truly multiplexing streams.
func (c *h2Conn) roundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return nil, errH2ConnDead
	}

	streamID := c.nextStreamID
	c.nextStreamID += 2

	hasBody := req.Body != nil && req.Body != http.NoBody
	var bodyBytes []byte
	if hasBody {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			c.dead = true
			return nil, err
		}
		bodyBytes = b
	}

	block, err := c.encodeHeaders(req)
	if err != nil {
		c.dead = true
		return nil, err
	}
	if err := c.writeHeadersFrame(streamID, block, len(bodyBytes) == 0); err != nil {
		c.dead = true
		return nil, err
	}
	if len(bodyBytes) > 0 {
		if err := c.writeBody(streamID, bodyBytes); err != nil {
			c.dead = true
			return nil, err
		}
	}

	resp, err := c.readResponse(streamID, req)
	if err != nil {
		c.dead = true
		return nil, err
	}
	return resp, nil
}

// encodeHeaders HPACK-encodes req's pseudo-headers (in pseudoOrder, if set,
// matching the emulated browser's recorded HTTP/2 pseudo-header sequence)
// followed by every regular header in the exact order recorded on the
// request's context -- never by ranging over req.Header, which has no
// order. HTTP/2 requires lowercase header field names (RFC 7540 §8.1.2),
// so casing fidelity for h2 is expressed only through field order, not the
// bytes of the name itself.
func (c *h2Conn) encodeHeaders(req *http.Request) ([]byte, error) {
	c.encBuf.Reset()

	authority := req.Host
	if authority == "" {
		authority = req.URL.Host
	}
	pseudo := map[string]string{
		":method":    req.Method,
		":scheme":    "https",
		":authority": authority,
		":path":      req.URL.RequestURI(),
	}
	order := c.pseudoOrder
	if len(order) == 0 {
		order = []string{":method", ":authority", ":scheme", ":path"}
	}
	written := make(map[string]bool, 4)
	for _, name := range order {
		if v, ok := pseudo[name]; ok && !written[name] {
			if err := c.henc.WriteField(hpack.HeaderField{Name: name, Value: v}); err != nil {
				return nil, err
			}
			written[name] = true
		}
	}
	for name, v := range pseudo {
		if !written[name] {
			if err := c.henc.WriteField(hpack.HeaderField{Name: name, Value: v}); err != nil {
				return nil, err
			}
			written[name] = true
		}
	}

	emit := func(name, value string) error {
		return c.henc.WriteField(hpack.HeaderField{Name: strings.ToLower(name), Value: value})
	}

	if ordered, ok := header.OrderedFromContext(req.Context()); ok {
		var werr error
		ordered.Range(func(key, value string) bool {
			if h2SkipHeader(key) {
				return true
			}
			werr = emit(key, value)
			return werr == nil
		})
		if werr != nil {
			return nil, werr
		}
	} else {
		for key, values := range req.Header {
			if h2SkipHeader(key) {
				continue
			}
			for _, v := range values {
				if err := emit(key, v); err != nil {
					return nil, err
				}
			}
		}
	}

	if cl := req.ContentLength; cl > 0 {
		if err := emit("content-length", strconv.FormatInt(cl, 10)); err != nil {
			return nil, err
		}
	}

	out := make([]byte, c.encBuf.Len())
	copy(out, c.encBuf.Bytes())
	return out, nil
}

// h2SkipHeader reports whether name is a connection-specific header RFC
// 7540 §8.1.2.2 forbids on the wire, or one synthesized separately
// (content-length is appended explicitly from req.ContentLength, since a
// retried/redirected request's recorded header may be stale).
func h2SkipHeader(name string) bool {
	switch strings.ToLower(name) {
	case "host", "connection", "keep-alive", "proxy-connection",
		"transfer-encoding", "upgrade", "content-length":
		return true
	default:
		return false
	}
}

func (c *h2Conn) writeHeadersFrame(streamID uint32, block []byte, endStream bool) error {
	maxFrame := int(c.peerMaxFrame)
	if maxFrame <= 0 {
		maxFrame = 16384
	}
	first, rest := block, []byte(nil)
	if len(block) > maxFrame {
		first, rest = block[:maxFrame], block[maxFrame:]
	}
	if err := c.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: first,
		EndHeaders:    len(rest) == 0,
		EndStream:     endStream,
	}); err != nil {
		return err
	}
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > maxFrame {
			chunk = rest[:maxFrame]
		}
		rest = rest[len(chunk):]
		if err := c.framer.WriteContinuation(streamID, len(rest) == 0, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *h2Conn) writeBody(streamID uint32, data []byte) error {
	maxFrame := int(c.peerMaxFrame)
	if maxFrame <= 0 {
		maxFrame = 16384
	}
	for len(data) > 0 {
		for c.sendWindow <= 0 {
			if err := c.pumpControlFrame(); err != nil {
				return err
			}
		}
		n := len(data)
		if n > maxFrame {
			n = maxFrame
		}
		if int64(n) > c.sendWindow {
			n = int(c.sendWindow)
		}
		last := n == len(data)
		if err := c.framer.WriteData(streamID, last, data[:n]); err != nil {
			return err
		}
		c.sendWindow -= int64(n)
		data = data[n:]
	}
	return nil
}

func (c *h2Conn) readResponse(streamID uint32, req *http.Request) (*http.Response, error) {
	var headerBlock []byte
	var status int
	respHeader := make(http.Header)
	var body bytes.Buffer
	headersDone, endStream := false, false

	take := func() (http2.Frame, error) {
		if len(c.pending) > 0 {
			f := c.pending[0]
			c.pending = c.pending[1:]
			return f, nil
		}
		return c.nextRelevantFrame()
	}

	for !endStream {
		f, err := take()
		if err != nil {
			return nil, err
		}
		switch fr := f.(type) {
		case *http2.HeadersFrame:
			if fr.StreamID != streamID {
				continue
			}
			headerBlock = append(headerBlock, fr.HeaderBlockFragment()...)
			if fr.HeadersEnded() {
				headersDone = true
			}
			if fr.StreamEnded() {
				endStream = true
			}
		case *http2.ContinuationFrame:
			if fr.StreamID != streamID {
				continue
			}
			headerBlock = append(headerBlock, fr.HeaderBlockFragment()...)
			if fr.HeadersEnded() {
				headersDone = true
			}
		case *http2.DataFrame:
			if fr.StreamID != streamID {
				continue
			}
			data := fr.Data()
			body.Write(data)
			if len(data) > 0 {
				if err := c.framer.WriteWindowUpdate(0, uint32(len(data))); err != nil {
					return nil, err
				}
				if err := c.framer.WriteWindowUpdate(streamID, uint32(len(data))); err != nil {
					return nil, err
				}
			}
			if fr.StreamEnded() {
				endStream = true
			}
		case *http2.RSTStreamFrame:
			if fr.StreamID == streamID {
				return nil, fmt.Errorf("h2: stream reset: %v", fr.ErrCode)
			}
		case *http2.GoAwayFrame:
			c.dead = true
			return nil, fmt.Errorf("h2: GOAWAY: %v", fr.ErrCode)
		}

		if headersDone && status == 0 {
			fields, err := c.hdec.DecodeFull(headerBlock)
			if err != nil {
				return nil, fmt.Errorf("h2: decode response headers: %w", err)
			}
			for _, field := range fields {
				if field.Name == ":status" {
					status, _ = strconv.Atoi(field.Value)
					continue
				}
				if strings.HasPrefix(field.Name, ":") {
					continue
				}
				respHeader.Add(http.CanonicalHeaderKey(field.Name), field.Value)
			}
		}
	}

	resp := &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/2.0",
		ProtoMajor:    2,
		ProtoMinor:    0,
		Header:        respHeader,
		Body:          io.NopCloser(bytes.NewReader(body.Bytes())),
		Request:       req,
		ContentLength: -1,
	}
	if cl := respHeader.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			resp.ContentLength = n
		}
	}
	return resp, nil
}

func (c *h2Conn) close() { _ = c.conn.Close() }

// roundTripH2 serves an https request over a cached h2Conn for req's
// pool.Key, dialing (and, if ALPN only negotiates http/1.1, falling back to
// the plain H1 writer over the same TLS connection) on a cache miss.
func (s *baseSender) roundTripH2(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host, port, err := splitHostPort(canonicalAddr(req.URL))
	if err != nil {
		return nil, errs.New(errs.KindConnect, err)
	}
	key := s.poolKey(ctx, "https", host, port, "h2")

	s.h2mu.Lock()
	conn, ok := s.h2conns[key]
	s.h2mu.Unlock()

	if ok {
		resp, err := conn.roundTrip(req)
		if err == nil {
			return resp, nil
		}
		s.evictH2Conn(key, conn)
		if err != errH2ConnDead {
			return nil, errs.New(errs.KindRequest, err)
		}
	}

	newConn, fellBack, err := s.dialH2(ctx, key, host, port)
	if err != nil {
		return nil, err
	}
	if fellBack != nil {
		return s.roundTripH1Conn(req, fellBack)
	}

	s.h2mu.Lock()
	s.h2conns[key] = newConn
	s.h2mu.Unlock()

	resp, err := newConn.roundTrip(req)
	if err != nil {
		s.evictH2Conn(key, newConn)
		return nil, errs.New(errs.KindRequest, err)
	}
	return resp, nil
}

// dialH2 admits and dials a TLS connection for key. If ALPN negotiates
// "h2" it performs the HTTP/2 preface/SETTINGS handshake and returns a
// cached h2Conn; if the peer only negotiated "http/1.1" (a server that
// advertised h2 support under a different SNI/ALPN policy than expected),
// it returns the raw connection for a one-shot H1 fallback instead -- this
// fallback connection is not added to s.h2conns or released back to the
// pool's idle set, so a later request to the same key dials fresh (see
// DESIGN.md's ALPN-fallback Open Question).
func (s *baseSender) dialH2(ctx context.Context, key pool.Key, host string, port uint16) (*h2Conn, net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := s.admitAndDial(ctx, key, func() (net.Conn, error) {
		raw, err := s.router.Route(ctx, host, port, s.intercept("https", host))
		if err != nil {
			return nil, err
		}
		tlsConn, err := s.tlsDial.DialTLSContext(ctx, "tcp", addr, s.tlsOptions(ctx, []string{"h2", "http/1.1"}), host)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		return tlsConn, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if negotiatedProtocol(conn) != "h2" {
		return nil, conn, nil
	}

	var tableSize, maxHeaderList uint32
	var pseudoOrder []string
	if s.profile != nil && s.profile.HTTP2 != nil {
		tableSize = s.profile.HTTP2.HeaderTableSize
		maxHeaderList = s.profile.HTTP2.MaxHeaderListSize
		pseudoOrder = s.profile.HTTP2.PseudoHeaderOrder
	}
	h2, err := newH2Conn(conn, pseudoOrder, tableSize, maxHeaderList)
	if err != nil {
		_ = conn.Close()
		return nil, nil, errs.New(errs.KindConnect, fmt.Errorf("h2 handshake: %w", err))
	}
	// The connection is kept alive directly by this sender's h2conns cache
	// (not the pool's idle list): ReleaseMultiplexed matches the existing
	// pool.Conn bookkeeping for a connection future Checkouts should reuse
	// through a transport-level cache rather than the pool's own idle set.
	if pc, ok := conn.(*pooledConn); ok {
		s.pool.ReleaseMultiplexed(pc.pc)
	}
	return h2, nil, nil
}

func (s *baseSender) evictH2Conn(key pool.Key, conn *h2Conn) {
	s.h2mu.Lock()
	if current, ok := s.h2conns[key]; ok && current == conn {
		delete(s.h2conns, key)
	}
	s.h2mu.Unlock()
	conn.close()
	if pc, ok := conn.conn.(*pooledConn); ok {
		s.pool.Evict(pc.pc)
	}
}

// negotiatedProtocol returns the ALPN protocol a uTLS connection settled
// on, or "" if conn isn't a uTLS connection. A *pooledConn is unwrapped
// first, so the bare *utls.UConn admitAndDial returns when s.pool == nil
// is handled the same way.
func negotiatedProtocol(conn net.Conn) string {
	pc, ok := conn.(*pooledConn)
	if ok {
		conn = pc.pc.Conn
	}
	uc, ok := conn.(*utls.UConn)
	if !ok {
		return ""
	}
	return uc.ConnectionState().NegotiatedProtocol
}
