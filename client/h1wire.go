package client

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/header"
)

// roundTripH1 serves a plain-HTTP request: dial (or reuse a pooled
// connection keyed by the full pool.Key, including FingerprintHash) and
// write the request with writeH1Request instead of handing it to
// net/http's Request.Write/Transport, which sorts header keys
// alphabetically on the wire regardless of recorded order.
func (s *baseSender) roundTripH1(req *http.Request) (*http.Response, error) {
	host, port, err := splitHostPort(canonicalAddr(req.URL))
	if err != nil {
		return nil, errs.New(errs.KindConnect, err)
	}
	ctx := req.Context()
	key := s.poolKey(ctx, "http", host, port, "")
	conn, err := s.admitAndDial(ctx, key, func() (net.Conn, error) {
		return s.router.Route(ctx, host, port, s.intercept("http", host))
	})
	if err != nil {
		return nil, err
	}
	return s.roundTripH1Conn(req, conn)
}

// roundTripH1Conn writes req onto conn and parses the response, releasing
// conn back to the pool (reusable, if the server didn't ask to close it)
// once the caller fully drains the response body.
func (s *baseSender) roundTripH1Conn(req *http.Request, conn net.Conn) (*http.Response, error) {
	if dl, ok := req.Context().Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if err := writeH1Request(conn, req); err != nil {
		_ = conn.Close()
		return nil, errs.New(errs.KindRequest, fmt.Errorf("writing HTTP/1.1 request: %w", err))
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, errs.New(errs.KindRequest, fmt.Errorf("reading HTTP/1.1 response: %w", err))
	}
	resp.Body = &h1Body{ReadCloser: resp.Body, conn: conn, reuse: !resp.Close}
	return resp, nil
}

// h1Body releases the connection that served it once the caller is done
// with the body: back to the pool's idle set if the read completed
// cleanly and the server didn't ask for Connection: close, closed
// otherwise. This sender owns connection lifetime directly instead of
// delegating it to net/http.Transport's persistent-connection cache.
type h1Body struct {
	io.ReadCloser
	conn    net.Conn
	reuse   bool
	drained bool
}

func (b *h1Body) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == io.EOF {
		b.drained = true
	}
	return n, err
}

func (b *h1Body) Close() error {
	err := b.ReadCloser.Close()
	if pc, ok := b.conn.(*pooledConn); ok && b.reuse && b.drained {
		pc.releaseReusable()
	} else {
		_ = b.conn.Close()
	}
	return err
}

// canonicalAddr returns "host:port" for u, defaulting the port per scheme
// the way net/http's (unexported) httpcanonicalAddr does.
func canonicalAddr(u *url.URL) string {
	host := u.Hostname()
	if p := u.Port(); p != "" {
		return net.JoinHostPort(host, p)
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(host, "443")
	}
	return net.JoinHostPort(host, "80")
}

// writeH1Request serializes req directly onto w in the exact header order
// and casing recorded by header.OrderedFromContext(req.Context()), falling
// back to req.Header's (unordered) map for requests built outside this
// package's Request/toHTTPRequest path.
//
// Grounded on fortio's FastClient (other_examples' fhttp http_client.go),
// which likewise builds the request as raw bytes and writes them directly
// to the connection rather than using net/http's header writer, precisely
// to control what hits the wire.
func writeH1Request(w io.Writer, req *http.Request) error {
	bw := bufio.NewWriter(w)

	uri := req.URL.RequestURI()
	if _, err := fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, uri); err != nil {
		return err
	}

	wroteHost := false
	emit := func(key, value string) error {
		if strings.EqualFold(key, "Host") {
			wroteHost = true
		}
		_, err := fmt.Fprintf(bw, "%s: %s\r\n", key, value)
		return err
	}

	skip := func(key string) bool {
		return strings.EqualFold(key, "Content-Length") || strings.EqualFold(key, "Transfer-Encoding")
	}

	if ordered, ok := header.OrderedFromContext(req.Context()); ok {
		var werr error
		ordered.Range(func(key, value string) bool {
			if skip(key) {
				return true
			}
			werr = emit(key, value)
			return werr == nil
		})
		if werr != nil {
			return werr
		}
	} else {
		for key, values := range req.Header {
			if skip(key) {
				continue
			}
			for _, v := range values {
				if err := emit(key, v); err != nil {
					return err
				}
			}
		}
	}

	if !wroteHost {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		if err := emit("Host", host); err != nil {
			return err
		}
	}

	hasBody := req.Body != nil && req.Body != http.NoBody
	chunked := hasBody && req.ContentLength < 0
	switch {
	case chunked:
		if err := emit("Transfer-Encoding", "chunked"); err != nil {
			return err
		}
	case hasBody || req.ContentLength > 0:
		if err := emit("Content-Length", strconv.FormatInt(req.ContentLength, 10)); err != nil {
			return err
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return err
	}

	if hasBody {
		if chunked {
			cw := &chunkedWriter{w: bw}
			if _, err := io.Copy(cw, req.Body); err != nil {
				return err
			}
			if err := cw.Close(); err != nil {
				return err
			}
		} else if _, err := io.Copy(bw, req.Body); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// chunkedWriter implements RFC 7230 §4.1 chunked transfer-encoding for a
// request body whose length isn't known up front (a Streaming Body).
type chunkedWriter struct {
	w *bufio.Writer
}

func (c *chunkedWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(p)); err != nil {
		return 0, err
	}
	if _, err := c.w.Write(p); err != nil {
		return 0, err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *chunkedWriter) Close() error {
	_, err := c.w.WriteString("0\r\n\r\n")
	return err
}
