package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"

	"github.com/firasghr/browserclient/emulation"
	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/pool"
	"github.com/firasghr/browserclient/proxymatch"
	"github.com/firasghr/browserclient/routing"
	"github.com/firasghr/browserclient/sessioncache"
	"github.com/firasghr/browserclient/tlsconn"
)

// baseSender is the innermost stage of the pipeline (spec.md §4.1 layer 8):
// it owns the connection pool, the connection router, and the TLS
// connector, and dispatches each request onto an HTTP/1.1 or HTTP/2 codec
// depending on the ALPN the destination negotiated.
//
// Grounded on the teacher's client.go (which built one *http.Transport per
// session) and h2_transport.go (which built one http2.Transport wired to a
// uTLS dialer). Unlike the teacher, this sender does not hand requests to
// net/http.Transport or golang.org/x/net/http2.Transport to write onto the
// wire: both serialize headers from a map (net/http's Header.writeSubset
// sorts keys alphabetically; http2.Transport.encodeHeaders ranges over the
// map in Go's randomized order), which can never reproduce the exact
// (name, casing) sequence spec.md §4.1 records. writeH1Request and h2Conn
// instead walk the header.Ordered threaded through the request's context
// directly, field by field. This also makes pool.Pool -- keyed on the full
// pool.Key, including FingerprintHash/ALPNPreference/InterceptDigest -- the
// sole connection-reuse authority: net/http.Transport's and
// http2.Transport's own internal connection caches, which key only on
// destination address, are no longer in the loop at all.
type baseSender struct {
	pool    *pool.Pool
	router  *routing.Router
	tlsDial *tlsconn.Dialer
	matcher *proxymatch.Matcher
	profile *emulation.Profile

	h2mu    sync.Mutex
	h2conns map[pool.Key]*h2Conn
}

// newBaseSender wires the connector stack together. matcher may be nil
// (no proxying); profile may be nil (uTLS Chrome defaults apply).
func newBaseSender(p *pool.Pool, router *routing.Router, cache *sessioncache.Cache, matcher *proxymatch.Matcher, profile *emulation.Profile) *baseSender {
	return &baseSender{
		pool:    p,
		router:  router,
		tlsDial: tlsconn.NewDialer(cache),
		matcher: matcher,
		profile: profile,
		h2conns: make(map[pool.Key]*h2Conn),
	}
}

// RoundTrip implements http.RoundTripper, dispatching by URL scheme.
func (s *baseSender) RoundTrip(req *http.Request) (*http.Response, error) {
	switch req.URL.Scheme {
	case "http":
		return s.roundTripH1(req)
	case "https":
		return s.roundTripH2(req)
	default:
		return nil, errs.New(errs.KindBadScheme, fmt.Errorf("unsupported scheme %q", req.URL.Scheme))
	}
}

func (s *baseSender) dialPlain(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, errs.New(errs.KindConnect, err)
	}
	key := s.poolKey(ctx, "http", host, port, "")
	return s.admitAndDial(ctx, key, func() (net.Conn, error) {
		return s.router.Route(ctx, host, port, s.intercept("http", host))
	})
}

func (s *baseSender) dialTLSHTTP1(ctx context.Context, network, addr string) (net.Conn, error) {
	return s.dialTLS(ctx, addr, "http/1.1", []string{"http/1.1"})
}

func (s *baseSender) dialTLSHTTP2(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
	return s.dialTLS(ctx, addr, "h2", []string{"h2", "http/1.1"})
}

// tlsOverrideKey is the context key a per-request emulation.TLSOptions
// override travels on, from Client.Do down to dialTLS, since
// http.Transport's DialTLSContext has no other per-request channel.
type tlsOverrideKey struct{}

func contextWithTLSOverride(ctx context.Context, opts *emulation.TLSOptions) context.Context {
	return context.WithValue(ctx, tlsOverrideKey{}, opts)
}

func tlsOverrideFromContext(ctx context.Context) (*emulation.TLSOptions, bool) {
	opts, ok := ctx.Value(tlsOverrideKey{}).(*emulation.TLSOptions)
	return opts, ok
}

func (s *baseSender) dialTLS(ctx context.Context, addr, alpnPref string, alpn []string) (net.Conn, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, errs.New(errs.KindConnect, err)
	}
	key := s.poolKey(ctx, "https", host, port, alpnPref)
	return s.admitAndDial(ctx, key, func() (net.Conn, error) {
		raw, err := s.router.Route(ctx, host, port, s.intercept("https", host))
		if err != nil {
			return nil, err
		}
		conn, err := s.tlsDial.DialTLSContext(ctx, "tcp", addr, s.tlsOptions(ctx, alpn), host)
		if err != nil {
			_ = raw.Close()
			return nil, err
		}
		return conn, nil
	})
}

// admitAndDial gates dial admission through the pool: it blocks if the key
// is already at capacity, then dials via dialFn once a slot is reserved.
// The returned net.Conn's Close releases the slot back to the pool, since
// the actual HTTP/1/HTTP/2 codec -- not this sender -- decides when a
// socket is no longer reusable.
func (s *baseSender) admitAndDial(ctx context.Context, key pool.Key, dialFn func() (net.Conn, error)) (net.Conn, error) {
	if s.pool == nil {
		return dialFn()
	}
	pc, hit, err := s.pool.Checkout(ctx, key)
	if err != nil {
		return nil, errs.New(errs.KindConnect, err)
	}
	if hit {
		return &pooledConn{pc: pc, pool: s.pool}, nil
	}
	conn, err := dialFn()
	if err != nil {
		s.pool.CancelCheckout(key)
		return nil, errs.New(errs.KindConnect, err)
	}
	tracked := s.pool.Track(key, conn, key.ALPNPreference == "h2")
	return &pooledConn{pc: tracked, pool: s.pool}, nil
}

// pooledConn ties a dialed socket to its pool slot. Close frees the slot
// without putting the socket in the idle set; releaseReusable puts an H1
// socket back in the idle set for the next Checkout; multiplexed H2
// sockets are reused through baseSender.h2conns.
type pooledConn struct {
	pc   *pool.Conn
	pool *pool.Pool
}

func (c *pooledConn) Read(b []byte) (int, error)  { return c.pc.Conn.Read(b) }
func (c *pooledConn) Write(b []byte) (int, error) { return c.pc.Conn.Write(b) }
func (c *pooledConn) LocalAddr() net.Addr         { return c.pc.Conn.LocalAddr() }
func (c *pooledConn) RemoteAddr() net.Addr        { return c.pc.Conn.RemoteAddr() }
func (c *pooledConn) SetDeadline(t time.Time) error {
	return c.pc.Conn.SetDeadline(t)
}
func (c *pooledConn) SetReadDeadline(t time.Time) error {
	return c.pc.Conn.SetReadDeadline(t)
}
func (c *pooledConn) SetWriteDeadline(t time.Time) error {
	return c.pc.Conn.SetWriteDeadline(t)
}

// Close hands the connection back to the pool as non-reusable. The ordered
// H1 writer calls releaseReusable directly once it knows a response was
// read cleanly; Close is the conservative fallback for error paths and for
// callers (like h2Conn's teardown) that just want the socket gone.
func (c *pooledConn) Close() error {
	if c.pc.Multiplexed {
		c.pool.ReleaseMultiplexed(c.pc)
		return c.pc.Conn.Close()
	}
	c.pool.Release(c.pc, false)
	return nil
}

// releaseReusable returns the connection to the pool's idle set instead of
// closing it, so the next admitAndDial for the same pool.Key (which already
// folds in FingerprintHash/ALPNPreference/InterceptDigest) gets a Checkout
// hit instead of dialing fresh. Only valid for non-multiplexed (H1)
// connections; multiplexed (H2) connections are kept alive directly by
// h2Conn instead of cycling through the pool's idle list per request.
func (c *pooledConn) releaseReusable() {
	c.pool.Release(c.pc, true)
}

func (s *baseSender) tlsOptions(ctx context.Context, alpn []string) *emulation.TLSOptions {
	if override, ok := tlsOverrideFromContext(ctx); ok && override != nil {
		opts := *override
		opts.ALPN = alpn
		return &opts
	}
	if s.profile != nil && s.profile.TLS != nil {
		opts := *s.profile.TLS
		opts.ALPN = alpn
		return &opts
	}
	return &emulation.TLSOptions{HelloID: utls.HelloChrome_120, ALPN: alpn, ServerNameIndication: true}
}

func (s *baseSender) intercept(scheme, host string) *proxymatch.Intercept {
	if s.matcher == nil {
		return nil
	}
	in, ok := s.matcher.Intercept(scheme, host)
	if !ok {
		return nil
	}
	return in
}

func (s *baseSender) poolKey(ctx context.Context, scheme, host string, port uint16, alpnPref string) pool.Key {
	var fp uint64
	if s.profile != nil {
		fp = s.profile.Hash()
	}
	if override, ok := tlsOverrideFromContext(ctx); ok && override != nil {
		h := fnv.New64a()
		_, _ = h.Write([]byte(override.HelloID.Client))
		_, _ = h.Write([]byte(override.HelloID.Version))
		fp ^= h.Sum64()
	}
	var interceptDigest string
	if in := s.intercept(scheme, host); in != nil {
		interceptDigest = in.Target
	}
	return pool.Key{
		Scheme:          scheme,
		Host:            host,
		Port:            port,
		ALPNPreference:  alpnPref,
		InterceptDigest: interceptDigest,
		FingerprintHash: fp,
	}
}

func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("splitting host/port from %q: %w", addr, err)
	}
	n, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("parsing port from %q: %w", addr, err)
	}
	return host, uint16(n), nil
}
