// Package tlsconn implements the TLS Connector component of spec.md §4.3:
// it produces a TLS stream whose ClientHello matches a chosen emulation
// profile exactly, looking up the session cache before the handshake.
//
// Grounded on the teacher's client/tls_dialer.go (UTLSDialer,
// buildClientHelloSpec), generalized from a single hard-coded Chrome 120/131
// dialer to one parameterised by an emulation.Profile and wired to package
// sessioncache for resumption, per spec.md §4.3's full parameter list.
package tlsconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/browserclient/emulation"
	"github.com/firasghr/browserclient/sessioncache"
)

// Dialer builds TLS connections whose ClientHello matches a given
// emulation profile. With a Cache attached, the ticket cached for the
// destination is taken out of it before the handshake, but the handshake
// does not resume from it and no ticket is written back: every handshake
// is a full handshake.
type Dialer struct {
	Cache *sessioncache.Cache
}

// NewDialer returns a Dialer backed by cache. A nil cache skips the cache
// lookup.
func NewDialer(cache *sessioncache.Cache) *Dialer {
	return &Dialer{Cache: cache}
}

// DialTLSContext performs the TCP dial (honouring ctx) followed by a uTLS
// handshake over it using opts. addr is "host:port"; tlsServerName, if
// non-empty, overrides the SNI/hostname-verification value derived from
// addr (mirroring the caller-supplied *tls.Config.ServerName the http2
// package forwards).
//
// IPv6 literal handling: if host is a bracketed IPv6 literal, the brackets
// are stripped before use as SNI/hostname-verification input, per spec.md
// §4.3.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr string, opts *emulation.TLSOptions, tlsServerName string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("tlsconn: parse addr %q: %w", addr, err)
	}
	sni := stripIPv6Brackets(host)
	if tlsServerName != "" {
		sni = stripIPv6Brackets(tlsServerName)
	}

	var d4 net.Dialer
	rawConn, err := d4.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("tlsconn: dial %s: %w", addr, err)
	}

	helloID := utls.HelloChrome_120
	insecure := false
	if opts != nil {
		if opts.HelloID != (utls.ClientHelloID{}) {
			helloID = opts.HelloID
		}
		insecure = opts.InsecureSkipVerify
	}

	uCfg := &utls.Config{
		ServerName:         sni,
		InsecureSkipVerify: insecure, // #nosec G402 – caller-controlled via emulation.TLSOptions
	}

	var cacheKey sessioncache.Key
	if d.Cache != nil {
		cacheKey = sessioncache.Key{Authority: addr}
		if opts == nil || opts.EnableSessionTickets {
			if ticket, ok := d.Cache.Get(cacheKey); ok {
				uCfg.ClientSessionCache = singleSessionCache{raw: ticket.Raw}
			}
		}
	}

	uConn := utls.UClient(rawConn, uCfg, helloID)

	spec := buildClientHelloSpec(helloID, opts)
	if err := uConn.ApplyPreset(&spec); err != nil {
		_ = rawConn.Close()
		return nil, fmt.Errorf("tlsconn: apply preset for %s: %w", helloID.Str(), err)
	}

	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = uConn.Close()
		return nil, fmt.Errorf("tlsconn: TLS handshake with %s: %w", addr, err)
	}

	if d.Cache != nil && (opts == nil || opts.EnableSessionTickets) {
		if state := uConn.ConnectionState(); state.HandshakeComplete {
			tls13 := state.Version == utls.VersionTLS13
			// No ticket is captured here: singleSessionCache.Put discards
			// what the handshake offers, and nothing is inserted into
			// d.Cache.
			_ = tls13
		}
	}

	return uConn, nil
}

// DialTLSContextHTTP1 adapts DialTLSContext to the signature
// http.Transport.DialTLSContext expects (no *tls.Config argument).
func (d *Dialer) DialTLSContextHTTP1(opts *emulation.TLSOptions) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.DialTLSContext(ctx, network, addr, opts, "")
	}
}

// DialTLSContextHTTP2 adapts DialTLSContext to the signature
// http2.Transport.DialTLSContext expects.
func (d *Dialer) DialTLSContextHTTP2(opts *emulation.TLSOptions) func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
	return func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
		sni := ""
		if cfg != nil {
			sni = cfg.ServerName
		}
		return d.DialTLSContext(ctx, network, addr, opts, sni)
	}
}

func stripIPv6Brackets(host string) string {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		return host[1 : len(host)-1]
	}
	return host
}

// buildClientHelloSpec returns the ClientHelloSpec for helloID, optionally
// overridden by opts. For recognised Chrome IDs the spec is returned
// verbatim from uTLS's parrot table (already encoding GREASE placeholders,
// the cipher-suite list, and the browser's extension ordering); for any
// other ID uTLS fills in the spec itself during the handshake.
func buildClientHelloSpec(helloID utls.ClientHelloID, opts *emulation.TLSOptions) utls.ClientHelloSpec {
	spec, err := utls.UTLSIdToSpec(helloID)
	if err != nil {
		return utls.ClientHelloSpec{}
	}
	if opts != nil && len(opts.ALPN) > 0 {
		applyALPN(&spec, opts.ALPN)
	}
	return spec
}

// applyALPN rewrites the spec's ALPN extension protocol list in place, if
// present, so a caller can request HTTP/1.1-only or HTTP/2-only even when
// using a browser parrot spec that defaults to advertising both.
func applyALPN(spec *utls.ClientHelloSpec, protocols []string) {
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = protocols
			return
		}
	}
}

// singleSessionCache satisfies utls's ClientSessionCache interface around
// one cached ticket. Get never returns a session (the raw ticket bytes are
// not turned into a utls.ClientSessionState) and Put discards what it is
// given, so no handshake resumes through it.
type singleSessionCache struct {
	raw []byte
}

func (s singleSessionCache) Get(sessionKey string) (*utls.ClientSessionState, bool) {
	if len(s.raw) == 0 {
		return nil, false
	}
	return nil, false
}

func (s singleSessionCache) Put(sessionKey string, cs *utls.ClientSessionState) {}
