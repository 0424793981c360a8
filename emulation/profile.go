// Package emulation bundles the TLS, HTTP/1, HTTP/2, and header settings
// that reproduce a real browser's wire fingerprint (spec.md §3's
// "Emulation" and §4.7).
//
// Grounded on the teacher's fingerprint.Profile (which bundled a *tls.Config,
// a User-Agent string, and a header list), generalized from two static
// browser profiles to the full optional-field bundle spec.md §3 describes,
// and wired to github.com/refraction-networking/utls for the ClientHello
// shape instead of crypto/tls's coarser CipherSuites/MinVersion knobs.
package emulation

import (
	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/browserclient/header"
)

// TLSOptions configures the parameters a TLSOptions-aware connector (see
// package tlsconn) consumes to build a ClientHello, per spec.md §4.3.
type TLSOptions struct {
	HelloID              utls.ClientHelloID
	ALPN                 []string // "h2", "http/1.1"
	ALPSProtocol         string
	MinVersion           uint16
	MaxVersion           uint16
	ServerNameIndication bool
	InsecureSkipVerify   bool
	RootCAs              [][]byte // PEM blocks; nil uses the system pool
	CertCompressionAlgos []utls.CertCompressionAlgo
	EnableSessionTickets bool
	EnableGREASE         bool
	PermuteExtensions    bool
	KeyShareCurves       []utls.CurveID
	KeylogWriter         bool // when true, caller wants SSLKEYLOGFILE-style logging
}

// Http1Options configures the HTTP/1.1 codec layer. Wire-level header
// order and casing fidelity is not one of these knobs: it comes from
// client.baseSender's writeH1Request walking the header.Ordered threaded
// on the request's context field by field, bypassing net/http's
// Header.writeSubset (which always sorts header keys alphabetically
// regardless of insertion order). This struct is carried on a Profile and
// swapped in by Apply like the other option structs.
type Http1Options struct {
	// TitleCaseHeaders records a Title-Case preference for header names
	// that have no OrigHeaderMap entry. No codec in this module reads it:
	// writeH1Request writes such names as they appear in header.Ordered
	// whatever its value.
	TitleCaseHeaders bool
}

// Http2Options configures the HTTP/2 SETTINGS frame and pseudo-header
// order, grounded on the teacher's Chrome-120 constants in
// client/h2_transport.go.
type Http2Options struct {
	HeaderTableSize       uint32
	EnablePush            bool
	MaxConcurrentStreams  uint32
	InitialWindowSize     uint32
	ConnectionWindowSize  uint32
	MaxFrameSize          uint32
	MaxHeaderListSize     uint32
	PseudoHeaderOrder     []string // e.g. [":method", ":authority", ":scheme", ":path"]
}

// Profile is the `(TlsOptions, Http1Options, Http2Options)` triple of
// spec.md §3, plus the default headers and their casing/order.
//
// Every field is a pointer so Apply can implement the "swap only
// Some-fields" semantics spec.md §3/§4.7 requires: fields left nil are not
// touched by Apply.
type Profile struct {
	TLS          *TLSOptions
	HTTP1        *Http1Options
	HTTP2        *Http2Options
	Headers      *header.Ordered
	OrigHeaders  *header.OrigHeaderMap
}

// Target is anything a Profile can be applied to: a *client.Client (client
// scope) or a per-request override bag (request scope). Both only need
// setters for the fields a Profile might carry.
type Target interface {
	SetTLSOptions(*TLSOptions)
	SetHTTP1Options(*Http1Options)
	SetHTTP2Options(*Http2Options)
	SetDefaultHeaders(*header.Ordered)
	SetOrigHeaders(*header.OrigHeaderMap)
}

// Apply swaps each non-nil field of p into target, leaving target's
// existing value in place for any nil field. This is the merge rule spec.md
// §3 describes for the Emulation bundle ("all optional; apply() swaps
// Some-fields into the client config, leaving None-fields untouched").
func (p *Profile) Apply(target Target) {
	if p == nil || target == nil {
		return
	}
	if p.TLS != nil {
		target.SetTLSOptions(p.TLS)
	}
	if p.HTTP1 != nil {
		target.SetHTTP1Options(p.HTTP1)
	}
	if p.HTTP2 != nil {
		target.SetHTTP2Options(p.HTTP2)
	}
	if p.Headers != nil {
		target.SetDefaultHeaders(p.Headers)
	}
	if p.OrigHeaders != nil {
		target.SetOrigHeaders(p.OrigHeaders)
	}
}

// Hash returns a value stable for equal fingerprints and very likely to
// differ for different ones, suitable for folding into pool.Key so two
// requests with diverging emulation profiles never share a pooled
// connection (spec.md §3's PoolKey invariant, §8's "pool keys K1≠K2 ...
// their connection sets are disjoint").
//
// This is a coarse structural hash, not a cryptographic one: it is fine for
// two different profiles to collide with negligible probability, but two
// equal profiles must never hash differently.
func (p *Profile) Hash() uint64 {
	if p == nil {
		return 0
	}
	h := fnv64a(0)
	if p.TLS != nil {
		h = fnv64a(h, []byte(p.TLS.HelloID.Client), []byte(p.TLS.HelloID.Version))
		for _, a := range p.TLS.ALPN {
			h = fnv64a(h, []byte(a))
		}
		h = fnv64a(h, []byte(p.TLS.ALPSProtocol))
	}
	if p.HTTP2 != nil {
		h = fnv64a(h, u32bytes(p.HTTP2.HeaderTableSize), u32bytes(p.HTTP2.InitialWindowSize), u32bytes(p.HTTP2.MaxHeaderListSize))
		for _, ph := range p.HTTP2.PseudoHeaderOrder {
			h = fnv64a(h, []byte(ph))
		}
	}
	if p.Headers != nil {
		for _, name := range p.Headers.Names() {
			h = fnv64a(h, []byte(name))
		}
	}
	return h
}

func u32bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// fnv64a folds each byte slice into a running FNV-1a hash. Passing 0 as
// the seed starts a fresh hash (the FNV-1a offset basis).
func fnv64a(seed uint64, chunks ...[]byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := seed
	if h == 0 {
		h = offset64
	}
	for _, c := range chunks {
		for _, b := range c {
			h ^= uint64(b)
			h *= prime64
		}
	}
	return h
}
