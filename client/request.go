package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"sync"

	"github.com/firasghr/browserclient/emulation"
	"github.com/firasghr/browserclient/header"
)

// Body is the request-body taxonomy spec.md §3 describes: a cheaply
// cloneable byte buffer, a non-cloneable stream, or a multipart stream.
// Grounded on the teacher's plain []byte request bodies, generalized into
// the variant set retry (needs TryClone) and redirect (same) require.
type Body interface {
	// Reader returns a fresh io.ReadCloser for one send attempt.
	Reader() (io.ReadCloser, error)
	// TryClone returns an independent Body usable for a retried or
	// redirected attempt, and whether cloning was possible at all
	// (always false for a Streaming or Multipart body, consumed or not).
	TryClone() (Body, bool)
	// ContentLength reports the body size if known, or -1.
	ContentLength() int64
}

// Empty is a Body with no content.
func Empty() Body { return emptyBody{} }

type emptyBody struct{}

func (emptyBody) Reader() (io.ReadCloser, error)    { return io.NopCloser(bytes.NewReader(nil)), nil }
func (emptyBody) TryClone() (Body, bool)            { return emptyBody{}, true }
func (emptyBody) ContentLength() int64              { return 0 }

// Reusable wraps a byte slice: cloneable without limit, since every send
// attempt gets a fresh reader over the same backing array.
func Reusable(b []byte) Body { return reusableBody{b: b} }

type reusableBody struct{ b []byte }

func (r reusableBody) Reader() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(r.b)), nil
}
func (r reusableBody) TryClone() (Body, bool) { return r, true }
func (r reusableBody) ContentLength() int64   { return int64(len(r.b)) }

// Streaming wraps a single-use io.ReadCloser. Per spec.md §3 a streaming
// body is "not cloneable": once Reader has handed the stream out, a retry
// or redirect that needs the body again must abandon the attempt.
func Streaming(rc io.ReadCloser) Body { return &streamingBody{rc: rc} }

type streamingBody struct {
	mu   sync.Mutex
	rc   io.ReadCloser
	used bool
}

func (s *streamingBody) Reader() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = true
	return s.rc, nil
}
// TryClone always fails: a streaming body is read once and cannot be
// replayed for a retry or redirect, per spec.md §3.
func (s *streamingBody) TryClone() (Body, bool) { return nil, false }
func (s *streamingBody) ContentLength() int64 { return -1 }

// Multipart wraps a multipart.Writer's finished stream plus its computed
// content type, grounded on net/http/httputil's own multipart-writer idiom
// (mime/multipart is the stdlib primitive the whole Go ecosystem reaches
// for here; nothing in the pack wires a third-party multipart library).
func Multipart(rc io.ReadCloser, contentType string) (Body, string) {
	return &streamingBody{rc: rc}, contentType
}

// multipartContentType builds the Content-Type value for a multipart
// writer, a small helper callers can use alongside Multipart.
func multipartContentType(w *multipart.Writer) string {
	return "multipart/form-data; boundary=" + w.Boundary()
}

// extKey is the typed-key pattern for Request/Response extension bags: a
// zero-sized type per distinct extension, so two packages can never
// collide on a string key by accident. Grounded on SPEC_FULL.md §3's note
// that extensions are "keyed by a private typed-key pattern", generalizing
// the teacher's map[string]string session headers into a type-safe bag.
type extKey[T any] struct{}

type extensions struct {
	mu   sync.RWMutex
	vals map[reflect.Type]any
}

func newExtensions() *extensions { return &extensions{vals: make(map[reflect.Type]any)} }

func setExt[T any](e *extensions, v T) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vals[reflect.TypeOf(extKey[T]{})] = v
}

func getExt[T any](e *extensions) (T, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vals[reflect.TypeOf(extKey[T]{})]
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// RequestOverrides is the per-request extension bag a single Request may
// carry. Client.Do applies Emulation, when set, to that request only.
// AcceptEncode is stored and returned by Overrides, but no pipeline layer
// reads it. Timeouts, redirect policy, proxy and cookie jar have no
// per-request override: the Client's settings always apply.
type RequestOverrides struct {
	Emulation    *emulation.Profile
	AcceptEncode []string
}

// Request is the typed builder spec.md §3/§8 describes: method, URI,
// ordered headers, optional body, and an extension bag for per-request
// overrides. Grounded on the teacher's plain *http.Request use throughout
// client.go/h2_transport.go, generalized to carry header.Ordered instead
// of http.Header so insertion order survives into the wire serializer.
type Request struct {
	Method  string
	URL     *url.URL
	Headers *header.Ordered
	Orig    *header.OrigHeaderMap
	Body    Body

	ext *extensions
}

// NewRequest builds a Request for method and rawURL. ws/wss schemes are
// normalized to http/https per spec.md §3 ("after scheme normalization for
// ws/wss, uri.scheme ∈ {http, https} by the time the base sender runs");
// callers that want the WebSocket path should use Client.WebSocket, which
// remembers the original scheme to pick the upgrade path.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	headers := &header.Ordered{}
	if u.User != nil {
		user := u.User.Username()
		pass, _ := u.User.Password()
		headers.Set("Authorization", "Basic "+basicAuth(user, pass))
		u.User = nil
	}
	return &Request{
		Method:  method,
		URL:     u,
		Headers: headers,
		Orig:    header.NewOrigHeaderMap(),
		Body:    Empty(),
		ext:     newExtensions(),
	}, nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

// WithOverrides attaches per-request overrides to the request's extension
// bag.
func (r *Request) WithOverrides(o RequestOverrides) *Request {
	setExt(r.ext, o)
	return r
}

// Overrides returns the request's per-request overrides, if any were set.
func (r *Request) Overrides() (RequestOverrides, bool) {
	return getExt[RequestOverrides](r.ext)
}

// toHTTPRequest projects a Request onto *http.Request for the base sender.
// It applies the recorded original casing to r.Headers in place (so order
// and casing both survive in the same structure, rather than being
// rebuilt into an unordered http.Header) and threads r.Headers itself onto
// the request's context via header.WithOrderedContext: every later
// middleware layer that adds a header not present at build time (the
// config layer's profile defaults, the cookie layer's Cookie header, the
// decompression layer's Accept-Encoding) appends to this same *Ordered,
// so the custom wire writers in this package can still emit the complete,
// exact recorded sequence spec.md §4.1 requires. req.Header remains a
// value mirror built from the same Ordered, for the many stdlib-shaped
// call sites (req.Header.Get/Set, cookiejar, resp.Cookies) that only know
// how to read a net/http.Header.
func (r *Request) toHTTPRequest(ctx context.Context) (*http.Request, error) {
	body, err := r.Body.Reader()
	if err != nil {
		return nil, err
	}
	r.Headers.ApplyCasing(r.Orig)
	ctx = header.WithOrderedContext(ctx, r.Headers)
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL.String(), body)
	if err != nil {
		return nil, err
	}
	if cl := r.Body.ContentLength(); cl >= 0 {
		req.ContentLength = cl
	}
	if clone, ok := r.Body.TryClone(); ok {
		req.GetBody = func() (io.ReadCloser, error) { return clone.Reader() }
	}
	req.Header = r.Headers.ToHTTPHeader()
	return req, nil
}
