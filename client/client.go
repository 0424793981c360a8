// Package client provides the browser-emulating HTTP/WebSocket client
// facade: a Client built once from a ClientBuilder, safe for concurrent
// use, composing the connection pool, TLS connector, routing, and
// middleware packages into the single entry point spec.md §4.1 and §11
// describe.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/firasghr/browserclient/emulation"
	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/header"
	"github.com/firasghr/browserclient/logger"
	"github.com/firasghr/browserclient/metrics"
	"github.com/firasghr/browserclient/middleware"
	"github.com/firasghr/browserclient/pool"
	"github.com/firasghr/browserclient/proxymatch"
	"github.com/firasghr/browserclient/resolve"
	"github.com/firasghr/browserclient/routing"
	"github.com/firasghr/browserclient/sessioncache"
)

// defaultPoolLimits mirror the teacher's transportDefaults (tuned for
// several hundred concurrent sessions against a single origin), carried
// over from client.go's defaultTransport but expressed against pool.Limits
// instead of net/http.Transport's flatter knobs.
var defaultPoolLimits = pool.Limits{
	MaxPerKey:   100,
	MaxTotal:    500,
	IdleTimeout: 90 * time.Second,
}

// Client is the facade spec.md §4.1/§11 describes: it holds the composed
// middleware pipeline plus enough of the emulation profile to build
// per-request overrides, and offers method-convenience constructors.
// A Client is safe for concurrent use and is typically built once and
// shared, mirroring the teacher's NewHTTPClient contract.
type Client struct {
	pipeline http.RoundTripper
	jar      middleware.CookieJar
	profile  *emulation.Profile

	sender  *baseSender
	metrics *metrics.Metrics
	log     *logger.Logger
}

// Metrics returns the Client's request counters.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }

// ClientBuilder assembles a Client's configuration before Build. The zero
// value is a usable builder with direct routing, Chrome-120 TLS/H2
// defaults, and a public-suffix-aware cookie jar.
type ClientBuilder struct {
	Proxy           *proxymatch.Matcher
	Resolver        resolve.Resolver
	Profile         *emulation.Profile
	PoolLimits      *pool.Limits
	SessionCacheCap int
	TCP             routing.TCPOptions
	HappyEyeballs   routing.HappyEyeballsOptions

	TotalTimeout    time.Duration
	BodyReadTimeout time.Duration
	Retry           middleware.RetryOptions
	Redirect        middleware.RedirectPolicy
	Jar             middleware.CookieJar
	DisableCookies  bool

	Logger *logger.Logger
}

// NewClientBuilder returns a builder with spec-default proxy-from-env
// matching; call WithProxy to override.
func NewClientBuilder() *ClientBuilder {
	matcher, _ := proxymatch.FromEnv()
	return &ClientBuilder{Proxy: matcher}
}

// WithProfile attaches an emulation.Profile applied to every request built
// by the resulting Client, per spec.md §4.7.
func (b *ClientBuilder) WithProfile(p *emulation.Profile) *ClientBuilder {
	b.Profile = p
	return b
}

// WithProxy overrides the proxy matcher (nil disables proxying entirely).
func (b *ClientBuilder) WithProxy(m *proxymatch.Matcher) *ClientBuilder {
	b.Proxy = m
	return b
}

// WithTimeouts sets the total and body-read timeouts, spec.md §4.1 layers
// 1 and 5.
func (b *ClientBuilder) WithTimeouts(total, bodyRead time.Duration) *ClientBuilder {
	b.TotalTimeout = total
	b.BodyReadTimeout = bodyRead
	return b
}

// WithRetry sets the retry policy, spec.md §4.1 layer 3.
func (b *ClientBuilder) WithRetry(r middleware.RetryOptions) *ClientBuilder {
	b.Retry = r
	return b
}

// WithRedirect sets the redirect policy, spec.md §4.1 layer 4.
func (b *ClientBuilder) WithRedirect(p middleware.RedirectPolicy) *ClientBuilder {
	b.Redirect = p
	return b
}

// WithoutCookies disables the cookie jar entirely, overriding the default
// public-suffix-aware jar the Build step would otherwise create.
func (b *ClientBuilder) WithoutCookies() *ClientBuilder {
	b.DisableCookies = true
	return b
}

// Build constructs the Client: resolver, router, TLS session cache, pool,
// and base sender, wrapped in the eight-stage middleware pipeline.
//
// Grounded on the teacher's NewHTTPClient, generalized from a single
// *http.Transport + cookiejar.New(nil) pair into the full component stack
// SPEC_FULL.md §4.2-§4.5 describe; the cookie jar upgrade to
// publicsuffix.List resolves the teacher's own doc-comment aspiration
// ("requires no external dependency" is no longer true once the rest of
// the pack's dependency surface is in scope).
func (b *ClientBuilder) Build() (*Client, error) {
	poolLimits := defaultPoolLimits
	if b.PoolLimits != nil {
		poolLimits = *b.PoolLimits
	}
	sessionCap := b.SessionCacheCap
	if sessionCap <= 0 {
		sessionCap = 256
	}

	dialer := routing.NewDialer(b.Resolver, b.TCP, b.HappyEyeballs)
	router := routing.NewRouter(dialer)
	cache := sessioncache.New(sessionCap)
	p := pool.New(poolLimits)

	sender := newBaseSender(p, router, cache, b.Proxy, b.Profile)

	jar := b.Jar
	if jar == nil && !b.DisableCookies {
		cj, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("client: build cookie jar: %w", err)
		}
		jar = cj
	}

	headerOpts := middleware.HeaderOptions{}
	if b.Profile != nil {
		headerOpts.Defaults = b.Profile.Headers
		headerOpts.OrigHeaders = b.Profile.OrigHeaders
	}

	m := metrics.NewMetrics()
	retry := b.Retry
	retry.OnRetry = m.IncrementRetries

	pipeline := buildPipeline(sender, PipelineOptions{
		TotalTimeout:    b.TotalTimeout,
		BodyReadTimeout: b.BodyReadTimeout,
		Headers:         headerOpts,
		Retry:           retry,
		Redirect:        b.Redirect,
		Jar:             jar,
	})

	log := b.Logger
	if log == nil {
		log = logger.New(logger.LevelInfo)
	}

	return &Client{
		pipeline: pipeline,
		jar:      jar,
		profile:  b.Profile,
		sender:   sender,
		metrics:  m,
		log:      log,
	}, nil
}

// Do executes req through the full middleware pipeline and returns the
// resulting Response. Per spec.md §4.1's preconditions, a scheme outside
// {http, https} fails synchronously with BadScheme (NewRequest already
// normalizes ws/wss, so this only rejects genuinely unsupported schemes).
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.metrics.IncrementTotal()
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		c.metrics.IncrementFailed()
		return nil, errs.New(errs.KindBadScheme, fmt.Errorf("unsupported scheme %q", req.URL.Scheme))
	}
	if overrides, ok := req.Overrides(); ok && overrides.Emulation != nil {
		overrides.Emulation.Apply((*requestTarget)(req))
	}
	if tls, ok := getExt[*emulation.TLSOptions](req.ext); ok {
		ctx = contextWithTLSOverride(ctx, tls)
	}
	httpReq, err := req.toHTTPRequest(ctx)
	if err != nil {
		c.metrics.IncrementFailed()
		return nil, errs.New(errs.KindRequest, err)
	}
	c.log.Debugf("sending %s %s", req.Method, req.URL)
	resp, err := c.pipeline.RoundTrip(httpReq)
	if err != nil {
		c.metrics.IncrementFailed()
		return nil, err
	}
	c.metrics.IncrementSuccess()
	return newResponse(req, resp), nil
}

// Get is a method-convenience constructor, spec.md §11's "offers
// method-convenience constructors".
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := NewRequest(http.MethodGet, rawURL)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post is a method-convenience constructor sending body with contentType.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body Body) (*Response, error) {
	req, err := NewRequest(http.MethodPost, rawURL)
	if err != nil {
		return nil, err
	}
	req.Body = body
	if contentType != "" {
		req.Headers.Set("Content-Type", contentType)
	}
	return c.Do(ctx, req)
}

// Jar returns the Client's cookie store, or nil if cookies are disabled.
func (c *Client) Jar() middleware.CookieJar { return c.jar }

// requestTarget adapts *Request to emulation.Target so a per-request
// Profile override can be applied the same way Profile.Apply applies to a
// *Client-scoped target, per spec.md §4.7's request-scope application via
// extensions.
type requestTarget Request

func (t *requestTarget) SetTLSOptions(o *emulation.TLSOptions) {
	setExt(t.ext, o)
}
func (t *requestTarget) SetHTTP1Options(o *emulation.Http1Options) {
	setExt(t.ext, o)
}
func (t *requestTarget) SetHTTP2Options(o *emulation.Http2Options) {
	setExt(t.ext, o)
}
func (t *requestTarget) SetDefaultHeaders(h *header.Ordered) {
	for _, name := range h.Names() {
		for _, v := range h.Values(name) {
			t.Headers.SetIfAbsent(name, v)
		}
	}
}
func (t *requestTarget) SetOrigHeaders(m *header.OrigHeaderMap) {
	if t.Orig == nil {
		t.Orig = header.NewOrigHeaderMap()
	}
	t.Orig.Extend(m)
}

var _ io.Closer = (*Response)(nil)
