package middleware

import (
	"net/http"
	"net/url"

	"github.com/firasghr/browserclient/header"
)

// CookieJar is the storage contract the cookie layer consumes: exactly
// net/http.CookieJar's shape, so callers can hand in http/cookiejar.Jar
// (as the teacher's client.go does) or any custom store.
type CookieJar interface {
	SetCookies(u *url.URL, cookies []*http.Cookie)
	Cookies(u *url.URL) []*http.Cookie
}

type cookieRoundTripper struct {
	next http.RoundTripper
	jar  CookieJar
}

// NewCookieLayer injects stored cookies into outgoing requests and
// extracts Set-Cookie headers from responses into jar, per spec.md §4.6.
// A nil jar makes this layer a no-op passthrough.
func NewCookieLayer(jar CookieJar) Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &cookieRoundTripper{next: next, jar: jar}
	}
}

func (c *cookieRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.jar == nil {
		return c.next.RoundTrip(req)
	}
	cookies := c.jar.Cookies(req.URL)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	if len(cookies) > 0 {
		if ordered, ok := header.OrderedFromContext(req.Context()); ok {
			// req.AddCookie folds every cookie into one semicolon-joined
			// Cookie value; record it the same way so the wire writer
			// emits a single Cookie entry at this point in the sequence.
			ordered.Set("Cookie", req.Header.Get("Cookie"))
		}
	}
	resp, err := c.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if rc := resp.Cookies(); len(rc) > 0 {
		c.jar.SetCookies(req.URL, rc)
	}
	return resp, nil
}
