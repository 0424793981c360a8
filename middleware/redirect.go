package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/header"
)

// RedirectAction tells the redirect layer what to do about a candidate
// redirect, per the rust original's redirect.rs Action enum.
type RedirectAction int

const (
	ActionFollow RedirectAction = iota
	ActionStop
	ActionError
)

// Attempt describes one candidate redirect to a Custom policy's Check
// function, grounded on redirect.rs's Attempt struct.
type Attempt struct {
	Status   int
	Next     *url.URL
	Previous []*url.URL
}

// RedirectPolicy decides how many redirects to follow and, optionally, a
// custom per-redirect check. Grounded on redirect.rs's Policy/PolicyKind.
type RedirectPolicy struct {
	// Max is the maximum number of redirects to follow; zero means "use
	// Limited(10)", the rust default. A negative Max means "follow none".
	Max int
	// Check, if non-nil, overrides Max entirely: it is called for every
	// candidate redirect and its decision is authoritative.
	Check func(Attempt) RedirectAction
}

// sensitiveHeaders are stripped from a redirected request whenever the
// redirect crosses an origin boundary (scheme, host, or port changes),
// per spec.md §4.6 and redirect.rs's remove_sensitive_headers.
var sensitiveHeaders = []string{
	"Authorization",
	"Cookie",
	"Cookie2",
	"Proxy-Authorization",
	"WWW-Authenticate",
}

type redirectRoundTripper struct {
	next   http.RoundTripper
	policy RedirectPolicy
}

// NewRedirectLayer applies policy. A zero-value RedirectPolicy behaves as
// Limited(10), redirect.rs's Policy::default().
func NewRedirectLayer(policy RedirectPolicy) Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &redirectRoundTripper{next: next, policy: policy}
	}
}

func (rt *redirectRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	history := []*url.URL{req.URL}
	current := req

	for {
		resp, err := rt.next.RoundTrip(current)
		if err != nil {
			return nil, err
		}
		if !isRedirectStatus(resp.StatusCode) {
			return resp, nil
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return resp, nil
		}
		next, err := current.URL.Parse(loc)
		if err != nil {
			resp.Body.Close()
			return nil, errs.New(errs.KindRedirect, fmt.Errorf("parse Location %q: %w", loc, err)).WithLastURI(current.URL.String())
		}

		action := rt.decide(resp.StatusCode, next, history)
		switch action {
		case ActionStop:
			return resp, nil
		case ActionError:
			resp.Body.Close()
			return nil, errs.New(errs.KindTooManyRedirects, nil).WithLastURI(current.URL.String())
		}
		resp.Body.Close()

		nextReq := buildRedirectedRequest(current, next, resp.StatusCode)
		history = append(history, next)
		current = nextReq
	}
}

func (rt *redirectRoundTripper) decide(status int, next *url.URL, history []*url.URL) RedirectAction {
	if rt.policy.Check != nil {
		return rt.policy.Check(Attempt{Status: status, Next: next, Previous: history})
	}
	max := rt.policy.Max
	if max == 0 {
		max = 10
	}
	if max < 0 {
		return ActionStop
	}
	if len(history) > max {
		return ActionError
	}
	return ActionFollow
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// buildRedirectedRequest constructs the next request in a redirect chain,
// applying the method/body mutation rules spec.md §4.6 specifies per
// status code, and stripping sensitive headers on a cross-origin hop.
func buildRedirectedRequest(prev *http.Request, next *url.URL, status int) *http.Request {
	method := prev.Method
	req := prev.Clone(prev.Context())
	req.URL = next
	req.Host = ""

	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		// 301/302/303: browsers rewrite any method other than GET/HEAD to
		// GET and drop the body (redirect.rs's match on self.method applies
		// this uniformly across MOVED_PERMANENTLY, FOUND, and SEE_OTHER --
		// it is not a POST-only special case).
		if method != http.MethodGet && method != http.MethodHead {
			req.Method = http.MethodGet
			req.Body = http.NoBody
			req.ContentLength = 0
			req.GetBody = nil
			req.Header.Del("Content-Type")
			req.Header.Del("Content-Length")
			if ordered, ok := header.OrderedFromContext(req.Context()); ok {
				ordered.Del("Content-Type")
				ordered.Del("Content-Length")
			}
		}
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		// Method and body are preserved. The previous attempt consumed
		// prev.Body, so a fresh body is taken from GetBody when one is set.
		if prev.GetBody != nil {
			if body, err := prev.GetBody(); err == nil {
				req.Body = body
			}
		}
	}

	ordered, hasOrdered := header.OrderedFromContext(req.Context())

	if isCrossOrigin(prev.URL, next) {
		for _, h := range sensitiveHeaders {
			req.Header.Del(h)
			if hasOrdered {
				ordered.Del(h)
			}
		}
	}

	if ref := synthesizeReferer(prev.URL, next); ref != "" {
		req.Header.Set("Referer", ref)
		if hasOrdered {
			ordered.Set("Referer", ref)
		}
	} else {
		req.Header.Del("Referer")
		if hasOrdered {
			ordered.Del("Referer")
		}
	}

	return req
}

func isCrossOrigin(a, b *url.URL) bool {
	return !strings.EqualFold(a.Scheme, b.Scheme) ||
		!strings.EqualFold(a.Hostname(), b.Hostname()) ||
		a.Port() != b.Port()
}

// synthesizeReferer returns the Referer value to send on the request to
// next, given the page it was reached from: the previous URL with any
// userinfo and fragment stripped, or "" if downgrading from https to http
// (browsers never leak a Referer on an https->http hop).
func synthesizeReferer(prev, next *url.URL) string {
	if prev.Scheme == "https" && next.Scheme == "http" {
		return ""
	}
	stripped := *prev
	stripped.User = nil
	stripped.Fragment = ""
	return stripped.String()
}
