package middleware

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/firasghr/browserclient/errs"
)

var errBodyReadTimeout = errs.New(errs.KindTimedOut, errTimedOutBody{})

type errTimedOutBody struct{}

func (errTimedOutBody) Error() string { return "middleware: body read timed out" }

// NewBodyReadTimeoutLayer bounds inactivity between successive body reads,
// per spec.md §4.1's layer 5, independent of (and sitting inside) the total
// timeout: a slow-loris response that keeps the connection open but stalls
// mid-body is caught here even when the total deadline is generous or
// disabled. A zero timeout disables the bound.
func NewBodyReadTimeoutLayer(timeout time.Duration) Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &bodyReadTimeoutRoundTripper{next: next, timeout: timeout}
	}
}

type bodyReadTimeoutRoundTripper struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (b *bodyReadTimeoutRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := b.next.RoundTrip(req)
	if err != nil || b.timeout <= 0 || resp.Body == nil {
		return resp, err
	}
	resp.Body = newBodyTimeout(resp.Body, b.timeout)
	return resp, nil
}

// bodyTimeoutReader wraps a response body so that each individual Read call
// resets an inactivity deadline: the read must make progress within the
// configured window. On timeout the underlying body is closed, since the
// caller has no further use for a stalled connection.
type bodyTimeoutReader struct {
	inner   io.ReadCloser
	timeout time.Duration
}

func newBodyTimeout(inner io.ReadCloser, timeout time.Duration) io.ReadCloser {
	return &bodyTimeoutReader{inner: inner, timeout: timeout}
}

func (b *bodyTimeoutReader) Read(p []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := b.inner.Read(p)
		ch <- result{n, err}
	}()
	select {
	case r := <-ch:
		return r.n, r.err
	case <-time.After(b.timeout):
		_ = b.inner.Close()
		return 0, errBodyReadTimeout
	}
}

func (b *bodyTimeoutReader) Close() error { return b.inner.Close() }

// wrapBodyCloseCancel ties cancel's lifetime to the body's Close, so the
// total-timeout layer's context is released once the caller is done with
// the response instead of only at the timeout's natural expiry.
func wrapBodyCloseCancel(inner io.ReadCloser, cancel context.CancelFunc) io.ReadCloser {
	return &closeCancelBody{inner: inner, cancel: cancel}
}

type closeCancelBody struct {
	inner  io.ReadCloser
	cancel context.CancelFunc
}

func (c *closeCancelBody) Read(p []byte) (int, error) { return c.inner.Read(p) }
func (c *closeCancelBody) Close() error {
	c.cancel()
	return c.inner.Close()
}
