// Package middleware implements the Middleware Stack component of
// spec.md §4.6: a fixed-order chain of http.RoundTripper decorators ---
// timeout, config injection, retry, redirect, body timeout, decompression,
// cookie handling --- wrapped around a base sender.
//
// Grounded on the rust original's tower-layer composition (client.rs builds
// its Service by stacking tower::Layer values in a fixed order); Go has no
// tower, so this package uses the idiomatic Go analogue: a Layer is a
// func(http.RoundTripper) http.RoundTripper, and a Stack applies them
// inside-out the same way http.Handler middleware chains do (grounded on
// the net/http ecosystem convention the teacher's own dependency tree
// assumes throughout, e.g. how net/http.Client wraps a RoundTripper).
package middleware

import (
	"net/http"
	"time"
)

// Layer decorates a RoundTripper with additional behaviour.
type Layer func(next http.RoundTripper) http.RoundTripper

// Stack composes layers around base in the fixed order spec.md §4.1
// requires: total timeout (outermost), config injection, retry, redirect,
// body-read timeout, decompression, cookie handling, base sender
// (innermost). Layers are applied in that order by wrapping from the
// inside out, so the first layer in the slice ends up outermost.
func Stack(base http.RoundTripper, layers ...Layer) http.RoundTripper {
	rt := base
	for i := len(layers) - 1; i >= 0; i-- {
		rt = layers[i](rt)
	}
	return rt
}

// Default assembles the full eight-stage pipeline in spec.md §4.1's exact
// order: total timeout, config injection, retry, redirect, body-read
// timeout, decompression, cookie handling, then base is the innermost
// sender supplied by the caller (a pool- and codec-aware RoundTripper).
func Default(totalTimeout, bodyReadTimeout time.Duration, headers HeaderOptions, retry RetryOptions, redirect RedirectPolicy, jar CookieJar) []Layer {
	return []Layer{
		NewTotalTimeoutLayer(totalTimeout),
		NewConfigLayer(headers),
		NewRetryLayer(retry),
		NewRedirectLayer(redirect),
		NewBodyReadTimeoutLayer(bodyReadTimeout),
		NewDecompressionLayer(),
		NewCookieLayer(jar),
	}
}
