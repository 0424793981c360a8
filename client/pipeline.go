package client

import (
	"net/http"
	"time"

	"github.com/firasghr/browserclient/middleware"
)

// PipelineOptions configures the eight-stage middleware chain spec.md §4.1
// composes around the base sender.
type PipelineOptions struct {
	TotalTimeout    time.Duration
	BodyReadTimeout time.Duration
	Headers         middleware.HeaderOptions
	Retry           middleware.RetryOptions
	Redirect        middleware.RedirectPolicy
	Jar             middleware.CookieJar
}

// buildPipeline wraps base in the fixed layer order middleware.Default
// specifies, returning the composed http.RoundTripper Client.Do invokes.
func buildPipeline(base http.RoundTripper, opts PipelineOptions) http.RoundTripper {
	layers := middleware.Default(opts.TotalTimeout, opts.BodyReadTimeout, opts.Headers, opts.Retry, opts.Redirect, opts.Jar)
	return middleware.Stack(base, layers...)
}
