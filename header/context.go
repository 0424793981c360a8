package header

import "context"

// ctxKey is the context key an *Ordered travels on from Request
// construction down through every middleware layer to the wire writer, so
// a header added mid-pipeline (a client-wide default, an injected Cookie,
// an Accept-Encoding negotiation) lands in the same ordered record as the
// headers set at build time, instead of being reconstructed from
// net/http.Header's unordered map at the last moment.
type ctxKey struct{}

// WithOrderedContext attaches ordered to ctx. Layers downstream that call
// OrderedFromContext observe and can mutate the same *Ordered, so wire
// order survives the whole middleware stack.
func WithOrderedContext(ctx context.Context, ordered *Ordered) context.Context {
	return context.WithValue(ctx, ctxKey{}, ordered)
}

// OrderedFromContext returns the *Ordered attached by WithOrderedContext, if
// any. A caller that gets ok == false is talking to a request built outside
// this package's Request/toHTTPRequest path (e.g. a raw *http.Request in a
// unit test) and should fall back to best-effort ordering.
func OrderedFromContext(ctx context.Context) (*Ordered, bool) {
	ordered, ok := ctx.Value(ctxKey{}).(*Ordered)
	return ordered, ok
}
