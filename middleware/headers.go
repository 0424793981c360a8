package middleware

import (
	"net/http"

	"github.com/firasghr/browserclient/header"
)

// HeaderOptions bundles the default headers an emulation profile wants
// applied to every outgoing request, and the OrigHeaderMap recording their
// exact wire casing/order.
type HeaderOptions struct {
	Defaults    *header.Ordered
	OrigHeaders *header.OrigHeaderMap
}

type headerRoundTripper struct {
	next http.RoundTripper
	opts HeaderOptions
}

// NewConfigLayer injects the emulation profile's default headers into
// every request that doesn't already set them (request-scoped headers
// always win over client-scoped defaults), then applies the recorded
// original casing/order so the wire serializer emits the exact spellings
// spec.md §4.1 requires. This is the "Config injection" stage of the fixed
// layer order.
func NewConfigLayer(opts HeaderOptions) Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &headerRoundTripper{next: next, opts: opts}
	}
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ordered, hasOrdered := header.OrderedFromContext(req.Context())
	if h.opts.Defaults != nil {
		for _, name := range h.opts.Defaults.Names() {
			if req.Header.Get(name) != "" {
				continue
			}
			for _, v := range h.opts.Defaults.Values(name) {
				req.Header.Add(name, v)
				if hasOrdered {
					ordered.Add(name, v)
				}
			}
		}
	}
	if hasOrdered {
		// ordered is the request's real insertion-order record (threaded
		// via context from Request.toHTTPRequest): apply recorded casing
		// in place, then resync req.Header from it so stdlib-shaped
		// readers downstream see the same spellings the wire writer will
		// use.
		if h.opts.OrigHeaders != nil {
			ordered.ApplyCasing(h.opts.OrigHeaders)
		}
		ordered.ApplyToRequest(req)
	} else if h.opts.OrigHeaders != nil {
		// No ordered context: this request was built outside
		// Request.toHTTPRequest (e.g. a raw *http.Request in a test).
		// Best-effort casing fixup only; true order can't be recovered
		// from req.Header's map.
		legacy := header.FromHTTPHeader(req.Header)
		h.opts.OrigHeaders.Apply(req, legacy)
	}
	return h.next.RoundTrip(req)
}
