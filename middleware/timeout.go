package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/firasghr/browserclient/errs"
)

// NewTotalTimeoutLayer bounds the entire pipeline's run time, from the
// request entering the outermost layer to the response body finishing, per
// spec.md §4.1's layer 1 ("Total timeout (aborts the whole future)"). This
// sits outside retry and redirect, so retries/redirects share one deadline
// instead of each getting their own. A zero total disables the bound.
func NewTotalTimeoutLayer(total time.Duration) Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &totalTimeoutRoundTripper{next: next, total: total}
	}
}

type totalTimeoutRoundTripper struct {
	next  http.RoundTripper
	total time.Duration
}

func (t *totalTimeoutRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.total <= 0 {
		return t.next.RoundTrip(req)
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.total)
	req = req.WithContext(ctx)

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, errs.New(errs.KindTimedOut, fmt.Errorf("total request timeout after %s: %w", t.total, ctx.Err()))
		}
		return nil, err
	}
	resp.Body = wrapBodyCloseCancel(resp.Body, cancel)
	return resp, nil
}
