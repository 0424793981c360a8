package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/net/http2"

	"github.com/firasghr/browserclient/errs"
)

// RetryScope controls which requests a RetryOptions applies to, grounded on
// the rust original's retry.rs Scope enum.
type RetryScope int

const (
	// ScopeUnscoped retries any eligible request regardless of host.
	ScopeUnscoped RetryScope = iota
	// ScopeHost retries only requests to the configured Host.
	ScopeHost
)

// Classifier decides whether a completed attempt (response or error)
// should be retried at all, before the budget/attempt-cap logic runs.
type Classifier func(resp *http.Response, err error) bool

// ProtocolNackClassifier retries only on the HTTP/2 "safe to retry"
// signals: a GOAWAY with error code NO_ERROR, or a stream reset with
// REFUSED_STREAM, both of which the peer sends specifically to say "this
// request was not processed, try again", per spec.md §4.6/RFC 7540 §8.1.4.
// This is the Policy::classify_fn(ProtocolNacks) default from retry.rs.
func ProtocolNackClassifier(resp *http.Response, err error) bool {
	if err == nil {
		return false
	}
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) {
		return goAway.ErrCode == http2.ErrCodeNo
	}
	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Code == http2.ErrCodeRefusedStream
	}
	return false
}

// RetryOptions configures the retry layer, grounded on retry.rs's Policy
// struct: an optional token budget, a per-request attempt cap, a scope,
// and a classifier.
type RetryOptions struct {
	// Budget, if non-nil, bounds the lifetime number of retries: an
	// initial grant plus ExtraPercent of successful requests observed so
	// far, mirroring retry.rs's token-bucket-like budget.
	Budget *Budget
	// MaxAttemptsPerRequest caps retries for a single request regardless
	// of budget; retry.rs defaults this to 2.
	MaxAttemptsPerRequest int
	Scope                 RetryScope
	Host                  string
	Classify              Classifier
	// OnRetry, if non-nil, is called once per attempt beyond the first,
	// letting a caller (e.g. package metrics) observe retry volume without
	// this layer depending on any particular metrics sink.
	OnRetry func()
}

// Budget is a shared, concurrency-safe retry token budget: Initial tokens
// are granted up front, and ExtraPercent of every successful request (a
// response with status below 500, or 501, on any attempt) mints additional
// tokens, so a client that is
// mostly succeeding earns headroom to retry its occasional failures without
// an unbounded retry storm during a real outage.
type Budget struct {
	initial      int64
	extraPercent float64
	available    int64
	successes    int64
}

// NewBudget returns a Budget starting with initial tokens, minting
// extraPercent/100 of a token per observed successful request.
func NewBudget(initial int, extraPercent float64) *Budget {
	return &Budget{initial: int64(initial), extraPercent: extraPercent, available: int64(initial)}
}

// tryWithdraw attempts to spend one retry token, returning whether one was
// available.
func (b *Budget) tryWithdraw() bool {
	if b == nil {
		return true
	}
	for {
		cur := atomic.LoadInt64(&b.available)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.available, cur, cur-1) {
			return true
		}
	}
}

// recordSuccess mints ExtraPercent/100 tokens per successful request,
// accumulating fractional credit across calls so low percentages still
// eventually grant a token.
func (b *Budget) recordSuccess() {
	if b == nil || b.extraPercent <= 0 {
		return
	}
	total := atomic.AddInt64(&b.successes, 1)
	prev := int64(float64(total-1) * b.extraPercent / 100)
	granted := int64(float64(total) * b.extraPercent / 100)
	if granted > prev {
		atomic.AddInt64(&b.available, granted-prev)
	}
}

type retryRoundTripper struct {
	next http.RoundTripper
	opts RetryOptions
}

// NewRetryLayer applies opts. A zero-value RetryOptions.Classify defaults
// to ProtocolNackClassifier and MaxAttemptsPerRequest defaults to 2, both
// matching retry.rs's Policy::default().
func NewRetryLayer(opts RetryOptions) Layer {
	if opts.Classify == nil {
		opts.Classify = ProtocolNackClassifier
	}
	if opts.MaxAttemptsPerRequest <= 0 {
		opts.MaxAttemptsPerRequest = 2
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return &retryRoundTripper{next: next, opts: opts}
	}
}

func (rt *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.opts.Scope == ScopeHost && !strings.EqualFold(req.URL.Hostname(), rt.opts.Host) {
		return rt.next.RoundTrip(req)
	}

	bodyBytes, reusable, err := bufferBody(req)
	if err != nil {
		return nil, errs.New(errs.KindBody, err)
	}

	var lastResp *http.Response
	var lastErr error
	for attempt := 1; attempt <= 1+rt.opts.MaxAttemptsPerRequest; attempt++ {
		if attempt > 1 {
			if !reusable {
				break
			}
			if !rt.opts.Budget.tryWithdraw() {
				break
			}
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
			if rt.opts.OnRetry != nil {
				rt.opts.OnRetry()
			}
		}

		resp, err := rt.next.RoundTrip(req)
		if err == nil && (resp.StatusCode < 500 || resp.StatusCode == http.StatusNotImplemented) {
			rt.opts.Budget.recordSuccess()
			return resp, nil
		}
		lastResp, lastErr = resp, err
		if !rt.opts.Classify(resp, err) {
			break
		}
	}
	return lastResp, lastErr
}

// bufferBody reads req.Body fully (if any) so it can be replayed on retry,
// reporting whether the body was present/replayable at all. A GetBody
// closure, if the caller set one, is preferred over a raw read.
func bufferBody(req *http.Request) ([]byte, bool, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, true, nil
	}
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, false, err
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	}
	b, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, false, err
	}
	req.Body = io.NopCloser(bytes.NewReader(b))
	return b, true, nil
}
