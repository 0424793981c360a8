package middleware_test

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/firasghr/browserclient/middleware"
)

type fakeRoundTripper struct {
	responses []*http.Response
	errs      []error
	calls     int
	seenBody  [][]byte
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := f.calls
	f.calls++
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.seenBody = append(f.seenBody, b)
	} else {
		f.seenBody = append(f.seenBody, nil)
	}
	return f.responses[idx], f.errs[idx]
}

func mustRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://example.com/submit", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewBufferString(body)), nil
	}
	return req
}

func TestRetryLayerDoesNotRetryOnSuccess(t *testing.T) {
	fake := &fakeRoundTripper{
		responses: []*http.Response{{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil))}},
		errs:      []error{nil},
	}
	rt := middleware.NewRetryLayer(middleware.RetryOptions{})(fake)

	resp, err := rt.RoundTrip(mustRequest(t, "payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if fake.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", fake.calls)
	}
}

func TestRetryLayerRetriesOnClassifiedError(t *testing.T) {
	fake := &fakeRoundTripper{
		responses: []*http.Response{nil, {StatusCode: 200, Body: io.NopCloser(bytes.NewReader(nil))}},
		errs:      []error{errSentinel{}, nil},
	}
	opts := middleware.RetryOptions{
		MaxAttemptsPerRequest: 2,
		Classify:              func(resp *http.Response, err error) bool { return err != nil },
	}
	rt := middleware.NewRetryLayer(opts)(fake)

	resp, err := rt.RoundTrip(mustRequest(t, "payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected success on second attempt, got status %d", resp.StatusCode)
	}
	if fake.calls != 2 {
		t.Fatalf("expected two attempts, got %d", fake.calls)
	}
	for i, b := range fake.seenBody {
		if string(b) != "payload" {
			t.Fatalf("attempt %d: expected replayed body, got %q", i, b)
		}
	}
}

func TestRetryLayerStopsWhenBudgetExhausted(t *testing.T) {
	fake := &fakeRoundTripper{
		responses: []*http.Response{nil, nil},
		errs:      []error{errSentinel{}, errSentinel{}},
	}
	opts := middleware.RetryOptions{
		MaxAttemptsPerRequest: 5,
		Budget:                middleware.NewBudget(0, 0),
		Classify:              func(resp *http.Response, err error) bool { return err != nil },
	}
	rt := middleware.NewRetryLayer(opts)(fake)

	_, err := rt.RoundTrip(mustRequest(t, "payload"))
	if err == nil {
		t.Fatal("expected the sentinel error to surface once the budget is exhausted")
	}
	if fake.calls != 1 {
		t.Fatalf("expected only the initial attempt with a zero budget, got %d calls", fake.calls)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "sentinel failure" }
