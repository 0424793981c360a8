package middleware_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"testing"

	"github.com/firasghr/browserclient/middleware"
)

func TestCookieLayerInjectsAndStores(t *testing.T) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("new jar: %v", err)
	}

	inner := &staticRoundTripper{}
	rt := middleware.NewCookieLayer(jar)(inner)

	h := make(http.Header)
	h.Add("Set-Cookie", "session=abc; Path=/")
	inner.resp = &http.Response{StatusCode: 200, Header: h, Body: io.NopCloser(nopReaderAt{})}

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/a", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req2, _ := http.NewRequest(http.MethodGet, "https://example.com/b", nil)
	inner.resp = &http.Response{StatusCode: 200, Header: make(http.Header), Body: io.NopCloser(nopReaderAt{})}
	if _, err := rt.RoundTrip(req2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req2.Header.Get("Cookie") == "" {
		t.Fatal("expected the stored cookie to be injected on the second request")
	}
}

type nopReaderAt struct{}

func (nopReaderAt) Read(p []byte) (int, error) { return 0, io.EOF }
