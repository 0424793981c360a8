package client

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestNewResponseProjectsHTTPResponse(t *testing.T) {
	req, err := NewRequest("GET", "https://example.com/")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	u, _ := url.Parse("https://example.com/after-redirect")
	httpResp := &http.Response{
		StatusCode: 200,
		Proto:      "HTTP/2.0",
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader("body")),
		Request:    &http.Request{URL: u},
	}

	resp := newResponse(req, httpResp)
	if resp.Status != 200 {
		t.Errorf("got Status %d, want 200", resp.Status)
	}
	if resp.Proto != "HTTP/2.0" {
		t.Errorf("got Proto %q, want HTTP/2.0", resp.Proto)
	}
	if resp.FinalURL.String() != u.String() {
		t.Errorf("got FinalURL %q, want %q", resp.FinalURL, u)
	}
	if resp.Headers.Get("Content-Type") != "text/plain" {
		t.Error("expected Content-Type to survive the projection")
	}
	if resp.Request != req {
		t.Error("expected Request to be the original *Request")
	}
}

func TestResponseExtRoundTrip(t *testing.T) {
	resp := &Response{ext: newExtensions()}
	type remoteAddr string
	SetExt(resp, remoteAddr("203.0.113.1:443"))
	got, ok := GetExt[remoteAddr](resp)
	if !ok || got != "203.0.113.1:443" {
		t.Errorf("got (%v, %v), want (203.0.113.1:443, true)", got, ok)
	}
}

func TestResponseCloseWithNilBody(t *testing.T) {
	resp := &Response{}
	if err := resp.Close(); err != nil {
		t.Errorf("Close on a nil body should be a no-op, got %v", err)
	}
}
