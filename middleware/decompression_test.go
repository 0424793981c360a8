package middleware_test

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"testing"

	"github.com/firasghr/browserclient/middleware"
)

type staticRoundTripper struct {
	resp *http.Response
	req  *http.Request
}

func (s *staticRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	s.req = req
	return s.resp, nil
}

func TestDecompressionLayerSetsAcceptEncodingWhenAbsent(t *testing.T) {
	inner := &staticRoundTripper{resp: &http.Response{StatusCode: 200, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader(nil))}}
	rt := middleware.NewDecompressionLayer()(inner)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	if _, err := rt.RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.req.Header.Get("Accept-Encoding") == "" {
		t.Fatal("expected Accept-Encoding to be injected")
	}
}

func TestDecompressionLayerDecodesGzipBody(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("hello world"))
	gz.Close()

	h := make(http.Header)
	h.Set("Content-Encoding", "gzip")
	inner := &staticRoundTripper{resp: &http.Response{StatusCode: 200, Header: h, Body: io.NopCloser(&buf)}}
	rt := middleware.NewDecompressionLayer()(inner)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read decoded body: %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("unexpected decoded body: %q", body)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Fatal("expected Content-Encoding to be stripped after decoding")
	}
}

func TestDecompressionLayerLeavesIdentityBodyAlone(t *testing.T) {
	h := make(http.Header)
	inner := &staticRoundTripper{resp: &http.Response{StatusCode: 200, Header: h, Body: io.NopCloser(bytes.NewBufferString("plain"))}}
	rt := middleware.NewDecompressionLayer()(inner)

	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "plain" {
		t.Fatalf("unexpected body: %q", body)
	}
}
