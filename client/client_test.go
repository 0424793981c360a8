package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGetAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo", r.Header.Get("X-Probe"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	req, err := NewRequest(http.MethodGet, srv.URL)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Headers.Set("X-Probe", "1")

	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Close()

	if resp.Status != http.StatusOK {
		t.Errorf("got Status %d, want 200", resp.Status)
	}
	if resp.Headers.Get("X-Echo") != "1" {
		t.Error("expected the server to echo X-Probe back as X-Echo")
	}

	total, success, failed, _ := c.Metrics().Snapshot()
	if total != 1 || success != 1 || failed != 0 {
		t.Errorf("got metrics (total=%d success=%d failed=%d), want (1,1,0)", total, success, failed)
	}
}

func TestClientPostSendsBodyAndContentType(t *testing.T) {
	var gotBody string
	var gotCT string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	resp, err := c.Post(context.Background(), srv.URL, "application/json", Reusable([]byte(`{"a":1}`)))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	defer resp.Close()

	if resp.Status != http.StatusCreated {
		t.Errorf("got Status %d, want 201", resp.Status)
	}
	if gotBody != `{"a":1}` {
		t.Errorf("got body %q, want {\"a\":1}", gotBody)
	}
	if gotCT != "application/json" {
		t.Errorf("got Content-Type %q, want application/json", gotCT)
	}
}

func TestClientDoRejectsUnsupportedScheme(t *testing.T) {
	c, err := NewClientBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	req, err := NewRequest(http.MethodGet, "ftp://example.com/")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := c.Do(context.Background(), req); err == nil {
		t.Fatal("expected an error for an ftp:// request")
	}
}
