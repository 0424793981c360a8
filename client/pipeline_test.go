package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firasghr/browserclient/header"
	"github.com/firasghr/browserclient/middleware"
)

func TestBuildPipelineAppliesDefaultHeaders(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	defaults := &header.Ordered{}
	defaults.Set("User-Agent", "browserclient-test/1.0")

	rt := buildPipeline(http.DefaultTransport, PipelineOptions{
		Headers: middleware.HeaderOptions{Defaults: defaults},
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if gotUA != "browserclient-test/1.0" {
		t.Errorf("got User-Agent %q, want browserclient-test/1.0", gotUA)
	}
}
