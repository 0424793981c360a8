package client

import (
	"bufio"
	"bytes"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/firasghr/browserclient/header"
)

// TestWriteH1RequestPreservesWireOrderAndCasing writes a request directly
// to a buffer and inspects the literal bytes, not a reconstructed
// http.Header map: net/http.Header.writeSubset always sorts header keys
// alphabetically regardless of insertion order, so a test that round-trips
// through http.Header (as an httptest.Server handler's req.Header would)
// can never catch a regression here.
func TestWriteH1RequestPreservesWireOrderAndCasing(t *testing.T) {
	ordered := &header.Ordered{}
	ordered.Add("sec-ch-ua-platform", `"Linux"`)
	ordered.Add("Accept-Language", "en-US,en;q=0.9")
	ordered.Add("X-Custom-Header", "zzz-should-not-be-sorted-first")
	ordered.Add("accept", "*/*")

	req, err := http.NewRequest(http.MethodGet, "http://example.com/path?q=1", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req = req.WithContext(header.WithOrderedContext(req.Context(), ordered))

	var buf bytes.Buffer
	if err := writeH1Request(&buf, req); err != nil {
		t.Fatalf("writeH1Request: %v", err)
	}

	lines := strings.Split(buf.String(), "\r\n")
	if lines[0] != "GET /path?q=1 HTTP/1.1" {
		t.Fatalf("got request line %q", lines[0])
	}

	// Alphabetical order would read Accept-Language, X-Custom-Header,
	// accept, sec-ch-ua-platform; the recorded insertion order must survive
	// instead, with Host appended afterward since it was never set
	// explicitly.
	want := []string{
		`sec-ch-ua-platform: "Linux"`,
		"Accept-Language: en-US,en;q=0.9",
		"X-Custom-Header: zzz-should-not-be-sorted-first",
		"accept: */*",
		"Host: example.com",
	}
	got := lines[1 : 1+len(want)]
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("header line %d: got %q, want %q\nfull output:\n%s", i, got[i], want[i], buf.String())
		}
	}
}

// TestWriteH1RequestOverRealConnReadsBackInOrder writes through a net.Pipe
// (a real net.Conn, not a bytes.Buffer) and reads the raw bytes back on
// the other end with bufio.Reader, the same way roundTripH1Conn's peer
// would see them -- proving the order survives an actual net.Conn.Write,
// not just in-memory byte assembly.
func TestWriteH1RequestOverRealConnReadsBackInOrder(t *testing.T) {
	ordered := &header.Ordered{}
	ordered.Add("Z-First", "1")
	ordered.Add("A-Second", "2")

	req, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req = req.WithContext(header.WithOrderedContext(req.Context(), ordered))

	client, server := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- writeH1Request(client, req) }()

	br := bufio.NewReader(server)
	line, err := br.ReadString('\n')
	if err != nil || strings.TrimRight(line, "\r\n") != "GET / HTTP/1.1" {
		t.Fatalf("got request line %q, err %v", line, err)
	}
	first, _ := br.ReadString('\n')
	second, _ := br.ReadString('\n')
	if got := strings.TrimRight(first, "\r\n"); got != "Z-First: 1" {
		t.Fatalf("got first header %q, want Z-First: 1", got)
	}
	if got := strings.TrimRight(second, "\r\n"); got != "A-Second: 2" {
		t.Fatalf("got second header %q, want A-Second: 2 (alphabetical sort would invert these)", got)
	}

	_ = client.Close()
	_ = server.Close()
	<-done
}
