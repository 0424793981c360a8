package routing_test

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/firasghr/browserclient/proxymatch"
	"github.com/firasghr/browserclient/resolve"
	"github.com/firasghr/browserclient/routing"
)

// fakeConnectProxy listens once, reads a CONNECT request, replies 200, then
// echoes whatever it receives back to the caller so the test can verify
// bytes flow through the tunnel end to end.
func fakeConnectProxy(t *testing.T) (addr string, done <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ch := make(chan string, 1)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		ch <- req.Host

		fmt.Fprint(conn, "HTTP/1.1 200 Connection established\r\n\r\n")
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	}()
	return ln.Addr().String(), ch
}

func TestConnectTunnelEstablishesAndRelaysBytes(t *testing.T) {
	proxyAddr, seenHost := fakeConnectProxy(t)

	d := routing.NewDialer(&resolve.System{}, routing.TCPOptions{}, routing.HappyEyeballsOptions{})
	router := routing.NewRouter(d)

	intercept := &proxymatch.Intercept{Scheme: proxymatch.SchemeHTTP, Target: proxyAddr}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := router.Route(ctx, "target.example", 443, intercept)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()

	select {
	case host := <-seenHost:
		if host != "target.example:443" {
			t.Fatalf("unexpected CONNECT host %q", host)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("proxy never observed a CONNECT request")
	}

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("expected echoed bytes, got %q", buf)
	}
}

func TestRouteWithNilInterceptDialsDirect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	d := routing.NewDialer(&resolve.System{}, routing.TCPOptions{}, routing.HappyEyeballsOptions{})
	router := routing.NewRouter(d)

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := router.Route(ctx, "127.0.0.1", port, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn.Close()
}
