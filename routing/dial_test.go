package routing_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/firasghr/browserclient/resolve"
	"github.com/firasghr/browserclient/routing"
)

func TestDialerDialContextConnectsToLoopbackListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		close(accepted)
	}()

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	d := routing.NewDialer(&resolve.System{}, routing.TCPOptions{NoDelay: true}, routing.HappyEyeballsOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := d.DialContext(ctx, "127.0.0.1", port)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the connection")
	}
}

func TestDialerDialContextPropagatesResolveError(t *testing.T) {
	d := routing.NewDialer(failingResolver{}, routing.TCPOptions{}, routing.HappyEyeballsOptions{})
	_, err := d.DialContext(context.Background(), "nonexistent.invalid", 443)
	if err == nil {
		t.Fatal("expected an error when resolution fails")
	}
}

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	return nil, errors.New("resolve failed")
}
