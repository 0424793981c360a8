package resolve_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/firasghr/browserclient/resolve"
)

func TestSystemResolveParsesIPLiteralWithoutLookup(t *testing.T) {
	s := &resolve.System{}
	addrs, err := s.Resolve(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "127.0.0.1" {
		t.Fatalf("unexpected addrs: %+v", addrs)
	}
}

func TestOverridingResolverPrefersOverride(t *testing.T) {
	inner := &recordingResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.9")}}
	o := resolve.NewOverriding(inner)
	o.SetOverride("pinned.test", netip.MustParseAddr("203.0.113.7"))

	addrs, err := o.Resolve(context.Background(), "pinned.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(addrs) != 1 || addrs[0].String() != "203.0.113.7" {
		t.Fatalf("expected override address, got %+v", addrs)
	}
	if inner.called {
		t.Fatal("inner resolver must not be consulted for a pinned host")
	}
}

func TestOverridingResolverFallsBackToInner(t *testing.T) {
	inner := &recordingResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.9")}}
	o := resolve.NewOverriding(inner)

	addrs, err := o.Resolve(context.Background(), "unpinned.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inner.called {
		t.Fatal("expected inner resolver to be consulted")
	}
	if len(addrs) != 1 || addrs[0].String() != "10.0.0.9" {
		t.Fatalf("unexpected addrs: %+v", addrs)
	}
}

func TestOverridingResolverClearOverride(t *testing.T) {
	inner := &recordingResolver{addrs: []netip.Addr{netip.MustParseAddr("10.0.0.9")}}
	o := resolve.NewOverriding(inner)
	o.SetOverride("host.test", netip.MustParseAddr("203.0.113.7"))
	o.ClearOverride("host.test")

	addrs, err := o.Resolve(context.Background(), "host.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inner.called || addrs[0].String() != "10.0.0.9" {
		t.Fatal("expected fallback to inner resolver after ClearOverride")
	}
}

type recordingResolver struct {
	called bool
	addrs  []netip.Addr
}

func (r *recordingResolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	r.called = true
	return r.addrs, nil
}
