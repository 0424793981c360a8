// Package resolve implements the DNS Resolver Adapter component of
// spec.md §4.1: a small seam between the connection layer and whatever
// actually turns a hostname into addresses, so callers can override
// resolution per-name (pinning, testing, split-horizon DNS) without
// touching the dialer.
//
// Grounded on the rust original's src/dns.rs, whose InternalResolve trait
// is a poll_ready/resolve pair wrapped around Tower's Service trait; Go has
// no Service trait to blanket-impl against, so the adapter is expressed
// directly as a context-aware Resolve interface, the same shape
// net.Resolver.LookupHost already has (grounded on the teacher's plain use
// of net.Dialer/net.Resolver throughout client/tls_dialer.go, which never
// reaches for a third-party resolver).
package resolve

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
)

// Addr is a resolved address plus the port the caller asked to connect to,
// bundled so callers of Resolve never need to re-join host/port strings.
type Addr struct {
	IP   netip.Addr
	Port uint16
}

func (a Addr) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprint(a.Port))
}

// Resolver turns a hostname into one or more addresses to try, in
// preference order. Implementations must be safe for concurrent use.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]netip.Addr, error)
}

// System resolves via the process's standard resolver (net.DefaultResolver
// unless overridden), the adapter's default per spec.md §4.1.
type System struct {
	// Inner is consulted for the actual lookup; nil uses net.DefaultResolver.
	Inner *net.Resolver
}

// Resolve implements Resolver.
func (s *System) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	r := s.Inner
	if r == nil {
		r = net.DefaultResolver
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}
	ips, err := r.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve: lookup %q: %w", host, err)
	}
	out := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok {
			out = append(out, addr.Unmap())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve: %q: no usable addresses", host)
	}
	return out, nil
}

// Overriding wraps an inner Resolver with a per-hostname override table:
// any host present in the table is answered directly, bypassing the inner
// resolver entirely — the DNS-pinning use case spec.md §4.1 calls out
// ("a user-supplied mapping used in place of actual resolution for
// specific names").
type Overriding struct {
	mu        sync.RWMutex
	overrides map[string][]netip.Addr
	Inner     Resolver
}

// NewOverriding returns an Overriding resolver delegating to inner for any
// host without an explicit override. A nil inner defaults to &System{}.
func NewOverriding(inner Resolver) *Overriding {
	if inner == nil {
		inner = &System{}
	}
	return &Overriding{overrides: make(map[string][]netip.Addr), Inner: inner}
}

// SetOverride pins host to addrs, replacing any previous override.
func (o *Overriding) SetOverride(host string, addrs ...netip.Addr) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overrides[host] = append([]netip.Addr(nil), addrs...)
}

// ClearOverride removes any pinned addresses for host, reverting to the
// inner resolver.
func (o *Overriding) ClearOverride(host string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.overrides, host)
}

// Resolve implements Resolver.
func (o *Overriding) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	o.mu.RLock()
	addrs, ok := o.overrides[host]
	o.mu.RUnlock()
	if ok {
		return append([]netip.Addr(nil), addrs...), nil
	}
	return o.Inner.Resolve(ctx, host)
}
