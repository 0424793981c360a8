// Package routing implements the Connection Routing component of spec.md
// §4.4: given a destination and an optional Intercept, establish the
// underlying transport-level connection — direct, happy-eyeballs dual
// stack, via an HTTP CONNECT tunnel, via a SOCKS5 handshake, or over a unix
// domain socket — and apply the caller's low-level socket tuning. SOCKS4
// and SOCKS4a intercepts are rejected with an error.
//
// Grounded on the teacher's client/tls_dialer.go (plain net.Dialer use)
// generalized with: happy-eyeballs dual-family racing per RFC 6555 (not
// present in the teacher, newly written in its idiom); SOCKS5/5h via
// golang.org/x/net/proxy (already part of the teacher's golang.org/x/net
// dependency tree, which x/net/http2 pulls in); and socket-level tuning via
// golang.org/x/sys/unix Setsockopt calls reached through net.Dialer.Control,
// grounded on the teacher's go.mod indirect dependency on golang.org/x/sys.
package routing

import (
	"net"
	"time"
)

// TCPOptions configures low-level socket behaviour applied to every TCP
// connection this package dials, per spec.md §4.4's "connection tuning"
// parameters.
type TCPOptions struct {
	NoDelay           bool
	KeepAlive         bool
	KeepAliveInterval time.Duration
	// UserTimeoutMillis sets TCP_USER_TIMEOUT (Linux) on the socket, if
	// non-zero: how long transmitted data may remain unacknowledged before
	// the kernel force-closes the connection.
	UserTimeoutMillis int
	// BindToDevice binds the socket to a named network interface via
	// SO_BINDTODEVICE (Linux only; silently ignored on other platforms).
	BindToDevice string
	// LocalAddr, if set, is used as the dialer's local address.
	LocalAddr net.Addr
}

// HappyEyeballsOptions tunes the RFC 6555 dual-stack race.
type HappyEyeballsOptions struct {
	// FallbackDelay is how long to wait after starting the primary-family
	// attempt before also starting the secondary-family attempt. Zero uses
	// the spec default of 300ms.
	FallbackDelay time.Duration
	// PreferIPv6 controls which family is tried first; the default (false)
	// prefers IPv4 first, matching net.Dialer's own default preference.
	PreferIPv6 bool
}

func (o HappyEyeballsOptions) fallbackDelay() time.Duration {
	if o.FallbackDelay > 0 {
		return o.FallbackDelay
	}
	return 300 * time.Millisecond
}
