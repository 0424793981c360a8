package routing

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/firasghr/browserclient/resolve"
)

// Dialer establishes the underlying connection for a destination,
// performing DNS resolution through an attached resolve.Resolver and
// racing address families per RFC 6555 when more than one family resolves.
type Dialer struct {
	Resolver resolve.Resolver
	TCP      TCPOptions
	HE       HappyEyeballsOptions
}

// NewDialer returns a Dialer using resolver for name resolution. A nil
// resolver defaults to &resolve.System{}.
func NewDialer(resolver resolve.Resolver, tcp TCPOptions, he HappyEyeballsOptions) *Dialer {
	if resolver == nil {
		resolver = &resolve.System{}
	}
	return &Dialer{Resolver: resolver, TCP: tcp, HE: he}
}

// DialContext resolves host and connects to host:port, applying happy
// eyeballs if resolution yields both address families, then applies the
// dialer's TCPOptions to the winning connection.
func (d *Dialer) DialContext(ctx context.Context, host string, port uint16) (net.Conn, error) {
	addrs, err := d.Resolver.Resolve(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("routing: resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("routing: resolve %q: no addresses", host)
	}

	ordered := orderByFamily(addrs, d.HE.PreferIPv6)
	conn, err := d.happyEyeballsDial(ctx, ordered, port)
	if err != nil {
		return nil, err
	}
	d.applyTCPOptions(conn)
	return conn, nil
}

// orderByFamily groups addrs by preferred family first, preserving
// resolution order within each group (spec.md §4.4: "addresses are tried
// in the order returned by resolution, partitioned by family").
func orderByFamily(addrs []netip.Addr, preferIPv6 bool) []netip.Addr {
	var first, second []netip.Addr
	for _, a := range addrs {
		if a.Is4() != preferIPv6 {
			first = append(first, a)
		} else {
			second = append(second, a)
		}
	}
	return append(first, second...)
}

// happyEyeballsDial starts a connection attempt to the first address
// immediately, then — if it hasn't succeeded or failed within the fallback
// delay — starts a second attempt to the first address of the other family
// (if any) concurrently, keeping whichever succeeds first and discarding
// the loser.
func (d *Dialer) happyEyeballsDial(ctx context.Context, addrs []netip.Addr, port uint16) (net.Conn, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("routing: no addresses to dial")
	}
	if len(addrs) == 1 {
		return d.dialOne(ctx, addrs[0], port)
	}

	primaryFamilyIsV4 := addrs[0].Is4()
	var secondary netip.Addr
	haveSecondary := false
	for _, a := range addrs[1:] {
		if a.Is4() != primaryFamilyIsV4 {
			secondary = a
			haveSecondary = true
			break
		}
	}
	if !haveSecondary {
		return d.dialSequential(ctx, addrs, port)
	}

	primaryCh := make(chan dialResult, 1)
	secondaryCh := make(chan dialResult, 1)

	go func() {
		c, err := d.dialOne(ctx, addrs[0], port)
		primaryCh <- dialResult{c, err}
	}()

	timer := time.NewTimer(d.HE.fallbackDelay())
	defer timer.Stop()

	var primaryDone, secondaryDone bool
	var primaryRes, secondaryRes dialResult
	secondaryStarted := false

	for {
		select {
		case r := <-primaryCh:
			primaryDone = true
			primaryRes = r
			if r.err == nil {
				if secondaryStarted && !secondaryDone {
					go drainAndClose(secondaryCh)
				}
				return r.conn, nil
			}
			if !secondaryStarted {
				secondaryStarted = true
				go func() {
					c, err := d.dialOne(ctx, secondary, port)
					secondaryCh <- dialResult{c, err}
				}()
			}
			if secondaryDone {
				return chooseResult(primaryRes, secondaryRes)
			}
		case <-timer.C:
			if !secondaryStarted {
				secondaryStarted = true
				go func() {
					c, err := d.dialOne(ctx, secondary, port)
					secondaryCh <- dialResult{c, err}
				}()
			}
		case r := <-secondaryCh:
			secondaryDone = true
			secondaryRes = r
			if r.err == nil {
				if !primaryDone {
					go drainAndClose(primaryCh)
				}
				return r.conn, nil
			}
			if primaryDone {
				return chooseResult(primaryRes, secondaryRes)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// dialResult carries one dial attempt's outcome across goroutines in the
// happy-eyeballs race.
type dialResult struct {
	conn net.Conn
	err  error
}

func chooseResult(a, b dialResult) (net.Conn, error) {
	if a.err == nil {
		return a.conn, nil
	}
	if b.err == nil {
		return b.conn, nil
	}
	return nil, fmt.Errorf("routing: all addresses failed: %w, %w", a.err, b.err)
}

func drainAndClose(ch chan dialResult) {
	r := <-ch
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

// dialSequential is used when resolution yielded only one address family:
// no race is possible, so addresses are tried strictly in order.
func (d *Dialer) dialSequential(ctx context.Context, addrs []netip.Addr, port uint16) (net.Conn, error) {
	var lastErr error
	for _, a := range addrs {
		conn, err := d.dialOne(ctx, a, port)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("routing: all addresses failed: %w", lastErr)
}

func (d *Dialer) dialOne(ctx context.Context, addr netip.Addr, port uint16) (net.Conn, error) {
	nd := &net.Dialer{Control: controlFunc(d.TCP)}
	if d.TCP.LocalAddr != nil {
		nd.LocalAddr = d.TCP.LocalAddr
	}
	address := net.JoinHostPort(addr.String(), fmt.Sprint(port))
	return nd.DialContext(ctx, "tcp", address)
}

func (d *Dialer) applyTCPOptions(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcpConn.SetNoDelay(d.TCP.NoDelay)
	if d.TCP.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
		if d.TCP.KeepAliveInterval > 0 {
			_ = tcpConn.SetKeepAlivePeriod(d.TCP.KeepAliveInterval)
		}
	}
}
