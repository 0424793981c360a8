package routing

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/net/proxy"

	"github.com/firasghr/browserclient/proxymatch"
)

// Router combines a Dialer with proxy awareness: given a destination and an
// optional Intercept describing how to reach it, it returns the connection
// a higher layer (TLS connector, HTTP/1 or HTTP/2 transport) can use
// directly.
type Router struct {
	Dial *Dialer
}

// NewRouter wraps dial for proxy-aware routing.
func NewRouter(dial *Dialer) *Router {
	return &Router{Dial: dial}
}

// Route connects to host:port, through intercept if non-nil, per spec.md
// §4.4's routing table: direct dial, HTTP CONNECT tunnel (optionally
// TLS-wrapped to the proxy itself for an https:// proxy URI), a SOCKS
// handshake, or a unix-domain-socket dial to a local proxy.
func (r *Router) Route(ctx context.Context, host string, port uint16, intercept *proxymatch.Intercept) (net.Conn, error) {
	if intercept == nil || intercept.Scheme == proxymatch.SchemeNone {
		return r.Dial.DialContext(ctx, host, port)
	}

	switch intercept.Scheme {
	case proxymatch.SchemeHTTP:
		return r.connectTunnel(ctx, intercept, host, port, false)
	case proxymatch.SchemeHTTPS:
		return r.connectTunnel(ctx, intercept, host, port, true)
	case proxymatch.SchemeSocks5, proxymatch.SchemeSocks5H:
		return r.socksDial(ctx, intercept, host, port)
	case proxymatch.SchemeSocks4, proxymatch.SchemeSocks4A:
		// golang.org/x/net/proxy implements only the SOCKS5 handshake;
		// spec.md §4.2 still models socks4/socks4a as distinct Intercept
		// variants (for matching configuration against rules written for
		// other clients), but this connector has nothing to dial them with.
		return nil, fmt.Errorf("routing: %v proxying is not supported by this build", intercept.Scheme)
	case proxymatch.SchemeUnix:
		return r.unixDial(ctx, intercept, host, port)
	default:
		return nil, fmt.Errorf("routing: unsupported intercept scheme %v", intercept.Scheme)
	}
}

// connectTunnel dials the proxy itself (optionally under TLS, for an
// https:// proxy URI) and issues an HTTP CONNECT request for host:port,
// returning the tunnel once the proxy answers 200.
func (r *Router) connectTunnel(ctx context.Context, intercept *proxymatch.Intercept, host string, port uint16, proxyTLS bool) (net.Conn, error) {
	proxyHost, proxyPort, err := net.SplitHostPort(intercept.Target)
	if err != nil {
		return nil, fmt.Errorf("routing: proxy target %q: %w", intercept.Target, err)
	}
	var pPort uint16
	if _, scanErr := fmt.Sscanf(proxyPort, "%d", &pPort); scanErr != nil {
		return nil, fmt.Errorf("routing: proxy port %q: %w", proxyPort, scanErr)
	}

	conn, err := r.Dial.DialContext(ctx, proxyHost, pPort)
	if err != nil {
		return nil, fmt.Errorf("routing: dial proxy %s: %w", intercept.Target, err)
	}

	if proxyTLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: proxyHost}) // #nosec G402 – ServerName fixed to proxy host
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("routing: TLS to proxy %s: %w", intercept.Target, err)
		}
		conn = tlsConn
	}

	target := net.JoinHostPort(host, fmt.Sprint(port))
	hdr := make(http.Header)
	if v, ok := intercept.Auth.HeaderValue(); ok {
		hdr.Set("Proxy-Authorization", v)
	}

	if err := writeConnectRequest(conn, target, hdr); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: write CONNECT to %s: %w", intercept.Target, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: read CONNECT response from %s: %w", intercept.Target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: proxy %s refused CONNECT: %s", intercept.Target, resp.Status)
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

func writeConnectRequest(conn net.Conn, target string, hdr http.Header) error {
	w := bufio.NewWriter(conn)
	fmt.Fprintf(w, "CONNECT %s HTTP/1.1\r\n", target)
	fmt.Fprintf(w, "Host: %s\r\n", target)
	for name, values := range hdr {
		for _, v := range values {
			fmt.Fprintf(w, "%s: %s\r\n", name, v)
		}
	}
	fmt.Fprint(w, "\r\n")
	return w.Flush()
}

// socksDial performs a SOCKS5 handshake to the proxy using
// golang.org/x/net/proxy, for both socks5 and socks5h intercepts; Route
// rejects socks4 and socks4a before reaching it.
func (r *Router) socksDial(ctx context.Context, intercept *proxymatch.Intercept, host string, port uint16) (net.Conn, error) {
	var auth *proxy.Auth
	if user, pass, ok := intercept.Auth.Credentials(); ok {
		auth = &proxy.Auth{User: user, Password: pass}
	}

	dialer, err := proxy.SOCKS5("tcp", intercept.Target, auth, contextDialerAdapter{r.Dial})
	if err != nil {
		return nil, fmt.Errorf("routing: configure SOCKS proxy %s: %w", intercept.Target, err)
	}
	target := net.JoinHostPort(host, fmt.Sprint(port))
	if ctxDialer, ok := dialer.(proxy.ContextDialer); ok {
		return ctxDialer.DialContext(ctx, "tcp", target)
	}
	return dialer.Dial("tcp", target)
}

// unixDial connects to a local proxy listening on a unix domain socket
// (Intercept.Target is a filesystem path) rather than a TCP/IP proxy.
func (r *Router) unixDial(ctx context.Context, intercept *proxymatch.Intercept, host string, port uint16) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", intercept.Target)
	if err != nil {
		return nil, fmt.Errorf("routing: dial unix proxy %s: %w", intercept.Target, err)
	}
	target := net.JoinHostPort(host, fmt.Sprint(port))
	if err := writeConnectRequest(conn, target, make(http.Header)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: write CONNECT over unix socket: %w", err)
	}
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: read CONNECT response over unix socket: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("routing: unix proxy refused CONNECT: %s", resp.Status)
	}
	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// contextDialerAdapter adapts this package's Dialer to x/net/proxy's
// Dialer interface so golang.org/x/net/proxy can use it to reach the SOCKS
// proxy itself (which is dialed directly, never through another proxy).
type contextDialerAdapter struct {
	d *Dialer
}

func (a contextDialerAdapter) Dial(network, addr string) (net.Conn, error) {
	return a.DialContext(context.Background(), network, addr)
}

func (a contextDialerAdapter) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, err
	}
	return a.d.DialContext(ctx, host, port)
}

// bufferedConn wraps a net.Conn whose bufio.Reader may still hold bytes the
// proxy sent ahead of the tunnel's first response byte (pipelined data
// immediately following "HTTP/1.1 200 Connection established").
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
