// Package proxymatch implements the Proxy Matcher component of spec.md §4.2:
// given a request's scheme/host, decide whether and through what kind of
// proxy it should be routed, honouring the usual ALL_PROXY/HTTP_PROXY/
// HTTPS_PROXY/NO_PROXY environment conventions plus explicit overrides.
//
// Grounded on the teacher's proxy/proxy.go, repurposed here from
// round-robin rotation across a fixed proxy list to per-destination
// matching against configured/env-derived rules, and on the rust
// original's src/proxy/matcher.rs (Matcher/Intercept/Auth/NoProxy), whose
// NoProxy matching rules (exact IP, CIDR, domain suffix, leading-dot
// wildcard) this package reproduces using net.ParseCIDR from the standard
// library instead of a third-party CIDR crate: the pack carries no IP-range
// library beyond what net already provides, so reaching past the standard
// library here would add a dependency with no grounded counterpart in the
// corpus (documented in DESIGN.md).
package proxymatch

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Scheme identifies the kind of proxy connection to establish for an
// intercepted request, per spec.md §4.2's Intercept variants.
type Scheme int

const (
	// SchemeNone means the request must be sent directly, bypassing any
	// configured proxy (a NO_PROXY match).
	SchemeNone Scheme = iota
	SchemeHTTP
	SchemeHTTPS
	SchemeSocks4
	SchemeSocks4A
	SchemeSocks5
	SchemeSocks5H
	SchemeUnix
)

func (s Scheme) String() string {
	switch s {
	case SchemeNone:
		return "none"
	case SchemeHTTP:
		return "http"
	case SchemeHTTPS:
		return "https"
	case SchemeSocks4:
		return "socks4"
	case SchemeSocks4A:
		return "socks4a"
	case SchemeSocks5:
		return "socks5"
	case SchemeSocks5H:
		return "socks5h"
	case SchemeUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// Auth carries proxy authentication, distinguishing "no credentials" from
// "send this literal header value" so a caller-supplied Proxy-Authorization
// value is never re-encoded.
type Auth struct {
	kind  authKind
	user  string
	pass  string
	raw   string // full header value, for kind == authRaw
}

type authKind int

const (
	authNone authKind = iota
	authBasic
	authRaw
)

// BasicAuth returns an Auth that sends HTTP Basic credentials.
func BasicAuth(user, pass string) Auth { return Auth{kind: authBasic, user: user, pass: pass} }

// RawAuth returns an Auth that sends header exactly as the
// Proxy-Authorization value, unmodified.
func RawAuth(header string) Auth { return Auth{kind: authRaw, raw: header} }

// HeaderValue returns the Proxy-Authorization value to send, and whether
// any credentials are configured at all.
func (a Auth) HeaderValue() (string, bool) {
	switch a.kind {
	case authBasic:
		token := basicToken(a.user, a.pass)
		return "Basic " + token, true
	case authRaw:
		return a.raw, a.raw != ""
	default:
		return "", false
	}
}

func basicToken(user, pass string) string {
	return base64StdEncode(user + ":" + pass)
}

// Credentials returns the username/password pair for a BasicAuth, and
// whether this Auth carries one at all (false for RawAuth and the zero
// value, since SOCKS auth has no concept of an opaque header string).
func (a Auth) Credentials() (user, pass string, ok bool) {
	if a.kind != authBasic {
		return "", "", false
	}
	return a.user, a.pass, true
}

// Intercept describes the proxy a matched request must be routed through.
type Intercept struct {
	Scheme Scheme
	// Target is the proxy's own address: "host:port" for HTTP/SOCKS
	// schemes, or a filesystem path for SchemeUnix.
	Target string
	Auth   Auth
}

// NoProxy holds the parsed form of a NO_PROXY value: a set of literal IPs
// and CIDR blocks, plus a set of domain suffixes (leading-dot entries match
// only as suffixes, per curl/wget convention; bare entries match both the
// exact host and any subdomain).
type NoProxy struct {
	ips     []net.IP
	cidrs   []*net.IPNet
	domains []string
}

// ParseNoProxy parses a comma-or-whitespace separated NO_PROXY value.
func ParseNoProxy(raw string) *NoProxy {
	np := &NoProxy{}
	for _, field := range splitNoProxy(raw) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if field == "*" {
			np.domains = append(np.domains, "*")
			continue
		}
		if ip := net.ParseIP(field); ip != nil {
			np.ips = append(np.ips, ip)
			continue
		}
		if _, cidr, err := net.ParseCIDR(field); err == nil {
			np.cidrs = append(np.cidrs, cidr)
			continue
		}
		np.domains = append(np.domains, strings.ToLower(field))
	}
	return np
}

func splitNoProxy(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}

// Matches reports whether host (and, for IP-literal hosts, its parsed IP)
// falls under any NO_PROXY rule.
func (np *NoProxy) Matches(host string) bool {
	if np == nil {
		return false
	}
	for _, d := range np.domains {
		if d == "*" {
			return true
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, candidate := range np.ips {
			if candidate.Equal(ip) {
				return true
			}
		}
		for _, cidr := range np.cidrs {
			if cidr.Contains(ip) {
				return true
			}
		}
		return false
	}
	lower := strings.ToLower(host)
	for _, d := range np.domains {
		if d == lower {
			return true
		}
		if strings.HasPrefix(d, ".") && strings.HasSuffix(lower, d) {
			return true
		}
		if !strings.HasPrefix(d, ".") && strings.HasSuffix(lower, "."+d) {
			return true
		}
	}
	return false
}

// Matcher decides, per-request, which Intercept (if any) applies. A nil
// field means "no proxy configured for this case".
type Matcher struct {
	HTTP  *Intercept
	HTTPS *Intercept
	Unix  *Intercept
	No    *NoProxy
}

// FromEnv builds a Matcher from the conventional environment variables:
// ALL_PROXY/all_proxy, HTTP_PROXY/http_proxy, HTTPS_PROXY/https_proxy,
// NO_PROXY/no_proxy. Per spec.md §4.2/§6, the presence of REQUEST_METHOD
// (the CGI indicator) disables all proxying from the environment, since an
// attacker-controlled "Proxy:" request header can otherwise be smuggled
// into HTTP_PROXY by a misconfigured CGI runtime.
func FromEnv() (*Matcher, error) {
	if _, isCGI := os.LookupEnv("REQUEST_METHOD"); isCGI {
		return &Matcher{}, nil
	}

	all := firstEnv("ALL_PROXY", "all_proxy")
	httpProxy := firstEnv("HTTP_PROXY", "http_proxy")
	httpsProxy := firstEnv("HTTPS_PROXY", "https_proxy")
	noProxy := firstEnv("NO_PROXY", "no_proxy")

	if httpProxy == "" {
		httpProxy = all
	}
	if httpsProxy == "" {
		httpsProxy = all
	}

	m := &Matcher{}
	if httpProxy != "" {
		ic, err := ParseIntercept(httpProxy)
		if err != nil {
			return nil, fmt.Errorf("proxymatch: HTTP_PROXY: %w", err)
		}
		m.HTTP = ic
	}
	if httpsProxy != "" {
		ic, err := ParseIntercept(httpsProxy)
		if err != nil {
			return nil, fmt.Errorf("proxymatch: HTTPS_PROXY: %w", err)
		}
		m.HTTPS = ic
	}
	if noProxy != "" {
		m.No = ParseNoProxy(noProxy)
	}
	return m, nil
}

// FromFile builds a Matcher whose HTTP and HTTPS intercepts both point at
// the first usable proxy address in a newline-delimited file, in the same
// file format the teacher's proxy.ProxyManager.LoadProxies read (blank
// lines and lines starting with '#' are skipped). Unlike the teacher's
// round-robin rotation across every line, a Matcher names one proxy per
// scheme; operators who need rotation run one Client per proxy line.
func FromFile(filename string) (*Matcher, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is an operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("proxymatch: open %q: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ic, err := ParseIntercept(line)
		if err != nil {
			return nil, fmt.Errorf("proxymatch: parsing %q: %w", line, err)
		}
		return &Matcher{HTTP: ic, HTTPS: ic}, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("proxymatch: reading %q: %w", filename, err)
	}
	return &Matcher{}, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok && v != "" {
			return v
		}
	}
	return ""
}

// ParseIntercept parses a proxy URI of the form
// "scheme://[user:pass@]host:port" (or a bare filesystem path for a unix
// proxy, given as "unix:///path/to/socket") into an Intercept.
func ParseIntercept(raw string) (*Intercept, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy URI %q: %w", raw, err)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "http":
		scheme = SchemeHTTP
	case "https":
		scheme = SchemeHTTPS
	case "socks4":
		scheme = SchemeSocks4
	case "socks4a":
		scheme = SchemeSocks4A
	case "socks5":
		scheme = SchemeSocks5
	case "socks5h":
		scheme = SchemeSocks5H
	case "unix":
		scheme = SchemeUnix
	default:
		return nil, fmt.Errorf("proxymatch: unsupported proxy scheme %q", u.Scheme)
	}

	ic := &Intercept{Scheme: scheme}
	if scheme == SchemeUnix {
		ic.Target = u.Path
		return ic, nil
	}
	ic.Target = u.Host
	if u.User != nil {
		pass, _ := u.User.Password()
		ic.Auth = BasicAuth(u.User.Username(), pass)
	}
	return ic, nil
}

// Intercept returns the Intercept that applies to a request for scheme and
// host, and whether any proxying applies at all. A false result means
// "connect directly".
func (m *Matcher) Intercept(scheme, host string) (*Intercept, bool) {
	if m == nil {
		return nil, false
	}
	if m.No.Matches(host) {
		return nil, false
	}
	switch strings.ToLower(scheme) {
	case "https":
		if m.HTTPS != nil {
			return m.HTTPS, true
		}
	default:
		if m.HTTP != nil {
			return m.HTTP, true
		}
	}
	return nil, false
}

func base64StdEncode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
