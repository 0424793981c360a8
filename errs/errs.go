// Package errs defines the tagged error kinds emitted by the pipeline,
// pool, connector, and middleware packages, grounded on spec.md §7 and on
// the rust original's src/error.rs Kind enum.
//
// Every Error carries the stage it failed at (Kind), an optional wrapped
// cause, and an optional URI. Timeouts always surface as KindTimedOut
// regardless of which layer (total, read, pool-checkout) fired them.
package errs

import (
	"errors"
	"fmt"
)

// Kind tags the pipeline stage an Error originated from.
type Kind int

const (
	KindBuilder Kind = iota
	KindRequest
	KindBody
	KindTLS
	KindDecode
	KindRedirect
	KindStatus
	KindUpgrade
	KindWebSocket
	KindTimedOut
	KindBadScheme
	KindTooManyRedirects
	KindConnect
	KindProxyConnect
)

func (k Kind) String() string {
	switch k {
	case KindBuilder:
		return "builder error"
	case KindRequest:
		return "error sending request"
	case KindBody:
		return "request or response body error"
	case KindTLS:
		return "tls error"
	case KindDecode:
		return "error decoding response body"
	case KindRedirect:
		return "error following redirect"
	case KindStatus:
		return "server returned error status"
	case KindUpgrade:
		return "error upgrading connection"
	case KindWebSocket:
		return "websocket error"
	case KindTimedOut:
		return "operation timed out"
	case KindBadScheme:
		return "unsupported URI scheme"
	case KindTooManyRedirects:
		return "too many redirects"
	case KindConnect:
		return "connect error"
	case KindProxyConnect:
		return "proxy connect error"
	default:
		return "error"
	}
}

// Error is the wrapped error type returned across package boundaries.
// Errors carry the URI they occurred on; redirect errors additionally carry
// the last URI attempted via LastURI.
type Error struct {
	kind    Kind
	cause   error
	uri     string
	lastURI string
	status  int
	reason  string
}

// New builds an Error of the given kind wrapping cause. cause may be nil
// (e.g. KindTooManyRedirects has no underlying cause).
func New(kind Kind, cause error) *Error {
	return &Error{kind: kind, cause: cause}
}

// Status builds a KindStatus error for a non-2xx response, preserving the
// HTTP status code and reason phrase.
func Status(uri string, code int, reason string) *Error {
	return &Error{kind: KindStatus, uri: uri, status: code, reason: reason}
}

// WithURI returns a copy of e with uri attached (overwriting any existing
// value).
func (e *Error) WithURI(uri string) *Error {
	c := *e
	c.uri = uri
	return &c
}

// WithLastURI attaches the last URI attempted in a redirect chain.
func (e *Error) WithLastURI(uri string) *Error {
	c := *e
	c.lastURI = uri
	return &c
}

// WithoutURI returns a copy of e with any attached URI(s) stripped, so a
// caller can safely log or report the error without leaking a
// sensitive query string.
func (e *Error) WithoutURI() *Error {
	c := *e
	c.uri = ""
	c.lastURI = ""
	return &c
}

// URI returns the URI this error occurred on, if any.
func (e *Error) URI() (string, bool) { return e.uri, e.uri != "" }

// LastURI returns the last URI attempted in a redirect chain, if any.
func (e *Error) LastURI() (string, bool) { return e.lastURI, e.lastURI != "" }

// Kind returns the tagged stage this error occurred at.
func (e *Error) Kind() Kind { return e.kind }

// StatusCode returns the HTTP status code for a KindStatus error, and false
// otherwise.
func (e *Error) StatusCode() (int, bool) {
	if e.kind != KindStatus {
		return 0, false
	}
	return e.status, true
}

func (e *Error) Error() string {
	msg := e.kind.String()
	if e.kind == KindStatus {
		msg = fmt.Sprintf("%s: %d %s", msg, e.status, e.reason)
	}
	if e.uri != "" {
		msg = fmt.Sprintf("%s (uri=%s)", msg, e.uri)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

func is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

func IsBuilder(err error) bool         { return is(err, KindBuilder) }
func IsRequest(err error) bool         { return is(err, KindRequest) }
func IsBody(err error) bool            { return is(err, KindBody) }
func IsTLS(err error) bool             { return is(err, KindTLS) }
func IsDecode(err error) bool          { return is(err, KindDecode) }
func IsRedirect(err error) bool        { return is(err, KindRedirect) }
func IsStatus(err error) bool          { return is(err, KindStatus) }
func IsUpgrade(err error) bool         { return is(err, KindUpgrade) }
func IsWebSocket(err error) bool       { return is(err, KindWebSocket) }
func IsTimedOut(err error) bool        { return is(err, KindTimedOut) }
func IsBadScheme(err error) bool       { return is(err, KindBadScheme) }
func IsTooManyRedirects(err error) bool { return is(err, KindTooManyRedirects) }
func IsConnect(err error) bool         { return is(err, KindConnect) }
func IsProxyConnect(err error) bool    { return is(err, KindProxyConnect) }
