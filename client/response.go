package client

import (
	"io"
	"net/http"
	"net/url"

	"github.com/firasghr/browserclient/header"
)

// Response is spec.md §3's {status, version, headers, body, extensions,
// final_uri}, wrapping the *http.Response the pipeline produced. FinalURL
// reflects the last location after any redirect chain, per spec.md §4.1's
// redirect layer.
type Response struct {
	Status     int
	Proto      string
	Headers    *header.Ordered
	Body       io.ReadCloser
	FinalURL   *url.URL
	Request    *Request

	ext *extensions
}

func newResponse(req *Request, resp *http.Response) *Response {
	return &Response{
		Status:   resp.StatusCode,
		Proto:    resp.Proto,
		Headers:  header.FromHTTPHeader(resp.Header),
		Body:     resp.Body,
		FinalURL: resp.Request.URL,
		Request:  req,
		ext:      newExtensions(),
	}
}

// SetExt stores a per-response extension value (e.g. TLS handshake info or
// remote/local socket addresses, per spec.md §3's "Extensions MAY carry TLS
// handshake info and remote/local socket addresses").
func SetExt[T any](r *Response, v T) { setExt(r.ext, v) }

// GetExt retrieves a per-response extension value set via SetExt.
func GetExt[T any](r *Response) (T, bool) { return getExt[T](r.ext) }

// Close releases the response body, discarding any unread bytes. Callers
// that want the body contents should read it before calling Close.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}
