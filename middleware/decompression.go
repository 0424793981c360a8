// Decompression layer: injects Accept-Encoding and transparently decodes
// Content-Encoding on the way back, grounded on the teacher's go.mod
// dependency on github.com/andybalholm/brotli and github.com/klauspost/compress
// (both present in the teacher's indirect requires, pulled in by other
// pack repos as direct dependencies for exactly this purpose) instead of
// shelling out to compress/gzip and compress/flate alone.
package middleware

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/firasghr/browserclient/errs"
	"github.com/firasghr/browserclient/header"
)

const acceptEncodingValue = "gzip, deflate, br, zstd"

type decompressionRoundTripper struct {
	next http.RoundTripper
}

// NewDecompressionLayer injects an Accept-Encoding header (unless the
// caller already set one explicitly) and transparently decodes whichever
// of gzip/deflate/br/zstd the server answered with, removing
// Content-Encoding and Content-Length from the response the caller sees
// (the decoded body's length no longer matches the wire length), per
// spec.md §4.6.
func NewDecompressionLayer() Layer {
	return func(next http.RoundTripper) http.RoundTripper {
		return &decompressionRoundTripper{next: next}
	}
}

func (d *decompressionRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", acceptEncodingValue)
		if ordered, ok := header.OrderedFromContext(req.Context()); ok {
			ordered.Set("Accept-Encoding", acceptEncodingValue)
		}
	}

	resp, err := d.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return resp, nil
	}

	decoded, err := decodeBody(encoding, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, errs.New(errs.KindDecode, fmt.Errorf("decode %s body: %w", encoding, err))
	}
	resp.Body = decoded
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

func decodeBody(encoding string, body io.ReadCloser) (io.ReadCloser, error) {
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &readCloserPair{Reader: gz, closer: body}, nil
	case "br":
		return &readCloserPair{Reader: brotli.NewReader(body), closer: body}, nil
	case "zstd":
		zr, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		return &zstdReadCloser{dec: zr, closer: body}, nil
	case "deflate":
		return &readCloserPair{Reader: flate.NewReader(body), closer: body}, nil
	default:
		return body, nil
	}
}

// readCloserPair pairs a Reader with no Close method of its own (gzip's
// *Reader.Close resets internal state but does not close the underlying
// stream; brotli.NewReader's Reader has no Close at all) with the original
// body to close on the caller's behalf.
type readCloserPair struct {
	io.Reader
	closer io.Closer
}

func (p *readCloserPair) Close() error { return p.closer.Close() }

// zstdReadCloser adapts *zstd.Decoder (whose Close has no error return) to
// io.ReadCloser, additionally closing the underlying compressed body.
type zstdReadCloser struct {
	dec    *zstd.Decoder
	closer io.Closer
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }
func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.closer.Close()
}
