package emulation_test

import (
	"testing"

	utls "github.com/refraction-networking/utls"

	"github.com/firasghr/browserclient/emulation"
	"github.com/firasghr/browserclient/header"
)

type fakeTarget struct {
	tls     *emulation.TLSOptions
	http1   *emulation.Http1Options
	http2   *emulation.Http2Options
	headers *header.Ordered
	orig    *header.OrigHeaderMap
}

func (f *fakeTarget) SetTLSOptions(o *emulation.TLSOptions)         { f.tls = o }
func (f *fakeTarget) SetHTTP1Options(o *emulation.Http1Options)     { f.http1 = o }
func (f *fakeTarget) SetHTTP2Options(o *emulation.Http2Options)     { f.http2 = o }
func (f *fakeTarget) SetDefaultHeaders(h *header.Ordered)           { f.headers = h }
func (f *fakeTarget) SetOrigHeaders(m *header.OrigHeaderMap)        { f.orig = m }

func TestApplyOnlySwapsNonNilFields(t *testing.T) {
	target := &fakeTarget{http1: &emulation.Http1Options{TitleCaseHeaders: true}}
	p := &emulation.Profile{
		TLS: &emulation.TLSOptions{HelloID: utls.HelloChrome_120},
	}
	p.Apply(target)

	if target.tls == nil || target.tls.HelloID != utls.HelloChrome_120 {
		t.Fatal("expected TLS options to be swapped in")
	}
	if target.http1 == nil || !target.http1.TitleCaseHeaders {
		t.Fatal("expected untouched HTTP1 options to survive Apply")
	}
	if target.http2 != nil {
		t.Fatal("expected HTTP2 options to remain nil")
	}
}

func TestHashDiffersForDifferentHelloIDs(t *testing.T) {
	chrome := &emulation.Profile{TLS: &emulation.TLSOptions{HelloID: utls.HelloChrome_120}}
	firefox := &emulation.Profile{TLS: &emulation.TLSOptions{HelloID: utls.HelloFirefox_120}}

	if chrome.Hash() == firefox.Hash() {
		t.Fatal("expected distinct fingerprint hashes for distinct HelloIDs")
	}
}

func TestHashStableForEqualProfiles(t *testing.T) {
	mk := func() *emulation.Profile {
		h := &header.Ordered{}
		h.Add("User-Agent", "x")
		return &emulation.Profile{
			TLS:     &emulation.TLSOptions{HelloID: utls.HelloChrome_120, ALPN: []string{"h2", "http/1.1"}},
			Headers: h,
		}
	}
	if mk().Hash() != mk().Hash() {
		t.Fatal("expected equal profiles to hash identically")
	}
}
