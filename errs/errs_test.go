package errs_test

import (
	"errors"
	"testing"

	"github.com/firasghr/browserclient/errs"
)

func TestStatusError(t *testing.T) {
	err := errs.Status("https://a.test/x", 404, "Not Found")
	if !errs.IsStatus(err) {
		t.Fatal("expected IsStatus true")
	}
	code, ok := err.StatusCode()
	if !ok || code != 404 {
		t.Fatalf("got code=%d ok=%v, want 404 true", code, ok)
	}
}

func TestWithoutURIStripsURI(t *testing.T) {
	err := errs.New(errs.KindRedirect, errors.New("boom")).WithURI("https://secret.test/?token=abc")
	if _, ok := err.URI(); !ok {
		t.Fatal("expected a URI before stripping")
	}
	stripped := err.WithoutURI()
	if _, ok := stripped.URI(); ok {
		t.Fatal("expected no URI after WithoutURI")
	}
	if _, ok := err.URI(); !ok {
		t.Fatal("WithoutURI must not mutate the original error")
	}
}

func TestTimedOutPredicateRegardlessOfLayer(t *testing.T) {
	totalTimeout := errs.New(errs.KindTimedOut, nil).WithURI("https://a.test/")
	readTimeout := errs.New(errs.KindTimedOut, nil).WithURI("https://a.test/")
	if !errs.IsTimedOut(totalTimeout) || !errs.IsTimedOut(readTimeout) {
		t.Fatal("expected both layers to surface KindTimedOut")
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("socket reset")
	err := errs.New(errs.KindConnect, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
