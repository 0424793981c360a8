package header_test

import (
	"net/http"
	"testing"

	"github.com/firasghr/browserclient/header"
)

func TestOrigHeaderMap_ApplyUsesRecordedCasing(t *testing.T) {
	m := header.NewOrigHeaderMap()
	m.InsertString("sec-CH-UA")
	m.InsertString("Accept-Language")

	var h header.Ordered
	h.Add("Sec-CH-UA", `"Chromium";v="120"`)
	h.Add("Accept-Language", "en-US,en;q=0.9")

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	m.Apply(req, &h)

	if _, ok := req.Header["sec-CH-UA"]; !ok {
		t.Errorf("expected the exact recorded casing %q as a header key, got %v", "sec-CH-UA", req.Header)
	}
	if _, ok := req.Header["Accept-Language"]; !ok {
		t.Errorf("expected Accept-Language present, got %v", req.Header)
	}
}

func TestOrigHeaderMap_ApplyFallsBackToCanonicalWhenUnrecorded(t *testing.T) {
	m := header.NewOrigHeaderMap()

	var h header.Ordered
	h.Add("X-Custom", "value")

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	m.Apply(req, &h)

	if got := req.Header.Get("X-Custom"); got != "value" {
		t.Errorf("got %q, want value", got)
	}
}

func TestOrigHeaderMap_InsertReportsNewCanonicalName(t *testing.T) {
	m := header.NewOrigHeaderMap()
	if isNew := m.InsertString("X-Foo"); !isNew {
		t.Error("first insert of a canonical name should report true")
	}
	if isNew := m.InsertString("x-foo"); isNew {
		t.Error("second insert of the same canonical name should report false")
	}

	spellings := m.GetAll("X-Foo")
	if len(spellings) != 2 || spellings[0].String() != "X-Foo" || spellings[1].String() != "x-foo" {
		t.Errorf("got %v, want [X-Foo x-foo] in insertion order", spellings)
	}
}

func TestOrigHeaderMap_NamesPreservesFirstInsertionOrder(t *testing.T) {
	m := header.NewOrigHeaderMap()
	m.InsertString("Second")
	m.InsertString("First")
	m.InsertString("second")

	names := m.Names()
	if len(names) != 2 || names[0] != "Second" || names[1] != "First" {
		t.Errorf("got %v, want [Second First]", names)
	}
}

func TestOrigHeaderMap_ExtendMergesPreservingOrder(t *testing.T) {
	a := header.NewOrigHeaderMap()
	a.InsertString("A")

	b := header.NewOrigHeaderMap()
	b.InsertString("B")
	b.InsertString("a") // same canonical name as a's "A", different casing

	a.Extend(b)

	names := a.Names()
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Errorf("got %v, want [A B]", names)
	}
	spellings := a.GetAll("A")
	if len(spellings) != 2 || spellings[0].String() != "A" || spellings[1].String() != "a" {
		t.Errorf("got %v, want [A a] in insertion order", spellings)
	}
}

func TestOrigHeaderMap_ApplyWithNilMapIsNoop(t *testing.T) {
	var m *header.OrigHeaderMap
	var h header.Ordered
	h.Add("X-Foo", "value")

	req, _ := http.NewRequest("GET", "http://example.com", nil)
	m.Apply(req, &h)

	if req.Header.Get("X-Foo") != "" {
		t.Error("expected a nil OrigHeaderMap to leave req.Header untouched")
	}
}
