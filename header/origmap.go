package header

import "net/http"

// OrigName is a header name together with how it should be written on the
// wire: either the exact bytes a peer sent (Cased) or a canonical
// net/http.CanonicalHeaderKey spelling (Standard). Keeping the distinction
// lets a caller force non-canonical bytes (e.g. all-lowercase "accept") for
// one occurrence while still falling back to Go's normal casing elsewhere.
type OrigName struct {
	cased    string
	standard bool
}

// Cased returns an OrigName that serializes as the exact bytes given.
func Cased(raw string) OrigName { return OrigName{cased: raw} }

// Standard returns an OrigName that serializes as the canonical form of
// name.
func Standard(name string) OrigName {
	return OrigName{cased: http.CanonicalHeaderKey(name), standard: true}
}

// String returns the bytes this OrigName serializes as.
func (n OrigName) String() string { return n.cased }

// OrigHeaderMap records, for every canonical header name seen, the list of
// original-cased spellings in the order they were inserted, plus a global
// insertion-order list across all names.
//
// Two distinct jobs: (a) serialize headers in the exact order and casing
// the emulated browser would use, (b) allow multiple original casings for
// the same canonical name (e.g. a redirect hop that re-adds "X-Foo" after
// the origin response used "x-foo").
//
// Invariant: every original-cased entry maps to exactly one canonical
// entry; OrigHeaderMap never invents a canonical name itself.
type OrigHeaderMap struct {
	byCanon map[string][]OrigName
	order   []string // canonical names, in first-insertion order
}

// NewOrigHeaderMap returns an empty map ready to use.
func NewOrigHeaderMap() *OrigHeaderMap {
	return &OrigHeaderMap{byCanon: make(map[string][]OrigName)}
}

// Insert appends orig to the list of spellings recorded for its canonical
// name, and reports whether the canonical name was new to the map.
func (m *OrigHeaderMap) Insert(orig OrigName) bool {
	canon := http.CanonicalHeaderKey(orig.cased)
	_, existed := m.byCanon[canon]
	m.byCanon[canon] = append(m.byCanon[canon], orig)
	if !existed {
		m.order = append(m.order, canon)
	}
	return !existed
}

// InsertString is a convenience wrapper around Insert(Cased(raw)).
func (m *OrigHeaderMap) InsertString(raw string) bool {
	return m.Insert(Cased(raw))
}

// GetAll returns every recorded spelling for canonicalName, in insertion
// order.
func (m *OrigHeaderMap) GetAll(canonicalName string) []OrigName {
	return m.byCanon[http.CanonicalHeaderKey(canonicalName)]
}

// Names returns every canonical name recorded, in first-insertion order.
func (m *OrigHeaderMap) Names() []string {
	return append([]string(nil), m.order...)
}

// Extend merges another map's entries into m, preserving order: entries
// from other are appended after m's existing entries for shared canonical
// names, and new canonical names from other are appended to m.order.
func (m *OrigHeaderMap) Extend(other *OrigHeaderMap) {
	if other == nil {
		return
	}
	for _, canon := range other.order {
		for _, orig := range other.byCanon[canon] {
			m.Insert(orig)
		}
	}
}

// Apply replaces req.Header with the entries of h, each stored under the
// spelling m recorded for its canonical name; the n-th value of a name is
// matched with the n-th recorded spelling (falling back to the canonical
// name if a value has no recorded spelling, e.g. it was added after the map
// was built). req.Header is a map, so the order of h is not kept there.
func (m *OrigHeaderMap) Apply(req *http.Request, h *Ordered) {
	if m == nil || h == nil {
		return
	}
	out := make(http.Header, h.Len())
	written := make(map[string]int, len(m.order)) // canonical name -> next orig index to use
	h.Range(func(key, value string) bool {
		canon := http.CanonicalHeaderKey(key)
		spellings := m.byCanon[canon]
		idx := written[canon]
		name := canon
		if idx < len(spellings) {
			name = spellings[idx].String()
		}
		written[canon] = idx + 1
		out[name] = append(out[name], value)
		return true
	})
	req.Header = out
}
