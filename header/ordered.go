// Package header provides an ordered, case-preserving companion to
// net/http.Header.
//
// net/http.Header is a map[string][]string keyed by the canonical form of a
// header name: iteration order is undefined and the original casing a peer
// sent is lost. Browser-fingerprint fidelity depends on both of those
// things, so this package keeps a parallel, ordered record alongside the
// canonical map rather than trying to repurpose it.
package header

import (
	"net/http"
)

// entry stores one header occurrence with its original casing, in the order
// it was added.
type entry struct {
	key   string
	value string
}

// Ordered is a drop-in companion to http.Header that preserves the exact
// capitalisation and insertion order of HTTP headers.
//
// Ordered stores entries in a slice, so iteration always returns them in
// the order they were added. This matters for HTTP/2 fingerprinting:
// servers that profile client fingerprints inspect both the capitalisation
// (e.g. "sec-ch-ua-platform" vs "Sec-Ch-Ua-Platform") and the ordering of
// headers such as "accept-language", "sec-ch-ua-*", and "user-agent".
//
// Ordered is NOT safe for concurrent use without external synchronisation;
// callers build one per request before handing it to the wire layer.
type Ordered struct {
	entries []entry
}

// Add appends key/value to the header list, preserving the exact casing of
// key. Multiple calls with the same key produce multiple entries
// (equivalent to http.Header.Add).
func (h *Ordered) Add(key, value string) {
	h.entries = append(h.entries, entry{key: key, value: value})
}

// Set replaces the first entry whose key matches key (case-insensitively)
// with the new value and removes any subsequent duplicates. If no entry
// with that key exists, Set behaves like Add.
//
// The canonical casing of the surviving entry is updated to key, so callers
// can use Set to change capitalisation as well as value.
func (h *Ordered) Set(key, value string) {
	canon := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			if !replaced {
				out = append(out, entry{key: key, value: value})
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry{key: key, value: value})
	}
	h.entries = out
}

// SetIfAbsent sets key to value only if no entry with that canonical key
// already exists. It reports whether the value was inserted.
func (h *Ordered) SetIfAbsent(key, value string) bool {
	if h.Has(key) {
		return false
	}
	h.Add(key, value)
	return true
}

// Del removes all entries whose key matches key (case-insensitively).
func (h *Ordered) Del(key string) {
	canon := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canon {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry whose key matches key
// (case-insensitively), or an empty string if no such entry exists.
func (h *Ordered) Get(key string) string {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return e.value
		}
	}
	return ""
}

// Values returns every value stored under key, in insertion order.
func (h *Ordered) Values(key string) []string {
	canon := http.CanonicalHeaderKey(key)
	var out []string
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			out = append(out, e.value)
		}
	}
	return out
}

// Has reports whether any entry matches key (case-insensitively).
func (h *Ordered) Has(key string) bool {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return true
		}
	}
	return false
}

// Len returns the number of header entries (including duplicates).
func (h *Ordered) Len() int { return len(h.entries) }

// Clone returns a deep copy of the receiver.
func (h *Ordered) Clone() *Ordered {
	if h == nil {
		return &Ordered{}
	}
	c := &Ordered{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// Names returns the canonical names present, each once, in first-seen order.
func (h *Ordered) Names() []string {
	seen := make(map[string]bool, len(h.entries))
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		canon := http.CanonicalHeaderKey(e.key)
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out
}

// Range calls fn for every entry in insertion order. Returning false from fn
// stops iteration early.
func (h *Ordered) Range(fn func(key, value string) bool) {
	for _, e := range h.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// ApplyCasing rewrites each entry's key to the spelling m has recorded for
// its canonical name, without disturbing insertion order or duplicating
// entries -- unlike OrigHeaderMap.Apply, which rebuilds an http.Header map
// (losing order, since maps have none) this mutates h.entries in place, so
// the result is still usable as the ordered source of truth for a
// byte-level wire writer. Names m has no recorded spelling for keep their
// current casing.
func (h *Ordered) ApplyCasing(m *OrigHeaderMap) {
	if m == nil {
		return
	}
	next := make(map[string]int, len(m.order)) // canonical name -> next recorded spelling index
	for i := range h.entries {
		canon := http.CanonicalHeaderKey(h.entries[i].key)
		spellings := m.byCanon[canon]
		idx := next[canon]
		if idx < len(spellings) {
			h.entries[i].key = spellings[idx].String()
		}
		next[canon] = idx + 1
	}
}

// ApplyToRequest writes every entry in h into req.Header, preserving the
// exact key casing. Insertion order is not kept: http.Header is a map.
//
// Because net/http's http.Header is normally keyed by CanonicalHeaderKey,
// ApplyToRequest writes the raw header bytes directly via req.Header[key]
// so the original capitalisation survives in the map.
//
// Any headers already present in req.Header are replaced, not merged.
func (h *Ordered) ApplyToRequest(req *http.Request) {
	req.Header = make(http.Header, len(h.entries))
	for _, e := range h.entries {
		req.Header[e.key] = append(req.Header[e.key], e.value)
	}
}

// ToHTTPHeader converts h to a standard http.Header map. Insertion order is
// NOT preserved in the result (maps are unordered), but the exact key
// casing is, because the raw key is used rather than
// http.CanonicalHeaderKey(key).
func (h *Ordered) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out[e.key] = append(out[e.key], e.value)
	}
	return out
}

// FromHTTPHeader builds an Ordered from a standard http.Header. The order of
// distinct names is unspecified and may differ between two calls on the
// same map, since Go randomises map iteration order on every range; values
// of one name keep their slice order. Callers that need a specific order
// should build the Ordered with Add instead.
func FromHTTPHeader(h http.Header) *Ordered {
	o := &Ordered{}
	for k, vs := range h {
		for _, v := range vs {
			o.Add(k, v)
		}
	}
	return o
}
