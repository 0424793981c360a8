// Package sessioncache implements the TLS Session Cache component of
// spec.md §4.3: a two-level LRU keyed by destination authority, handing out
// each TLS 1.3 session ticket at most once (RFC 8446 §C.4).
//
// Grounded on the rust original's src/tls/conn/cache.rs, which maintains a
// forward map (authority -> LRU of tickets) and a reverse map (ticket ->
// authority) so a ticket can be retired from both sides in O(1) once it is
// consumed. The Go port uses github.com/hashicorp/golang-lru/v2 for the
// per-host LRU layer instead of hand-rolling one.
package sessioncache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies the destination a session ticket was negotiated with.
// spec.md §3 calls this the SessionKey: "the URI authority (host:port)".
type Key struct {
	Authority string
}

// Ticket is an opaque session-resumption blob plus the TLS version it was
// negotiated under, needed to apply the single-use rule correctly (only
// TLS 1.3 tickets are evicted on use; TLS 1.2 session IDs may be reused
// across concurrent handshakes).
type Ticket struct {
	Raw       []byte
	TLS13     bool
	id        string
}

// WithID returns a copy of t with its cache identity set to id. Callers
// supply whatever the underlying TLS stack uses to distinguish sessions
// (e.g. the session ID or ticket's own hash); the cache itself treats id as
// an opaque comparable string.
func (t Ticket) WithID(id string) Ticket {
	t.id = id
	return t
}

// Cache is a mutex-guarded, two-level LRU session cache. Per spec.md §5,
// the mutex brackets only map operations: it is always released before any
// handshake I/O runs.
type Cache struct {
	mu               sync.Mutex
	perHostCapacity  int
	perHost          map[Key]*lru.Cache[string, Ticket]
	reverse          map[string]Key // ticket id -> owning key
}

// New returns a Cache that keeps up to perHostCapacity tickets per
// authority, evicting the least-recently-inserted ticket once a host's
// capacity is exceeded.
func New(perHostCapacity int) *Cache {
	if perHostCapacity < 1 {
		perHostCapacity = 1
	}
	return &Cache{
		perHostCapacity: perHostCapacity,
		perHost:         make(map[Key]*lru.Cache[string, Ticket]),
		reverse:         make(map[string]Key),
	}
}

// Insert stores ticket under key, evicting the oldest ticket for that key
// if the per-host capacity is already full.
func (c *Cache) Insert(key Key, ticket Ticket) {
	if ticket.id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.perHost[key]
	if !ok {
		// onEvict keeps the reverse index consistent when the LRU itself
		// (rather than an explicit Remove call) drops an entry.
		var err error
		l, err = lru.NewWithEvict[string, Ticket](c.perHostCapacity, func(id string, _ Ticket) {
			delete(c.reverse, id)
		})
		if err != nil {
			// Only returns an error for a non-positive size, which New
			// already guards against.
			return
		}
		c.perHost[key] = l
	}
	l.Add(ticket.id, ticket)
	c.reverse[ticket.id] = key
}

// Get returns the ticket cached for key, if any. Per RFC 8446 §C.4, a TLS
// 1.3 ticket is removed from the cache on use so that concurrent handshakes
// never resume the same session; TLS 1.2 sessions are left in place.
func (c *Cache) Get(key Key) (Ticket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.perHost[key]
	if !ok {
		return Ticket{}, false
	}
	// Oldest-first so tickets rotate rather than all churn onto one.
	keys := l.Keys()
	if len(keys) == 0 {
		return Ticket{}, false
	}
	id := keys[0]
	ticket, ok := l.Peek(id)
	if !ok {
		return Ticket{}, false
	}
	if ticket.TLS13 {
		l.Remove(id)
		delete(c.reverse, id)
	}
	return ticket, true
}

// Remove evicts a previously inserted ticket by its cache identity,
// regardless of TLS version. Used when a handshake using a resumed session
// fails, to avoid handing out a ticket the peer has already rejected.
func (c *Cache) Remove(ticketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := c.reverse[ticketID]
	if !ok {
		return
	}
	if l, ok := c.perHost[key]; ok {
		l.Remove(ticketID)
		if l.Len() == 0 {
			delete(c.perHost, key)
		}
	}
	delete(c.reverse, ticketID)
}

// Len reports the total number of tickets cached across every key.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.perHost {
		n += l.Len()
	}
	return n
}
