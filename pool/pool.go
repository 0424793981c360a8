// Package pool implements the Connection Pool component of spec.md §4.5: a
// keyed set of idle, reusable connections, with capacity limits, idle
// eviction, and a checkout/release contract the HTTP/1 and HTTP/2
// transports drive directly.
//
// Grounded on two teacher packages: scheduler.Scheduler's background
// control-goroutine-with-stop-channel shape (generalized here from a tight
// dispatch loop into a time.Ticker-driven idle sweep) for eviction, and
// worker.WorkerPool's buffered-channel backpressure (generalized from a
// fixed job queue into a per-key waiter queue that unblocks when a
// connection is released or a capacity slot frees up) for checkout
// blocking under a per-host cap.
package pool

import (
	"container/list"
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// Key identifies a class of interchangeable connections. Two requests may
// share a pooled connection only if every field here matches, per spec.md
// §4.5/§8: "pool keys K1≠K2 ... their connection sets are disjoint".
type Key struct {
	Scheme          string // "http" or "https"
	Host            string
	Port            uint16
	ALPNPreference  string // "h2", "http/1.1", or "" for no preference
	InterceptDigest string // opaque digest of the chosen proxy Intercept, "" for direct
	LocalBind       string // local address/interface bind, if any
	FingerprintHash uint64 // emulation.Profile.Hash()
}

func (k Key) String() string {
	return fmt.Sprintf("%s://%s:%d|alpn=%s|proxy=%s|bind=%s|fp=%x",
		k.Scheme, k.Host, k.Port, k.ALPNPreference, k.InterceptDigest, k.LocalBind, k.FingerprintHash)
}

// Conn is a pooled connection plus the bookkeeping the pool needs to decide
// when to evict it.
type Conn struct {
	net.Conn
	Key        Key
	idleSince  time.Time
	// Multiplexed marks a connection that can serve more than one
	// concurrent request (an HTTP/2 stream-multiplexed connection). Such a
	// conn never enters the idle set, so Checkout never hands it out:
	// callers return it via ReleaseMultiplexed, which only frees the lease.
	Multiplexed bool
}

// Limits bounds how many connections the pool keeps, per spec.md §4.5.
type Limits struct {
	MaxPerKey   int
	MaxTotal    int
	IdleTimeout time.Duration
	// SweepInterval controls how often the idle-eviction goroutine wakes
	// up; zero defaults to IdleTimeout/2, floored at one second.
	SweepInterval time.Duration
}

func (l Limits) sweepInterval() time.Duration {
	if l.SweepInterval > 0 {
		return l.SweepInterval
	}
	if l.IdleTimeout > 2*time.Second {
		return l.IdleTimeout / 2
	}
	return time.Second
}

type bucket struct {
	idle    *list.List // of *Conn
	leased  int
	waiters *list.List // of chan struct{}
}

// Pool manages idle connections grouped by Key, enforcing MaxPerKey/MaxTotal
// and evicting connections idle longer than IdleTimeout.
type Pool struct {
	mu      sync.Mutex
	buckets map[Key]*bucket
	total   int

	limits Limits

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New returns a Pool enforcing limits, with its idle-eviction sweep already
// running in the background. Call Close to stop the sweep and close every
// idle connection.
func New(limits Limits) *Pool {
	p := &Pool{
		buckets: make(map[Key]*bucket),
		limits:  limits,
		stopCh:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.sweepLoop()
	return p
}

func (p *Pool) sweepLoop() {
	defer p.wg.Done()
	t := time.NewTicker(p.limits.sweepInterval())
	defer t.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-t.C:
			p.evictExpired()
		}
	}
}

func (p *Pool) evictExpired() {
	if p.limits.IdleTimeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.limits.IdleTimeout)

	var toClose []*Conn
	p.mu.Lock()
	for key, b := range p.buckets {
		var next *list.Element
		for e := b.idle.Front(); e != nil; e = next {
			next = e.Next()
			c := e.Value.(*Conn)
			if c.idleSince.Before(cutoff) {
				b.idle.Remove(e)
				p.total--
				toClose = append(toClose, c)
			}
		}
		if b.idle.Len() == 0 && b.leased == 0 && b.waiters.Len() == 0 {
			delete(p.buckets, key)
		}
	}
	p.mu.Unlock()

	for _, c := range toClose {
		_ = c.Conn.Close()
	}
}

// Checkout returns an idle connection for key if one is available. If none
// is idle but the key is below MaxPerKey (and the pool is below MaxTotal),
// Checkout returns (nil, false, nil): the caller should dial a fresh
// connection and hand it to the pool via Track once established. If the
// key is already at MaxPerKey, Checkout blocks until a connection is
// released, a capacity slot frees up, or ctx is done.
func (p *Pool) Checkout(ctx context.Context, key Key) (*Conn, bool, error) {
	for {
		p.mu.Lock()
		b := p.bucketLocked(key)
		if e := b.idle.Front(); e != nil {
			b.idle.Remove(e)
			p.total--
			c := e.Value.(*Conn)
			b.leased++
			p.mu.Unlock()
			return c, true, nil
		}
		underKeyCap := p.limits.MaxPerKey <= 0 || b.leased < p.limits.MaxPerKey
		underTotalCap := p.limits.MaxTotal <= 0 || p.total < p.limits.MaxTotal
		if underKeyCap && underTotalCap {
			b.leased++
			p.mu.Unlock()
			return nil, false, nil
		}

		wait := make(chan struct{})
		el := b.waiters.PushBack(wait)
		p.mu.Unlock()

		select {
		case <-wait:
			// A slot freed up; loop and retry the checkout.
		case <-ctx.Done():
			p.mu.Lock()
			b := p.bucketLocked(key)
			b.waiters.Remove(el)
			p.mu.Unlock()
			return nil, false, ctx.Err()
		}
	}
}

// Track registers a freshly dialed connection as leased under key, without
// going through Checkout's capacity accounting again (the caller already
// reserved the slot by receiving (nil, false, nil) from Checkout).
func (p *Pool) Track(key Key, conn net.Conn, multiplexed bool) *Conn {
	return &Conn{Conn: conn, Key: key, Multiplexed: multiplexed}
}

// Release returns a single-use (non-multiplexed) connection to the idle
// set, or closes it if reuse is false, the pool is shutting down, or the
// key's idle set is already saturated relative to MaxPerKey.
func (p *Pool) Release(c *Conn, reuse bool) {
	p.mu.Lock()
	b, ok := p.buckets[c.Key]
	if !ok {
		p.mu.Unlock()
		_ = c.Conn.Close()
		return
	}
	b.leased--
	p.wakeWaiterLocked(b)

	closing := false
	select {
	case <-p.stopCh:
		closing = true
	default:
	}
	saturated := p.limits.MaxPerKey > 0 && b.idle.Len() >= p.limits.MaxPerKey
	if !reuse || closing || saturated {
		p.mu.Unlock()
		_ = c.Conn.Close()
		return
	}
	c.idleSince = time.Now()
	b.idle.PushBack(c)
	p.total++
	p.mu.Unlock()
}

// CancelCheckout releases a slot reserved by a Checkout miss (the caller
// received (nil, false, nil) but then failed to dial). Unlike Release, there
// is no connection to close: this only undoes the capacity accounting.
func (p *Pool) CancelCheckout(key Key) {
	p.mu.Lock()
	if b, ok := p.buckets[key]; ok {
		b.leased--
		p.wakeWaiterLocked(b)
	}
	p.mu.Unlock()
}

// ReleaseMultiplexed returns a multiplexed connection to active service
// without removing it from circulation: it stays "leased" in the sense
// that future Checkout calls for the same key should prefer reusing it
// directly (via a transport-level connection cache keyed on Key, not
// through this pool's idle list) rather than dialing a new one. Calling
// this simply decrements the lease count so waiters blocked on MaxPerKey
// are released once fewer concurrent users remain on this key overall.
func (p *Pool) ReleaseMultiplexed(c *Conn) {
	p.mu.Lock()
	if b, ok := p.buckets[c.Key]; ok {
		b.leased--
		p.wakeWaiterLocked(b)
	}
	p.mu.Unlock()
}

// Evict removes conn from the pool's accounting (used when the HTTP/2
// layer observes a GOAWAY or REFUSED_STREAM and wants to force every
// future request for this key onto a fresh connection, per spec.md §4.5's
// "protocol-NACK forces pool eviction" rule) and closes it.
func (p *Pool) Evict(c *Conn) {
	p.mu.Lock()
	if b, ok := p.buckets[c.Key]; ok {
		if b.leased > 0 {
			b.leased--
		}
		p.wakeWaiterLocked(b)
	}
	p.mu.Unlock()
	_ = c.Conn.Close()
}

func (p *Pool) wakeWaiterLocked(b *bucket) {
	if e := b.waiters.Front(); e != nil {
		b.waiters.Remove(e)
		close(e.Value.(chan struct{}))
	}
}

func (p *Pool) bucketLocked(key Key) *bucket {
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{idle: list.New(), waiters: list.New()}
		p.buckets[key] = b
	}
	return b
}

// Stats reports a point-in-time snapshot for a key, useful for metrics and
// tests.
type Stats struct {
	Idle   int
	Leased int
}

// Stats returns the current idle/leased counts for key.
func (p *Pool) Stats(key Key) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[key]
	if !ok {
		return Stats{}
	}
	return Stats{Idle: b.idle.Len(), Leased: b.leased}
}

// Close stops the idle-eviction sweep and closes every currently idle
// connection. Leased connections in active use are unaffected; callers
// still holding one should Release or Evict it normally.
func (p *Pool) Close() error {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	p.mu.Lock()
	var toClose []*Conn
	for _, b := range p.buckets {
		for e := b.idle.Front(); e != nil; e = e.Next() {
			toClose = append(toClose, e.Value.(*Conn))
		}
		b.idle.Init()
	}
	p.total = 0
	p.mu.Unlock()

	for _, c := range toClose {
		_ = c.Conn.Close()
	}
	return nil
}
