package pool_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/firasghr/browserclient/pool"
)

func testKey() pool.Key {
	return pool.Key{Scheme: "https", Host: "example.com", Port: 443}
}

func TestCheckoutMissThenReleaseThenHit(t *testing.T) {
	p := pool.New(pool.Limits{MaxPerKey: 2, MaxTotal: 4, IdleTimeout: time.Minute})
	defer p.Close()

	key := testKey()
	ctx := context.Background()

	c, hit, err := p.Checkout(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Fatal("expected a miss on an empty pool")
	}
	if c != nil {
		t.Fatal("expected nil Conn on a miss")
	}

	a, b := net.Pipe()
	defer b.Close()
	tracked := p.Track(key, a, false)
	p.Release(tracked, true)

	stats := p.Stats(key)
	if stats.Idle != 1 {
		t.Fatalf("expected 1 idle conn after release, got %d", stats.Idle)
	}

	c2, hit2, err := p.Checkout(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit2 || c2 != tracked {
		t.Fatal("expected the released connection to be handed back out")
	}
}

func TestReleaseWithoutReuseClosesConnection(t *testing.T) {
	p := pool.New(pool.Limits{MaxPerKey: 2, IdleTimeout: time.Minute})
	defer p.Close()

	key := testKey()
	a, b := net.Pipe()
	defer b.Close()

	p.Checkout(context.Background(), key)
	tracked := p.Track(key, a, false)
	p.Release(tracked, false)

	if stats := p.Stats(key); stats.Idle != 0 {
		t.Fatalf("expected no idle conn after non-reusable release, got %d", stats.Idle)
	}

	// a should now be closed; writing to its pipe peer should fail/io.EOF.
	buf := make([]byte, 1)
	b.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := b.Read(buf); err == nil {
		t.Fatal("expected read from peer to fail once the pooled side was closed")
	}
}

func TestCheckoutBlocksAtMaxPerKeyUntilRelease(t *testing.T) {
	p := pool.New(pool.Limits{MaxPerKey: 1, IdleTimeout: time.Minute})
	defer p.Close()

	key := testKey()
	ctx := context.Background()

	_, _, _ = p.Checkout(ctx, key) // miss, reserves the one slot
	a, _ := net.Pipe()
	tracked := p.Track(key, a, false)

	blockedCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, _, err := p.Checkout(blockedCtx, key)
	if err == nil {
		t.Fatal("expected checkout to block and time out while the only slot is leased")
	}

	unblocked := make(chan struct{})
	go func() {
		p.Checkout(context.Background(), key)
		close(unblocked)
	}()

	time.Sleep(50 * time.Millisecond)
	p.Release(tracked, true)

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the waiting checkout to unblock after release")
	}
}

func TestEvictClosesConnectionAndFreesSlot(t *testing.T) {
	p := pool.New(pool.Limits{MaxPerKey: 1, IdleTimeout: time.Minute})
	defer p.Close()

	key := testKey()
	p.Checkout(context.Background(), key)
	a, b := net.Pipe()
	defer b.Close()
	tracked := p.Track(key, a, false)

	p.Evict(tracked)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, hit, err := p.Checkout(ctx, key)
	if err != nil {
		t.Fatalf("expected a free slot after eviction, got error: %v", err)
	}
	if hit {
		t.Fatal("expected a miss: evicted connections are not recycled")
	}
}

func TestIdleConnectionEvictedAfterTimeout(t *testing.T) {
	p := pool.New(pool.Limits{MaxPerKey: 2, IdleTimeout: 50 * time.Millisecond, SweepInterval: 20 * time.Millisecond})
	defer p.Close()

	key := testKey()
	p.Checkout(context.Background(), key)
	a, b := net.Pipe()
	defer b.Close()
	tracked := p.Track(key, a, false)
	p.Release(tracked, true)

	time.Sleep(300 * time.Millisecond)

	if stats := p.Stats(key); stats.Idle != 0 {
		t.Fatalf("expected idle connection to be swept after timeout, got idle=%d", stats.Idle)
	}
}
