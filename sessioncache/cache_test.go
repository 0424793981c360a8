package sessioncache_test

import (
	"testing"

	"github.com/firasghr/browserclient/sessioncache"
)

func TestTLS13TicketHandedOutAtMostOnce(t *testing.T) {
	c := sessioncache.New(4)
	key := sessioncache.Key{Authority: "a.test:443"}
	c.Insert(key, sessioncache.Ticket{Raw: []byte("t1"), TLS13: true}.WithID("id1"))

	_, ok := c.Get(key)
	if !ok {
		t.Fatal("expected first Get to find the ticket")
	}
	_, ok = c.Get(key)
	if ok {
		t.Fatal("TLS 1.3 ticket must not be handed out twice")
	}
}

func TestTLS12SessionMayBeReused(t *testing.T) {
	c := sessioncache.New(4)
	key := sessioncache.Key{Authority: "a.test:443"}
	c.Insert(key, sessioncache.Ticket{Raw: []byte("t1"), TLS13: false}.WithID("id1"))

	_, ok1 := c.Get(key)
	_, ok2 := c.Get(key)
	if !ok1 || !ok2 {
		t.Fatal("TLS 1.2 session should be retrievable repeatedly")
	}
}

func TestPerHostCapacityEvictsOldest(t *testing.T) {
	c := sessioncache.New(2)
	key := sessioncache.Key{Authority: "a.test:443"}
	c.Insert(key, sessioncache.Ticket{TLS13: false}.WithID("id1"))
	c.Insert(key, sessioncache.Ticket{TLS13: false}.WithID("id2"))
	c.Insert(key, sessioncache.Ticket{TLS13: false}.WithID("id3"))

	if c.Len() != 2 {
		t.Fatalf("expected capacity-limited Len()==2, got %d", c.Len())
	}
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	c := sessioncache.New(4)
	a := sessioncache.Key{Authority: "a.test:443"}
	b := sessioncache.Key{Authority: "b.test:443"}
	c.Insert(a, sessioncache.Ticket{TLS13: true}.WithID("id1"))

	if _, ok := c.Get(b); ok {
		t.Fatal("expected no ticket under an unrelated key")
	}
	if _, ok := c.Get(a); !ok {
		t.Fatal("expected ticket still present under its own key")
	}
}
