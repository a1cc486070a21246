package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLRU(size int, ttl time.Duration) (*LRU[string, int], *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRU[string, int](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRU_GetSet(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache returned a value")
	}
	c.Set("a", 1)
	c.Set("a", 2)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Fatalf("Get(a) = %v, %v; want 2, true", v, ok)
	}
	if c.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", c.Size())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestLRU(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be cached")
	}
}

func TestLRU_Expiry(t *testing.T) {
	c, clk := newTestLRU(10, time.Minute)

	c.Set("a", 1)
	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", 2)
	clk.t = clk.t.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have expired")
	}
	if n := c.CleanExpired(); n != 0 {
		t.Errorf("CleanExpired() = %d, want 0 (a already dropped by Get)", n)
	}
	clk.t = clk.t.Add(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRU_DeleteAndPurge(t *testing.T) {
	c, _ := newTestLRU(10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size() after Purge = %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Error("cache unusable after Purge")
	}
}

func TestJanitor_Sweep(t *testing.T) {
	c, clk := newTestLRU(10, time.Second)
	c.Set("a", 1)
	clk.t = clk.t.Add(2 * time.Second)

	j := NewJanitor()
	j.Register(c)
	if n := j.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}

	j.Start(time.Hour)
	j.Stop()
	j.Stop()
}
