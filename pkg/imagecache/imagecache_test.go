package imagecache

import (
	"fmt"
	"testing"

	"zipview/pkg/metrics"
	"zipview/pkg/viewer"
)

func entry(ordinal int) viewer.ImageEntry {
	return viewer.ImageEntry{
		Source:  "/vol.zip",
		Path:    fmt.Sprintf("%03d.jpg", ordinal),
		Name:    fmt.Sprintf("%03d.jpg", ordinal),
		Ordinal: ordinal,
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	c := New(5, 2, metrics.NewCollector())

	for i := 0; i <= 20; i++ {
		e := entry(i)
		c.SetActive(i)
		c.Put(e, []byte{byte(i)})

		if c.Len() > 5 {
			t.Fatalf("after insert %d: len = %d, exceeds capacity 5", i, c.Len())
		}
		if !c.Contains(e.Key()) {
			t.Fatalf("most recently inserted entry %d missing", i)
		}
	}
}

func TestEvictionProtectsActiveWindow(t *testing.T) {
	c := New(4, 1, metrics.NewCollector())

	// Warm entry 0, then jump far away and fill under pressure.
	c.SetActive(0)
	c.Put(entry(0), []byte("zero"))

	c.SetActive(10)
	for _, ord := range []int{9, 10, 11, 12} {
		c.Put(entry(ord), []byte("x"))
	}

	if c.Contains(entry(0).Key()) {
		t.Fatal("far entry 0 should have been evicted under pressure")
	}
	if !c.Contains(entry(10).Key()) {
		t.Fatal("active entry 10 must never be evicted")
	}
}

func TestEvictionTieBreakIsDeterministic(t *testing.T) {
	c := New(3, 0, metrics.NewCollector())
	c.SetActive(5)

	// Ordinals 2 and 8 are both distance 3; the higher ordinal goes first.
	c.Put(entry(5), []byte("active"))
	c.Put(entry(2), []byte("low"))
	c.Put(entry(8), []byte("high"))

	c.Put(entry(6), []byte("new"))

	if c.Contains(entry(8).Key()) {
		t.Fatal("ordinal 8 should be evicted before ordinal 2 on a distance tie")
	}
	if !c.Contains(entry(2).Key()) {
		t.Fatal("ordinal 2 should survive the tie-break")
	}
	if !c.Contains(entry(5).Key()) {
		t.Fatal("active entry should survive")
	}
}

func TestGetAndCounters(t *testing.T) {
	mets := metrics.NewCollector()
	c := New(5, 2, mets)

	e := entry(1)
	if _, ok := c.Get(e.Key()); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	c.Put(e, []byte("one"))
	data, ok := c.Get(e.Key())
	if !ok || string(data) != "one" {
		t.Fatalf("get = %q/%v, want one/true", data, ok)
	}

	if mets.CacheHits.Load() != 1 || mets.CacheMisses.Load() != 1 {
		t.Fatalf("hits=%d misses=%d, want 1/1", mets.CacheHits.Load(), mets.CacheMisses.Load())
	}
}

func TestClearWipesEverything(t *testing.T) {
	c := New(5, 2, metrics.NewCollector())
	for i := 0; i < 5; i++ {
		c.Put(entry(i), []byte("x"))
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("len after clear = %d, want 0", c.Len())
	}
	if c.Contains(entry(0).Key()) {
		t.Fatal("entry survived clear")
	}
}

func TestReinsertDoesNotEvict(t *testing.T) {
	mets := metrics.NewCollector()
	c := New(2, 1, mets)
	c.SetActive(0)

	c.Put(entry(0), []byte("a"))
	c.Put(entry(1), []byte("b"))
	c.Put(entry(0), []byte("a2"))

	if mets.Evictions.Load() != 0 {
		t.Fatalf("evictions = %d, want 0 for overwrite of existing key", mets.Evictions.Load())
	}
	data, _ := c.Get(entry(0).Key())
	if string(data) != "a2" {
		t.Fatalf("got %q, want a2", data)
	}
}
