package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pv-go/internal/pv"
	"pv-go/internal/testutil"
)

func newTestDigestCache(t *testing.T, maxEntries int, maxBytes int64) (*DigestCache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := NewDigestCache(dir, maxEntries, maxBytes, testutil.FixedClock(), pv.NewNopLogger())
	if err != nil {
		t.Fatalf("creating digest cache: %v", err)
	}
	return c, dir
}

func testDigest(hash string, thumbSize int) *Digest {
	return &Digest{
		ContentHash: hash,
		Thumbnail:   make([]byte, thumbSize),
		Width:       256,
		Height:      192,
		Format:      "jpeg",
		Size:        int64(thumbSize) * 10,
	}
}

func TestDigestCachePutGet(t *testing.T) {
	c, dir := newTestDigestCache(t, 10, 1<<20)

	d := testDigest("aabbccdd", 100)
	if err := c.Put(d); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get("aabbccdd")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Width != 256 || got.Format != "jpeg" || len(got.Thumbnail) != 100 {
		t.Errorf("unexpected digest: %+v", got)
	}

	t.Run("disk copy is sharded by hash prefix", func(t *testing.T) {
		if _, err := os.Stat(filepath.Join(dir, "aa", "aabbccdd.dgst")); err != nil {
			t.Errorf("expected sharded disk file: %v", err)
		}
	})

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		if _, err := c.Get("ffffffff"); !errors.Is(err, pv.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDigestCacheEviction(t *testing.T) {
	t.Run("entry cap evicts least recently used", func(t *testing.T) {
		c, _ := newTestDigestCache(t, 2, 1<<20)

		for _, h := range []string{"aa11", "bb22", "cc33"} {
			if err := c.Put(testDigest(h, 10)); err != nil {
				t.Fatal(err)
			}
		}
		if c.Len() != 2 {
			t.Errorf("expected 2 memory entries, got %d", c.Len())
		}

		// aa11 was evicted from memory but its disk copy survives, so a
		// Get still succeeds and re-admits it.
		if _, err := c.Get("aa11"); err != nil {
			t.Errorf("expected disk fallback for evicted entry, got %v", err)
		}
	})

	t.Run("byte cap evicts by thumbnail size", func(t *testing.T) {
		c, _ := newTestDigestCache(t, 100, 250)

		if err := c.Put(testDigest("aa11", 100)); err != nil {
			t.Fatal(err)
		}
		if err := c.Put(testDigest("bb22", 100)); err != nil {
			t.Fatal(err)
		}
		if err := c.Put(testDigest("cc33", 100)); err != nil {
			t.Fatal(err)
		}
		if c.Len() != 2 {
			t.Errorf("expected 2 entries within the byte budget, got %d", c.Len())
		}
	})

	t.Run("recently used entries survive", func(t *testing.T) {
		c, _ := newTestDigestCache(t, 2, 1<<20)

		if err := c.Put(testDigest("aa11", 10)); err != nil {
			t.Fatal(err)
		}
		if err := c.Put(testDigest("bb22", 10)); err != nil {
			t.Fatal(err)
		}
		if _, err := c.Get("aa11"); err != nil {
			t.Fatal(err)
		}
		// bb22 is now the LRU entry and should be the one evicted.
		if err := c.Put(testDigest("cc33", 10)); err != nil {
			t.Fatal(err)
		}

		elem, ok := c.entries["aa11"]
		if !ok || elem == nil {
			t.Error("expected aa11 retained in memory after recent use")
		}
		if _, ok := c.entries["bb22"]; ok {
			t.Error("expected bb22 evicted from memory")
		}
	})
}

func TestDigestCacheRemoveAndClear(t *testing.T) {
	c, dir := newTestDigestCache(t, 10, 1<<20)

	if err := c.Put(testDigest("aa11", 10)); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(testDigest("bb22", 10)); err != nil {
		t.Fatal(err)
	}

	t.Run("remove deletes both tiers", func(t *testing.T) {
		if err := c.Remove("aa11"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, err := c.Get("aa11"); !errors.Is(err, pv.ErrNotFound) {
			t.Errorf("expected ErrNotFound after remove, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, "aa", "aa11.dgst")); !os.IsNotExist(err) {
			t.Errorf("expected disk file removed, got %v", err)
		}
	})

	t.Run("remove of a missing entry is not an error", func(t *testing.T) {
		if err := c.Remove("no-such-hash"); err != nil {
			t.Errorf("Remove of missing entry failed: %v", err)
		}
	})

	t.Run("clear empties the cache", func(t *testing.T) {
		if err := c.Clear(); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d entries", c.Len())
		}
		if _, err := c.Get("bb22"); !errors.Is(err, pv.ErrNotFound) {
			t.Errorf("expected ErrNotFound after clear, got %v", err)
		}
	})
}

func TestDigestCachePersistence(t *testing.T) {
	dir := t.TempDir()
	clock := testutil.FixedClock()

	c1, err := NewDigestCache(dir, 10, 1<<20, clock, pv.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Put(testDigest("aa11", 10)); err != nil {
		t.Fatal(err)
	}

	// A fresh cache over the same directory warms from disk.
	c2, err := NewDigestCache(dir, 10, 1<<20, clock, pv.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	got, err := c2.Get("aa11")
	if err != nil {
		t.Fatalf("expected disk hit in fresh cache, got %v", err)
	}
	if got.ContentHash != "aa11" {
		t.Errorf("unexpected digest: %+v", got)
	}
}
