package cache

import (
	"testing"
	"time"

	"pv-go/internal/pv"
	"pv-go/internal/testutil"
)

func TestPathIdentityResolve(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	clock := testutil.FixedClock()
	idx := testutil.NewTestIndex(t, clock)
	c := NewPathIdentityCache(fsmgr, idx, pv.NewNopLogger())

	content := []byte("photo bytes")
	fsmgr.AddFile("/photos/a.jpg", content)

	path, err := fsmgr.Resolve("/photos/a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	hash, err := c.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if hash != testutil.MD5Hex(content) {
		t.Errorf("expected %s, got %s", testutil.MD5Hex(content), hash)
	}

	t.Run("unchanged file hits the cache", func(t *testing.T) {
		again, err := c.Resolve(path)
		if err != nil {
			t.Fatal(err)
		}
		if again != hash {
			t.Errorf("expected cached hash %s, got %s", hash, again)
		}
	})

	t.Run("disk tier survives a fresh memory tier", func(t *testing.T) {
		fresh := NewPathIdentityCache(fsmgr, idx, pv.NewNopLogger())
		got, err := fresh.Resolve(path)
		if err != nil {
			t.Fatal(err)
		}
		if got != hash {
			t.Errorf("expected persisted hash %s, got %s", hash, got)
		}

		rec, err := idx.GetPathIdentity(path.String())
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil || rec.ContentHash != hash {
			t.Errorf("expected index record with hash %s, got %+v", hash, rec)
		}
	})
}

func TestPathIdentityInvalidation(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	clock := testutil.FixedClock()
	idx := testutil.NewTestIndex(t, clock)
	c := NewPathIdentityCache(fsmgr, idx, pv.NewNopLogger())

	fsmgr.AddFileWithModTime("/photos/a.jpg", []byte("version one"), clock.Now())

	path, err := fsmgr.Resolve("/photos/a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	first, err := c.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("mtime change triggers re-hash", func(t *testing.T) {
		fsmgr.SetContent("/photos/a.jpg", []byte("version two"))
		fsmgr.Touch("/photos/a.jpg", clock.Now().Add(time.Hour))

		path, err := fsmgr.Resolve("/photos/a.jpg")
		if err != nil {
			t.Fatal(err)
		}
		second, err := c.Resolve(path)
		if err != nil {
			t.Fatal(err)
		}
		if second == first {
			t.Error("expected a fresh hash after mtime change")
		}
		if second != testutil.MD5Hex([]byte("version two")) {
			t.Errorf("expected hash of new content, got %s", second)
		}
	})

	t.Run("same size and mtime resolves to the recorded hash", func(t *testing.T) {
		// (size, mtime) is the invalidation signal. A rewrite that holds
		// both constant is invisible until either changes.
		fsmgr.SetContent("/photos/a.jpg", []byte("version 2.1"))

		path, err := fsmgr.Resolve("/photos/a.jpg")
		if err != nil {
			t.Fatal(err)
		}
		got, err := c.Resolve(path)
		if err != nil {
			t.Fatal(err)
		}
		if got != testutil.MD5Hex([]byte("version two")) {
			t.Errorf("expected the stale recorded hash, got %s", got)
		}
	})
}

func TestPathIdentityIndexErrorsDegradeToMiss(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	c := NewPathIdentityCache(fsmgr, nil, pv.NewNopLogger())

	content := []byte("photo bytes")
	fsmgr.AddFile("/photos/a.jpg", content)

	path, err := fsmgr.Resolve("/photos/a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	// No index at all: resolution still works from hashing alone.
	hash, err := c.Resolve(path)
	if err != nil {
		t.Fatalf("Resolve without index failed: %v", err)
	}
	if hash != testutil.MD5Hex(content) {
		t.Errorf("expected %s, got %s", testutil.MD5Hex(content), hash)
	}
}
