package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pv-go/internal/pv"
)

func TestMemoryStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("hello world")
	if err := store.Put(ctx, "photos/a/1.dat", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	r, err := store.Get(ctx, "photos/a/1.dat")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("expected %q, got %q", content, got)
	}

	t.Run("size mismatch is rejected", func(t *testing.T) {
		err := store.Put(ctx, "photos/a/2.dat", strings.NewReader("abc"), 99)
		if err == nil {
			t.Error("expected size mismatch error")
		}
	})

	t.Run("missing key returns ErrNotFound", func(t *testing.T) {
		if _, err := store.Get(ctx, "missing"); !errors.Is(err, pv.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryStorePutIfAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.PutIfAbsent(ctx, "identities/apple/u1", []byte("first"))
	if err != nil {
		t.Fatalf("PutIfAbsent failed: %v", err)
	}
	if !created {
		t.Fatal("expected first write to create")
	}

	created, err = store.PutIfAbsent(ctx, "identities/apple/u1", []byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected second write to lose")
	}

	// The losing write must not clobber the existing value.
	r, err := store.Get(ctx, "identities/apple/u1")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "first" {
		t.Errorf("expected first writer's value, got %q", data)
	}
}

func TestMemoryStoreHead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	content := []byte("12345")
	if err := store.Put(ctx, "k", bytes.NewReader(content), 5); err != nil {
		t.Fatal(err)
	}

	info, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if info.Key != "k" || info.Size != 5 {
		t.Errorf("unexpected info: %+v", info)
	}

	if _, err := store.Head(ctx, "missing"); !errors.Is(err, pv.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, key := range []string{"photos/a/2.dat", "photos/a/1.dat", "photos/b/1.dat", "thumbnails/a/1.dat"} {
		if err := store.Put(ctx, key, strings.NewReader("x"), 1); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := store.List(ctx, "photos/a/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(infos))
	}
	if infos[0].Key != "photos/a/1.dat" || infos[1].Key != "photos/a/2.dat" {
		t.Errorf("expected key-ordered results, got %v", infos)
	}

	t.Run("empty prefix lists everything", func(t *testing.T) {
		all, err := store.List(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 4 {
			t.Errorf("expected 4 objects, got %d", len(all))
		}
	})
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "k", strings.NewReader("x"), 1); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "k"); !errors.Is(err, pv.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	t.Run("deleting a missing key is not an error", func(t *testing.T) {
		if err := store.Delete(ctx, "never-existed"); err != nil {
			t.Errorf("Delete of missing key failed: %v", err)
		}
	})
}
