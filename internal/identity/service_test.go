package identity

import (
	"context"
	"sync"
	"testing"

	"pv-go/internal/objectstore"
	"pv-go/internal/pv"
	"pv-go/internal/testutil"
)

func TestGetOrCreateInternalID(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	svc := NewService(store, testutil.NewStubIDGenerator(), pv.NewNopLogger())

	first, err := svc.GetOrCreateInternalID(ctx, "apple", "user@example.com")
	if err != nil {
		t.Fatalf("first sign-in failed: %v", err)
	}
	if first == "" {
		t.Fatal("expected non-empty account ID")
	}

	t.Run("repeat sign-in returns the same account", func(t *testing.T) {
		again, err := svc.GetOrCreateInternalID(ctx, "apple", "user@example.com")
		if err != nil {
			t.Fatalf("repeat sign-in failed: %v", err)
		}
		if again != first {
			t.Errorf("expected %s, got %s", first, again)
		}
	})

	t.Run("different identity gets a different account", func(t *testing.T) {
		other, err := svc.GetOrCreateInternalID(ctx, "google", "user@example.com")
		if err != nil {
			t.Fatal(err)
		}
		if other == first {
			t.Error("distinct external identities must not share an account")
		}
	})

	t.Run("validation", func(t *testing.T) {
		if _, err := svc.GetOrCreateInternalID(ctx, "", "user@example.com"); err == nil {
			t.Error("expected error for empty provider")
		}
		if _, err := svc.GetOrCreateInternalID(ctx, "apple", ""); err == nil {
			t.Error("expected error for empty external ID")
		}
	})
}

func TestGetOrCreateInternalIDLostRace(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	svc := NewService(store, testutil.NewStubIDGenerator(), pv.NewNopLogger())

	// Simulate another device winning the conditional create between this
	// device's read and write: the mapping already exists when we start.
	key := pv.IdentityKey("apple", "user@example.com")
	created, err := store.PutIfAbsent(ctx, key, []byte("winner-account"))
	if err != nil || !created {
		t.Fatalf("seeding winner mapping: created=%v err=%v", created, err)
	}

	got, err := svc.GetOrCreateInternalID(ctx, "apple", "user@example.com")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if got != "winner-account" {
		t.Errorf("expected the winner's account, got %s", got)
	}
}

func TestGetOrCreateInternalIDConcurrent(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	// Each goroutine uses its own service so candidate IDs differ, like
	// first sign-ins racing from multiple devices.
	const devices = 8
	accounts := make([]string, devices)
	var wg sync.WaitGroup
	for i := range devices {
		svc := NewService(store, testutil.NewStubIDGenerator(), pv.NewNopLogger())
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := svc.GetOrCreateInternalID(ctx, "apple", "user@example.com")
			if err != nil {
				t.Errorf("device %d sign-in failed: %v", i, err)
				return
			}
			accounts[i] = id
		}()
	}
	wg.Wait()

	for i := 1; i < devices; i++ {
		if accounts[i] != accounts[0] {
			t.Fatalf("devices resolved different accounts: %v", accounts)
		}
	}
}
