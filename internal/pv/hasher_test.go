package pv

import (
	"strings"
	"testing"
)

func TestContentHash(t *testing.T) {
	hash, n, err := ContentHash(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("ContentHash failed: %v", err)
	}
	if n != 11 {
		t.Errorf("expected 11 bytes counted, got %d", n)
	}
	// md5("hello world")
	if hash != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("unexpected hash: %s", hash)
	}

	t.Run("empty input", func(t *testing.T) {
		hash, n, err := ContentHash(strings.NewReader(""))
		if err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("expected 0 bytes, got %d", n)
		}
		if hash != "d41d8cd98f00b204e9800998ecf8427e" {
			t.Errorf("unexpected hash: %s", hash)
		}
	})

	t.Run("bytes variant matches reader variant", func(t *testing.T) {
		if got := ContentHashBytes([]byte("hello world")); got != hash {
			t.Errorf("ContentHashBytes disagrees: %s vs %s", got, hash)
		}
	})
}
