package catalog

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"pv-go/internal/pv"
)

func makeEntries(n int) []*Entry {
	entries := make([]*Entry, 0, n)
	for i := range n {
		entries = append(entries, &Entry{
			ContentHash:  fmt.Sprintf("%032d", i),
			FileSize:     int64(i + 1),
			Format:       FormatJPEG,
			BackupStatus: BackupNotUploaded,
		})
	}
	return entries
}

func TestNewSnapshot(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("entries are sorted by content hash", func(t *testing.T) {
		snap := NewSnapshot(1, created, []*Entry{
			{ContentHash: "cccc"},
			{ContentHash: "aaaa"},
			{ContentHash: "bbbb"},
		})

		var hashes []string
		for _, e := range snap.Entries() {
			hashes = append(hashes, e.ContentHash)
		}
		if strings.Join(hashes, ",") != "aaaa,bbbb,cccc" {
			t.Errorf("unexpected order: %v", hashes)
		}
	})

	t.Run("duplicate hashes collapse to one entry", func(t *testing.T) {
		snap := NewSnapshot(1, created, []*Entry{
			{ContentHash: "aaaa", FileSize: 10},
			{ContentHash: "aaaa", FileSize: 10},
			{ContentHash: "bbbb", FileSize: 20},
		})
		if snap.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", snap.Len())
		}
	})
}

func TestSnapshotEncodeDecode(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := NewSnapshot(3, created, makeEntries(25))

	objects, err := snap.encode(10)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// 25 entries at 10 per shard: 3 shards plus the manifest.
	if len(objects) != 4 {
		t.Fatalf("expected 4 objects, got %d", len(objects))
	}

	manifestObj := objects[len(objects)-1]
	if snap.Hash() != manifestObj.Hash {
		t.Errorf("snapshot hash %s does not name the manifest %s", snap.Hash(), manifestObj.Hash)
	}

	manifest, err := decodeManifest(manifestObj.Hash, manifestObj.Data)
	if err != nil {
		t.Fatalf("decodeManifest failed: %v", err)
	}
	if manifest.Version != 3 || manifest.Count != 25 || len(manifest.Shards) != 3 {
		t.Errorf("unexpected manifest: %+v", manifest)
	}

	var decoded []*Entry
	for i, ref := range manifest.Shards {
		entries, err := decodeShard(ref.Hash, objects[i].Data)
		if err != nil {
			t.Fatalf("decodeShard %d failed: %v", i, err)
		}
		if len(entries) != ref.Count {
			t.Errorf("shard %d: manifest says %d entries, decoded %d", i, ref.Count, len(entries))
		}
		decoded = append(decoded, entries...)
	}
	if len(decoded) != 25 {
		t.Fatalf("expected 25 entries round-tripped, got %d", len(decoded))
	}
	for i, e := range decoded {
		if e.ContentHash != snap.Entries()[i].ContentHash {
			t.Fatalf("entry %d: expected %s, got %s", i, snap.Entries()[i].ContentHash, e.ContentHash)
		}
	}
}

func TestSnapshotEncodeDeterministic(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	a := NewSnapshot(1, created, makeEntries(5))
	b := NewSnapshot(1, created, makeEntries(5))

	objsA, err := a.encode(10)
	if err != nil {
		t.Fatal(err)
	}
	objsB, err := b.encode(10)
	if err != nil {
		t.Fatal(err)
	}

	if a.Hash() != b.Hash() {
		t.Errorf("identical snapshots produced different hashes: %s vs %s", a.Hash(), b.Hash())
	}
	if len(objsA) != len(objsB) {
		t.Fatalf("object count differs: %d vs %d", len(objsA), len(objsB))
	}
	for i := range objsA {
		if objsA[i].Hash != objsB[i].Hash {
			t.Errorf("object %d hash differs", i)
		}
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := NewSnapshot(1, created, makeEntries(3))

	objects, err := snap.encode(10)
	if err != nil {
		t.Fatal(err)
	}
	shardObj, manifestObj := objects[0], objects[1]

	t.Run("flipped shard byte", func(t *testing.T) {
		corrupt := append([]byte{}, shardObj.Data...)
		corrupt[0] ^= 0xff
		if _, err := decodeShard(shardObj.Hash, corrupt); err == nil {
			t.Error("expected checksum error for corrupt shard")
		}
	})

	t.Run("flipped manifest byte", func(t *testing.T) {
		corrupt := append([]byte{}, manifestObj.Data...)
		corrupt[0] ^= 0xff
		if _, err := decodeManifest(manifestObj.Hash, corrupt); err == nil {
			t.Error("expected checksum error for corrupt manifest")
		}
	})

	t.Run("wrong hash", func(t *testing.T) {
		if _, err := decodeShard(pv.ContentHashBytes([]byte("other")), shardObj.Data); err == nil {
			t.Error("expected checksum error for mismatched hash")
		}
	})
}
