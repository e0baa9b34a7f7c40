package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"pv-go/internal/pv"
)

// Snapshot is an immutable, versioned set of catalog entries. A snapshot is
// never mutated after publish; a new snapshot supersedes the prior one.
// Entries are kept sorted by content hash so serialization is deterministic
// and the snapshot's own content hash is stable.
type Snapshot struct {
	Version   int64
	CreatedAt time.Time
	entries   []*Entry
	byHash    map[string]*Entry
	hash      string // set once published or loaded
}

// NewSnapshot builds a snapshot from entries. Entries are sorted by content
// hash; duplicate hashes collapse to the last occurrence.
func NewSnapshot(version int64, createdAt time.Time, entries []*Entry) *Snapshot {
	byHash := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		byHash[e.ContentHash] = e
	}

	sorted := make([]*Entry, 0, len(byHash))
	for _, e := range byHash {
		sorted = append(sorted, e)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ContentHash < sorted[j].ContentHash })

	return &Snapshot{
		Version:   version,
		CreatedAt: createdAt,
		entries:   sorted,
		byHash:    byHash,
	}
}

// Entries returns the snapshot's entries, sorted by content hash.
// The returned slice must not be modified.
func (s *Snapshot) Entries() []*Entry {
	return s.entries
}

// Get returns the entry for a content hash, or nil.
func (s *Snapshot) Get(contentHash string) *Entry {
	return s.byHash[contentHash]
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Hash returns the snapshot's own content hash. Empty until the snapshot
// has been published or loaded.
func (s *Snapshot) Hash() string {
	return s.hash
}

// Wire format. A snapshot serializes as one manifest object plus zero or
// more shard objects, each holding at most shardSize entries. Shards are
// content-addressed like everything else: the manifest references them by
// hash, and the manifest's own hash names the snapshot.

type shardDoc struct {
	Entries []*Entry `json:"entries"`
}

type shardRef struct {
	Hash  string `json:"hash"`
	Count int    `json:"count"`
}

type manifestDoc struct {
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	Count     int        `json:"count"`
	Shards    []shardRef `json:"shards"`
}

// EncodedObject is one serialized snapshot object ready to be written.
type EncodedObject struct {
	Hash string
	Data []byte
}

// encode serializes the snapshot into shard objects plus a manifest object.
// The manifest is last; its hash is the snapshot hash. encode also stamps
// the snapshot's hash field.
func (s *Snapshot) encode(shardSize int) ([]EncodedObject, error) {
	if shardSize <= 0 {
		return nil, fmt.Errorf("shard size must be positive, got %d", shardSize)
	}

	var objects []EncodedObject
	var refs []shardRef

	for start := 0; start < len(s.entries); start += shardSize {
		end := min(start+shardSize, len(s.entries))
		data, err := json.Marshal(shardDoc{Entries: s.entries[start:end]})
		if err != nil {
			return nil, fmt.Errorf("encoding shard: %w", err)
		}
		hash := pv.ContentHashBytes(data)
		objects = append(objects, EncodedObject{Hash: hash, Data: data})
		refs = append(refs, shardRef{Hash: hash, Count: end - start})
	}

	manifest, err := json.Marshal(manifestDoc{
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		Count:     len(s.entries),
		Shards:    refs,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	s.hash = pv.ContentHashBytes(manifest)
	objects = append(objects, EncodedObject{Hash: s.hash, Data: manifest})
	return objects, nil
}

// decodeManifest parses and checksum-verifies a manifest object.
func decodeManifest(snapshotHash string, data []byte) (*manifestDoc, error) {
	if got := pv.ContentHashBytes(data); got != snapshotHash {
		return nil, fmt.Errorf("manifest checksum mismatch: want %s, got %s", snapshotHash, got)
	}

	var doc manifestDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &doc, nil
}

// decodeShard parses and checksum-verifies a shard object.
func decodeShard(shardHash string, data []byte) ([]*Entry, error) {
	if got := pv.ContentHashBytes(data); got != shardHash {
		return nil, fmt.Errorf("shard checksum mismatch: want %s, got %s", shardHash, got)
	}

	var doc shardDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding shard: %w", err)
	}
	return doc.Entries, nil
}
