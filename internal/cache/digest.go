package cache

import (
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pv-go/internal/pv"
)

// Digest is the browsable unit of dedupable photo data: the thumbnail plus
// extracted metadata for one content hash. UI layers hold only the content
// hash and look digests up here; the cache is the sole owner of the bytes.
type Digest struct {
	ContentHash    string    `json:"content_hash"`
	Thumbnail      []byte    `json:"thumbnail"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Format         string    `json:"format"`
	Size           int64     `json:"size"`
	CaptureDate    time.Time `json:"capture_date,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Default memory-tier bounds for the digest cache.
const (
	DefaultMaxEntries = 4096
	DefaultMaxBytes   = 64 * 1024 * 1024
)

// DigestCache is the two-tier content-digest cache: a bounded LRU in memory
// over a sharded on-disk store. Disk files live under {dir}/{hh}/{hash}.dgst
// where hh is the first two hex characters of the hash, bounding directory
// fan-out. Eviction from memory never deletes the disk copy; disk removal is
// the explicit Remove/Clear operations.
//
// All mutating operations are serialized per cache instance.
type DigestCache struct {
	dir        string
	maxEntries int
	maxBytes   int64
	clock      pv.Clock
	logger     pv.Logger

	mu         sync.Mutex
	entries    map[string]*list.Element // contentHash -> LRU element
	lru        *list.List               // front = most recently used
	totalBytes int64
}

// NewDigestCache creates a digest cache persisting to dir.
// maxEntries/maxBytes bound the memory tier; zero values select defaults.
func NewDigestCache(dir string, maxEntries int, maxBytes int64, clock pv.Clock, logger pv.Logger) (*DigestCache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating digest cache directory: %w", err)
	}

	return &DigestCache{
		dir:        dir,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		clock:      clock,
		logger:     logger,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}, nil
}

// Get returns the digest for a content hash, consulting memory then disk.
// Returns ErrNotFound on a miss; the caller regenerates and calls Put.
// Every hit bumps LastAccessedAt.
func (c *DigestCache) Get(contentHash string) (*Digest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[contentHash]; ok {
		c.lru.MoveToFront(elem)
		d := elem.Value.(*Digest)
		d.LastAccessedAt = c.clock.Now()
		return d, nil
	}

	d, err := c.readDisk(contentHash)
	if err != nil {
		if !errors.Is(err, pv.ErrNotFound) {
			// Disk I/O failures degrade to a miss: regenerate rather than fail.
			c.logger.Warn("digest disk read failed", "hash", contentHash, "error", err)
		}
		return nil, fmt.Errorf("digest %s: %w", contentHash, pv.ErrNotFound)
	}

	d.LastAccessedAt = c.clock.Now()
	c.insert(d)
	return d, nil
}

// Put stores a digest in both tiers.
func (c *DigestCache) Put(d *Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.LastAccessedAt = now

	c.insert(d)

	if err := c.writeDisk(d); err != nil {
		// The memory copy stays valid; disk persistence is best-effort.
		c.logger.Warn("digest disk write failed", "hash", d.ContentHash, "error", err)
	}
	return nil
}

// Remove deletes a digest from both tiers.
func (c *DigestCache) Remove(contentHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[contentHash]; ok {
		c.drop(elem)
	}

	if err := os.Remove(c.diskPath(contentHash)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing digest from disk: %w", err)
	}
	return nil
}

// Clear empties both tiers.
func (c *DigestCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
	c.totalBytes = 0

	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("clearing digest cache: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("recreating digest cache directory: %w", err)
	}
	return nil
}

// Len returns the number of entries in the memory tier.
func (c *DigestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// insert adds or refreshes a memory-tier entry and evicts LRU entries past
// the configured bounds. Caller holds c.mu.
func (c *DigestCache) insert(d *Digest) {
	if elem, ok := c.entries[d.ContentHash]; ok {
		c.totalBytes -= int64(len(elem.Value.(*Digest).Thumbnail))
		elem.Value = d
		c.totalBytes += int64(len(d.Thumbnail))
		c.lru.MoveToFront(elem)
	} else {
		c.entries[d.ContentHash] = c.lru.PushFront(d)
		c.totalBytes += int64(len(d.Thumbnail))
	}

	for c.lru.Len() > c.maxEntries || c.totalBytes > c.maxBytes {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.drop(oldest)
	}
}

// drop removes a memory-tier entry. Caller holds c.mu.
func (c *DigestCache) drop(elem *list.Element) {
	d := elem.Value.(*Digest)
	c.lru.Remove(elem)
	delete(c.entries, d.ContentHash)
	c.totalBytes -= int64(len(d.Thumbnail))
}

// diskPath returns the sharded on-disk location for a content hash.
func (c *DigestCache) diskPath(contentHash string) string {
	shard := "00"
	if len(contentHash) >= 2 {
		shard = contentHash[:2]
	}
	return filepath.Join(c.dir, shard, contentHash+".dgst")
}

func (c *DigestCache) readDisk(contentHash string) (*Digest, error) {
	data, err := os.ReadFile(c.diskPath(contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pv.ErrNotFound
		}
		return nil, err
	}

	var d Digest
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decoding digest: %w", err)
	}
	return &d, nil
}

func (c *DigestCache) writeDisk(d *Digest) error {
	path := c.diskPath(d.ContentHash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encoding digest: %w", err)
	}

	// Write to a temp file and rename so readers never see a torn digest.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
