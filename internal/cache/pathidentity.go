package cache

import (
	"fmt"
	"sync"

	"pv-go/internal/pv"
)

// PathIdentityCache resolves a file's content hash from its normalized path
// plus observed (size, mtime), hashing bytes only when the recorded triple no
// longer matches. The memory tier is a map; the disk tier is the local index.
// Repeated scans of an unchanged directory never re-read file bytes.
//
// Known limitation: a file whose bytes change while its size and mtime are
// held constant resolves to the old hash. (size, mtime) is the invalidation
// signal, not content comparison.
type PathIdentityCache struct {
	fsmgr  pv.FilesystemManager
	index  pv.Index
	logger pv.Logger

	mu     sync.Mutex
	memory map[string]*pv.PathIdentityRecord
}

// NewPathIdentityCache creates a path-identity cache over the given index.
// index may be nil, in which case only the memory tier is used.
func NewPathIdentityCache(fsmgr pv.FilesystemManager, index pv.Index, logger pv.Logger) *PathIdentityCache {
	return &PathIdentityCache{
		fsmgr:  fsmgr,
		index:  index,
		logger: logger,
		memory: make(map[string]*pv.PathIdentityRecord),
	}
}

// Resolve returns the content hash for path, from cache when (size, mtime)
// match the stored record, otherwise by hashing the file's bytes and
// recording the fresh triple in both tiers.
func (c *PathIdentityCache) Resolve(path *pv.Path) (string, error) {
	info := path.Info()
	size := info.Size()
	mtimeNS := info.ModTime().UnixNano()
	key := path.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec, ok := c.memory[key]; ok && rec.Size == size && rec.ModTimeNS == mtimeNS {
		return rec.ContentHash, nil
	}

	// Fall through to the disk tier. Index errors degrade to a cache miss:
	// the cache is an optimization, not a source of truth.
	if c.index != nil {
		rec, err := c.index.GetPathIdentity(key)
		if err != nil {
			c.logger.Warn("path identity lookup failed, re-hashing", "path", key, "error", err)
		} else if rec != nil && rec.Size == size && rec.ModTimeNS == mtimeNS {
			c.memory[key] = rec
			return rec.ContentHash, nil
		}
	}

	hash, err := c.hashFile(path)
	if err != nil {
		return "", err
	}

	rec := &pv.PathIdentityRecord{
		Path:        key,
		Size:        size,
		ModTimeNS:   mtimeNS,
		ContentHash: hash,
	}
	c.memory[key] = rec

	if c.index != nil {
		if err := c.index.UpsertPathIdentity(rec); err != nil {
			c.logger.Warn("persisting path identity failed", "path", key, "error", err)
		}
	}

	return hash, nil
}

func (c *PathIdentityCache) hashFile(path *pv.Path) (string, error) {
	f, err := c.fsmgr.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	hash, _, err := pv.ContentHash(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path.String(), err)
	}
	return hash, nil
}
