package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pv-go/internal/cache"
	"pv-go/internal/pv"
)

// DefaultShardSize bounds the number of entries per snapshot shard object.
const DefaultShardSize = 1000

// Info describes the currently published snapshot, for UI display.
type Info struct {
	SnapshotHash string
	EntryCount   int
	Version      int64
}

// Service owns one catalog namespace: the authoritative manifest of entries
// for a collection, its published snapshot, and the publish protocol.
//
// Publish is atomic with respect to readers: snapshot objects are written
// before the pointer, so a reader that resolves the pointer always finds the
// snapshot it names. If the pointer write fails, the new snapshot objects
// are orphaned but harmless and the previous state stays authoritative.
//
// Across devices the pointer is a last-writer-wins register; divergent
// snapshots are not merged.
type Service struct {
	primary   Store
	mirror    Store // optional published cache; only ever behind the primary
	namespace string
	shardSize int
	clock     pv.Clock
	logger    pv.Logger

	mu      sync.RWMutex
	current *Snapshot
}

// NewService creates a catalog service for one namespace. mirror may be nil.
// shardSize <= 0 selects the default.
func NewService(primary, mirror Store, namespace string, shardSize int, clock pv.Clock, logger pv.Logger) *Service {
	if shardSize <= 0 {
		shardSize = DefaultShardSize
	}
	return &Service{
		primary:   primary,
		mirror:    mirror,
		namespace: namespace,
		shardSize: shardSize,
		clock:     clock,
		logger:    logger,
	}
}

// Initialize loads the published snapshot named by the pointer, or starts
// with an empty working snapshot if no pointer exists. A pointer naming a
// snapshot that cannot be fetched or fails checksum verification is a
// CorruptSnapshotError: fatal for this namespace until re-bootstrapped.
func (s *Service) Initialize(ctx context.Context) error {
	pointerHash, err := s.primary.ReadPointer(ctx)
	if err != nil {
		if errors.Is(err, pv.ErrNotFound) {
			s.mu.Lock()
			s.current = NewSnapshot(0, s.clock.Now(), nil)
			s.mu.Unlock()
			s.logger.Debug("catalog initialized empty", "namespace", s.namespace)
			return nil
		}
		return fmt.Errorf("reading catalog pointer: %w", err)
	}

	snap, err := s.load(ctx, pointerHash)
	if err != nil {
		return &pv.CorruptSnapshotError{Namespace: s.namespace, SnapshotHash: pointerHash, Reason: err}
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	s.logger.Debug("catalog rehydrated", "namespace", s.namespace, "snapshot", pointerHash, "entries", snap.Len())
	return nil
}

// load fetches and verifies the snapshot named by snapshotHash.
func (s *Service) load(ctx context.Context, snapshotHash string) (*Snapshot, error) {
	manifestData, err := s.primary.ReadObject(ctx, snapshotHash)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}

	manifest, err := decodeManifest(snapshotHash, manifestData)
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	for _, ref := range manifest.Shards {
		shardData, err := s.primary.ReadObject(ctx, ref.Hash)
		if err != nil {
			return nil, fmt.Errorf("fetching shard %s: %w", ref.Hash, err)
		}
		shardEntries, err := decodeShard(ref.Hash, shardData)
		if err != nil {
			return nil, err
		}
		entries = append(entries, shardEntries...)
	}

	if len(entries) != manifest.Count {
		return nil, fmt.Errorf("entry count mismatch: manifest says %d, shards hold %d", manifest.Count, len(entries))
	}

	snap := NewSnapshot(manifest.Version, manifest.CreatedAt, entries)
	snap.hash = snapshotHash
	return snap, nil
}

// Current returns the loaded snapshot. Reads are non-blocking once a
// snapshot is in memory.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentInfo returns pointer and entry count information for display.
func (s *Service) CurrentInfo() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Info{}
	}
	return Info{
		SnapshotHash: s.current.Hash(),
		EntryCount:   s.current.Len(),
		Version:      s.current.Version,
	}
}

// NextSnapshot builds a snapshot candidate from entries, versioned after the
// currently loaded snapshot.
func (s *Service) NextSnapshot(entries []*Entry) *Snapshot {
	s.mu.RLock()
	var version int64
	if s.current != nil {
		version = s.current.Version + 1
	}
	s.mu.RUnlock()
	return NewSnapshot(version, s.clock.Now(), entries)
}

// SetStarred updates the star flag on the entries for the given content
// hashes and publishes the result. Every hash must already be cataloged.
func (s *Service) SetStarred(ctx context.Context, contentHashes []string, starred bool) error {
	snap := s.Current()
	if snap == nil {
		return fmt.Errorf("catalog %s is not initialized", s.namespace)
	}

	for _, hash := range contentHashes {
		entry := snap.Get(hash)
		if entry == nil {
			return fmt.Errorf("content %s is not cataloged; scan its directory first", hash)
		}
		entry.IsStarred = starred
	}

	return s.Publish(ctx, s.NextSnapshot(snap.Entries()))
}

// Publish serializes the candidate snapshot, writes its shard and manifest
// objects, and updates the pointer as the last step. If a mirror is
// configured, its objects and pointer are written after the primary pointer,
// so mirror readers are only ever behind.
func (s *Service) Publish(ctx context.Context, snap *Snapshot) error {
	objects, err := snap.encode(s.shardSize)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	// Snapshot objects first. The manifest is the final object in the
	// slice; the pointer write below happens-after all of them.
	for _, obj := range objects {
		if err := s.primary.WriteObject(ctx, obj.Hash, obj.Data); err != nil {
			return fmt.Errorf("writing snapshot object %s: %w", obj.Hash, err)
		}
	}

	if err := s.primary.WritePointer(ctx, snap.Hash()); err != nil {
		return fmt.Errorf("updating catalog pointer: %w", err)
	}

	s.mu.Lock()
	s.current = snap
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.publishMirror(ctx, snap, objects); err != nil {
			// The primary publish already succeeded; the mirror simply
			// stays behind until the next publish.
			s.logger.Warn("mirror publish failed", "namespace", s.namespace, "error", err)
		}
	}

	s.logger.Info("catalog published", "namespace", s.namespace, "snapshot", snap.Hash(), "entries", snap.Len())
	return nil
}

func (s *Service) publishMirror(ctx context.Context, snap *Snapshot, objects []EncodedObject) error {
	for _, obj := range objects {
		if err := s.mirror.WriteObject(ctx, obj.Hash, obj.Data); err != nil {
			return fmt.Errorf("writing mirror object %s: %w", obj.Hash, err)
		}
	}
	if err := s.mirror.WritePointer(ctx, snap.Hash()); err != nil {
		return fmt.Errorf("updating mirror pointer: %w", err)
	}
	return nil
}

// Scanner builds snapshot candidates from a local directory.
type Scanner struct {
	fsmgr    pv.FilesystemManager
	pathIDs  *cache.PathIdentityCache
	digests  *cache.DigestCache // optional; enriches entries with dimensions
	logger   pv.Logger
}

// NewScanner creates a scanner. digests may be nil.
func NewScanner(fsmgr pv.FilesystemManager, pathIDs *cache.PathIdentityCache, digests *cache.DigestCache, logger pv.Logger) *Scanner {
	return &Scanner{fsmgr: fsmgr, pathIDs: pathIDs, digests: digests, logger: logger}
}

// ScanAndBuild walks the directory, resolves each photo's content hash via
// the path-identity cache, and merges the results with the service's current
// snapshot: entries absent from the scan are pruned, new or changed entries
// are added, and unchanged entries keep their backup status and star flag.
// The returned snapshot is a candidate; the caller publishes it.
func (sc *Scanner) ScanAndBuild(svc *Service, dir *pv.Path, recursive bool) (*Snapshot, error) {
	photos, err := sc.fsmgr.FindPhotos(dir, recursive)
	if err != nil {
		return nil, fmt.Errorf("discovering photos: %w", err)
	}

	prior := svc.Current()
	entries := make([]*Entry, 0, len(photos))

	for _, photo := range photos {
		hash, err := sc.pathIDs.Resolve(photo)
		if err != nil {
			return nil, fmt.Errorf("resolving content hash for %s: %w", photo.String(), err)
		}

		// Byte-identical files collapse to one entry; NewSnapshot
		// deduplicates on hash, so duplicates here are harmless.
		entry := &Entry{
			ContentHash:  hash,
			FileSize:     photo.Info().Size(),
			ModifiedAt:   photo.Info().ModTime(),
			Format:       FormatForPath(photo.String()),
			BackupStatus: BackupNotUploaded,
		}

		if prior != nil {
			if old := prior.Get(hash); old != nil {
				entry.BackupStatus = old.BackupStatus
				entry.IsStarred = old.IsStarred
				entry.ArchiveState = old.ArchiveState
				entry.CaptureDate = old.CaptureDate
				entry.PixelWidth = old.PixelWidth
				entry.PixelHeight = old.PixelHeight
			}
		}

		if sc.digests != nil && entry.PixelWidth == 0 {
			if d, err := sc.digests.Get(hash); err == nil {
				entry.PixelWidth = d.Width
				entry.PixelHeight = d.Height
				if !d.CaptureDate.IsZero() {
					entry.CaptureDate = d.CaptureDate
				}
			}
		}

		entries = append(entries, entry)
	}

	sc.logger.Debug("scan complete", "dir", dir.String(), "photos", len(photos))
	return svc.NextSnapshot(entries), nil
}
