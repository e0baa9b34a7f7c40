package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"pv-go/internal/cache"
	"pv-go/internal/catalog"
	"pv-go/internal/pv"
)

// DefaultWorkers is the default upload concurrency.
const DefaultWorkers = 4

// Metadata is the sidecar object uploaded next to each photo.
type Metadata struct {
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	Format      string    `json:"format"`
	PixelWidth  int       `json:"pixel_width,omitempty"`
	PixelHeight int       `json:"pixel_height,omitempty"`
	CaptureDate time.Time `json:"capture_date,omitzero"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Service is the upload pipeline: it moves each selected local photo into
// remote storage exactly once per distinct content, and regenerates the
// remote catalog so any device can browse without re-downloading originals.
//
// The dedup check against the canonical photo key is the sole correctness
// gate across devices. Writes to the same deterministic key are idempotent,
// so re-running a backup (from this or any other device) is always safe.
// Within one batch, byte-identical items collapse onto a single in-flight
// upload so concurrent workers cannot both miss the dedup check.
type Service struct {
	store       pv.ObjectStore
	fsmgr       pv.FilesystemManager
	pathIDs     *cache.PathIdentityCache
	digests     *cache.DigestCache
	thumbnailer pv.Thumbnailer
	logger      pv.Logger
	clock       pv.Clock
	workers     int
	inflight    singleflight.Group
}

// NewService creates a backup service. workers <= 0 selects the default.
func NewService(store pv.ObjectStore, fsmgr pv.FilesystemManager, pathIDs *cache.PathIdentityCache, digests *cache.DigestCache, thumbnailer pv.Thumbnailer, logger pv.Logger, clock pv.Clock, workers int) *Service {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Service{
		store:       store,
		fsmgr:       fsmgr,
		pathIDs:     pathIDs,
		digests:     digests,
		thumbnailer: thumbnailer,
		logger:      logger,
		clock:       clock,
		workers:     workers,
	}
}

// BackupPhotos uploads the given photos into the account's namespace and
// returns a per-path result map. Items run on a bounded worker pool; uploads
// for different photos may complete in any order. Within one item, photo
// bytes are durably stored before the thumbnail and metadata are attempted.
//
// Cancelling ctx stops new items from starting; items already in flight
// finish to avoid orphaned partial uploads.
func (s *Service) BackupPhotos(ctx context.Context, accountID string, photos []*pv.Path) (map[string]*Result, error) {
	results := make(map[string]*Result, len(photos))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, photo := range photos {
		g.Go(func() error {
			// Cancellation takes effect between items only.
			if err := ctx.Err(); err != nil {
				mu.Lock()
				results[photo.String()] = &Result{Status: StatusFailed, Err: err}
				mu.Unlock()
				return nil
			}

			res := s.backupOne(ctx, accountID, photo)
			mu.Lock()
			results[photo.String()] = res
			mu.Unlock()
			return nil
		})
	}

	g.Wait()
	return results, nil
}

// backupOne resolves the item's content hash and funnels byte-identical
// batch mates through one in-flight upload per hash. The first resolver of a
// hash runs the upload pipeline; later resolvers of the same hash wait for
// its outcome and report skipped, exactly like a dedup hit against content
// already stored remotely.
func (s *Service) backupOne(ctx context.Context, accountID string, photo *pv.Path) *Result {
	hash, err := s.pathIDs.Resolve(photo)
	if err != nil {
		return &Result{Status: StatusFailed, Err: fmt.Errorf("resolving content hash: %w", err)}
	}

	v, _, _ := s.inflight.Do(accountID+"/"+hash, func() (any, error) {
		return &flight{res: s.syncItem(ctx, accountID, photo, hash), origin: photo.String()}, nil
	})
	fl := v.(*flight)
	if fl.origin != photo.String() && fl.res.Status == StatusCompleted {
		return &Result{Status: StatusSkipped, ContentHash: hash}
	}
	return fl.res
}

// flight is the shared outcome of one in-flight upload; origin identifies
// the item that ran the pipeline so only it reports completed.
type flight struct {
	res    *Result
	origin string
}

// syncItem runs the per-item pipeline: dedup check, then photo -> thumbnail
// -> metadata uploads. The photo object goes first: a photo without a
// thumbnail is still recoverable, a thumbnail without a photo is not useful.
func (s *Service) syncItem(ctx context.Context, accountID string, photo *pv.Path, hash string) *Result {
	item := &Item{
		ContentHash: hash,
		Source:      photo,
		RemoteKey:   pv.PhotoKey(accountID, hash),
		Size:        photo.Info().Size(),
	}

	// Dedup check: an object at the canonical key means this content is
	// already backed up (by this or any other device).
	_, err := s.store.Head(ctx, item.RemoteKey)
	if err == nil {
		s.logger.Debug("content deduplicated", "hash", hash)
		return &Result{Status: StatusSkipped, ContentHash: hash}
	}
	if !errors.Is(err, pv.ErrNotFound) {
		return &Result{Status: StatusFailed, ContentHash: hash, Err: fmt.Errorf("dedup check: %w", err)}
	}

	if err := s.uploadPhoto(ctx, item); err != nil {
		return &Result{Status: StatusFailed, ContentHash: hash, Err: err}
	}

	digest := s.resolveDigest(photo, hash)

	if digest != nil && len(digest.Thumbnail) > 0 {
		key := pv.ThumbnailKey(accountID, hash)
		if err := s.store.Put(ctx, key, bytes.NewReader(digest.Thumbnail), int64(len(digest.Thumbnail))); err != nil {
			return &Result{Status: StatusFailed, ContentHash: hash, Err: fmt.Errorf("uploading thumbnail: %w", err)}
		}
	}

	if err := s.uploadMetadata(ctx, accountID, item, digest); err != nil {
		return &Result{Status: StatusFailed, ContentHash: hash, Err: err}
	}

	s.logger.Info("photo backed up", "hash", hash, "size", item.Size)
	return &Result{Status: StatusCompleted, ContentHash: hash}
}

func (s *Service) uploadPhoto(ctx context.Context, item *Item) error {
	f, err := s.fsmgr.Open(item.Source)
	if err != nil {
		return fmt.Errorf("opening photo: %w", err)
	}
	defer f.Close()

	if err := s.store.Put(ctx, item.RemoteKey, f, item.Size); err != nil {
		return fmt.Errorf("uploading photo: %w", err)
	}
	return nil
}

// resolveDigest returns the cached digest for hash, generating and caching
// it when absent. Generation failures (undecodable formats) are logged and
// return nil; the photo is still backed up without a thumbnail.
func (s *Service) resolveDigest(photo *pv.Path, hash string) *cache.Digest {
	if d, err := s.digests.Get(hash); err == nil {
		return d
	}

	f, err := s.fsmgr.Open(photo)
	if err != nil {
		s.logger.Warn("opening photo for thumbnail failed", "hash", hash, "error", err)
		return nil
	}
	defer f.Close()

	thumb, err := s.thumbnailer.Thumbnail(f)
	if err != nil {
		s.logger.Warn("thumbnail generation failed", "hash", hash, "error", err)
		return nil
	}

	d := &cache.Digest{
		ContentHash: hash,
		Thumbnail:   thumb.Bytes,
		Width:       thumb.Width,
		Height:      thumb.Height,
		Format:      thumb.Format,
		Size:        photo.Info().Size(),
	}
	if err := s.digests.Put(d); err != nil {
		s.logger.Warn("caching digest failed", "hash", hash, "error", err)
	}
	return d
}

func (s *Service) uploadMetadata(ctx context.Context, accountID string, item *Item, digest *cache.Digest) error {
	meta := Metadata{
		ContentHash: item.ContentHash,
		Size:        item.Size,
		Format:      string(catalog.FormatForPath(item.Source.String())),
		UploadedAt:  s.clock.Now(),
	}
	if digest != nil {
		meta.PixelWidth = digest.Width
		meta.PixelHeight = digest.Height
		meta.CaptureDate = digest.CaptureDate
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	key := pv.MetadataKey(accountID, item.ContentHash)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("uploading metadata: %w", err)
	}
	return nil
}

// RegenerateRemoteCatalog lists all photo objects under the account's prefix,
// rebuilds catalog entries from object metadata, and publishes a new
// snapshot through the remote catalog service. Browsing the cloud catalog
// then costs one snapshot fetch instead of a live listing.
func (s *Service) RegenerateRemoteCatalog(ctx context.Context, accountID string, remote *catalog.Service) error {
	infos, err := s.store.List(ctx, pv.PhotoPrefix(accountID))
	if err != nil {
		return fmt.Errorf("listing remote photos: %w", err)
	}

	entries := make([]*catalog.Entry, 0, len(infos))
	for _, info := range infos {
		hash, ok := hashFromPhotoKey(accountID, info.Key)
		if !ok {
			s.logger.Warn("unexpected object under photo prefix", "key", info.Key)
			continue
		}

		entry := &catalog.Entry{
			ContentHash:  hash,
			FileSize:     info.Size,
			ModifiedAt:   info.ModifiedAt,
			Format:       catalog.FormatOther,
			BackupStatus: catalog.BackupUploaded,
		}

		// The digest cache enriches entries when this device has seen the
		// content; entries for other devices' photos stay coarse.
		if d, err := s.digests.Get(hash); err == nil {
			entry.Format = catalog.Format(d.Format)
			entry.PixelWidth = d.Width
			entry.PixelHeight = d.Height
			entry.CaptureDate = d.CaptureDate
		}

		entries = append(entries, entry)
	}

	snap := remote.NextSnapshot(entries)
	if err := remote.Publish(ctx, snap); err != nil {
		return fmt.Errorf("publishing remote catalog: %w", err)
	}
	return nil
}

// hashFromPhotoKey extracts the content hash from a canonical photo key.
func hashFromPhotoKey(accountID, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, pv.PhotoPrefix(accountID))
	if !ok {
		return "", false
	}
	hash, ok := strings.CutSuffix(rest, ".dat")
	if !ok || hash == "" || strings.Contains(hash, "/") {
		return "", false
	}
	return hash, true
}
