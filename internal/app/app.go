package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pv-go/internal/archive"
	"pv-go/internal/backup"
	"pv-go/internal/cache"
	"pv-go/internal/catalog"
	"pv-go/internal/config"
	"pv-go/internal/database"
	"pv-go/internal/fs"
	"pv-go/internal/identity"
	"pv-go/internal/imaging"
	"pv-go/internal/objectstore"
	"pv-go/internal/pv"
)

// App is the application layer between the CLI and the services.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages resource lifecycle on Close.
type App struct {
	cfg        *config.Config
	cfgPath    string
	store      pv.ObjectStore
	index      pv.Index
	fsmgr      pv.FilesystemManager
	pathIDs    *cache.PathIdentityCache
	digests    *cache.DigestCache
	backup     *backup.Service
	archiver   *archive.Controller
	identities *identity.Service
	deletions  *identity.DeletionScheduler
	logger     pv.Logger
	clock      pv.Clock
	idgen      pv.IDGenerator

	opName  string
	op      *pv.Operation
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "Backup").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, cfgPath, operation string) (*App, error) {
	fsmgr := fs.NewOSFilesystemManager()
	clock := pv.RealClock{}
	idgen := pv.UUIDGenerator{}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	store, err := objectstore.NewStoreFromConfig(ctx, cfg.Store, cfg.Backup.MultipartThreshold)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating object store: %w", err)
	}

	index, err := database.NewIndexFromConfig(cfg.Database, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating local index: %w", err)
	}

	pathIDs := cache.NewPathIdentityCache(fsmgr, index, logger)

	digests, err := cache.NewDigestCache(
		filepath.Join(cfg.CacheDir, "digests"),
		cfg.Cache.MaxEntries, cfg.Cache.MaxBytes, clock, logger)
	if err != nil {
		index.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating digest cache: %w", err)
	}

	thumbnailer := imaging.NewThumbnailer(0)

	backupSvc := backup.NewService(store, fsmgr, pathIDs, digests, thumbnailer, logger, clock, cfg.Backup.Workers)

	archiver := archive.NewController(index, clock, idgen, logger, archive.Options{
		ArchiveAfter: time.Duration(cfg.Archive.ArchiveAfterDays) * 24 * time.Hour,
		Retention:    time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour,
		Rates: archive.UnitRate{
			UnitBytes:      cfg.Archive.CreditUnitBytes,
			CreditsPerUnit: cfg.Archive.CreditsPerUnit,
		},
	})

	identities := identity.NewService(store, idgen, logger)
	deletions := identity.NewDeletionScheduler(store, clock, logger,
		time.Duration(cfg.Deletion.GracePeriodDays)*24*time.Hour)

	return &App{
		cfg:        cfg,
		cfgPath:    cfgPath,
		store:      store,
		index:      index,
		fsmgr:      fsmgr,
		pathIDs:    pathIDs,
		digests:    digests,
		backup:     backupSvc,
		archiver:   archiver,
		identities: identities,
		deletions:  deletions,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
		opName:     operation,
		logFile:    logFile,
	}, nil
}

// persistOperation records the operation in the local index on first use.
// Only mutating commands call this.
func (a *App) persistOperation() error {
	if a.op != nil {
		return nil
	}
	op, err := a.index.CreateOperation(a.opName)
	if err != nil {
		return fmt.Errorf("recording operation: %w", err)
	}
	a.op = op
	return nil
}

// accountID returns the configured internal account ID.
func (a *App) accountID() (string, error) {
	if a.cfg.AccountID == "" {
		return "", fmt.Errorf("no account configured: run `pv login` first")
	}
	return a.cfg.AccountID, nil
}

// localCatalog creates and initializes the catalog service for a scanned
// directory's local working copy.
func (a *App) localCatalog(ctx context.Context, dir *pv.Path) (*catalog.Service, error) {
	fingerprint := catalog.DirFingerprint(dir.String())
	store, err := catalog.NewFSStore(filepath.Join(a.cfg.CacheDir, "catalogs", fingerprint))
	if err != nil {
		return nil, fmt.Errorf("creating local catalog store: %w", err)
	}

	svc := catalog.NewService(store, nil, dir.String(), 0, a.clock, a.logger)
	if err := svc.Initialize(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// remoteCatalog creates and initializes the catalog service for the
// account's remote namespace, mirrored into the local cache so the cloud
// catalog stays browsable offline. The mirror is only ever behind the
// primary.
func (a *App) remoteCatalog(ctx context.Context, accountID string) (*catalog.Service, error) {
	primary := catalog.NewRemoteStore(a.store, accountID)
	mirror, err := catalog.NewFSStore(filepath.Join(a.cfg.CacheDir, "catalogs", "remote-"+accountID))
	if err != nil {
		return nil, fmt.Errorf("creating catalog mirror store: %w", err)
	}

	svc := catalog.NewService(primary, mirror, "account:"+accountID, 0, a.clock, a.logger)
	if err := svc.Initialize(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}

// Scan walks a directory, builds a snapshot candidate merged with the
// published local snapshot, and publishes it.
func (a *App) Scan(ctx context.Context, rawDir string, recursive bool) (catalog.Info, error) {
	if err := a.persistOperation(); err != nil {
		return catalog.Info{}, err
	}

	dir, err := a.fsmgr.Resolve(rawDir)
	if err != nil {
		return catalog.Info{}, fmt.Errorf("resolving path: %w", err)
	}

	local, err := a.localCatalog(ctx, dir)
	if err != nil {
		return catalog.Info{}, err
	}

	scanner := catalog.NewScanner(a.fsmgr, a.pathIDs, a.digests, a.logger)
	snap, err := scanner.ScanAndBuild(local, dir, recursive)
	if err != nil {
		return catalog.Info{}, err
	}

	if err := local.Publish(ctx, snap); err != nil {
		return catalog.Info{}, err
	}
	return local.CurrentInfo(), nil
}

// FileStatus is the per-file backup state shown by `pv status`.
type FileStatus struct {
	Path         string
	ContentHash  string
	BackupStatus catalog.BackupStatus
	IsStarred    bool
}

// Status reports backup state for each photo under a directory, derived from
// the published local snapshot.
func (a *App) Status(ctx context.Context, rawDir string, recursive bool) ([]*FileStatus, error) {
	dir, err := a.fsmgr.Resolve(rawDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	local, err := a.localCatalog(ctx, dir)
	if err != nil {
		return nil, err
	}
	snap := local.Current()

	photos, err := a.fsmgr.FindPhotos(dir, recursive)
	if err != nil {
		return nil, fmt.Errorf("discovering photos: %w", err)
	}

	var statuses []*FileStatus
	for _, photo := range photos {
		hash, err := a.pathIDs.Resolve(photo)
		if err != nil {
			return nil, fmt.Errorf("resolving content hash: %w", err)
		}

		status := &FileStatus{Path: photo.String(), ContentHash: hash, BackupStatus: catalog.BackupNotUploaded}
		if entry := snap.Get(hash); entry != nil {
			status.BackupStatus = entry.BackupStatus
			status.IsStarred = entry.IsStarred
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Backup runs the dedup upload pipeline for photos under a directory, then
// updates the local snapshot's backup statuses and regenerates the remote
// catalog. When starredOnly is set, only photos whose entries are starred
// are uploaded.
func (a *App) Backup(ctx context.Context, rawDir string, recursive, starredOnly bool) (map[string]*backup.Result, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}

	accountID, err := a.accountID()
	if err != nil {
		return nil, err
	}

	dir, err := a.fsmgr.Resolve(rawDir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	local, err := a.localCatalog(ctx, dir)
	if err != nil {
		return nil, err
	}

	scanner := catalog.NewScanner(a.fsmgr, a.pathIDs, a.digests, a.logger)
	snap, err := scanner.ScanAndBuild(local, dir, recursive)
	if err != nil {
		return nil, err
	}

	photos, err := a.fsmgr.FindPhotos(dir, recursive)
	if err != nil {
		return nil, fmt.Errorf("discovering photos: %w", err)
	}

	if starredOnly {
		var starred []*pv.Path
		for _, photo := range photos {
			hash, err := a.pathIDs.Resolve(photo)
			if err != nil {
				return nil, fmt.Errorf("resolving content hash: %w", err)
			}
			if entry := snap.Get(hash); entry != nil && entry.IsStarred {
				starred = append(starred, photo)
			}
		}
		photos = starred
	}

	results, err := a.backup.BackupPhotos(ctx, accountID, photos)
	if err != nil {
		return nil, err
	}

	// Fold results back into the local snapshot and track uploaded content
	// in the archive lifecycle.
	entries := snap.Entries()
	for _, res := range results {
		if res.ContentHash == "" {
			continue
		}
		entry := snap.Get(res.ContentHash)
		if entry == nil {
			continue
		}
		switch res.Status {
		case backup.StatusCompleted, backup.StatusSkipped:
			entry.BackupStatus = catalog.BackupUploaded
			if err := a.archiver.Track(accountID, res.ContentHash, entry.FileSize); err != nil {
				a.logger.Warn("tracking archive state failed", "hash", res.ContentHash, "error", err)
			}
		case backup.StatusFailed:
			entry.BackupStatus = catalog.BackupFailed
		}
	}

	if err := local.Publish(ctx, local.NextSnapshot(entries)); err != nil {
		return nil, fmt.Errorf("publishing local snapshot: %w", err)
	}

	remote, err := a.remoteCatalog(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := a.backup.RegenerateRemoteCatalog(ctx, accountID, remote); err != nil {
		return nil, err
	}

	return results, nil
}

// SetStarred stars or unstars local photos. Each file's entry lives in the
// catalog of its parent directory, which must have been scanned already;
// the starred flag then survives rescans and selects `backup --starred`.
func (a *App) SetStarred(ctx context.Context, rawPaths []string, starred bool) error {
	if err := a.persistOperation(); err != nil {
		return err
	}

	dirs := make(map[string]*pv.Path)
	hashesByDir := make(map[string][]string)
	for _, raw := range rawPaths {
		photo, err := a.fsmgr.Resolve(raw)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		hash, err := a.pathIDs.Resolve(photo)
		if err != nil {
			return fmt.Errorf("resolving content hash: %w", err)
		}

		dir := filepath.Dir(photo.String())
		if _, ok := dirs[dir]; !ok {
			parent, err := a.fsmgr.Resolve(dir)
			if err != nil {
				return fmt.Errorf("resolving directory: %w", err)
			}
			dirs[dir] = parent
		}
		hashesByDir[dir] = append(hashesByDir[dir], hash)
	}

	for dir, hashes := range hashesByDir {
		local, err := a.localCatalog(ctx, dirs[dir])
		if err != nil {
			return err
		}
		if err := local.SetStarred(ctx, hashes, starred); err != nil {
			return fmt.Errorf("updating stars under %s: %w", dir, err)
		}
	}
	return nil
}

// CatalogInfo reports the current local and remote snapshot state.
func (a *App) CatalogInfo(ctx context.Context, rawDir string) (local, remote catalog.Info, err error) {
	dir, err := a.fsmgr.Resolve(rawDir)
	if err != nil {
		return catalog.Info{}, catalog.Info{}, fmt.Errorf("resolving path: %w", err)
	}

	localSvc, err := a.localCatalog(ctx, dir)
	if err != nil {
		return catalog.Info{}, catalog.Info{}, err
	}
	local = localSvc.CurrentInfo()

	accountID, err := a.accountID()
	if err != nil {
		// No account yet: local info alone is still useful.
		return local, catalog.Info{}, nil
	}

	remoteSvc, err := a.remoteCatalog(ctx, accountID)
	if err != nil {
		return local, catalog.Info{}, err
	}
	return local, remoteSvc.CurrentInfo(), nil
}

// Login resolves (or creates) the internal account for an external identity
// and records it in the config file.
func (a *App) Login(ctx context.Context, provider, externalID string) (string, error) {
	if err := a.persistOperation(); err != nil {
		return "", err
	}

	accountID, err := a.identities.GetOrCreateInternalID(ctx, provider, externalID)
	if err != nil {
		return "", err
	}

	a.cfg.AccountID = accountID
	if err := config.WriteToFile(a.cfgPath, a.cfg); err != nil {
		return "", fmt.Errorf("saving account to config: %w", err)
	}
	return accountID, nil
}

// RequestThaw submits a batched retrieval request for archived content.
func (a *App) RequestThaw(contentHashes []string) (*pv.RetrievalRequest, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	accountID, err := a.accountID()
	if err != nil {
		return nil, err
	}
	return a.archiver.RequestRetrieval(accountID, contentHashes)
}

// ThawProgress reports a retrieval request as "ready of total".
func (a *App) ThawProgress(retrievalID string) (ready, total int, err error) {
	return a.archiver.Progress(retrievalID)
}

// RetrievalRequests lists the account's retrieval requests, newest first.
func (a *App) RetrievalRequests() ([]*pv.RetrievalRequest, error) {
	accountID, err := a.accountID()
	if err != nil {
		return nil, err
	}
	return a.index.ListRetrievalRequests(accountID)
}

// ArchiveTick advances age-driven lifecycle transitions, then reconciles
// in-flight retrievals against the object store's restore status.
func (a *App) ArchiveTick(ctx context.Context) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	accountID, err := a.accountID()
	if err != nil {
		return err
	}
	if err := a.archiver.Tick(accountID); err != nil {
		return err
	}
	return a.archiver.Poll(ctx, a.store, accountID)
}

// Credits returns the account's remaining retrieval allowance.
func (a *App) Credits() (int64, error) {
	accountID, err := a.accountID()
	if err != nil {
		return 0, err
	}
	return a.index.GetCredits(accountID)
}

// AddCredits grants retrieval credits to the account.
func (a *App) AddCredits(amount int64) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	accountID, err := a.accountID()
	if err != nil {
		return err
	}
	return a.index.AddCredits(accountID, amount)
}

// ScheduleDeletion marks the account for deletion after the grace period.
func (a *App) ScheduleDeletion(ctx context.Context) (*identity.DeletionMarker, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	accountID, err := a.accountID()
	if err != nil {
		return nil, err
	}
	return a.deletions.Schedule(ctx, accountID)
}

// CancelDeletion removes a pending account deletion marker.
func (a *App) CancelDeletion(ctx context.Context) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	accountID, err := a.accountID()
	if err != nil {
		return err
	}
	return a.deletions.Cancel(ctx, accountID)
}

// History returns the most recent operations.
func (a *App) History(limit int) ([]*pv.Operation, error) {
	return a.index.ListOperations(limit)
}

// Close finalizes the operation record and releases resources.
func (a *App) Close() error {
	var firstErr error

	if a.op != nil {
		if err := a.index.FinishOperation(a.op.ID, "success"); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.index.Close(); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("closing index: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
