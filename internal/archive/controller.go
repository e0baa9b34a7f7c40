package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pv-go/internal/pv"
)

// Default lifecycle windows.
const (
	DefaultArchiveAfter = 180 * 24 * time.Hour // fresh -> archived
	DefaultRetention    = 30 * 24 * time.Hour  // retrieved -> expiring
)

// Notifier receives archive-state-change notifications, e.g. for UI badges.
type Notifier interface {
	StateChanged(accountID, contentHash string, from, to pv.ArchiveState)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) StateChanged(string, string, pv.ArchiveState, pv.ArchiveState) {}

// Controller tracks per-object storage tier and drives the lifecycle:
//
//	fresh -> archived -> thawRequested -> thawing -> retrieved -> expiring -> archived
//
// The fresh->archived migration of actual bytes is performed by the storage
// backend's lifecycle policy; the controller reflects that state locally so
// the catalog can show correct affordances. retrieved->expiring->archived is
// a one-way reversion with no byte movement: the objects are re-fetchable by
// key, only the controller state changes.
//
// Cancellation never transitions an item backward: a cancelled thaw leaves
// items in thawRequested/thawing to be retried later.
type Controller struct {
	index        pv.Index
	rates        RateTable
	notifier     Notifier
	clock        pv.Clock
	idgen        pv.IDGenerator
	logger       pv.Logger
	archiveAfter time.Duration
	retention    time.Duration
}

// Options tunes a Controller. Zero values select defaults.
type Options struct {
	ArchiveAfter time.Duration
	Retention    time.Duration
	Rates        RateTable
	Notifier     Notifier
}

// NewController creates an archive lifecycle controller over the local index.
func NewController(index pv.Index, clock pv.Clock, idgen pv.IDGenerator, logger pv.Logger, opts Options) *Controller {
	if opts.ArchiveAfter <= 0 {
		opts.ArchiveAfter = DefaultArchiveAfter
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Rates == nil {
		opts.Rates = DefaultRate()
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}

	return &Controller{
		index:        index,
		rates:        opts.Rates,
		notifier:     opts.Notifier,
		clock:        clock,
		idgen:        idgen,
		logger:       logger,
		archiveAfter: opts.ArchiveAfter,
		retention:    opts.Retention,
	}
}

// Track registers newly uploaded content as fresh. Re-tracking existing
// content is a no-op so repeated backups never reset lifecycle state.
func (c *Controller) Track(accountID, contentHash string, size int64) error {
	existing, err := c.index.GetArchiveRecord(accountID, contentHash)
	if err != nil {
		return fmt.Errorf("checking archive record: %w", err)
	}
	if existing != nil {
		return nil
	}

	return c.index.UpsertArchiveRecord(&pv.ArchiveRecord{
		AccountID:      accountID,
		ContentHash:    contentHash,
		State:          pv.ArchiveFresh,
		Size:           size,
		StateChangedAt: c.clock.Now(),
	})
}

// State returns the lifecycle state for content, or fresh if untracked.
func (c *Controller) State(accountID, contentHash string) (pv.ArchiveState, error) {
	rec, err := c.index.GetArchiveRecord(accountID, contentHash)
	if err != nil {
		return "", fmt.Errorf("reading archive record: %w", err)
	}
	if rec == nil {
		return pv.ArchiveFresh, nil
	}
	return rec.State, nil
}

// ReflectArchived records that the storage backend has migrated content to
// the archive tier.
func (c *Controller) ReflectArchived(accountID string, contentHashes []string) error {
	for _, hash := range contentHashes {
		rec, err := c.index.GetArchiveRecord(accountID, hash)
		if err != nil {
			return fmt.Errorf("reading archive record: %w", err)
		}
		if rec == nil || rec.State != pv.ArchiveFresh {
			continue
		}
		if err := c.transition(rec, pv.ArchiveArchived, ""); err != nil {
			return err
		}
	}
	return nil
}

// RequestRetrieval merges the selected archived items into a single batched
// thaw request. The projected cost (total bytes through the rate table) is
// checked against the account's allowance first; InsufficientCreditsError
// leaves every item's state unchanged. On acceptance the cost is debited,
// the request is recorded, and every item moves to thawRequested.
func (c *Controller) RequestRetrieval(accountID string, contentHashes []string) (*pv.RetrievalRequest, error) {
	if len(contentHashes) == 0 {
		return nil, fmt.Errorf("retrieval request needs at least one item")
	}

	var recs []*pv.ArchiveRecord
	var totalBytes int64
	for _, hash := range contentHashes {
		rec, err := c.index.GetArchiveRecord(accountID, hash)
		if err != nil {
			return nil, fmt.Errorf("reading archive record: %w", err)
		}
		if rec == nil {
			return nil, fmt.Errorf("content %s is not tracked", hash)
		}
		if rec.State != pv.ArchiveArchived {
			return nil, fmt.Errorf("content %s is %s, not archived", hash, rec.State)
		}
		recs = append(recs, rec)
		totalBytes += rec.Size
	}

	credits := c.rates.Credits(totalBytes)
	available, err := c.index.GetCredits(accountID)
	if err != nil {
		return nil, fmt.Errorf("reading credit balance: %w", err)
	}
	if credits > available {
		return nil, &pv.InsufficientCreditsError{Required: credits, Available: available}
	}

	req := &pv.RetrievalRequest{
		ID:         c.idgen.New(),
		AccountID:  accountID,
		TotalBytes: totalBytes,
		Credits:    credits,
		CreatedAt:  c.clock.Now(),
	}
	if err := c.index.CreateRetrievalRequest(req); err != nil {
		return nil, err
	}
	if err := c.index.AddCredits(accountID, -credits); err != nil {
		return nil, fmt.Errorf("debiting credits: %w", err)
	}

	for _, rec := range recs {
		if err := c.transition(rec, pv.ArchiveThawRequested, req.ID); err != nil {
			return nil, err
		}
	}

	c.logger.Info("retrieval requested", "request", req.ID, "items", len(recs), "bytes", totalBytes, "credits", credits)
	return req, nil
}

// MarkThawing records that the storage backend accepted the thaw request:
// every thawRequested item in the batch moves to thawing.
func (c *Controller) MarkThawing(retrievalID string) error {
	recs, err := c.index.ListArchiveRecordsByRetrieval(retrievalID)
	if err != nil {
		return fmt.Errorf("listing retrieval items: %w", err)
	}
	for _, rec := range recs {
		if rec.State != pv.ArchiveThawRequested {
			continue
		}
		if err := c.transition(rec, pv.ArchiveThawing, retrievalID); err != nil {
			return err
		}
	}
	return nil
}

// MarkReady records that the backend signalled content is available again.
func (c *Controller) MarkReady(accountID, contentHash string) error {
	rec, err := c.index.GetArchiveRecord(accountID, contentHash)
	if err != nil {
		return fmt.Errorf("reading archive record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("content %s is not tracked", contentHash)
	}
	if rec.State != pv.ArchiveThawing && rec.State != pv.ArchiveThawRequested {
		return fmt.Errorf("content %s is %s, not thawing", contentHash, rec.State)
	}
	return c.transition(rec, pv.ArchiveRetrieved, rec.RetrievalID)
}

// Progress reports a batched retrieval as "ready of total".
func (c *Controller) Progress(retrievalID string) (ready, total int, err error) {
	recs, err := c.index.ListArchiveRecordsByRetrieval(retrievalID)
	if err != nil {
		return 0, 0, fmt.Errorf("listing retrieval items: %w", err)
	}
	for _, rec := range recs {
		if rec.State == pv.ArchiveRetrieved {
			ready++
		}
	}
	return ready, len(recs), nil
}

// Poll reconciles in-flight retrievals with the storage backend. Every
// thawRequested batch moves to thawing once, reflecting that the backend has
// the restore request; each thawing item whose object Head reports as
// fetchable again moves to retrieved. Items the backend is still restoring
// stay thawing until a later poll.
func (c *Controller) Poll(ctx context.Context, store pv.ObjectStore, accountID string) error {
	requested, err := c.index.ListArchiveRecordsByState(accountID, pv.ArchiveThawRequested)
	if err != nil {
		return fmt.Errorf("listing thaw-requested records: %w", err)
	}
	seen := make(map[string]bool)
	for _, rec := range requested {
		if rec.RetrievalID == "" || seen[rec.RetrievalID] {
			continue
		}
		seen[rec.RetrievalID] = true
		if err := c.MarkThawing(rec.RetrievalID); err != nil {
			return err
		}
	}

	thawing, err := c.index.ListArchiveRecordsByState(accountID, pv.ArchiveThawing)
	if err != nil {
		return fmt.Errorf("listing thawing records: %w", err)
	}
	for _, rec := range thawing {
		info, err := store.Head(ctx, pv.PhotoKey(accountID, rec.ContentHash))
		if err != nil {
			if errors.Is(err, pv.ErrNotFound) {
				c.logger.Warn("thawing object missing from store", "hash", rec.ContentHash)
				continue
			}
			return fmt.Errorf("checking restore status for %s: %w", rec.ContentHash, err)
		}
		if info.Archived || info.Restoring {
			continue
		}
		if err := c.MarkReady(accountID, rec.ContentHash); err != nil {
			return err
		}
	}
	return nil
}

// Tick advances age-driven transitions: fresh items past the archive window
// reflect as archived, retrieved items past the retention window move to
// expiring, and expiring items revert to archived. Reversion requires no
// user action and no byte movement.
//
// Expiring items are processed before retrieved ones, so an item entering
// expiring stays observable there until the next tick instead of collapsing
// retrieved -> expiring -> archived in one pass.
func (c *Controller) Tick(accountID string) error {
	now := c.clock.Now()

	fresh, err := c.index.ListArchiveRecordsByState(accountID, pv.ArchiveFresh)
	if err != nil {
		return fmt.Errorf("listing fresh records: %w", err)
	}
	for _, rec := range fresh {
		if now.Sub(rec.StateChangedAt) >= c.archiveAfter {
			if err := c.transition(rec, pv.ArchiveArchived, ""); err != nil {
				return err
			}
		}
	}

	expiring, err := c.index.ListArchiveRecordsByState(accountID, pv.ArchiveExpiring)
	if err != nil {
		return fmt.Errorf("listing expiring records: %w", err)
	}
	for _, rec := range expiring {
		if err := c.transition(rec, pv.ArchiveArchived, ""); err != nil {
			return err
		}
	}

	retrieved, err := c.index.ListArchiveRecordsByState(accountID, pv.ArchiveRetrieved)
	if err != nil {
		return fmt.Errorf("listing retrieved records: %w", err)
	}
	for _, rec := range retrieved {
		if now.Sub(rec.StateChangedAt) >= c.retention {
			if err := c.transition(rec, pv.ArchiveExpiring, ""); err != nil {
				return err
			}
		}
	}

	return nil
}

// transition moves a record to a new state and notifies.
func (c *Controller) transition(rec *pv.ArchiveRecord, to pv.ArchiveState, retrievalID string) error {
	from := rec.State
	rec.State = to
	rec.RetrievalID = retrievalID
	rec.StateChangedAt = c.clock.Now()

	if err := c.index.UpsertArchiveRecord(rec); err != nil {
		return fmt.Errorf("recording %s -> %s for %s: %w", from, to, rec.ContentHash, err)
	}

	c.notifier.StateChanged(rec.AccountID, rec.ContentHash, from, to)
	c.logger.Debug("archive state changed", "hash", rec.ContentHash, "from", from, "to", to)
	return nil
}
