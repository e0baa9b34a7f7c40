package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pv-go/internal/pv"
)

// DefaultGracePeriod is how long a scheduled account deletion waits before
// the sweep may act on it.
const DefaultGracePeriod = 30 * 24 * time.Hour

// DeletionMarker schedules an account for deletion. It lives at
// deletions/{accountID} in the object store; its presence is the schedule.
type DeletionMarker struct {
	AccountID   string    `json:"account_id"`
	RequestedAt time.Time `json:"requested_at"`
	DeleteAfter time.Time `json:"delete_after"`
}

// DeletionScheduler schedules and executes account deletions with a grace
// period. Scheduling only writes a marker; the sweep deletes the account's
// objects once the grace period has elapsed. The sweep is idempotent:
// re-running it over a partially deleted account just deletes the remainder.
type DeletionScheduler struct {
	store       pv.ObjectStore
	clock       pv.Clock
	logger      pv.Logger
	gracePeriod time.Duration
}

// NewDeletionScheduler creates a deletion scheduler.
// gracePeriod <= 0 selects the default.
func NewDeletionScheduler(store pv.ObjectStore, clock pv.Clock, logger pv.Logger, gracePeriod time.Duration) *DeletionScheduler {
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}
	return &DeletionScheduler{store: store, clock: clock, logger: logger, gracePeriod: gracePeriod}
}

// Schedule marks an account for deletion after the grace period.
// Scheduling an already-scheduled account keeps the original deadline.
func (d *DeletionScheduler) Schedule(ctx context.Context, accountID string) (*DeletionMarker, error) {
	if existing, err := d.Get(ctx, accountID); err == nil {
		return existing, nil
	} else if !errors.Is(err, pv.ErrNotFound) {
		return nil, err
	}

	now := d.clock.Now()
	marker := &DeletionMarker{
		AccountID:   accountID,
		RequestedAt: now,
		DeleteAfter: now.Add(d.gracePeriod),
	}

	data, err := json.Marshal(marker)
	if err != nil {
		return nil, fmt.Errorf("encoding deletion marker: %w", err)
	}

	created, err := d.store.PutIfAbsent(ctx, pv.DeletionKey(accountID), data)
	if err != nil {
		return nil, fmt.Errorf("writing deletion marker: %w", err)
	}
	if !created {
		// Concurrent schedule; the first marker's deadline stands.
		return d.Get(ctx, accountID)
	}

	d.logger.Info("account deletion scheduled", "account", accountID, "delete_after", marker.DeleteAfter)
	return marker, nil
}

// Cancel removes a pending deletion marker. Cancelling after the sweep has
// already deleted the account's objects does not restore them.
func (d *DeletionScheduler) Cancel(ctx context.Context, accountID string) error {
	if err := d.store.Delete(ctx, pv.DeletionKey(accountID)); err != nil {
		return fmt.Errorf("removing deletion marker: %w", err)
	}
	d.logger.Info("account deletion cancelled", "account", accountID)
	return nil
}

// Get returns the pending deletion marker for an account.
func (d *DeletionScheduler) Get(ctx context.Context, accountID string) (*DeletionMarker, error) {
	r, err := d.store.Get(ctx, pv.DeletionKey(accountID))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading deletion marker: %w", err)
	}

	var marker DeletionMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("decoding deletion marker: %w", err)
	}
	return &marker, nil
}

// Sweep processes all due deletion markers: for each account whose grace
// period has elapsed, it deletes every object under the account's prefixes
// and finally the marker itself. Returns the number of accounts deleted.
func (d *DeletionScheduler) Sweep(ctx context.Context) (int, error) {
	markers, err := d.store.List(ctx, pv.DeletionPrefix())
	if err != nil {
		return 0, fmt.Errorf("listing deletion markers: %w", err)
	}

	now := d.clock.Now()
	deleted := 0

	for _, info := range markers {
		accountID := info.Key[len(pv.DeletionPrefix()):]
		marker, err := d.Get(ctx, accountID)
		if err != nil {
			d.logger.Warn("unreadable deletion marker", "key", info.Key, "error", err)
			continue
		}
		if now.Before(marker.DeleteAfter) {
			continue
		}

		if err := d.deleteAccount(ctx, accountID); err != nil {
			return deleted, fmt.Errorf("deleting account %s: %w", accountID, err)
		}
		deleted++
	}

	return deleted, nil
}

// deleteAccount removes all objects under the account's prefixes, its
// identity mappings, and then the marker. The marker goes last so an
// interrupted sweep resumes.
func (d *DeletionScheduler) deleteAccount(ctx context.Context, accountID string) error {
	prefixes := []string{
		pv.PhotoPrefix(accountID),
		pv.ThumbnailPrefix(accountID),
		pv.MetadataPrefix(accountID),
		pv.CatalogPrefix(accountID),
	}

	for _, prefix := range prefixes {
		infos, err := d.store.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, info := range infos {
			if err := d.store.Delete(ctx, info.Key); err != nil {
				return fmt.Errorf("deleting %s: %w", info.Key, err)
			}
		}
	}

	if err := d.deleteIdentityMappings(ctx, accountID); err != nil {
		return err
	}

	if err := d.store.Delete(ctx, pv.DeletionKey(accountID)); err != nil {
		return fmt.Errorf("removing deletion marker: %w", err)
	}

	d.logger.Info("account deleted", "account", accountID)
	return nil
}

// deleteIdentityMappings removes every external-identity mapping that
// resolves to the account, so the identity does not resolve to a dead
// account on the next sign-in. Mappings are keyed by provider identity, not
// account, so they are found by value.
func (d *DeletionScheduler) deleteIdentityMappings(ctx context.Context, accountID string) error {
	infos, err := d.store.List(ctx, pv.IdentityPrefix())
	if err != nil {
		return fmt.Errorf("listing identity mappings: %w", err)
	}

	for _, info := range infos {
		r, err := d.store.Get(ctx, info.Key)
		if err != nil {
			if errors.Is(err, pv.ErrNotFound) {
				continue
			}
			return fmt.Errorf("reading identity mapping %s: %w", info.Key, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return fmt.Errorf("reading identity mapping %s: %w", info.Key, err)
		}

		if strings.TrimSpace(string(data)) != accountID {
			continue
		}
		if err := d.store.Delete(ctx, info.Key); err != nil {
			return fmt.Errorf("deleting identity mapping %s: %w", info.Key, err)
		}
	}
	return nil
}
