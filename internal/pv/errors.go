package pv

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by object store and cache lookups when the
// requested key does not exist. It is part of normal control flow (a dedup
// miss, a cache miss) and is never surfaced to the user as a failure.
var ErrNotFound = errors.New("not found")

// ErrNotYetAvailable is returned when content in an archived storage tier is
// accessed before its retrieval has completed. The caller should present a
// "not yet available" state, not an error.
var ErrNotYetAvailable = errors.New("content not yet available (archived)")

// CorruptSnapshotError indicates that a catalog pointer names a snapshot
// that cannot be fetched or fails checksum verification. This is fatal for
// the affected namespace until it is re-bootstrapped.
type CorruptSnapshotError struct {
	Namespace    string
	SnapshotHash string
	Reason       error
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("catalog %s: snapshot %s is corrupt: %v", e.Namespace, e.SnapshotHash, e.Reason)
}

func (e *CorruptSnapshotError) Unwrap() error { return e.Reason }

// InsufficientCreditsError rejects a retrieval request whose projected cost
// exceeds the account's remaining allowance. No archive state changes when
// this is returned.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("retrieval requires %d credits but only %d available", e.Required, e.Available)
}

// TransientNetworkError wraps a network failure that is safe to retry.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }
