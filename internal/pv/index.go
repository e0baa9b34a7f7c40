package pv

import (
	"database/sql"
	"time"
)

// ArchiveState is the per-object storage-tier lifecycle tag.
type ArchiveState string

const (
	ArchiveFresh         ArchiveState = "fresh"
	ArchiveArchived      ArchiveState = "archived"
	ArchiveThawRequested ArchiveState = "thawRequested"
	ArchiveThawing       ArchiveState = "thawing"
	ArchiveRetrieved     ArchiveState = "retrieved"
	ArchiveExpiring      ArchiveState = "expiring"
)

// PathIdentityRecord maps a normalized path plus its observed (size, mtime)
// to a content hash. The record is invalidated, never reused, whenever size
// or mtime differ from what was recorded: that is the sole correctness guard
// against stale hashes without re-reading file bytes.
type PathIdentityRecord struct {
	Path        string
	Size        int64
	ModTimeNS   int64 // mtime in unix nanoseconds
	ContentHash string
	UpdatedAt   time.Time
}

// ArchiveRecord tracks the lifecycle state of one stored object.
type ArchiveRecord struct {
	AccountID       string
	ContentHash     string
	State           ArchiveState
	Size            int64
	StateChangedAt  time.Time
	RetrievalID     string // set while part of a batched retrieval request
}

// RetrievalRequest is one batched thaw request covering a set of archived objects.
type RetrievalRequest struct {
	ID         string
	AccountID  string
	TotalBytes int64
	Credits    int64
	CreatedAt  time.Time
}

// Operation records one mutating CLI invocation in the local index.
type Operation struct {
	ID         int64
	Name       string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}

// Index provides an interface for the local metadata index.
// It backs the path-identity cache's disk tier, the archive lifecycle
// controller's state, the credit ledger, and the operation history.
type Index interface {
	// Path-identity operations

	// GetPathIdentity returns the record for a normalized path, or nil if none.
	GetPathIdentity(path string) (*PathIdentityRecord, error)

	// UpsertPathIdentity creates or replaces the record for rec.Path.
	UpsertPathIdentity(rec *PathIdentityRecord) error

	// Archive operations

	// GetArchiveRecord returns the record for (accountID, contentHash), or nil.
	GetArchiveRecord(accountID, contentHash string) (*ArchiveRecord, error)

	// UpsertArchiveRecord creates or replaces an archive record.
	UpsertArchiveRecord(rec *ArchiveRecord) error

	// ListArchiveRecords returns all records for an account, ordered by hash.
	ListArchiveRecords(accountID string) ([]*ArchiveRecord, error)

	// ListArchiveRecordsByState returns an account's records in a given state.
	ListArchiveRecordsByState(accountID string, state ArchiveState) ([]*ArchiveRecord, error)

	// ListArchiveRecordsByRetrieval returns the records attached to a retrieval request.
	ListArchiveRecordsByRetrieval(retrievalID string) ([]*ArchiveRecord, error)

	// CreateRetrievalRequest records a new batched retrieval request.
	CreateRetrievalRequest(req *RetrievalRequest) error

	// ListRetrievalRequests returns an account's retrieval requests, newest first.
	ListRetrievalRequests(accountID string) ([]*RetrievalRequest, error)

	// Credit ledger operations

	// GetCredits returns the account's remaining retrieval allowance.
	// An account with no ledger row has zero credits.
	GetCredits(accountID string) (int64, error)

	// AddCredits adjusts the account's balance by delta (negative to debit).
	AddCredits(accountID string, delta int64) error

	// Operation history

	// CreateOperation records the start of a mutating operation.
	CreateOperation(name string) (*Operation, error)

	// FinishOperation marks an operation finished with the given status.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*Operation, error)

	// Close closes the underlying database connection.
	Close() error
}
