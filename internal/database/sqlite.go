package database

import (
	"database/sql"
	"errors"
	"fmt"

	"pv-go/internal/database/migrations"
	"pv-go/internal/pv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteIndex implements the Index interface using SQLite.
type SQLiteIndex struct {
	db    *sql.DB
	clock pv.Clock
}

// NewSQLiteIndex opens (and if necessary migrates) a SQLite index.
// path can be a file path or ":memory:" for an in-memory index.
func NewSQLiteIndex(path string, clock pv.Clock) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index: %w", err)
	}

	if clock == nil {
		clock = pv.RealClock{}
	}

	return &SQLiteIndex{db: db, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// Exported for tools and tests that need a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite defaults foreign keys to OFF for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path-identity operations

func (s *SQLiteIndex) GetPathIdentity(path string) (*pv.PathIdentityRecord, error) {
	row := s.db.QueryRow(
		`SELECT path, size, mtime_ns, content_hash, updated_at FROM path_identity WHERE path = ?`, path)

	var rec pv.PathIdentityRecord
	err := row.Scan(&rec.Path, &rec.Size, &rec.ModTimeNS, &rec.ContentHash, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding path identity: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteIndex) UpsertPathIdentity(rec *pv.PathIdentityRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO path_identity (path, size, mtime_ns, content_hash, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   size = excluded.size,
		   mtime_ns = excluded.mtime_ns,
		   content_hash = excluded.content_hash,
		   updated_at = excluded.updated_at`,
		rec.Path, rec.Size, rec.ModTimeNS, rec.ContentHash, s.clock.Now())
	if err != nil {
		return fmt.Errorf("upserting path identity: %w", err)
	}
	return nil
}

// Archive operations

func (s *SQLiteIndex) GetArchiveRecord(accountID, contentHash string) (*pv.ArchiveRecord, error) {
	row := s.db.QueryRow(
		`SELECT account_id, content_hash, state, size, state_changed_at, retrieval_id
		 FROM archive_state WHERE account_id = ? AND content_hash = ?`,
		accountID, contentHash)

	rec, err := scanArchiveRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding archive record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteIndex) UpsertArchiveRecord(rec *pv.ArchiveRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO archive_state (account_id, content_hash, state, size, state_changed_at, retrieval_id)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(account_id, content_hash) DO UPDATE SET
		   state = excluded.state,
		   size = excluded.size,
		   state_changed_at = excluded.state_changed_at,
		   retrieval_id = excluded.retrieval_id`,
		rec.AccountID, rec.ContentHash, string(rec.State), rec.Size, rec.StateChangedAt, rec.RetrievalID)
	if err != nil {
		return fmt.Errorf("upserting archive record: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ListArchiveRecords(accountID string) ([]*pv.ArchiveRecord, error) {
	return s.queryArchiveRecords(
		`SELECT account_id, content_hash, state, size, state_changed_at, retrieval_id
		 FROM archive_state WHERE account_id = ? ORDER BY content_hash`, accountID)
}

func (s *SQLiteIndex) ListArchiveRecordsByState(accountID string, state pv.ArchiveState) ([]*pv.ArchiveRecord, error) {
	return s.queryArchiveRecords(
		`SELECT account_id, content_hash, state, size, state_changed_at, retrieval_id
		 FROM archive_state WHERE account_id = ? AND state = ? ORDER BY content_hash`,
		accountID, string(state))
}

func (s *SQLiteIndex) ListArchiveRecordsByRetrieval(retrievalID string) ([]*pv.ArchiveRecord, error) {
	return s.queryArchiveRecords(
		`SELECT account_id, content_hash, state, size, state_changed_at, retrieval_id
		 FROM archive_state WHERE retrieval_id = ? ORDER BY content_hash`, retrievalID)
}

func (s *SQLiteIndex) queryArchiveRecords(query string, args ...any) ([]*pv.ArchiveRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archive records: %w", err)
	}
	defer rows.Close()

	var recs []*pv.ArchiveRecord
	for rows.Next() {
		rec, err := scanArchiveRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning archive record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchiveRecord(row rowScanner) (*pv.ArchiveRecord, error) {
	var rec pv.ArchiveRecord
	var state string
	err := row.Scan(&rec.AccountID, &rec.ContentHash, &state, &rec.Size, &rec.StateChangedAt, &rec.RetrievalID)
	if err != nil {
		return nil, err
	}
	rec.State = pv.ArchiveState(state)
	return &rec, nil
}

// Retrieval requests

func (s *SQLiteIndex) CreateRetrievalRequest(req *pv.RetrievalRequest) error {
	_, err := s.db.Exec(
		`INSERT INTO retrieval_request (id, account_id, total_bytes, credits, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.AccountID, req.TotalBytes, req.Credits, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating retrieval request: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ListRetrievalRequests(accountID string) ([]*pv.RetrievalRequest, error) {
	rows, err := s.db.Query(
		`SELECT id, account_id, total_bytes, credits, created_at
		 FROM retrieval_request WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying retrieval requests: %w", err)
	}
	defer rows.Close()

	var reqs []*pv.RetrievalRequest
	for rows.Next() {
		var req pv.RetrievalRequest
		if err := rows.Scan(&req.ID, &req.AccountID, &req.TotalBytes, &req.Credits, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning retrieval request: %w", err)
		}
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// Credit ledger

func (s *SQLiteIndex) GetCredits(accountID string) (int64, error) {
	row := s.db.QueryRow(`SELECT credits FROM credit_ledger WHERE account_id = ?`, accountID)

	var credits int64
	if err := row.Scan(&credits); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading credit balance: %w", err)
	}
	return credits, nil
}

func (s *SQLiteIndex) AddCredits(accountID string, delta int64) error {
	_, err := s.db.Exec(
		`INSERT INTO credit_ledger (account_id, credits) VALUES (?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET credits = credits + excluded.credits`,
		accountID, delta)
	if err != nil {
		return fmt.Errorf("adjusting credit balance: %w", err)
	}
	return nil
}

// Operation history

func (s *SQLiteIndex) CreateOperation(name string) (*pv.Operation, error) {
	now := s.clock.Now()
	res, err := s.db.Exec(
		`INSERT INTO operation (name, started_at, status) VALUES (?, ?, 'running')`, name, now)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading operation id: %w", err)
	}

	return &pv.Operation{ID: id, Name: name, StartedAt: now, Status: "running"}, nil
}

func (s *SQLiteIndex) FinishOperation(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE operation SET finished_at = ?, status = ? WHERE id = ?`,
		s.clock.Now(), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) ListOperations(limit int) ([]*pv.Operation, error) {
	rows, err := s.db.Query(
		`SELECT id, name, started_at, finished_at, status
		 FROM operation ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	var ops []*pv.Operation
	for rows.Next() {
		var op pv.Operation
		if err := rows.Scan(&op.ID, &op.Name, &op.StartedAt, &op.FinishedAt, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		ops = append(ops, &op)
	}
	return ops, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Compile-time check that SQLiteIndex implements pv.Index interface
var _ pv.Index = (*SQLiteIndex)(nil)
