package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pv-go/internal/pv"
)

// Store abstracts where a catalog namespace keeps its pointer and snapshot
// objects: a local working-copy directory or a remote account namespace.
// Snapshot objects (manifests and shards) are content-addressed and
// immutable; the pointer is the single mutable record.
type Store interface {
	// ReadPointer returns the snapshot hash the pointer names.
	// Returns ErrNotFound if no pointer exists yet.
	ReadPointer(ctx context.Context) (string, error)

	// WritePointer updates the pointer to name snapshotHash.
	WritePointer(ctx context.Context, snapshotHash string) error

	// ReadObject returns the snapshot object (manifest or shard) with the given hash.
	ReadObject(ctx context.Context, hash string) ([]byte, error)

	// WriteObject stores a snapshot object under its hash.
	// Objects are immutable: writing the same hash twice is a no-op overwrite.
	WriteObject(ctx context.Context, hash string, data []byte) error
}

// FSStore keeps a catalog namespace in a local directory:
//
//	{dir}/pointer          -> snapshotHash (text)
//	{dir}/{hash}.snap      -> snapshot objects
//
// The caller derives dir from the scanned directory's fingerprint.
type FSStore struct {
	dir string
}

// NewFSStore creates a filesystem-backed catalog store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	return &FSStore{dir: dir}, nil
}

// DirFingerprint returns the cache subdirectory name for a scanned directory,
// derived from its normalized absolute path.
func DirFingerprint(absPath string) string {
	return pv.ContentHashBytes([]byte(absPath))
}

func (s *FSStore) pointerPath() string {
	return filepath.Join(s.dir, "pointer")
}

func (s *FSStore) objectPath(hash string) string {
	return filepath.Join(s.dir, hash+".snap")
}

func (s *FSStore) ReadPointer(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.pointerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", pv.ErrNotFound
		}
		return "", fmt.Errorf("reading pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *FSStore) WritePointer(_ context.Context, snapshotHash string) error {
	// Write-then-rename so a reader never sees a torn pointer. The temp
	// name is unique per write: concurrent publishers each rename their own
	// complete file and the pointer stays last-writer-wins.
	tmp, err := os.CreateTemp(s.dir, "pointer-*.tmp")
	if err != nil {
		return fmt.Errorf("writing pointer: %w", err)
	}
	if _, err := tmp.Write([]byte(snapshotHash)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing pointer: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.pointerPath()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing pointer: %w", err)
	}
	return nil
}

func (s *FSStore) ReadObject(_ context.Context, hash string) ([]byte, error) {
	data, err := os.ReadFile(s.objectPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot object %s: %w", hash, pv.ErrNotFound)
		}
		return nil, fmt.Errorf("reading snapshot object: %w", err)
	}
	return data, nil
}

func (s *FSStore) WriteObject(_ context.Context, hash string, data []byte) error {
	if err := os.WriteFile(s.objectPath(hash), data, 0644); err != nil {
		return fmt.Errorf("writing snapshot object: %w", err)
	}
	return nil
}

var _ Store = (*FSStore)(nil)

// RemoteStore keeps a catalog namespace in an account's object-store prefix,
// using the canonical catalog key layout.
type RemoteStore struct {
	store     pv.ObjectStore
	accountID string
}

// NewRemoteStore creates a catalog store over an account's remote namespace.
func NewRemoteStore(store pv.ObjectStore, accountID string) *RemoteStore {
	return &RemoteStore{store: store, accountID: accountID}
}

func (s *RemoteStore) ReadPointer(ctx context.Context) (string, error) {
	r, err := s.store.Get(ctx, pv.CatalogPointerKey(s.accountID))
	if err != nil {
		return "", err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *RemoteStore) WritePointer(ctx context.Context, snapshotHash string) error {
	data := []byte(snapshotHash)
	return s.store.Put(ctx, pv.CatalogPointerKey(s.accountID), strings.NewReader(snapshotHash), int64(len(data)))
}

func (s *RemoteStore) ReadObject(ctx context.Context, hash string) ([]byte, error) {
	r, err := s.store.Get(ctx, pv.CatalogSnapshotKey(s.accountID, hash))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot object: %w", err)
	}
	return data, nil
}

func (s *RemoteStore) WriteObject(ctx context.Context, hash string, data []byte) error {
	return s.store.Put(ctx, pv.CatalogSnapshotKey(s.accountID, hash), bytes.NewReader(data), int64(len(data)))
}

var _ Store = (*RemoteStore)(nil)
