package pv

import (
	"context"
	"io"
	"time"
)

// ObjectInfo describes a stored object as reported by Head or List.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time

	// Archived reports that the object sits in an archive storage tier with
	// no fetchable copy; Get on such an object returns ErrNotYetAvailable.
	// Restoring reports that a restore is in flight. Both stay false on
	// backends without storage tiers, and List never fills them.
	Archived  bool
	Restoring bool
}

// ObjectStore provides an interface for remote object storage backends.
// Content operations use io.Reader for streaming to support large originals
// without loading them entirely into memory. Small control records (pointers,
// identity mappings) use byte slices.
//
// All operations take a context because they are the only blocking calls in
// the system; local hashing and cache lookups are synchronous by design.
type ObjectStore interface {
	// Get retrieves the object at key. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores an object at key, overwriting any existing object.
	// size is the number of bytes that will be read from r.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// PutIfAbsent atomically creates the object at key only if no object
	// exists there. Returns true if this call created the object, false if
	// an object was already present (the existing object is left untouched).
	PutIfAbsent(ctx context.Context, key string, data []byte) (bool, error)

	// Head checks for an object without fetching its content.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns info for all objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the object at key. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}
