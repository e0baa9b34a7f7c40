package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"pv-go/internal/pv"
)

// MemoryStore is an in-memory implementation of the ObjectStore interface.
// It stores all objects in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	objects map[string]memoryObject
	mu      sync.RWMutex
	clock   pv.Clock
}

type memoryObject struct {
	data       []byte
	modifiedAt time.Time
}

// NewMemoryStore creates a new in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		clock:   pv.RealClock{},
	}
}

// NewMemoryStoreWithClock creates an in-memory store whose object timestamps
// come from the given clock. Used by tests that need deterministic times.
func NewMemoryStoreWithClock(clock pv.Clock) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		clock:   clock,
	}
}

// Get retrieves the object at key.
func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, pv.ErrNotFound)
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Put stores an object at key, overwriting any existing object.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = memoryObject{data: data, modifiedAt: m.clock.Now()}
	return nil
}

// PutIfAbsent atomically creates the object at key only if absent.
func (m *MemoryStore) PutIfAbsent(_ context.Context, key string, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[key]; ok {
		return false, nil
	}

	m.objects[key] = memoryObject{data: append([]byte{}, data...), modifiedAt: m.clock.Now()}
	return true, nil
}

// Head checks for an object without fetching its content.
func (m *MemoryStore) Head(_ context.Context, key string) (*pv.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("head %s: %w", key, pv.ErrNotFound)
	}

	return &pv.ObjectInfo{Key: key, Size: int64(len(obj.data)), ModifiedAt: obj.modifiedAt}, nil
}

// List returns info for all objects whose key starts with prefix, in key order.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]pv.ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []pv.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, pv.ObjectInfo{Key: key, Size: int64(len(obj.data)), ModifiedAt: obj.modifiedAt})
		}
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes the object at key. Deleting a missing object is not an error.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Compile-time check that MemoryStore implements pv.ObjectStore interface
var _ pv.ObjectStore = (*MemoryStore)(nil)
