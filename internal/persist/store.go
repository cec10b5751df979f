// Package persist holds the durable storage contract behind persistent
// cache handlers, plus the bundled implementations. Snapshots are
// written as opaque batches tagged with a version string; loading a
// version that was never written yields an empty restore, never an
// error, so a stale snapshot cannot poison a new build.
package persist

import (
	"context"
	"sync"
)

// Store is the durable storage collaborator. The core assumes nothing
// about the engine behind it beyond these three operations.
type Store interface {
	// PutBatch appends one serialized batch for (name, version) and
	// flushes it before returning, so a mid-save failure loses at most
	// the batch in flight.
	PutBatch(ctx context.Context, name, version string, batch []byte) error

	// GetBatches returns every batch stored for the exact (name,
	// version) pair, in write order. An unknown version returns nil.
	GetBatches(ctx context.Context, name, version string) ([][]byte, error)

	// Drop removes all batches stored for (name, version).
	Drop(ctx context.Context, name, version string) error
}

// MemoryStore keeps batches in process memory. It is the default store
// when no persistence directory is configured and the workhorse of
// tests; snapshots do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string][][]byte)}
}

func storeKey(name, version string) string {
	return name + "\x00" + version
}

func (s *MemoryStore) PutBatch(_ context.Context, name, version string, batch []byte) error {
	cp := make([]byte, len(batch))
	copy(cp, batch)

	s.mu.Lock()
	k := storeKey(name, version)
	s.batches[k] = append(s.batches[k], cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetBatches(_ context.Context, name, version string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.batches[storeKey(name, version)]
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) Drop(_ context.Context, name, version string) error {
	s.mu.Lock()
	delete(s.batches, storeKey(name, version))
	s.mu.Unlock()
	return nil
}
