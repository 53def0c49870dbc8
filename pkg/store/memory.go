package store

import (
	"context"
	"sync"

	"github.com/connectorhq/meridian/pkg/meridianerrors"
)

// MemoryStore is an in-memory Store implementation used by tests and the
// CLI. Records are copied on the way in and out so callers cannot mutate
// stored state.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ConnectionRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*ConnectionRecord)}
}

// LoadRecord returns the record with the given ID.
func (s *MemoryStore) LoadRecord(_ context.Context, id string) (*ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, meridianerrors.Newf(meridianerrors.ErrorTypeNotFound,
			"connection %s not found", id)
	}
	copied := *record
	return &copied, nil
}

// SaveRecord inserts or updates a record. Labels are unique across records.
func (s *MemoryStore) SaveRecord(_ context.Context, record *ConnectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.records {
		if id != record.ID && existing.Label == record.Label {
			return meridianerrors.Newf(meridianerrors.ErrorTypeConflict,
				"a connection labeled %q already exists", record.Label)
		}
	}

	copied := *record
	s.records[record.ID] = &copied
	return nil
}

// DeleteRecord removes a record. The ciphertext is discarded with it; there
// is no recovery path.
func (s *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return meridianerrors.Newf(meridianerrors.ErrorTypeNotFound,
			"connection %s not found", id)
	}
	delete(s.records, id)
	return nil
}

// ListRecords returns all records.
func (s *MemoryStore) ListRecords(_ context.Context) ([]*ConnectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*ConnectionRecord, 0, len(s.records))
	for _, record := range s.records {
		copied := *record
		records = append(records, &copied)
	}
	return records, nil
}
