package anchor

import (
	"context"
	"sync"

	"veridoc/internal/sentinel"
)

// InMemoryRecordStore keeps anchor records in memory for tests.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]StoredRecord
}

// NewInMemoryRecordStore constructs an empty in-memory record store.
func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[string]StoredRecord)}
}

func (s *InMemoryRecordStore) Put(_ context.Context, record StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Reference] = record
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, reference string) (*StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[reference]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}
