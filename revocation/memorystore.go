package revocation

import (
	"context"
	"fmt"
	"sync"

	"github.com/radlab-io/authgate/authgateerrors"
)

// MemoryStore is an in-process IdentityStore used by the ops API and tests.
// Production deployments wire their own IdentityStore implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]IdentityRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]IdentityRecord),
	}
}

func (s *MemoryStore) Lookup(_ context.Context, subjectID string) (*IdentityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, found := s.records[subjectID]
	if !found {
		return nil, fmt.Errorf("identity %s: %w", subjectID, authgateerrors.ErrNotFound)
	}

	return &record, nil
}

func (s *MemoryStore) Put(record IdentityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.SubjectID] = record
}

// BumpEpoch increments the subject's session epoch, invalidating every
// credential issued before the bump.
func (s *MemoryStore) BumpEpoch(subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, found := s.records[subjectID]
	if !found {
		return fmt.Errorf("identity %s: %w", subjectID, authgateerrors.ErrNotFound)
	}

	record.SessionEpoch++
	s.records[subjectID] = record

	return nil
}
