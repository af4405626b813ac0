package retention

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryPolicyStore is an in-memory PolicyStore for unit tests.
type MemoryPolicyStore struct {
	mu       sync.Mutex
	policies []*Policy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{}
}

func (s *MemoryPolicyStore) Upsert(_ context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.policies {
		if existing.DataCategory == policy.DataCategory && existing.Active {
			existing.Active = false
		}
	}
	cp := *policy
	s.policies = append(s.policies, &cp)
	return nil
}

func (s *MemoryPolicyStore) FindActive(_ context.Context, category id.DataCategory) (*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.policies {
		if existing.DataCategory == category && existing.Active {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryPolicyStore) ListActive(_ context.Context) ([]*Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Policy
	for _, existing := range s.policies {
		if existing.Active {
			cp := *existing
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) Deactivate(_ context.Context, category id.DataCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, existing := range s.policies {
		if existing.DataCategory == category && existing.Active {
			existing.Active = false
			found = true
		}
	}
	if !found {
		return sentinel.ErrNotFound
	}
	return nil
}

// MemoryDataStore is an in-memory DataStore for unit tests.
type MemoryDataStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*GovernedRecord

	// FailActions, when set, makes every disposal call fail.
	FailActions error
}

func NewMemoryDataStore() *MemoryDataStore {
	return &MemoryDataStore{records: make(map[uuid.UUID]*GovernedRecord)}
}

// Add seeds a record.
func (s *MemoryDataStore) Add(record GovernedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := record
	s.records[record.ID] = &cp
}

// Get returns a copy of the record, if present.
func (s *MemoryDataStore) Get(recordID uuid.UUID) (GovernedRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return GovernedRecord{}, false
	}
	return *rec, true
}

func (s *MemoryDataStore) ListExpired(_ context.Context, category id.DataCategory, cutoff time.Time, limit int) ([]GovernedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []GovernedRecord
	for _, rec := range s.records {
		if rec.Category == category && rec.Disposition == "" && rec.CreatedAt.Before(cutoff) {
			out = append(out, *rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryDataStore) CountExpired(_ context.Context, category id.DataCategory, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.Category == category && rec.Disposition == "" && rec.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryDataStore) Anonymize(_ context.Context, recordID uuid.UUID, masked map[string]string) error {
	return s.dispose(recordID, DispositionAnonymized, masked)
}

func (s *MemoryDataStore) Delete(_ context.Context, recordID uuid.UUID) error {
	return s.dispose(recordID, DispositionDeleted, nil)
}

func (s *MemoryDataStore) Archive(_ context.Context, recordID uuid.UUID) error {
	return s.dispose(recordID, DispositionArchived, nil)
}

func (s *MemoryDataStore) dispose(recordID uuid.UUID, disposition string, masked map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailActions != nil {
		return s.FailActions
	}
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Disposition = disposition
	if disposition == DispositionDeleted {
		rec.Fields = nil
	}
	if masked != nil {
		rec.Fields = masked
	}
	return nil
}
