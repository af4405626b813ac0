package consent

import (
	"context"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// MemoryStore is an in-memory Store for unit tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.SubjectID == rec.SubjectID && existing.Purpose == rec.Purpose && existing.IsActive() {
			return sentinel.ErrConflict
		}
	}
	cp := *rec
	s.records = append(s.records, &cp)
	return nil
}

func (s *MemoryStore) Withdraw(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.SubjectID == subjectID && existing.Purpose == purpose && existing.IsActive() {
			now := requestcontext.Now(ctx).UTC()
			existing.Granted = false
			existing.WithdrawalDate = &now
			cp := *existing
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindActive(_ context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records {
		if existing.SubjectID == subjectID && existing.Purpose == purpose && existing.IsActive() {
			cp := *existing
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for _, existing := range s.records {
		if existing.SubjectID == subjectID {
			cp := *existing
			out = append(out, &cp)
		}
	}
	// Most recent grants first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Len reports the total number of records, withdrawn included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
