package breach

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// MemoryStore is an in-memory Store for unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	breaches map[id.BreachID]*Breach
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{breaches: make(map[id.BreachID]*Breach)}
}

func (s *MemoryStore) Insert(_ context.Context, b *Breach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.breaches[b.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := cloneBreach(b)
	s.breaches[b.ID] = cp
	return nil
}

func (s *MemoryStore) Find(_ context.Context, breachID id.BreachID) (*Breach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breaches[breachID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneBreach(b), nil
}

func (s *MemoryStore) Update(_ context.Context, b *Breach) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.breaches[b.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.breaches[b.ID] = cloneBreach(b)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*Breach, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Breach, 0, len(s.breaches))
	for _, b := range s.breaches {
		out = append(out, cloneBreach(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportedAt.After(out[j].ReportedAt) })
	return out, nil
}

func cloneBreach(b *Breach) *Breach {
	cp := *b
	cp.Categories = append([]id.DataCategory(nil), b.Categories...)
	if b.AuthorityNotifiedAt != nil {
		t := *b.AuthorityNotifiedAt
		cp.AuthorityNotifiedAt = &t
	}
	if b.SubjectsNotifiedAt != nil {
		t := *b.SubjectsNotifiedAt
		cp.SubjectsNotifiedAt = &t
	}
	return &cp
}
