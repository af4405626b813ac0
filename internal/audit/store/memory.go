// Package store provides audit trail persistence backends.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"custodia/internal/audit"
)

// Memory is an in-memory audit store for tests and development. Append-only;
// entries are copied on the way out so callers cannot mutate the trail.
type Memory struct {
	mu      sync.RWMutex
	entries []audit.Entry

	// FailAppends simulates a store outage for fail-open tests.
	FailAppends error
}

// NewMemory creates an empty in-memory audit store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppends != nil {
		return m.FailAppends
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []audit.Entry
	for _, e := range m.entries {
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) CountByAction(_ context.Context, from, to time.Time, userID string) (map[audit.Action]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[audit.Action]int)
	for _, e := range m.entries {
		if inWindow(e, from, to, userID) {
			counts[e.Action]++
		}
	}
	return counts, nil
}

func (m *Memory) CountByResource(_ context.Context, from, to time.Time, userID string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range m.entries {
		if inWindow(e, from, to, userID) {
			counts[e.Resource]++
		}
	}
	return counts, nil
}

// Len reports the number of stored entries (test helper).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func matches(e audit.Entry, f audit.Filter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if !f.ActivityID.IsNil() && e.ActivityID != f.ActivityID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}

func inWindow(e audit.Entry, from, to time.Time, userID string) bool {
	if userID != "" && e.UserID != userID {
		return false
	}
	if !from.IsZero() && e.Timestamp.Before(from) {
		return false
	}
	if !to.IsZero() && e.Timestamp.After(to) {
		return false
	}
	return true
}
