package audit

import (
	"context"
	"time"
)

// Store persists audit entries. Implementations are append-only: nothing in
// this interface mutates or deletes an entry.
type Store interface {
	Append(ctx context.Context, entry Entry) error

	// Query returns entries matching the filter, most recent first.
	Query(ctx context.Context, filter Filter) ([]Entry, error)

	// CountByAction aggregates entry counts per action over a window,
	// optionally restricted to one user.
	CountByAction(ctx context.Context, from, to time.Time, userID string) (map[Action]int, error)

	// CountByResource aggregates entry counts per resource over a window,
	// optionally restricted to one user.
	CountByResource(ctx context.Context, from, to time.Time, userID string) (map[string]int, error)
}
