package retention

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// PolicyStore persists retention policies.
//
// Upsert activates the given policy and deactivates any previously active
// policy for the same category in the same operation. FindActive returns
// sentinel.ErrNotFound when no active policy covers the category.
type PolicyStore interface {
	Upsert(ctx context.Context, policy *Policy) error
	FindActive(ctx context.Context, category id.DataCategory) (*Policy, error)
	ListActive(ctx context.Context) ([]*Policy, error)
	Deactivate(ctx context.Context, category id.DataCategory) error
}

// DataStore is the port to the governed PII rows the sweep disposes of.
type DataStore interface {
	// ListExpired returns undisposed records of the category created
	// strictly before cutoff, oldest first, capped at limit. The strict
	// comparison keeps the boundary aligned with ShouldRetain: a record at
	// exactly the end of its window is still retained.
	ListExpired(ctx context.Context, category id.DataCategory, cutoff time.Time, limit int) ([]GovernedRecord, error)
	// CountExpired reports how many undisposed records would expire at cutoff.
	CountExpired(ctx context.Context, category id.DataCategory, cutoff time.Time) (int, error)
	Anonymize(ctx context.Context, recordID uuid.UUID, masked map[string]string) error
	Delete(ctx context.Context, recordID uuid.UUID) error
	Archive(ctx context.Context, recordID uuid.UUID) error
}
