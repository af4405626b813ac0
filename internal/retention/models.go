// Package retention implements retention policy management and the periodic
// sweep that disposes of expired records.
package retention

import (
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Policy defines how long records of one data category may be kept and what
// happens to them afterwards. At most one policy per category is active; an
// upsert deactivates the previous one rather than editing it in place, so
// policy history survives for audits.
type Policy struct {
	ID            id.PolicyID
	DataCategory  id.DataCategory
	RetentionDays int
	LegalBasis    id.LegalBasis
	Description   string
	Active        bool
	CreatedBy     string
	CreatedAt     time.Time
}

// GovernedRecord is a PII-bearing row subject to retention. Disposition is
// empty until the sweep disposes of the record; a disposed record is never
// reprocessed.
type GovernedRecord struct {
	ID          uuid.UUID
	Category    id.DataCategory
	CreatedAt   time.Time
	Fields      map[string]string
	Disposition string
}

// Disposition values written by the sweep.
const (
	DispositionAnonymized = "anonymized"
	DispositionDeleted    = "deleted"
	DispositionArchived   = "archived"
)

// Decision is the outcome of a ShouldRetain check.
type Decision struct {
	Retain    bool
	Reason    string
	ExpiresAt time.Time
}

// SweepResult summarizes one ProcessExpired run.
type SweepResult struct {
	Processed  int
	Anonymized int
	Deleted    int
	Archived   int
	Skipped    int
	Errors     int
	Duration   time.Duration
}

// CategoryStats is the per-category slice of a retention report.
type CategoryStats struct {
	Policy        *Policy
	PendingExpiry int
}

// Report is the compliance-facing view of retention state.
type Report struct {
	GeneratedAt     time.Time
	Policies        []*Policy
	Stats           map[id.DataCategory]CategoryStats
	Compliant       bool
	MissingRequired []id.DataCategory
	Recommendations []string
}
