// Package breach implements breach response coordination: severity
// evaluation, the notification sequence, and regulator-facing reporting.
package breach

import (
	"time"

	id "custodia/pkg/domain"
)

// Breach is a reported data breach. Created at status detected; mutated only
// through its status lifecycle and notification flags; never deleted.
type Breach struct {
	ID                  id.BreachID
	Description         string
	Categories          []id.DataCategory
	ApproxSubjects      int
	LikelyConsequences  string
	MeasuresProposed    string
	ReportedBy          string
	ReportedAt          time.Time
	Status              id.BreachStatus
	ReportedToAuthority bool
	AuthorityNotifiedAt *time.Time
	ReportedToSubjects  bool
	SubjectsNotifiedAt  *time.Time
	UpdatedAt           time.Time
	Notes               string
}

// ReportRequest is the intake shape for Coordinator.Report.
type ReportRequest struct {
	Description        string
	Categories         []id.DataCategory
	ApproxSubjects     int
	LikelyConsequences string
	MeasuresProposed   string
}

// Milestone is one event in a breach timeline.
type Milestone struct {
	Kind       string
	OccurredAt time.Time
	Detail     string
}

// Timeline milestone kinds, in their natural order.
const (
	MilestoneDetected          = "detected"
	MilestoneReported          = "reported"
	MilestoneAuthorityNotified = "authority_notified"
	MilestoneSubjectsNotified  = "subjects_notified"
	MilestoneStatusChanged     = "status_changed"
)

// AuthorityReport is the regulator-facing filing for a breach. Attestation is
// a signed token over the report digest; a regulator (or a later audit) can
// verify the filing was not altered after generation.
type AuthorityReport struct {
	BreachID           id.BreachID
	GeneratedAt        time.Time
	Description        string
	Categories         []id.DataCategory
	ApproxSubjects     int
	LikelyConsequences string
	MeasuresProposed   string
	ReportedAt         time.Time
	Deadline           time.Time
	DeadlineMet        bool
	Digest             string
	Attestation        string
}
