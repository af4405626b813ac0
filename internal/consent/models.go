// Package consent implements the consent ledger: per-subject, per-purpose
// consent records with grant, withdrawal, and processing-guard checks.
package consent

import (
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
)

// Record captures a data subject's decision for a specific purpose.
//
// Invariant: at most one record with Granted && WithdrawalDate == nil exists
// per (SubjectID, Purpose) at any time. The store's conditional insert backed
// by a partial unique index enforces this; application code never relies on
// read-then-write.
//
// Records are legal evidence and are never physically deleted. Withdrawal is
// permanent for a record instance: a new grant creates a new record rather
// than reviving the old one.
type Record struct {
	ID             uuid.UUID
	SubjectID      id.SubjectID
	Purpose        id.ConsentPurpose
	DataCategories []id.DataCategory
	LegalBasis     id.LegalBasis
	RetentionDays  int
	Granted        bool
	GrantedAt      time.Time
	WithdrawalDate *time.Time
	ConsentVersion string
	IPAddress      string
	UserAgent      string
}

// IsActive reports whether this record currently authorizes processing.
func (r Record) IsActive() bool {
	return r.Granted && r.WithdrawalDate == nil
}

// Covers reports whether every requested category was consented to.
func (r Record) Covers(categories []id.DataCategory) bool {
	consented := make(map[id.DataCategory]bool, len(r.DataCategories))
	for _, c := range r.DataCategories {
		consented[c] = true
	}
	for _, c := range categories {
		if !consented[c] {
			return false
		}
	}
	return true
}

// GrantRequest is the input to Service.RecordConsent.
type GrantRequest struct {
	SubjectID      id.SubjectID
	Purpose        id.ConsentPurpose
	DataCategories []id.DataCategory
	LegalBasis     id.LegalBasis
	RetentionDays  int
}

// Receipt confirms a grant and tells the subject how to withdraw.
type Receipt struct {
	Record                 *Record
	WithdrawalInstructions string
}

// Validation is the result of a processing-guard check.
type Validation struct {
	Valid  bool
	Reason string
}
