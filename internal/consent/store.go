package consent

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists consent records.
//
// Insert must be conditional: if an active record already exists for the
// same (subject, purpose) it returns sentinel.ErrConflict without writing.
// Withdraw must be conditional the other way: it returns
// sentinel.ErrNotFound when no active record exists.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Withdraw(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error)
	FindActive(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*Record, error)
}
