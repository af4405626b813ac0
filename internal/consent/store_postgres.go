package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// PostgresStore persists consent records. The active-uniqueness invariant is
// enforced by the consent_active_unique partial index, so concurrent grants
// for the same (subject, purpose) resolve at the database and the loser
// surfaces sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	categories := make([]string, len(rec.DataCategories))
	for i, c := range rec.DataCategories {
		categories[i] = string(c)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_records (
			id, subject_id, purpose, data_categories, legal_basis,
			retention_days, granted, granted_at, withdrawal_date,
			consent_version, ip_address, user_agent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID, rec.SubjectID.UUID(), string(rec.Purpose), pq.Array(categories), string(rec.LegalBasis),
		rec.RetentionDays, rec.Granted, rec.GrantedAt, rec.WithdrawalDate,
		rec.ConsentVersion, rec.IPAddress, rec.UserAgent,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Withdraw(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error) {
	now := requestcontext.Now(ctx).UTC()

	row := s.db.QueryRowContext(ctx, `
		UPDATE consent_records
		SET granted = FALSE, withdrawal_date = $3
		WHERE subject_id = $1 AND purpose = $2
		  AND granted AND withdrawal_date IS NULL
		RETURNING id, subject_id, purpose, data_categories, legal_basis,
		          retention_days, granted, granted_at, withdrawal_date,
		          consent_version, ip_address, user_agent
	`, subjectID.UUID(), string(purpose), now)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("withdraw consent: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindActive(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, purpose, data_categories, legal_basis,
		       retention_days, granted, granted_at, withdrawal_date,
		       consent_version, ip_address, user_agent
		FROM consent_records
		WHERE subject_id = $1 AND purpose = $2
		  AND granted AND withdrawal_date IS NULL
	`, subjectID.UUID(), string(purpose))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active consent: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, purpose, data_categories, legal_basis,
		       retention_days, granted, granted_at, withdrawal_date,
		       consent_version, ip_address, user_agent
		FROM consent_records
		WHERE subject_id = $1
		ORDER BY granted_at DESC
	`, subjectID.UUID())
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		subjectID  string
		purpose    string
		categories pq.StringArray
		basis      string
		withdrawal sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &subjectID, &purpose, &categories, &basis,
		&rec.RetentionDays, &rec.Granted, &rec.GrantedAt, &withdrawal,
		&rec.ConsentVersion, &rec.IPAddress, &rec.UserAgent,
	)
	if err != nil {
		return nil, err
	}

	rec.SubjectID, err = id.ParseSubjectID(subjectID)
	if err != nil {
		return nil, err
	}
	rec.Purpose = id.ConsentPurpose(purpose)
	rec.LegalBasis = id.LegalBasis(basis)
	rec.DataCategories = make([]id.DataCategory, len(categories))
	for i, c := range categories {
		rec.DataCategories[i] = id.DataCategory(c)
	}
	if withdrawal.Valid {
		t := withdrawal.Time
		rec.WithdrawalDate = &t
	}
	return &rec, nil
}
