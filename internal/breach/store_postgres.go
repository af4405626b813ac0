package breach

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists breaches in the data_breaches table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, b *Breach) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO data_breaches (
			id, description, categories, approx_subjects,
			likely_consequences, measures_proposed, reported_by, reported_at,
			status, reported_to_authority, authority_notified_at,
			reported_to_subjects, subjects_notified_at, updated_at, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		b.ID.UUID(), b.Description, pq.Array(categoryStrings(b.Categories)), b.ApproxSubjects,
		b.LikelyConsequences, b.MeasuresProposed, b.ReportedBy, b.ReportedAt,
		string(b.Status), b.ReportedToAuthority, b.AuthorityNotifiedAt,
		b.ReportedToSubjects, b.SubjectsNotifiedAt, b.UpdatedAt, b.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert breach: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, breachID id.BreachID) (*Breach, error) {
	row := s.db.QueryRowContext(ctx, breachSelect+` WHERE id = $1`, breachID.UUID())
	b, err := scanBreach(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find breach: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Update(ctx context.Context, b *Breach) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE data_breaches
		SET status = $2, reported_to_authority = $3, authority_notified_at = $4,
		    reported_to_subjects = $5, subjects_notified_at = $6,
		    updated_at = $7, notes = $8
		WHERE id = $1
	`,
		b.ID.UUID(), string(b.Status), b.ReportedToAuthority, b.AuthorityNotifiedAt,
		b.ReportedToSubjects, b.SubjectsNotifiedAt, b.UpdatedAt, b.Notes,
	)
	if err != nil {
		return fmt.Errorf("update breach: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update breach: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Breach, error) {
	rows, err := s.db.QueryContext(ctx, breachSelect+` ORDER BY reported_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list breaches: %w", err)
	}
	defer rows.Close()

	var breaches []*Breach
	for rows.Next() {
		b, err := scanBreach(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breach: %w", err)
		}
		breaches = append(breaches, b)
	}
	return breaches, rows.Err()
}

const breachSelect = `
	SELECT id, description, categories, approx_subjects,
	       likely_consequences, measures_proposed, reported_by, reported_at,
	       status, reported_to_authority, authority_notified_at,
	       reported_to_subjects, subjects_notified_at, updated_at, notes
	FROM data_breaches`

func scanBreach(row interface{ Scan(dest ...any) error }) (*Breach, error) {
	var (
		b           Breach
		breachID    string
		categories  pq.StringArray
		status      string
		authorityAt sql.NullTime
		subjectsAt  sql.NullTime
	)
	err := row.Scan(
		&breachID, &b.Description, &categories, &b.ApproxSubjects,
		&b.LikelyConsequences, &b.MeasuresProposed, &b.ReportedBy, &b.ReportedAt,
		&status, &b.ReportedToAuthority, &authorityAt,
		&b.ReportedToSubjects, &subjectsAt, &b.UpdatedAt, &b.Notes,
	)
	if err != nil {
		return nil, err
	}
	b.ID, err = id.ParseBreachID(breachID)
	if err != nil {
		return nil, err
	}
	b.Status = id.BreachStatus(status)
	b.Categories = make([]id.DataCategory, len(categories))
	for i, c := range categories {
		b.Categories[i] = id.DataCategory(c)
	}
	if authorityAt.Valid {
		t := authorityAt.Time
		b.AuthorityNotifiedAt = &t
	}
	if subjectsAt.Valid {
		t := subjectsAt.Time
		b.SubjectsNotifiedAt = &t
	}
	return &b, nil
}

func categoryStrings(categories []id.DataCategory) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}
