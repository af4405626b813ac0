package retention

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// PostgresPolicyStore persists retention policies. The one-active-per-category
// invariant is backed by the retention_policy_active_unique partial index;
// Upsert deactivates the previous policy in the same transaction so the index
// never rejects a legitimate replacement.
type PostgresPolicyStore struct {
	db *sql.DB
}

func NewPostgresPolicyStore(db *sql.DB) *PostgresPolicyStore {
	return &PostgresPolicyStore{db: db}
}

func (s *PostgresPolicyStore) Upsert(ctx context.Context, policy *Policy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin policy upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE retention_policies SET active = FALSE
		WHERE data_category = $1 AND active
	`, string(policy.DataCategory))
	if err != nil {
		return fmt.Errorf("deactivate previous policy: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO retention_policies (
			id, data_category, retention_days, legal_basis,
			description, active, created_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		policy.ID.UUID(), string(policy.DataCategory), policy.RetentionDays, string(policy.LegalBasis),
		policy.Description, policy.Active, policy.CreatedBy, policy.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert retention policy: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresPolicyStore) FindActive(ctx context.Context, category id.DataCategory) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data_category, retention_days, legal_basis,
		       description, active, created_by, created_at
		FROM retention_policies
		WHERE data_category = $1 AND active
	`, string(category))

	policy, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active policy: %w", err)
	}
	return policy, nil
}

func (s *PostgresPolicyStore) ListActive(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data_category, retention_days, legal_basis,
		       description, active, created_by, created_at
		FROM retention_policies
		WHERE active
		ORDER BY data_category
	`)
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retention policy: %w", err)
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

func (s *PostgresPolicyStore) Deactivate(ctx context.Context, category id.DataCategory) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE retention_policies SET active = FALSE
		WHERE data_category = $1 AND active
	`, string(category))
	if err != nil {
		return fmt.Errorf("deactivate policy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate policy: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanPolicy(row interface{ Scan(dest ...any) error }) (*Policy, error) {
	var (
		policy   Policy
		policyID string
		category string
		basis    string
	)
	err := row.Scan(
		&policyID, &category, &policy.RetentionDays, &basis,
		&policy.Description, &policy.Active, &policy.CreatedBy, &policy.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	policy.ID, err = id.ParsePolicyID(policyID)
	if err != nil {
		return nil, err
	}
	policy.DataCategory = id.DataCategory(category)
	policy.LegalBasis = id.LegalBasis(basis)
	return &policy, nil
}

// PostgresDataStore exposes governed_records to the sweep. Anonymize keeps
// the row with masked fields; Delete clears the fields entirely; Archive
// keeps them intact. All three stamp the disposition so a rerun skips the
// row.
type PostgresDataStore struct {
	db *sql.DB
}

func NewPostgresDataStore(db *sql.DB) *PostgresDataStore {
	return &PostgresDataStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresDataStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresDataStore) ListExpired(ctx context.Context, category id.DataCategory, cutoff time.Time, limit int) ([]GovernedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data_category, created_at, fields, disposition
		FROM governed_records
		WHERE data_category = $1 AND disposition = '' AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, string(category), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired records: %w", err)
	}
	defer rows.Close()

	var records []GovernedRecord
	for rows.Next() {
		var (
			rec        GovernedRecord
			categoryDB string
			fieldsJSON []byte
		)
		if err := rows.Scan(&rec.ID, &categoryDB, &rec.CreatedAt, &fieldsJSON, &rec.Disposition); err != nil {
			return nil, fmt.Errorf("scan governed record: %w", err)
		}
		rec.Category = id.DataCategory(categoryDB)
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal record fields: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresDataStore) CountExpired(ctx context.Context, category id.DataCategory, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM governed_records
		WHERE data_category = $1 AND disposition = '' AND created_at < $2
	`, string(category), cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired records: %w", err)
	}
	return n, nil
}

func (s *PostgresDataStore) Anonymize(ctx context.Context, recordID uuid.UUID, masked map[string]string) error {
	maskedJSON, err := json.Marshal(masked)
	if err != nil {
		return fmt.Errorf("marshal masked fields: %w", err)
	}
	return s.dispose(ctx, recordID, DispositionAnonymized, `
		UPDATE governed_records
		SET fields = $2, disposition = $3
		WHERE id = $1 AND disposition = ''
	`, recordID, maskedJSON, DispositionAnonymized)
}

func (s *PostgresDataStore) Delete(ctx context.Context, recordID uuid.UUID) error {
	return s.dispose(ctx, recordID, DispositionDeleted, `
		UPDATE governed_records
		SET fields = '{}'::jsonb, disposition = $2
		WHERE id = $1 AND disposition = ''
	`, recordID, DispositionDeleted)
}

func (s *PostgresDataStore) Archive(ctx context.Context, recordID uuid.UUID) error {
	return s.dispose(ctx, recordID, DispositionArchived, `
		UPDATE governed_records
		SET disposition = $2
		WHERE id = $1 AND disposition = ''
	`, recordID, DispositionArchived)
}

func (s *PostgresDataStore) dispose(ctx context.Context, recordID uuid.UUID, disposition, query string, args ...any) error {
	_, err := s.execer(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s record %s: %w", disposition, recordID, err)
	}
	return nil
}
