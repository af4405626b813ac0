package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodia/internal/audit"
	id "custodia/pkg/domain"
	txcontext "custodia/pkg/platform/tx"
)

// Postgres persists audit entries. Every append lands in two places inside
// one transaction: the audit_entries table (the query surface) and the
// audit_outbox table (relayed to Kafka for downstream consumers). Entries are
// never updated or deleted here.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL audit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure relayed to Kafka. Field names match
// audit.Entry for deserialization by consumers.
type outboxPayload struct {
	ID         string         `json:"ID"`
	Category   string         `json:"Category"`
	Timestamp  string         `json:"Timestamp"`
	UserID     string         `json:"UserID,omitempty"`
	Action     string         `json:"Action"`
	Resource   string         `json:"Resource"`
	ResourceID string         `json:"ResourceID,omitempty"`
	OldValues  map[string]any `json:"OldValues,omitempty"`
	NewValues  map[string]any `json:"NewValues,omitempty"`
	IPAddress  string         `json:"IPAddress,omitempty"`
	UserAgent  string         `json:"UserAgent,omitempty"`
	ActivityID string         `json:"ActivityID,omitempty"`
}

// Append lands the entry and its outbox row atomically: either both commit
// or neither does. A partial write would strand an entry the relay can never
// stream, and the fail-open recorder does not retry.
func (s *Postgres) Append(ctx context.Context, entry audit.Entry) error {
	if _, ok := txcontext.From(ctx); ok {
		return s.append(ctx, entry)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.append(txcontext.WithTx(ctx, tx), entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Postgres) append(ctx context.Context, entry audit.Entry) error {
	oldJSON, newJSON, err := marshalSnapshots(entry)
	if err != nil {
		return err
	}

	var userID *string
	if entry.UserID != "" {
		userID = &entry.UserID
	}
	var activityID *uuid.UUID
	if !entry.ActivityID.IsNil() {
		u := uuid.UUID(entry.ActivityID)
		activityID = &u
	}

	exec := s.execer(ctx)

	// Idempotent on entry ID so a retried append cannot duplicate the trail.
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, user_id, action, resource, resource_id,
			old_values, new_values, ip_address, user_agent, occurred_at, activity_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`,
		entry.ID, userID, string(entry.Action), entry.Resource, nullable(entry.ResourceID),
		oldJSON, newJSON, entry.IPAddress, entry.UserAgent, entry.Timestamp, activityID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := outboxPayload{
		ID:         entry.ID.String(),
		Category:   string(entry.Action.Category()),
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		UserID:     entry.UserID,
		Action:     string(entry.Action),
		Resource:   entry.Resource,
		ResourceID: entry.ResourceID,
		OldValues:  entry.OldValues,
		NewValues:  entry.NewValues,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
	if !entry.ActivityID.IsNil() {
		payload.ActivityID = entry.ActivityID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (s *Postgres) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, user_id, action, resource, resource_id,
		       old_values, new_values, ip_address, user_agent, occurred_at, activity_id
		FROM audit_entries
		WHERE 1=1
	`
	var args []any
	idx := 1
	add := func(clause string, value any) {
		query += fmt.Sprintf(" AND %s $%d", clause, idx)
		args = append(args, value)
		idx++
	}

	if filter.UserID != "" {
		add("user_id =", filter.UserID)
	}
	if filter.Resource != "" {
		add("resource =", filter.Resource)
	}
	if filter.ResourceID != "" {
		add("resource_id =", filter.ResourceID)
	}
	if !filter.ActivityID.IsNil() {
		add("activity_id =", uuid.UUID(filter.ActivityID))
	}
	if !filter.From.IsZero() {
		add("occurred_at >=", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <=", filter.To)
	}

	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *Postgres) CountByAction(ctx context.Context, from, to time.Time, userID string) (map[audit.Action]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*)
		FROM audit_entries
		WHERE occurred_at >= $1 AND occurred_at <= $2
		  AND ($3 = '' OR user_id = $3)
		GROUP BY action
	`, from, to, userID)
	if err != nil {
		return nil, fmt.Errorf("count by action: %w", err)
	}
	defer rows.Close()

	counts := make(map[audit.Action]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		counts[audit.Action(action)] = n
	}
	return counts, rows.Err()
}

func (s *Postgres) CountByResource(ctx context.Context, from, to time.Time, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource, COUNT(*)
		FROM audit_entries
		WHERE occurred_at >= $1 AND occurred_at <= $2
		  AND ($3 = '' OR user_id = $3)
		GROUP BY resource
	`, from, to, userID)
	if err != nil {
		return nil, fmt.Errorf("count by resource: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var resource string
		var n int
		if err := rows.Scan(&resource, &n); err != nil {
			return nil, fmt.Errorf("scan resource count: %w", err)
		}
		counts[resource] = n
	}
	return counts, rows.Err()
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry      audit.Entry
			userID     sql.NullString
			resourceID sql.NullString
			oldJSON    []byte
			newJSON    []byte
			activityID *uuid.UUID
			action     string
		)
		err := rows.Scan(
			&entry.ID, &userID, &action, &entry.Resource, &resourceID,
			&oldJSON, &newJSON, &entry.IPAddress, &entry.UserAgent, &entry.Timestamp, &activityID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Action = audit.Action(action)
		entry.UserID = userID.String
		entry.ResourceID = resourceID.String
		if activityID != nil {
			entry.ActivityID = id.ActivityID(*activityID)
		}
		if len(oldJSON) > 0 {
			if err := json.Unmarshal(oldJSON, &entry.OldValues); err != nil {
				return nil, fmt.Errorf("unmarshal old values: %w", err)
			}
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &entry.NewValues); err != nil {
				return nil, fmt.Errorf("unmarshal new values: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func marshalSnapshots(entry audit.Entry) (oldJSON, newJSON []byte, err error) {
	if entry.OldValues != nil {
		oldJSON, err = json.Marshal(entry.OldValues)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal old values: %w", err)
		}
	}
	if entry.NewValues != nil {
		newJSON, err = json.Marshal(entry.NewValues)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal new values: %w", err)
		}
	}
	return oldJSON, newJSON, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
