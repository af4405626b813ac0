//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/audit"
	"custodia/internal/audit/store"
	txcontext "custodia/pkg/platform/tx"
	"custodia/pkg/testutil/containers"
)

func TestPostgres_AppendQueryAndOutbox(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	entry := audit.Entry{
		ID:        uuid.New(),
		UserID:    "member-42",
		Action:    audit.ActionConsentGranted,
		Resource:  "consent",
		NewValues: map[string]any{"purpose": "marketing"},
		IPAddress: "203.0.113.7",
		UserAgent: "member-portal/2.1",
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.Append(ctx, entry))

	// Retried appends are idempotent on the entry ID.
	require.NoError(t, s.Append(ctx, entry))

	entries, err := s.Query(ctx, audit.Filter{UserID: "member-42"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "marketing", entries[0].NewValues["purpose"])

	rows, err := s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, s.MarkPublished(ctx, []uuid.UUID{rows[0].ID}))
	rows, err = s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPostgres_AppendLeavesNoPartialWrite(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	// Park the outbox table so its insert fails after the entry insert
	// would have succeeded.
	_, err := pg.DB.ExecContext(ctx, `ALTER TABLE audit_outbox RENAME TO audit_outbox_parked`)
	require.NoError(t, err)

	entry := audit.Entry{
		ID:        uuid.New(),
		UserID:    "member-42",
		Action:    audit.ActionConsentGranted,
		Resource:  "consent",
		Timestamp: time.Now().UTC(),
	}
	require.Error(t, s.Append(ctx, entry))

	var count int
	require.NoError(t, pg.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM audit_entries WHERE id = $1`, entry.ID).Scan(&count))
	assert.Zero(t, count, "an entry without an outbox row would never reach the relay")

	_, err = pg.DB.ExecContext(ctx, `ALTER TABLE audit_outbox_parked RENAME TO audit_outbox`)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, entry))
}

func TestPostgres_AppendJoinsCallerTransaction(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()

	entry := audit.Entry{
		ID:        uuid.New(),
		UserID:    "member-42",
		Action:    audit.ActionConsentWithdrawn,
		Resource:  "consent",
		Timestamp: time.Now().UTC(),
	}

	dbTx, err := pg.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(txcontext.WithTx(ctx, dbTx), entry))
	require.NoError(t, dbTx.Rollback())

	// Rolling back the caller's transaction discards both writes.
	entries, err := s.Query(ctx, audit.Filter{UserID: "member-42"})
	require.NoError(t, err)
	assert.Empty(t, entries)
	rows, err := s.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPostgres_ReportCounts(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	s := store.NewPostgres(pg.DB)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, action := range []audit.Action{
		audit.ActionConsentGranted, audit.ActionConsentGranted, audit.ActionDataAccess,
	} {
		require.NoError(t, s.Append(ctx, audit.Entry{
			ID:        uuid.New(),
			UserID:    "member-42",
			Action:    action,
			Resource:  "consent",
			Timestamp: now,
		}))
	}

	byAction, err := s.CountByAction(ctx, now.Add(-time.Hour), now.Add(time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, 2, byAction[audit.ActionConsentGranted])
	assert.Equal(t, 1, byAction[audit.ActionDataAccess])

	byAction, err = s.CountByAction(ctx, now.Add(-time.Hour), now.Add(time.Hour), "someone-else")
	require.NoError(t, err)
	assert.Empty(t, byAction)
}
