//go:build integration

package consent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"custodia/internal/consent"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"
)

func newRecord(subject id.SubjectID) *consent.Record {
	return &consent.Record{
		ID:             uuid.New(),
		SubjectID:      subject,
		Purpose:        id.PurposeMarketing,
		DataCategories: []id.DataCategory{id.CategoryContact},
		LegalBasis:     id.BasisConsent,
		RetentionDays:  365,
		Granted:        true,
		GrantedAt:      time.Now().UTC(),
		ConsentVersion: "v1",
	}
}

func TestPostgresStore_ActiveUniqueness(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := consent.NewPostgresStore(pg.DB)
	ctx := context.Background()
	subject := id.NewSubjectID()

	require.NoError(t, store.Insert(ctx, newRecord(subject)))

	err := store.Insert(ctx, newRecord(subject))
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// After withdrawal a fresh grant is accepted again.
	_, err = store.Withdraw(ctx, subject, id.PurposeMarketing)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, newRecord(subject)))

	records, err := store.ListBySubject(ctx, subject)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// Concurrent grants race to the partial unique index; exactly one wins.
func TestPostgresStore_ConcurrentGrants(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := consent.NewPostgresStore(pg.DB)
	subject := id.NewSubjectID()

	const attempts = 8
	results := make([]error, attempts)
	var group errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		group.Go(func() error {
			results[i] = store.Insert(context.Background(), newRecord(subject))
			return nil
		})
	}
	require.NoError(t, group.Wait())

	winners, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, sentinel.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, conflicts)

	active, err := store.FindActive(context.Background(), subject, id.PurposeMarketing)
	require.NoError(t, err)
	assert.True(t, active.IsActive())
}
