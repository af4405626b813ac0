package retention_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/audit"
	auditstore "custodia/internal/audit/store"
	"custodia/internal/retention"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

type fixture struct {
	engine   *retention.Engine
	policies *retention.MemoryPolicyStore
	data     *retention.MemoryDataStore
	auditLog *auditstore.Memory
	locker   *retention.LocalLocker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := auditstore.NewMemory()
	recorder := audit.NewRecorder(auditLog, logger, nil)
	policies := retention.NewMemoryPolicyStore()
	data := retention.NewMemoryDataStore()
	locker := retention.NewLocalLocker()
	return &fixture{
		engine:   retention.NewEngine(policies, data, locker, recorder, logger, nil, time.Minute),
		policies: policies,
		data:     data,
		auditLog: auditLog,
		locker:   locker,
	}
}

func (f *fixture) definePolicy(t *testing.T, category id.DataCategory, days int, basis id.LegalBasis) *retention.Policy {
	t.Helper()
	policy, err := f.engine.DefinePolicy(context.Background(), &retention.Policy{
		DataCategory:  category,
		RetentionDays: days,
		LegalBasis:    basis,
		CreatedBy:     "dpo@coop.example",
	})
	require.NoError(t, err)
	return policy
}

func TestDefinePolicy_ReplacesPreviousActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.definePolicy(t, id.CategoryBehavioral, 90, id.BasisConsent)
	second := f.definePolicy(t, id.CategoryBehavioral, 30, id.BasisConsent)

	active, err := f.policies.FindActive(ctx, id.CategoryBehavioral)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, active.ID)
	assert.Equal(t, 30, active.RetentionDays)
}

func TestDefinePolicy_ValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DefinePolicy(context.Background(), &retention.Policy{
		DataCategory:  "hopes_and_dreams",
		RetentionDays: 90,
		LegalBasis:    id.BasisConsent,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	_, err = f.engine.DefinePolicy(context.Background(), &retention.Policy{
		DataCategory:  id.CategoryBehavioral,
		RetentionDays: 0,
		LegalBasis:    id.BasisConsent,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDeactivatePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.definePolicy(t, id.CategoryBehavioral, 90, id.BasisConsent)

	require.NoError(t, f.engine.DeactivatePolicy(ctx, id.CategoryBehavioral, "dpo@coop.example"))

	err := f.engine.DeactivatePolicy(ctx, id.CategoryBehavioral, "dpo@coop.example")
	assert.True(t, dErrors.HasCode(err, dErrors.CodePolicyNotFound))
}

func TestShouldRetain_FailsSafeWithoutPolicy(t *testing.T) {
	f := newFixture(t)

	decision, err := f.engine.ShouldRetain(context.Background(), id.CategoryHealth, time.Now().AddDate(-10, 0, 0))

	require.NoError(t, err)
	assert.True(t, decision.Retain)
	assert.Contains(t, decision.Reason, "no active retention policy")
}

// The retention window is inclusive of its last instant: a record expires
// strictly after createdAt + retentionDays.
func TestShouldRetain_Boundary(t *testing.T) {
	f := newFixture(t)
	f.definePolicy(t, id.CategoryBehavioral, 30, id.BasisConsent)

	createdAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := createdAt.AddDate(0, 0, 30)

	t.Run("inside window", func(t *testing.T) {
		ctx := requestcontext.WithTime(context.Background(), expiresAt.Add(-time.Hour))
		decision, err := f.engine.ShouldRetain(ctx, id.CategoryBehavioral, createdAt)
		require.NoError(t, err)
		assert.True(t, decision.Retain)
		assert.Equal(t, expiresAt, decision.ExpiresAt)
	})

	t.Run("at exactly the boundary", func(t *testing.T) {
		ctx := requestcontext.WithTime(context.Background(), expiresAt)
		decision, err := f.engine.ShouldRetain(ctx, id.CategoryBehavioral, createdAt)
		require.NoError(t, err)
		assert.True(t, decision.Retain)
	})

	t.Run("one second past the boundary", func(t *testing.T) {
		ctx := requestcontext.WithTime(context.Background(), expiresAt.Add(time.Second))
		decision, err := f.engine.ShouldRetain(ctx, id.CategoryBehavioral, createdAt)
		require.NoError(t, err)
		assert.False(t, decision.Retain)
		assert.Contains(t, decision.Reason, "30 days")
	})
}

func TestDetermineAction(t *testing.T) {
	consentPolicy := &retention.Policy{LegalBasis: id.BasisConsent}
	statutoryPolicy := &retention.Policy{LegalBasis: id.BasisLegalObligation}

	tests := []struct {
		name     string
		category id.DataCategory
		policy   *retention.Policy
		want     id.RetentionAction
	}{
		{"sensitive identifiers are anonymized", id.CategoryNationalID, consentPolicy, id.ActionAnonymize},
		{"bank accounts are anonymized", id.CategoryBankAccount, consentPolicy, id.ActionAnonymize},
		{"financial data is anonymized even under statute", id.CategoryFinancial, statutoryPolicy, id.ActionAnonymize},
		{"statutory basis archives", id.CategoryTransaction, statutoryPolicy, id.ActionArchive},
		{"everything else is deleted", id.CategoryBehavioral, consentPolicy, id.ActionDelete},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record := retention.GovernedRecord{Category: tc.category}
			assert.Equal(t, tc.want, retention.DetermineAction(record, tc.policy))
		})
	}
}

func TestProcessExpired_DisposesByAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.definePolicy(t, id.CategoryNationalID, 30, id.BasisConsent)
	f.definePolicy(t, id.CategoryTransaction, 30, id.BasisLegalObligation)
	f.definePolicy(t, id.CategoryBehavioral, 30, id.BasisConsent)

	old := time.Now().AddDate(0, 0, -31)
	sensitive := retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryNationalID, CreatedAt: old,
		Fields: map[string]string{"national_id": "CM1985123456789", "name": "Jeanne Atangana"},
	}
	statutory := retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryTransaction, CreatedAt: old,
		Fields: map[string]string{"amount": "125000"},
	}
	ordinary := retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryBehavioral, CreatedAt: old,
		Fields: map[string]string{"page_views": "88"},
	}
	fresh := retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryBehavioral, CreatedAt: time.Now().AddDate(0, 0, -5),
		Fields: map[string]string{"page_views": "3"},
	}
	for _, rec := range []retention.GovernedRecord{sensitive, statutory, ordinary, fresh} {
		f.data.Add(rec)
	}

	result, err := f.engine.ProcessExpired(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Anonymized)
	assert.Equal(t, 1, result.Archived)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Errors)

	anonymized, _ := f.data.Get(sensitive.ID)
	assert.Equal(t, retention.DispositionAnonymized, anonymized.Disposition)
	assert.NotEqual(t, "CM1985123456789", anonymized.Fields["national_id"])

	archived, _ := f.data.Get(statutory.ID)
	assert.Equal(t, retention.DispositionArchived, archived.Disposition)
	assert.Equal(t, "125000", archived.Fields["amount"])

	untouched, _ := f.data.Get(fresh.ID)
	assert.Empty(t, untouched.Disposition)

	// Every disposal lands in the audit trail with the period attached.
	entries, err := f.auditLog.Query(ctx, audit.Filter{Resource: "governed_record"})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, audit.ActionRetentionApplied, e.Action)
		assert.EqualValues(t, 30, e.NewValues["retention_days"])
	}
}

// Rerunning the sweep over already-disposed records is a no-op.
func TestProcessExpired_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.definePolicy(t, id.CategoryBehavioral, 30, id.BasisConsent)
	f.data.Add(retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryBehavioral, CreatedAt: time.Now().AddDate(0, 0, -31),
		Fields: map[string]string{"page_views": "88"},
	})

	first, err := f.engine.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	second, err := f.engine.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 0, second.Errors)
}

func TestProcessExpired_LeaseHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, ok, err := f.locker.Acquire(ctx, "custodia:retention:sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.ProcessExpired(ctx)
	assert.ErrorIs(t, err, retention.ErrSweepInProgress)
}

func TestProcessExpired_CountsFailuresWithoutAborting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.definePolicy(t, id.CategoryBehavioral, 30, id.BasisConsent)
	f.data.Add(retention.GovernedRecord{
		ID: uuid.New(), Category: id.CategoryBehavioral, CreatedAt: time.Now().AddDate(0, 0, -31),
		Fields: map[string]string{"page_views": "88"},
	})
	f.data.FailActions = assert.AnError

	result, err := f.engine.ProcessExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Errors)
}

func TestBuildReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.definePolicy(t, id.CategoryFinancial, 3700, id.BasisLegalObligation)
	f.definePolicy(t, id.CategoryPersonal, 20, id.BasisConsent)
	f.definePolicy(t, id.CategoryTransaction, 365, id.BasisLegalObligation)

	report, err := f.engine.BuildReport(ctx)
	require.NoError(t, err)

	assert.False(t, report.Compliant)
	assert.Equal(t, []id.DataCategory{id.CategoryCommunication}, report.MissingRequired)
	assert.Len(t, report.Policies, 3)

	var sawTooLong, sawTooShort, sawMissing bool
	for _, rec := range report.Recommendations {
		switch {
		case strings.Contains(rec, "financial") && strings.Contains(rec, "3700"):
			sawTooLong = true
		case strings.Contains(rec, "personal") && strings.Contains(rec, "20"):
			sawTooShort = true
		case strings.Contains(rec, "communication"):
			sawMissing = true
		}
	}
	assert.True(t, sawTooLong)
	assert.True(t, sawTooShort)
	assert.True(t, sawMissing)
}

func TestBuildReport_CompliantWhenRequiredCovered(t *testing.T) {
	f := newFixture(t)

	f.definePolicy(t, id.CategoryFinancial, 3650, id.BasisLegalObligation)
	f.definePolicy(t, id.CategoryPersonal, 365, id.BasisConsent)
	f.definePolicy(t, id.CategoryTransaction, 1825, id.BasisLegalObligation)
	f.definePolicy(t, id.CategoryCommunication, 180, id.BasisConsent)

	report, err := f.engine.BuildReport(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Compliant)
	assert.Empty(t, report.MissingRequired)
	assert.Empty(t, report.Recommendations)
}
