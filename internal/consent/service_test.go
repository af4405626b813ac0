package consent_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/audit"
	auditstore "custodia/internal/audit/store"
	"custodia/internal/consent"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/testutil"
)

type fixture struct {
	service  *consent.Service
	store    *consent.MemoryStore
	auditLog *auditstore.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog := auditstore.NewMemory()
	recorder := audit.NewRecorder(auditLog, logger, nil)
	store := consent.NewMemoryStore()
	return &fixture{
		service:  consent.NewService(store, recorder, logger, nil, "v3.2"),
		store:    store,
		auditLog: auditLog,
	}
}

func grantRequest(subject id.SubjectID) consent.GrantRequest {
	return consent.GrantRequest{
		SubjectID:      subject,
		Purpose:        id.PurposeMarketing,
		DataCategories: []id.DataCategory{id.CategoryContact, id.CategoryBehavioral},
		LegalBasis:     id.BasisConsent,
		RetentionDays:  365,
	}
}

func TestRecordConsent_GrantsAndAudits(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()

	receipt, err := f.service.RecordConsent(context.Background(), grantRequest(subject))

	require.NoError(t, err)
	require.NotNil(t, receipt.Record)
	assert.True(t, receipt.Record.IsActive())
	assert.Equal(t, "v3.2", receipt.Record.ConsentVersion)
	assert.Contains(t, receipt.WithdrawalInstructions, receipt.Record.ID.String())

	entries, err := f.auditLog.Query(context.Background(), audit.Filter{Resource: "consent"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionConsentGranted, entries[0].Action)
}

func TestRecordConsent_RejectsDuplicateActiveGrant(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()

	_, err := f.service.RecordConsent(context.Background(), grantRequest(subject))
	require.NoError(t, err)

	_, err = f.service.RecordConsent(context.Background(), grantRequest(subject))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateConsent))
	assert.Equal(t, 1, f.store.Len())
}

func TestRecordConsent_AllowsRegrantAfterWithdrawal(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)
	_, err = f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
	require.NoError(t, err)

	receipt, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)
	assert.True(t, receipt.Record.IsActive())
	// The withdrawn record stays on file as legal evidence.
	assert.Equal(t, 2, f.store.Len())
}

func TestRecordConsent_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()

	tests := []struct {
		name   string
		mutate func(*consent.GrantRequest)
		code   dErrors.Code
	}{
		{"nil subject", func(r *consent.GrantRequest) { r.SubjectID = id.SubjectID{} }, dErrors.CodeInvalidInput},
		{"unknown purpose", func(r *consent.GrantRequest) { r.Purpose = "world_domination" }, dErrors.CodeInvalidInput},
		{"unknown basis", func(r *consent.GrantRequest) { r.LegalBasis = "vibes" }, dErrors.CodeInvalidInput},
		{"no categories", func(r *consent.GrantRequest) { r.DataCategories = nil }, dErrors.CodeValidation},
		{"unknown category", func(r *consent.GrantRequest) { r.DataCategories = []id.DataCategory{"souls"} }, dErrors.CodeInvalidInput},
		{"zero retention", func(r *consent.GrantRequest) { r.RetentionDays = 0 }, dErrors.CodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := grantRequest(subject)
			tc.mutate(&req)
			_, err := f.service.RecordConsent(context.Background(), req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code))
		})
	}
}

// A consent grant must succeed even when the audit store is down. The audit
// recorder is fail-open; consent persistence is the primary transaction.
func TestRecordConsent_SucceedsWhenAuditStoreIsDown(t *testing.T) {
	f := newFixture(t)
	f.auditLog.FailAppends = errors.New("audit db unreachable")
	subject := id.NewSubjectID()

	receipt, err := f.service.RecordConsent(context.Background(), grantRequest(subject))

	require.NoError(t, err)
	assert.True(t, receipt.Record.IsActive())
	assert.Equal(t, 1, f.store.Len())
}

func TestWithdrawConsent_FlipsRecordAndAudits(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)

	rec, err := f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
	require.NoError(t, err)
	assert.False(t, rec.Granted)
	require.NotNil(t, rec.WithdrawalDate)
	assert.False(t, f.service.HasValidConsent(ctx, subject, id.PurposeMarketing))

	entries, err := f.auditLog.Query(ctx, audit.Filter{Resource: "consent"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionConsentWithdrawn, entries[0].Action)
}

func TestWithdrawConsent_NoActiveConsent(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.WithdrawConsent(context.Background(), id.NewSubjectID(), id.PurposeMarketing)

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoActiveConsent))
}

func TestWithdrawConsent_SecondWithdrawalFails(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)
	_, err = f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
	require.NoError(t, err)

	_, err = f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoActiveConsent))
}

func TestHasValidConsent(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	assert.False(t, f.service.HasValidConsent(ctx, subject, id.PurposeMarketing))

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)

	assert.True(t, f.service.HasValidConsent(ctx, subject, id.PurposeMarketing))
	assert.False(t, f.service.HasValidConsent(ctx, subject, id.PurposeAnalytics))
}

func TestValidateForProcessing(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)

	t.Run("covered categories pass", func(t *testing.T) {
		v := f.service.ValidateForProcessing(ctx, subject, id.PurposeMarketing,
			[]id.DataCategory{id.CategoryContact})
		assert.True(t, v.Valid)
		assert.Empty(t, v.Reason)
	})

	t.Run("uncovered category fails", func(t *testing.T) {
		v := f.service.ValidateForProcessing(ctx, subject, id.PurposeMarketing,
			[]id.DataCategory{id.CategoryContact, id.CategoryFinancial})
		assert.False(t, v.Valid)
		assert.Contains(t, v.Reason, "scope")
	})

	t.Run("no consent fails", func(t *testing.T) {
		v := f.service.ValidateForProcessing(ctx, subject, id.PurposeAnalytics,
			[]id.DataCategory{id.CategoryContact})
		assert.False(t, v.Valid)
		assert.Contains(t, v.Reason, "no active consent")
	})

	t.Run("checks are audited", func(t *testing.T) {
		entries, err := f.auditLog.Query(ctx, audit.Filter{Resource: "consent"})
		require.NoError(t, err)
		checked := 0
		for _, e := range entries {
			if e.Action == audit.ActionConsentChecked {
				checked++
			}
		}
		assert.Equal(t, 3, checked)
	})
}

func TestUpdateConsent_MovesGrantBetweenPurposes(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)

	receipt, err := f.service.UpdateConsent(ctx, subject, id.PurposeMarketing, id.PurposeAnalytics)

	require.NoError(t, err)
	assert.Equal(t, id.PurposeAnalytics, receipt.Record.Purpose)
	assert.ElementsMatch(t,
		[]id.DataCategory{id.CategoryContact, id.CategoryBehavioral},
		receipt.Record.DataCategories)
	assert.False(t, f.service.HasValidConsent(ctx, subject, id.PurposeMarketing))
	assert.True(t, f.service.HasValidConsent(ctx, subject, id.PurposeAnalytics))
}

func TestUpdateConsent_WithoutOldGrantFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.UpdateConsent(context.Background(), id.NewSubjectID(),
		id.PurposeMarketing, id.PurposeAnalytics)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeNoActiveConsent))
}

func TestConsentLifecycle(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	testutil.Given(t, "a member granted marketing consent", func(t *testing.T) {
		_, err := f.service.RecordConsent(ctx, grantRequest(subject))
		require.NoError(t, err)
	})

	testutil.When(t, "the member withdraws it", func(t *testing.T) {
		_, err := f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
		require.NoError(t, err)
	})

	testutil.Then(t, "processing under that purpose is blocked", func(t *testing.T) {
		v := f.service.ValidateForProcessing(ctx, subject, id.PurposeMarketing,
			[]id.DataCategory{id.CategoryContact})
		assert.False(t, v.Valid)
	})
}

func TestListConsents_ReturnsFullHistory(t *testing.T) {
	f := newFixture(t)
	subject := id.NewSubjectID()
	ctx := context.Background()

	_, err := f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)
	_, err = f.service.WithdrawConsent(ctx, subject, id.PurposeMarketing)
	require.NoError(t, err)
	_, err = f.service.RecordConsent(ctx, grantRequest(subject))
	require.NoError(t, err)

	records, err := f.service.ListConsents(ctx, subject)
	require.NoError(t, err)
	require.Len(t, records, 2)
}
