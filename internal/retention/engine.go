package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/audit"
	"custodia/internal/crypto"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// ErrSweepInProgress signals that another instance holds the sweep lease.
// Schedulers treat it as a clean no-op.
var ErrSweepInProgress = errors.New("retention sweep already in progress")

const (
	sweepLeaseKey  = "custodia:retention:sweep"
	sweepBatchSize = 500
)

// requiredCategories must each be covered by an active policy for the
// cooperative to be considered compliant.
var requiredCategories = []id.DataCategory{
	id.CategoryFinancial,
	id.CategoryPersonal,
	id.CategoryTransaction,
	id.CategoryCommunication,
}

// Recommendation thresholds for retention periods.
const (
	maxReasonableRetentionDays = 3650
	minReasonableRetentionDays = 30
)

// Engine evaluates retention policies and runs the disposal sweep.
type Engine struct {
	policies PolicyStore
	data     DataStore
	locker   Locker
	recorder *audit.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	leaseTTL time.Duration
}

// NewEngine creates a retention Engine. metrics may be nil (tests).
func NewEngine(policies PolicyStore, data DataStore, locker Locker, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics, leaseTTL time.Duration) *Engine {
	return &Engine{
		policies: policies,
		data:     data,
		locker:   locker,
		recorder: recorder,
		logger:   logger,
		metrics:  m,
		tracer:   otel.Tracer("custodia/retention"),
		leaseTTL: leaseTTL,
	}
}

// DefinePolicy activates a new policy for a category, replacing any previous
// one. The change is audited as a configuration change with the old policy
// snapshot attached.
func (e *Engine) DefinePolicy(ctx context.Context, policy *Policy) (*Policy, error) {
	if !policy.DataCategory.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+string(policy.DataCategory))
	}
	if !policy.LegalBasis.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown legal basis: "+string(policy.LegalBasis))
	}
	if policy.RetentionDays <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "retention days must be positive")
	}

	var oldValues map[string]any
	if previous, err := e.policies.FindActive(ctx, policy.DataCategory); err == nil {
		oldValues = map[string]any{
			"policy_id":      previous.ID.String(),
			"retention_days": previous.RetentionDays,
			"legal_basis":    previous.LegalBasis.String(),
		}
	}

	policy.ID = id.NewPolicyID()
	policy.Active = true
	policy.CreatedAt = requestcontext.Now(ctx).UTC()

	if err := e.policies.Upsert(ctx, policy); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "retention policy persistence failed")
	}

	e.recorder.ConfigChange(ctx, policy.CreatedBy, "retention_policy", policy.ID.String(), oldValues, map[string]any{
		"data_category":  policy.DataCategory.String(),
		"retention_days": policy.RetentionDays,
		"legal_basis":    policy.LegalBasis.String(),
	})
	return policy, nil
}

// DeactivatePolicy retires the active policy for a category. Records of that
// category are retained indefinitely until a new policy covers them.
func (e *Engine) DeactivatePolicy(ctx context.Context, category id.DataCategory, updatedBy string) error {
	if !category.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+string(category))
	}
	previous, err := e.policies.FindActive(ctx, category)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodePolicyNotFound, "no active policy for category "+category.String())
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "retention policy lookup failed")
	}
	if err := e.policies.Deactivate(ctx, category); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "retention policy deactivation failed")
	}

	e.recorder.ConfigChange(ctx, updatedBy, "retention_policy", previous.ID.String(), map[string]any{
		"data_category":  category.String(),
		"retention_days": previous.RetentionDays,
		"active":         true,
	}, map[string]any{"active": false})
	return nil
}

// ShouldRetain decides whether a record of the category created at createdAt
// is still inside its retention window. Absence of a policy fails safe: the
// record is retained.
func (e *Engine) ShouldRetain(ctx context.Context, category id.DataCategory, createdAt time.Time) (Decision, error) {
	policy, err := e.policies.FindActive(ctx, category)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Decision{Retain: true, Reason: "no active retention policy; retaining by default"}, nil
	}
	if err != nil {
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "retention policy lookup failed")
	}

	expiresAt := createdAt.AddDate(0, 0, policy.RetentionDays)
	now := requestcontext.Now(ctx)
	if now.After(expiresAt) {
		return Decision{
			Reason:    fmt.Sprintf("retention period of %d days expired", policy.RetentionDays),
			ExpiresAt: expiresAt,
		}, nil
	}
	return Decision{Retain: true, ExpiresAt: expiresAt}, nil
}

// DetermineAction classifies how an expired record must be disposed of.
// Sensitive identifiers are anonymized rather than hard-deleted because they
// may be needed for dispute resolution.
func DetermineAction(record GovernedRecord, policy *Policy) id.RetentionAction {
	if record.Category.IsSensitive() {
		return id.ActionAnonymize
	}
	if policy.LegalBasis.RequiresStatutoryRetention() {
		return id.ActionArchive
	}
	return id.ActionDelete
}

// ProcessExpired runs one disposal sweep over every active policy. At most
// one sweep runs at a time across all instances; an overlapping invocation
// returns ErrSweepInProgress without touching any data. The sweep is
// idempotent: already-disposed records are skipped.
func (e *Engine) ProcessExpired(ctx context.Context) (SweepResult, error) {
	ctx, span := e.tracer.Start(ctx, "retention.ProcessExpired")
	defer span.End()

	token, ok, err := e.locker.Acquire(ctx, sweepLeaseKey, e.leaseTTL)
	if err != nil {
		return SweepResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "sweep lease acquisition failed")
	}
	if !ok {
		if e.metrics != nil {
			e.metrics.SweepLeaseMissed.Inc()
		}
		return SweepResult{}, ErrSweepInProgress
	}
	defer func() {
		if err := e.locker.Release(ctx, sweepLeaseKey, token); err != nil {
			e.logger.WarnContext(ctx, "sweep lease release failed", "error", err)
		}
	}()

	started := time.Now()
	now := requestcontext.Now(ctx)

	policies, err := e.policies.ListActive(ctx)
	if err != nil {
		return SweepResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "active policy listing failed")
	}

	var result SweepResult
	for _, policy := range policies {
		cutoff := now.AddDate(0, 0, -policy.RetentionDays)
		records, err := e.data.ListExpired(ctx, policy.DataCategory, cutoff, sweepBatchSize)
		if err != nil {
			e.logger.ErrorContext(ctx, "expired record listing failed",
				"category", policy.DataCategory, "error", err)
			result.Errors++
			continue
		}
		for _, record := range records {
			e.processRecord(ctx, record, policy, &result)
		}
	}

	result.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("retention.processed", result.Processed),
		attribute.Int("retention.errors", result.Errors),
	)
	if e.metrics != nil {
		e.metrics.RetentionSweeps.Inc()
		e.metrics.SweepLastDuration.Set(result.Duration.Seconds())
	}
	e.logger.InfoContext(ctx, "retention sweep completed",
		"processed", result.Processed,
		"anonymized", result.Anonymized,
		"deleted", result.Deleted,
		"archived", result.Archived,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"duration", result.Duration,
	)
	return result, nil
}

func (e *Engine) processRecord(ctx context.Context, record GovernedRecord, policy *Policy, result *SweepResult) {
	if record.Disposition != "" {
		result.Skipped++
		return
	}

	action := DetermineAction(record, policy)
	var err error
	switch action {
	case id.ActionAnonymize:
		err = e.data.Anonymize(ctx, record.ID, crypto.Anonymize(record.Fields))
	case id.ActionDelete:
		err = e.data.Delete(ctx, record.ID)
	case id.ActionArchive:
		err = e.data.Archive(ctx, record.ID)
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "retention action failed",
			"action", action, "record", record.ID, "error", err)
		result.Errors++
		return
	}

	result.Processed++
	switch action {
	case id.ActionAnonymize:
		result.Anonymized++
	case id.ActionDelete:
		result.Deleted++
	case id.ActionArchive:
		result.Archived++
	}
	if e.metrics != nil {
		e.metrics.RetentionActions.WithLabelValues(action.String()).Inc()
	}
	e.recorder.Retention(ctx, action, record.Category, record.ID.String(), policy.RetentionDays)
}

// BuildReport assembles the compliance-facing view of retention state.
func (e *Engine) BuildReport(ctx context.Context) (Report, error) {
	policies, err := e.policies.ListActive(ctx)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "active policy listing failed")
	}

	now := requestcontext.Now(ctx)
	report := Report{
		GeneratedAt: now.UTC(),
		Policies:    policies,
		Stats:       make(map[id.DataCategory]CategoryStats, len(policies)),
	}

	covered := make(map[id.DataCategory]bool, len(policies))
	for _, policy := range policies {
		covered[policy.DataCategory] = true

		cutoff := now.AddDate(0, 0, -policy.RetentionDays)
		pending, err := e.data.CountExpired(ctx, policy.DataCategory, cutoff)
		if err != nil {
			e.logger.ErrorContext(ctx, "expired record count failed",
				"category", policy.DataCategory, "error", err)
		}
		report.Stats[policy.DataCategory] = CategoryStats{Policy: policy, PendingExpiry: pending}

		if policy.RetentionDays > maxReasonableRetentionDays {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"retention period for %s is %d days; periods beyond %d days need a documented legal basis review",
				policy.DataCategory, policy.RetentionDays, maxReasonableRetentionDays))
		}
		if policy.RetentionDays < minReasonableRetentionDays {
			report.Recommendations = append(report.Recommendations, fmt.Sprintf(
				"retention period for %s is %d days; periods under %d days risk destroying records needed for dispute resolution",
				policy.DataCategory, policy.RetentionDays, minReasonableRetentionDays))
		}
	}

	report.Compliant = true
	for _, category := range requiredCategories {
		if !covered[category] {
			report.Compliant = false
			report.MissingRequired = append(report.MissingRequired, category)
			report.Recommendations = append(report.Recommendations,
				fmt.Sprintf("define a retention policy for required category %s", category))
		}
	}
	return report, nil
}
