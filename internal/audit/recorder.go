package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

// Recorder appends audit entries with fail-open semantics: a persistence
// failure is logged and counted but NEVER propagated, because losing an audit
// entry is less harmful than breaking the user-facing transaction that
// triggered it. Callers that need to observe the failure path inspect the
// returned RecordResult.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRecorder creates a Recorder. metrics may be nil (tests).
func NewRecorder(store Store, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{store: store, logger: logger, metrics: m}
}

// Record normalizes and appends one entry. The result is always usable; Err
// carries any swallowed persistence failure.
func (r *Recorder) Record(ctx context.Context, entry Entry) RecordResult {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.IPAddress == "" {
		entry.IPAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.UserID == "" {
		entry.UserID = requestcontext.ActorID(ctx)
	}

	if !entry.Action.IsValid() {
		err := dErrors.New(dErrors.CodeInvalidInput, "unknown audit action: "+string(entry.Action))
		r.logger.ErrorContext(ctx, "audit entry rejected", "action", entry.Action, "error", err)
		return RecordResult{Entry: entry, Err: err}
	}

	if err := r.store.Append(ctx, entry); err != nil {
		if r.metrics != nil {
			r.metrics.AuditEntriesDropped.Inc()
		}
		r.logger.ErrorContext(ctx, "audit entry dropped",
			"action", entry.Action,
			"resource", entry.Resource,
			"error", err,
		)
		return RecordResult{Entry: entry, Err: dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")}
	}

	if r.metrics != nil {
		r.metrics.AuditEntriesRecorded.Inc()
	}
	return RecordResult{Entry: entry}
}

// -----------------------------------------------------------------------------
// Specialized helpers. Each normalizes its inputs into the generic Entry shape.
// -----------------------------------------------------------------------------

// Authentication records a login attempt outcome.
func (r *Recorder) Authentication(ctx context.Context, userID string, success bool) RecordResult {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	return r.Record(ctx, Entry{
		UserID:    userID,
		Action:    ActionAuthentication,
		Resource:  "session",
		NewValues: map[string]any{"outcome": outcome},
	})
}

// DataAccess records a read of personal data together with the categories
// touched.
func (r *Recorder) DataAccess(ctx context.Context, userID, resource, resourceID string, categories []id.DataCategory) RecordResult {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.String()
	}
	return r.Record(ctx, Entry{
		UserID:     userID,
		Action:     ActionDataAccess,
		Resource:   resource,
		ResourceID: resourceID,
		NewValues:  map[string]any{"data_categories": names},
	})
}

// DataModification records a mutation with before/after snapshots.
func (r *Recorder) DataModification(ctx context.Context, userID, resource, resourceID string, oldValues, newValues map[string]any) RecordResult {
	return r.Record(ctx, Entry{
		UserID:     userID,
		Action:     ActionDataModification,
		Resource:   resource,
		ResourceID: resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
}

// Consent records a consent lifecycle event.
func (r *Recorder) Consent(ctx context.Context, action Action, subject id.SubjectID, purpose id.ConsentPurpose, details map[string]any) RecordResult {
	values := map[string]any{"purpose": purpose.String()}
	for k, v := range details {
		values[k] = v
	}
	return r.Record(ctx, Entry{
		UserID:     subject.String(),
		Action:     action,
		Resource:   "consent",
		ResourceID: subject.String(),
		NewValues:  values,
	})
}

// Breach records a breach lifecycle event.
func (r *Recorder) Breach(ctx context.Context, action Action, breachID id.BreachID, details map[string]any) RecordResult {
	return r.Record(ctx, Entry{
		Action:     action,
		Resource:   "data_breach",
		ResourceID: breachID.String(),
		NewValues:  details,
	})
}

// Retention records a retention action with the triggering period attached.
func (r *Recorder) Retention(ctx context.Context, action id.RetentionAction, category id.DataCategory, recordID string, retentionDays int) RecordResult {
	return r.Record(ctx, Entry{
		Action:     ActionRetentionApplied,
		Resource:   "governed_record",
		ResourceID: recordID,
		NewValues: map[string]any{
			"retention_action": action.String(),
			"data_category":    category.String(),
			"retention_days":   retentionDays,
		},
	})
}

// ConfigChange records an administrative configuration change.
func (r *Recorder) ConfigChange(ctx context.Context, userID, resource, resourceID string, oldValues, newValues map[string]any) RecordResult {
	return r.Record(ctx, Entry{
		UserID:     userID,
		Action:     ActionConfigChanged,
		Resource:   resource,
		ResourceID: resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Query returns matching entries, most recent first. Unlike Record, query
// failures propagate: a caller asking for the trail needs to know it is
// incomplete.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return r.store.Query(ctx, filter)
}

// BuildReport aggregates the trail over [start, end], optionally restricted
// to one user.
func (r *Recorder) BuildReport(ctx context.Context, start, end time.Time, userID string) (Report, error) {
	byAction, err := r.store.CountByAction(ctx, start, end, userID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit report aggregation failed")
	}
	byResource, err := r.store.CountByResource(ctx, start, end, userID)
	if err != nil {
		return Report{}, dErrors.Wrap(err, dErrors.CodeInternal, "audit report aggregation failed")
	}

	total := 0
	for _, n := range byAction {
		total += n
	}
	return Report{
		Start:      start,
		End:        end,
		UserID:     userID,
		Total:      total,
		ByAction:   byAction,
		ByResource: byResource,
	}, nil
}
