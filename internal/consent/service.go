package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"custodia/internal/audit"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// Service owns the consent lifecycle. Uniqueness of active consent is
// delegated to the store's conditional insert; the service never does a
// read-then-write check.
type Service struct {
	store          Store
	recorder       *audit.Recorder
	logger         *slog.Logger
	metrics        *metrics.Metrics
	consentVersion string
}

// NewService creates a consent Service. metrics may be nil (tests).
func NewService(store Store, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics, consentVersion string) *Service {
	return &Service{
		store:          store,
		recorder:       recorder,
		logger:         logger,
		metrics:        m,
		consentVersion: consentVersion,
	}
}

// RecordConsent stores a new grant. A second active grant for the same
// (subject, purpose) fails with CodeDuplicateConsent. Audit failures never
// block the grant.
func (s *Service) RecordConsent(ctx context.Context, req GrantRequest) (*Receipt, error) {
	if req.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if !req.Purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown consent purpose: "+string(req.Purpose))
	}
	if !req.LegalBasis.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown legal basis: "+string(req.LegalBasis))
	}
	if len(req.DataCategories) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one data category is required")
	}
	for _, c := range req.DataCategories {
		if !c.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+string(c))
		}
	}
	if req.RetentionDays <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "retention days must be positive")
	}

	rec := &Record{
		ID:             uuid.New(),
		SubjectID:      req.SubjectID,
		Purpose:        req.Purpose,
		DataCategories: req.DataCategories,
		LegalBasis:     req.LegalBasis,
		RetentionDays:  req.RetentionDays,
		Granted:        true,
		GrantedAt:      requestcontext.Now(ctx).UTC(),
		ConsentVersion: s.consentVersion,
		IPAddress:      requestcontext.ClientIP(ctx),
		UserAgent:      requestcontext.UserAgent(ctx),
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeDuplicateConsent,
				fmt.Sprintf("active consent already exists for purpose %s", req.Purpose))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consent persistence failed")
	}

	if s.metrics != nil {
		s.metrics.ConsentsGranted.Inc()
	}
	s.recorder.Consent(ctx, audit.ActionConsentGranted, rec.SubjectID, rec.Purpose, map[string]any{
		"consent_id":      rec.ID.String(),
		"consent_version": rec.ConsentVersion,
		"legal_basis":     rec.LegalBasis.String(),
	})

	return &Receipt{
		Record: rec,
		WithdrawalInstructions: fmt.Sprintf(
			"Consent for %s may be withdrawn at any time via your member portal or by contacting the data protection office. Reference: %s.",
			rec.Purpose, rec.ID),
	}, nil
}

// WithdrawConsent ends the active grant for (subject, purpose). The record
// stays on file with its withdrawal date; it can never be re-activated.
func (s *Service) WithdrawConsent(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) (*Record, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown consent purpose: "+string(purpose))
	}

	rec, err := s.store.Withdraw(ctx, subjectID, purpose)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoActiveConsent,
				fmt.Sprintf("no active consent for purpose %s", purpose))
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consent withdrawal failed")
	}

	if s.metrics != nil {
		s.metrics.ConsentsWithdrawn.Inc()
	}
	s.recorder.Consent(ctx, audit.ActionConsentWithdrawn, subjectID, purpose, map[string]any{
		"consent_id": rec.ID.String(),
	})
	return rec, nil
}

// HasValidConsent reports whether an active grant exists. Errors and missing
// records both read as "no consent"; processing guards must fail closed.
func (s *Service) HasValidConsent(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose) bool {
	rec, err := s.store.FindActive(ctx, subjectID, purpose)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "consent lookup failed", "subject", subjectID, "purpose", purpose, "error", err)
		}
		return false
	}
	return rec.IsActive()
}

// ValidateForProcessing checks that processing the given categories under the
// given purpose is authorized. The check is audited.
func (s *Service) ValidateForProcessing(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose, categories []id.DataCategory) Validation {
	result := s.validate(ctx, subjectID, purpose, categories)

	s.recorder.Consent(ctx, audit.ActionConsentChecked, subjectID, purpose, map[string]any{
		"valid":  result.Valid,
		"reason": result.Reason,
	})
	return result
}

func (s *Service) validate(ctx context.Context, subjectID id.SubjectID, purpose id.ConsentPurpose, categories []id.DataCategory) Validation {
	rec, err := s.store.FindActive(ctx, subjectID, purpose)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Validation{Reason: fmt.Sprintf("no active consent for purpose %s", purpose)}
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "consent lookup failed", "subject", subjectID, "purpose", purpose, "error", err)
		return Validation{Reason: "consent could not be verified"}
	}
	if !rec.Covers(categories) {
		return Validation{Reason: "requested data categories exceed the consented scope"}
	}
	return Validation{Valid: true}
}

// ListConsents returns the subject's full consent history, withdrawn records
// included, most recent first.
func (s *Service) ListConsents(ctx context.Context, subjectID id.SubjectID) ([]*Record, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id is required")
	}
	records, err := s.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "consent history lookup failed")
	}
	return records, nil
}

// UpdateConsent moves a subject's grant from one purpose to another as a
// withdraw followed by a grant. The two steps are NOT atomic: if the grant
// fails after the withdrawal succeeded, the old consent stays withdrawn and
// the caller retries the grant.
func (s *Service) UpdateConsent(ctx context.Context, subjectID id.SubjectID, oldPurpose, newPurpose id.ConsentPurpose) (*Receipt, error) {
	withdrawn, err := s.WithdrawConsent(ctx, subjectID, oldPurpose)
	if err != nil {
		return nil, err
	}

	receipt, err := s.RecordConsent(ctx, GrantRequest{
		SubjectID:      subjectID,
		Purpose:        newPurpose,
		DataCategories: withdrawn.DataCategories,
		LegalBasis:     withdrawn.LegalBasis,
		RetentionDays:  withdrawn.RetentionDays,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "consent update left subject without the old grant",
			"subject", subjectID,
			"old_purpose", oldPurpose,
			"new_purpose", newPurpose,
			"error", err,
		)
		return nil, err
	}
	return receipt, nil
}
