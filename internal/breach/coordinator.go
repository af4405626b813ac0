package breach

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
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

// Coordinator drives a breach from report through its notification sequence
// and status lifecycle.
type Coordinator struct {
	store             Store
	dispatcher        Dispatcher
	recorder          *audit.Recorder
	logger            *slog.Logger
	metrics           *metrics.Metrics
	tracer            trace.Tracer
	complianceContact string
	signingKey        []byte
}

// NewCoordinator creates a breach Coordinator. metrics may be nil (tests).
func NewCoordinator(store Store, dispatcher Dispatcher, recorder *audit.Recorder, logger *slog.Logger, m *metrics.Metrics, complianceContact string, signingKey []byte) *Coordinator {
	return &Coordinator{
		store:             store,
		dispatcher:        dispatcher,
		recorder:          recorder,
		logger:            logger,
		metrics:           m,
		tracer:            otel.Tracer("custodia/breach"),
		complianceContact: complianceContact,
		signingKey:        signingKey,
	}
}

// Report files a new breach. The breach is persisted at detected and audited
// before severity is evaluated; when the notification rules trip, the breach
// moves to investigating and the notification sequence runs. Dispatch
// failures are logged and never roll back breach state: a broken mail relay
// must not erase the fact that a breach happened.
func (c *Coordinator) Report(ctx context.Context, req ReportRequest, reportedBy string) (*Breach, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "breach description is required")
	}
	if len(req.Categories) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one data category is required")
	}
	for _, cat := range req.Categories {
		if !cat.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown data category: "+string(cat))
		}
	}
	if req.ApproxSubjects < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "approximate subject count cannot be negative")
	}
	if strings.TrimSpace(reportedBy) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reporter identity is required")
	}

	now := requestcontext.Now(ctx).UTC()
	b := &Breach{
		ID:                 id.NewBreachID(),
		Description:        req.Description,
		Categories:         req.Categories,
		ApproxSubjects:     req.ApproxSubjects,
		LikelyConsequences: req.LikelyConsequences,
		MeasuresProposed:   req.MeasuresProposed,
		ReportedBy:         reportedBy,
		ReportedAt:         now,
		Status:             id.BreachDetected,
		UpdatedAt:          now,
	}

	if err := c.store.Insert(ctx, b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "breach persistence failed")
	}
	if c.metrics != nil {
		c.metrics.BreachesReported.Inc()
	}
	c.recorder.Breach(ctx, audit.ActionBreachReported, b.ID, map[string]any{
		"categories":      categoryStrings(b.Categories),
		"approx_subjects": b.ApproxSubjects,
		"reported_by":     reportedBy,
	})

	if NotificationRequired(b.Categories, b.ApproxSubjects) {
		c.runNotificationSequence(ctx, b)
	}
	return b, nil
}

func (c *Coordinator) runNotificationSequence(ctx context.Context, b *Breach) {
	ctx, span := c.tracer.Start(ctx, "breach.NotificationSequence",
		trace.WithAttributes(
			attribute.String("breach.id", b.ID.String()),
			attribute.Int("breach.approx_subjects", b.ApproxSubjects),
		))
	defer span.End()

	b.Status = id.BreachInvestigating
	b.UpdatedAt = requestcontext.Now(ctx).UTC()

	// Compliance is always told first; the other audiences depend on the
	// severity rules.
	c.notify(ctx, b, "compliance", Email{
		To:      c.complianceContact,
		Subject: fmt.Sprintf("Data breach %s requires immediate attention", b.ID),
		HTML:    c.complianceEmailBody(b),
	}, nil)

	if NotifySubjects(b.Categories, b.ApproxSubjects) {
		now := requestcontext.Now(ctx).UTC()
		c.notify(ctx, b, "subjects", Email{
			To:      "affected-members",
			Subject: "Important notice about your personal data",
			HTML:    c.subjectEmailBody(b),
		}, func() {
			b.ReportedToSubjects = true
			b.SubjectsNotifiedAt = &now
		})
	}

	if ReportToAuthority(b.Categories, b.ApproxSubjects) {
		now := requestcontext.Now(ctx).UTC()
		c.notify(ctx, b, "authority", Email{
			To:      "supervisory-authority",
			Subject: fmt.Sprintf("Breach notification %s per the %s window", b.ID, AuthorityNotificationWindow),
			HTML:    c.authorityEmailBody(b),
		}, func() {
			b.ReportedToAuthority = true
			b.AuthorityNotifiedAt = &now
		})
	}

	b.UpdatedAt = requestcontext.Now(ctx).UTC()
	if err := c.store.Update(ctx, b); err != nil {
		c.logger.ErrorContext(ctx, "breach state update failed after notifications",
			"breach", b.ID, "error", err)
	}
}

// notify dispatches one email and, on success, applies the state change and
// records the audit entry. Failures are logged only.
func (c *Coordinator) notify(ctx context.Context, b *Breach, audience string, email Email, onSent func()) {
	if err := c.dispatcher.SendEmail(ctx, email); err != nil {
		c.logger.ErrorContext(ctx, "breach notification dispatch failed",
			"breach", b.ID, "audience", audience, "error", err)
		return
	}
	if onSent != nil {
		onSent()
	}
	if c.metrics != nil {
		c.metrics.NotificationsSent.WithLabelValues(audience).Inc()
	}
	c.recorder.Breach(ctx, audit.ActionBreachNotification, b.ID, map[string]any{
		"audience": audience,
		"to":       email.To,
	})
}

// UpdateStatus applies a manual lifecycle transition. Any valid status is
// accepted from any other, resolved included; breaches can recur.
func (c *Coordinator) UpdateStatus(ctx context.Context, breachID id.BreachID, status id.BreachStatus, updatedBy, notes string) (*Breach, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid breach status: "+string(status))
	}

	b, err := c.store.Find(ctx, breachID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeBreachNotFound, "breach not found: "+breachID.String())
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "breach lookup failed")
	}

	previous := b.Status
	b.Status = status
	b.UpdatedAt = requestcontext.Now(ctx).UTC()
	if notes != "" {
		if b.Notes != "" {
			b.Notes += "\n"
		}
		b.Notes += fmt.Sprintf("[%s] %s: %s", b.UpdatedAt.Format(time.RFC3339), updatedBy, notes)
	}

	if err := c.store.Update(ctx, b); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "breach update failed")
	}

	c.recorder.Breach(ctx, audit.ActionBreachStatusChange, b.ID, map[string]any{
		"from":       previous.String(),
		"to":         status.String(),
		"updated_by": updatedBy,
	})
	return b, nil
}

// Timeline reconstructs the ordered milestone sequence from stored flags and
// timestamps.
func (c *Coordinator) Timeline(ctx context.Context, breachID id.BreachID) ([]Milestone, error) {
	b, err := c.store.Find(ctx, breachID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeBreachNotFound, "breach not found: "+breachID.String())
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "breach lookup failed")
	}

	milestones := []Milestone{
		{Kind: MilestoneDetected, OccurredAt: b.ReportedAt, Detail: b.Description},
		{Kind: MilestoneReported, OccurredAt: b.ReportedAt, Detail: "reported by " + b.ReportedBy},
	}
	if b.ReportedToSubjects && b.SubjectsNotifiedAt != nil {
		milestones = append(milestones, Milestone{
			Kind:       MilestoneSubjectsNotified,
			OccurredAt: *b.SubjectsNotifiedAt,
			Detail:     fmt.Sprintf("approximately %d subjects notified", b.ApproxSubjects),
		})
	}
	if b.ReportedToAuthority && b.AuthorityNotifiedAt != nil {
		milestones = append(milestones, Milestone{
			Kind:       MilestoneAuthorityNotified,
			OccurredAt: *b.AuthorityNotifiedAt,
			Detail:     "supervisory authority notified",
		})
	}
	if b.UpdatedAt.After(b.ReportedAt) && b.Status != id.BreachDetected {
		milestones = append(milestones, Milestone{
			Kind:       MilestoneStatusChanged,
			OccurredAt: b.UpdatedAt,
			Detail:     "current status " + b.Status.String(),
		})
	}

	for i := 1; i < len(milestones); i++ {
		for j := i; j > 0 && milestones[j].OccurredAt.Before(milestones[j-1].OccurredAt); j-- {
			milestones[j], milestones[j-1] = milestones[j-1], milestones[j]
		}
	}
	return milestones, nil
}

// BuildAuthorityReport assembles the regulator-facing filing. The attestation
// is an HS256 token over the report digest so the filing can be proven
// unaltered later.
func (c *Coordinator) BuildAuthorityReport(ctx context.Context, breachID id.BreachID) (*AuthorityReport, error) {
	b, err := c.store.Find(ctx, breachID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeBreachNotFound, "breach not found: "+breachID.String())
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "breach lookup failed")
	}

	now := requestcontext.Now(ctx).UTC()
	deadline := AuthorityDeadline(b.ReportedAt)
	report := &AuthorityReport{
		BreachID:           b.ID,
		GeneratedAt:        now,
		Description:        b.Description,
		Categories:         b.Categories,
		ApproxSubjects:     b.ApproxSubjects,
		LikelyConsequences: b.LikelyConsequences,
		MeasuresProposed:   b.MeasuresProposed,
		ReportedAt:         b.ReportedAt,
		Deadline:           deadline,
	}
	if b.AuthorityNotifiedAt != nil {
		report.DeadlineMet = !b.AuthorityNotifiedAt.After(deadline)
	} else {
		report.DeadlineMet = !now.After(deadline)
	}

	report.Digest = crypto.IntegrityHash([]byte(fmt.Sprintf(
		"%s|%s|%s|%d|%s|%s",
		b.ID, b.ReportedAt.Format(time.RFC3339Nano), b.Description,
		b.ApproxSubjects, b.LikelyConsequences, b.MeasuresProposed,
	)))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    "custodia",
		"sub":    b.ID.String(),
		"iat":    now.Unix(),
		"digest": report.Digest,
	})
	report.Attestation, err = token.SignedString(c.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "report attestation signing failed")
	}
	return report, nil
}

// VerifyAttestation checks that an attestation token matches the digest it
// claims to cover.
func (c *Coordinator) VerifyAttestation(attestation, digest string) bool {
	token, err := jwt.Parse(attestation, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.signingKey, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	claimed, _ := claims["digest"].(string)
	return claimed == digest
}

func (c *Coordinator) complianceEmailBody(b *Breach) string {
	return fmt.Sprintf(
		"<h1>Data breach %s</h1><p>%s</p><p>Categories: %s</p><p>Approximately %d members affected.</p><p>Reported by %s at %s.</p>",
		b.ID, html.EscapeString(b.Description),
		html.EscapeString(strings.Join(categoryStrings(b.Categories), ", ")),
		b.ApproxSubjects, html.EscapeString(b.ReportedBy), b.ReportedAt.Format(time.RFC3339),
	)
}

func (c *Coordinator) subjectEmailBody(b *Breach) string {
	return fmt.Sprintf(
		"<p>We are writing to inform you of a security incident that may involve your personal data.</p><p>%s</p><p>Measures under way: %s</p><p>Questions: %s</p>",
		html.EscapeString(b.Description), html.EscapeString(b.MeasuresProposed),
		html.EscapeString(c.complianceContact),
	)
}

func (c *Coordinator) authorityEmailBody(b *Breach) string {
	return fmt.Sprintf(
		"<h1>Breach notification</h1><p>Reference: %s</p><p>%s</p><p>Categories: %s</p><p>Approximate subjects: %d</p><p>Likely consequences: %s</p><p>Measures proposed: %s</p>",
		b.ID, html.EscapeString(b.Description),
		html.EscapeString(strings.Join(categoryStrings(b.Categories), ", ")),
		b.ApproxSubjects, html.EscapeString(b.LikelyConsequences), html.EscapeString(b.MeasuresProposed),
	)
}
