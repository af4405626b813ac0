// Package engine assembles the governance components into the single facade
// the surrounding member platform embeds. The platform's own transports call
// these services directly; this process only runs their background work and
// the ops endpoints.
package engine

import (
	"database/sql"
	"log/slog"

	"custodia/internal/audit"
	auditstore "custodia/internal/audit/store"
	"custodia/internal/breach"
	"custodia/internal/consent"
	"custodia/internal/crypto"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/redisclient"
	"custodia/internal/retention"
)

// Engine bundles every governance service over a shared audit trail.
type Engine struct {
	Cipher    *crypto.Cipher
	Audit     *audit.Recorder
	AuditDB   *auditstore.Postgres
	Consent   *consent.Service
	Retention *retention.Engine
	Breach    *breach.Coordinator
}

// Build wires the engine against its backing stores. redisCli may be nil; the
// retention sweep then uses a process-local lease.
func Build(cfg config.Config, db *sql.DB, redisCli *redisclient.Client, log *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	cipher, err := crypto.New(cfg.EncryptionSecret, cfg.HashPepper)
	if err != nil {
		return nil, err
	}

	auditDB := auditstore.NewPostgres(db)
	recorder := audit.NewRecorder(auditDB, log, m)

	consentSvc := consent.NewService(consent.NewPostgresStore(db), recorder, log, m, cfg.ConsentVersion)

	var locker retention.Locker
	if redisCli != nil {
		locker = retention.NewRedisLocker(redisCli.Client)
	} else {
		log.Warn("redis not configured; retention sweep lease is process-local")
		locker = retention.NewLocalLocker()
	}
	retentionEngine := retention.NewEngine(
		retention.NewPostgresPolicyStore(db),
		retention.NewPostgresDataStore(db),
		locker, recorder, log, m, cfg.SweepLeaseTTL,
	)

	coordinator := breach.NewCoordinator(
		breach.NewPostgresStore(db),
		breach.NewLogDispatcher(log),
		recorder, log, m,
		cfg.ComplianceContact, []byte(cfg.ReportSigningKey),
	)

	return &Engine{
		Cipher:    cipher,
		Audit:     recorder,
		AuditDB:   auditDB,
		Consent:   consentSvc,
		Retention: retentionEngine,
		Breach:    coordinator,
	}, nil
}
