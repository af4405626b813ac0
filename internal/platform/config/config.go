package config

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config captures process-level configuration. FromEnv builds it so main
// stays lean; Validate fails closed on missing secrets.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisAddr   string

	KafkaBrokers []string
	AuditTopic   string

	// EncryptionSecret and HashPepper key the PII cipher. They are mandatory
	// and have no default: shipping a placeholder key would silently protect
	// nothing.
	EncryptionSecret string
	HashPepper       string

	// ReportSigningKey signs the integrity attestation attached to authority
	// breach reports.
	ReportSigningKey string

	// ComplianceContact receives the internal notification for every breach
	// that crosses a notification threshold.
	ComplianceContact string

	ConsentVersion string

	RetentionSweepInterval time.Duration
	SweepLeaseTTL          time.Duration
}

// FromEnv builds a Config from CUSTODIA_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:                   envOr("CUSTODIA_ADDR", ":8080"),
		DatabaseURL:            os.Getenv("CUSTODIA_DATABASE_URL"),
		RedisAddr:              envOr("CUSTODIA_REDIS_ADDR", "localhost:6379"),
		AuditTopic:             envOr("CUSTODIA_AUDIT_TOPIC", "custodia.audit"),
		EncryptionSecret:       os.Getenv("CUSTODIA_ENCRYPTION_SECRET"),
		HashPepper:             os.Getenv("CUSTODIA_HASH_PEPPER"),
		ReportSigningKey:       os.Getenv("CUSTODIA_REPORT_SIGNING_KEY"),
		ComplianceContact:      envOr("CUSTODIA_COMPLIANCE_CONTACT", "compliance@coop.example"),
		ConsentVersion:         envOr("CUSTODIA_CONSENT_VERSION", "1.0"),
		RetentionSweepInterval: durationOr("CUSTODIA_RETENTION_SWEEP_INTERVAL", 24*time.Hour),
		SweepLeaseTTL:          durationOr("CUSTODIA_SWEEP_LEASE_TTL", 15*time.Minute),
	}
	if brokers := os.Getenv("CUSTODIA_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

// Validate enforces mandatory configuration at startup. There are deliberately
// no development fallbacks for key material.
func (c Config) Validate() error {
	if c.EncryptionSecret == "" {
		return errors.New("CUSTODIA_ENCRYPTION_SECRET is required")
	}
	if len(c.EncryptionSecret) < 32 {
		return errors.New("CUSTODIA_ENCRYPTION_SECRET must be at least 32 bytes")
	}
	if c.HashPepper == "" {
		return errors.New("CUSTODIA_HASH_PEPPER is required")
	}
	if c.ReportSigningKey == "" {
		return errors.New("CUSTODIA_REPORT_SIGNING_KEY is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("CUSTODIA_DATABASE_URL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
