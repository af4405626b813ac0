package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the governance engine.
type Metrics struct {
	AuditEntriesRecorded prometheus.Counter
	AuditEntriesDropped  prometheus.Counter

	ConsentsGranted   prometheus.Counter
	ConsentsWithdrawn prometheus.Counter

	BreachesReported  prometheus.Counter
	NotificationsSent *prometheus.CounterVec

	RetentionActions  *prometheus.CounterVec
	RetentionSweeps   prometheus.Counter
	SweepLeaseMissed  prometheus.Counter
	SweepLastDuration prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		AuditEntriesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_entries_recorded_total",
			Help: "Total number of audit entries successfully persisted",
		}),
		AuditEntriesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped by the fail-open recorder",
		}),
		ConsentsGranted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consents_granted_total",
			Help: "Total number of consent records created",
		}),
		ConsentsWithdrawn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_consents_withdrawn_total",
			Help: "Total number of consent withdrawals",
		}),
		BreachesReported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_breaches_reported_total",
			Help: "Total number of data breaches reported",
		}),
		NotificationsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_breach_notifications_sent_total",
			Help: "Breach notifications dispatched, by audience",
		}, []string{"audience"}),
		RetentionActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_retention_actions_total",
			Help: "Retention actions executed by the sweep, by action",
		}, []string{"action"}),
		RetentionSweeps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_retention_sweeps_total",
			Help: "Total number of completed retention sweeps",
		}),
		SweepLeaseMissed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_retention_sweep_lease_missed_total",
			Help: "Sweep invocations skipped because another run held the lease",
		}),
		SweepLastDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "custodia_retention_sweep_duration_seconds",
			Help: "Duration of the most recent retention sweep",
		}),
	}
}
