package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Definition outcomes recorded per evaluated achievement.
const (
	outcomeWritten = "written"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Metrics holds the sync engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	definitions    *prometheus.CounterVec
	tenants        *prometheus.CounterVec
	unlocks        prometheus.Counter
	tenantDuration prometheus.Histogram
	runDuration    prometheus.Histogram
	lastRun        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		definitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guildboard",
			Name:      "achievement_evaluations_total",
			Help:      "Achievement definitions evaluated, by outcome.",
		}, []string{"outcome"}),
		tenants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "guildboard",
			Name:      "tenant_syncs_total",
			Help:      "Tenant evaluations attempted by batch runs, by status.",
		}, []string{"status"}),
		unlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "guildboard",
			Name:      "achievements_unlocked_total",
			Help:      "Progress rows written in the unlocked state.",
		}),
		tenantDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guildboard",
			Name:      "tenant_sync_duration_seconds",
			Help:      "Histogram of single tenant evaluation durations.",
			Buckets:   prometheus.DefBuckets,
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "guildboard",
			Name:      "batch_run_duration_seconds",
			Help:      "Histogram of all-tenant batch run durations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "guildboard",
			Name:      "batch_last_run_timestamp_seconds",
			Help:      "Unix time the last batch run finished.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.definitions,
			m.tenants,
			m.unlocks,
			m.tenantDuration,
			m.runDuration,
			m.lastRun,
		)
	}
	return m
}

func (m *Metrics) definition(outcome string, unlocked bool) {
	if m == nil {
		return
	}
	m.definitions.WithLabelValues(outcome).Inc()
	if unlocked {
		m.unlocks.Inc()
	}
}

func (m *Metrics) tenant(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.tenants.WithLabelValues(status).Inc()
	m.tenantDuration.Observe(d.Seconds())
}

func (m *Metrics) run(d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.runDuration.Observe(d.Seconds())
	m.lastRun.Set(float64(finished.Unix()))
}
