package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/realmsync/realmsync/pkg/metrics"
	"github.com/realmsync/realmsync/pkg/sync"
)

func init() {
	metrics.RegisterSyncMetricsConstructor(newSyncMetrics)
}

// syncMetrics is the Prometheus implementation of sync.Metrics.
type syncMetrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	principalsTotal *prometheus.CounterVec
	leaseBusyTotal  *prometheus.CounterVec
}

// newSyncMetrics creates a Prometheus-backed sync.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func newSyncMetrics() sync.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &syncMetrics{
		runsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmsync_sync_runs_total",
				Help: "Total number of sync runs by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		runDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "realmsync_sync_run_duration_seconds",
				Help: "Duration of sync runs in seconds",
				Buckets: []float64{
					0.1,  // trivial realms
					0.5,  // small realms
					1,    // 1s
					5,    // 5s
					15,   // 15s
					60,   // 1m - medium realms
					300,  // 5m
					900,  // 15m - large realms
					3600, // 1h
				},
			},
			[]string{"source"},
		),
		principalsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmsync_sync_principals_total",
				Help: "Total number of principals processed by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		leaseBusyTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "realmsync_sync_lease_busy_total",
				Help: "Total number of sync runs skipped because the lease was held",
			},
			[]string{"source"},
		),
	}
}

func (m *syncMetrics) ObserveRun(source string, outcome sync.RunOutcome, duration time.Duration) {
	m.runsTotal.WithLabelValues(source, string(outcome)).Inc()
	m.runDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *syncMetrics) ObservePrincipal(source string, outcome sync.PrincipalOutcome) {
	m.principalsTotal.WithLabelValues(source, string(outcome)).Inc()
}

func (m *syncMetrics) ObserveLeaseBusy(source string) {
	m.leaseBusyTotal.WithLabelValues(source).Inc()
}
