package metrics

import (
	"github.com/realmsync/realmsync/pkg/sync"
)

// NewSyncMetrics creates a Prometheus-backed sync.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); the
// engine treats a nil Metrics as disabled collection.
func NewSyncMetrics() sync.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusSyncMetrics()
}

// newPrometheusSyncMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle between the interface package and
// its Prometheus implementation.
var newPrometheusSyncMetrics func() sync.Metrics

// RegisterSyncMetricsConstructor registers the Prometheus sync metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterSyncMetricsConstructor(constructor func() sync.Metrics) {
	newPrometheusSyncMetrics = constructor
}
