package sync

import "time"

// Metrics receives sync engine observations. A nil Metrics disables
// collection with zero overhead; the Prometheus implementation lives in
// pkg/metrics/prometheus.
type Metrics interface {
	// ObserveRun records a completed run with its outcome and duration.
	ObserveRun(source string, outcome RunOutcome, duration time.Duration)

	// ObservePrincipal records one principal's reconciliation outcome.
	ObservePrincipal(source string, outcome PrincipalOutcome)

	// ObserveLeaseBusy records a run skipped because the lease was held.
	ObserveLeaseBusy(source string)
}
