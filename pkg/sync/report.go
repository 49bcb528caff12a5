package sync

import (
	"time"

	"github.com/realmsync/realmsync/pkg/identity/models"
)

// PrincipalOutcome is the per-principal result of one reconciliation step.
type PrincipalOutcome string

const (
	// OutcomeCreated: a new identity and link were created.
	OutcomeCreated PrincipalOutcome = "created"
	// OutcomeUpdated: an existing linked identity was reconciled.
	OutcomeUpdated PrincipalOutcome = "updated"
	// OutcomeRejected: the pipeline rejected the principal (reserved prefix,
	// foreign realm, excluded service principal). Not an error.
	OutcomeRejected PrincipalOutcome = "rejected"
	// OutcomeFailed: creation or update failed; isolated to this principal.
	OutcomeFailed PrincipalOutcome = "failed"
)

// RunOutcome is the overall result of one sync run.
type RunOutcome string

const (
	// RunDisabled: the source is disabled or has user sync turned off.
	RunDisabled RunOutcome = "disabled"
	// RunSkippedBusy: another holder owns the lease, or the lease backend
	// was unavailable; the run performed no work.
	RunSkippedBusy RunOutcome = "skipped_busy"
	// RunDone: enumeration and reconciliation completed.
	RunDone RunOutcome = "done"
	// RunAborted: no connection could be established or enumeration failed.
	RunAborted RunOutcome = "aborted"
)

// PrincipalResult records one principal's reconciliation.
type PrincipalResult struct {
	Principal string
	Username  string
	Outcome   PrincipalOutcome
	Reason    string
}

// Report aggregates a sync run so callers and tests can assert on what
// happened instead of scraping logs.
type Report struct {
	Source   string
	Realm    string
	Outcome  RunOutcome
	Status   string
	Started  time.Time
	Duration time.Duration
	Results  []PrincipalResult
}

func newReport(source *models.RealmSource) *Report {
	return &Report{
		Source:  source.Slug,
		Realm:   source.Realm,
		Started: time.Now(),
	}
}

func (r *Report) add(result PrincipalResult) {
	r.Results = append(r.Results, result)
}

// Seen returns the number of principals processed.
func (r *Report) Seen() int {
	return len(r.Results)
}

// Count returns the number of principals with the given outcome.
func (r *Report) Count(outcome PrincipalOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the failed principal results.
func (r *Report) Failed() []PrincipalResult {
	var out []PrincipalResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			out = append(out, res)
		}
	}
	return out
}
