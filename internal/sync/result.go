package sync

// Outcome classifies how processing one project ended.
type Outcome string

const (
	// OutcomeSynced means the project was reconciled without error.
	OutcomeSynced Outcome = "synced"
	// OutcomeSkipped means the project opted out via no-gerrit.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means processing aborted at the project boundary.
	OutcomeFailed Outcome = "failed"
)

// Result is the per-project outcome collected by a run.
type Result struct {
	Project string
	Outcome Outcome
	Err     error
}

// Report accumulates the results of one reconciliation run, in declaration
// order.
type Report struct {
	Results []Result
}

func (r *Report) add(project string, outcome Outcome, err error) {
	r.Results = append(r.Results, Result{Project: project, Outcome: outcome, Err: err})
}

// Failed returns the results for projects that failed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Outcome == OutcomeFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Counts returns how many projects were synced, skipped and failed.
func (r *Report) Counts() (synced, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeSynced:
			synced++
		case OutcomeSkipped:
			skipped++
		case OutcomeFailed:
			failed++
		}
	}
	return
}
