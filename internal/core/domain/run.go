package domain

import "time"

// RunState is the lifecycle state of a pipeline run.
type RunState string

const (
	// RunStateRunning marks an in-flight run.
	RunStateRunning RunState = "running"
	// RunStateSucceeded marks a run whose batch was promoted.
	RunStateSucceeded RunState = "succeeded"
	// RunStateFailed marks a run that aborted; the destination is
	// unchanged from before the run.
	RunStateFailed RunState = "failed"
)

// RunPhase is the stage an in-flight run is currently in.
type RunPhase string

const (
	// PhaseCounting is the expected-total probe before the first page.
	PhaseCounting RunPhase = "counting"
	// PhaseFetching covers pagination and staging writes.
	PhaseFetching RunPhase = "fetching"
	// PhasePromoting covers the completeness check and the swap.
	PhasePromoting RunPhase = "promoting"
)

// Run records one pipeline execution for a dataset.
type Run struct {
	// ID is a uuid assigned at run start.
	ID string

	// DatasetID is the dataset the run belongs to.
	DatasetID string

	// BatchID is the staging batch the run produced, 0 before one is
	// assigned.
	BatchID int64

	// State is the lifecycle state.
	State RunState

	// Expected is the source-reported total captured at run start.
	Expected int64

	// Staged is the number of payloads written to staging.
	Staged int64

	// StartedAt is when the run began.
	StartedAt time.Time

	// FinishedAt is when the run ended; zero while running.
	FinishedAt time.Time

	// Error holds the failure message for failed runs.
	Error string
}

// Duration returns the run's elapsed time, using the current time for
// in-flight runs.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunStatus is a live progress snapshot of an in-flight run, served
// from memory for status reporting.
type RunStatus struct {
	// RunID is the in-flight run's id.
	RunID string

	// DatasetID is the dataset being refreshed.
	DatasetID string

	// Phase is the current pipeline stage.
	Phase RunPhase

	// PagesFetched counts completed page requests.
	PagesFetched int

	// RecordsStaged counts payloads written so far.
	RecordsStaged int64

	// Expected is the source-reported total, 0 until counted.
	Expected int64

	// StartedAt is when the run began.
	StartedAt time.Time
}
