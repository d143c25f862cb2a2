package domain

import "time"

// RunOutcome classifies a finished pipeline run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	// OutcomeEmpty means the source had no documents or every record was
	// dropped. It is not a failure.
	OutcomeEmpty   RunOutcome = "empty"
	OutcomeFailure RunOutcome = "failure"
)

// RunSummary reports one flatten-then-load run.
type RunSummary struct {
	RunID       string     `json:"run_id"`
	Outcome     RunOutcome `json:"outcome"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
	Artifact    string     `json:"artifact,omitempty"`
	Documents   int        `json:"documents"`
	Flattened   int        `json:"flattened"`
	Dropped     int        `json:"dropped"`
	Duplicates  int        `json:"duplicates"`
	Attempted   int        `json:"attempted"`
	Inserted    int64      `json:"inserted"`
	Skipped     int64      `json:"skipped"`
	FailedStage string     `json:"failed_stage,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
