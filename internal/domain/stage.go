package domain

import (
	"fmt"
	"time"
)

// StageOutcome is the typed result of running one pipeline stage
type StageOutcome string

const (
	OutcomeOK          StageOutcome = "ok"
	OutcomeSkipped     StageOutcome = "skipped"
	OutcomeWarned      StageOutcome = "warned"
	OutcomeFailedFatal StageOutcome = "failed-fatal"
)

// StageResult reports the outcome of a stage with a human-readable message
type StageResult struct {
	Stage    string        `json:"stage"`
	Outcome  StageOutcome  `json:"outcome"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// OK builds a successful result
func OK(stage, format string, args ...any) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeOK, Message: fmt.Sprintf(format, args...)}
}

// Skipped builds a skipped result
func Skipped(stage, format string, args ...any) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeSkipped, Message: fmt.Sprintf(format, args...)}
}

// Warned builds a warning result
func Warned(stage, format string, args ...any) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeWarned, Message: fmt.Sprintf(format, args...)}
}

// Failed builds a fatal failure result
func Failed(stage string, err error) StageResult {
	return StageResult{Stage: stage, Outcome: OutcomeFailedFatal, Message: err.Error()}
}

// IsFatal reports whether the result aborts the pipeline
func (r StageResult) IsFatal() bool {
	return r.Outcome == OutcomeFailedFatal
}

// RunMode distinguishes forward provisioning from teardown
type RunMode string

const (
	RunProvision RunMode = "provision"
	RunReset     RunMode = "reset"
)

// RunReport aggregates stage results for one invocation
type RunReport struct {
	ID         string        `json:"id"`
	Mode       RunMode       `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Results    []StageResult `json:"results"`
	ExitCode   int           `json:"exit_code"`
}

// Add appends a stage result
func (r *RunReport) Add(result StageResult) {
	r.Results = append(r.Results, result)
}

// Aborted reports whether any stage failed fatally
func (r *RunReport) Aborted() bool {
	for _, res := range r.Results {
		if res.IsFatal() {
			return true
		}
	}
	return false
}

// Count returns the number of results with the given outcome
func (r *RunReport) Count(outcome StageOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}
