package entity

import (
	"time"
)

// RunStatus is the derived outcome of a job run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// OutcomeStatus is the result of collecting one source for one day.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "SUCCESS"
	OutcomeFailed  OutcomeStatus = "FAILED"
	OutcomeSkipped OutcomeStatus = "SKIPPED"
)

// DeriveStatus maps counts to a run status: FAILED when the setup failed or
// every source failed, PARTIAL when some failed, SUCCESS otherwise.
func DeriveStatus(success, failed int, setupFailed bool) RunStatus {
	switch {
	case setupFailed:
		return RunStatusFailed
	case failed > 0 && success == 0:
		return RunStatusFailed
	case failed > 0:
		return RunStatusPartial
	default:
		return RunStatusSuccess
	}
}

// SourceOutcome records what happened to one source on one day.
type SourceOutcome struct {
	Source       string        `json:"source"`
	Date         string        `json:"date"`
	Status       OutcomeStatus `json:"status"`
	Records      int           `json:"records"`
	Pages        int           `json:"pages"`
	Attempts     int           `json:"attempts"`
	DurationMs   int64         `json:"duration_ms"`
	Error        string        `json:"error,omitempty"`
	Category     string        `json:"category,omitempty"`
	DeadLettered bool          `json:"dead_lettered,omitempty"`
}

// DailySummary is the result of collecting every requested source for one day.
// Failures are recorded per source; a summary is returned even when all failed.
type DailySummary struct {
	Date             string          `json:"date"`
	PerSource        []SourceOutcome `json:"per_source"`
	TotalSuccess     int             `json:"total_success"`
	TotalFailed      int             `json:"total_failed"`
	Errors           []string        `json:"errors,omitempty"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	DryRun           bool            `json:"dry_run,omitempty"`
}

// Failed reports whether any source failed that day.
func (s *DailySummary) Failed() bool {
	return s.TotalFailed > 0
}

// HistoricalSummary is the result of a day-by-day backfill over business days.
type HistoricalSummary struct {
	StartDate        string         `json:"start_date"`
	EndDate          string         `json:"end_date"`
	TotalDays        int            `json:"total_days"`
	SuccessDays      int            `json:"success_days"`
	FailedDays       int            `json:"failed_days"`
	Days             []DailySummary `json:"days"`
	Errors           []string       `json:"errors,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	Canceled         bool           `json:"canceled,omitempty"`
}

// Trigger tells how a run was started.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// RunRecord is the auditable record of one job invocation. It is created at
// job start and finalized exactly once at job end.
type RunRecord struct {
	ID         string          `json:"id"`
	JobID      string          `json:"job_id"`
	JobKind    JobKind         `json:"job_kind"`
	Trigger    Trigger         `json:"trigger"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Status     RunStatus       `json:"status"`
	Outcomes   []SourceOutcome `json:"outcomes"`
	Success    int             `json:"success_count"`
	Failed     int             `json:"failed_count"`
	Errors     []string        `json:"errors,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Result     any             `json:"result,omitempty"`
}

// NewRunRecord starts a record in the RUNNING state.
func NewRunRecord(id, jobID string, kind JobKind, trigger Trigger, startedAt time.Time) *RunRecord {
	return &RunRecord{
		ID:        id,
		JobID:     jobID,
		JobKind:   kind,
		Trigger:   trigger,
		StartedAt: startedAt,
		Status:    RunStatusRunning,
	}
}

// Finalized reports whether Finalize has been called.
func (r *RunRecord) Finalized() bool {
	return r.FinishedAt != nil
}

// Finalize sets the end time and derives the status from the counts.
// setupErr marks the run FAILED regardless of counts.
func (r *RunRecord) Finalize(finishedAt time.Time, success, failed int, setupErr error) error {
	if r.Finalized() {
		return ErrRunFinalized
	}
	r.FinishedAt = &finishedAt
	r.Success = success
	r.Failed = failed
	if setupErr != nil {
		r.Errors = append(r.Errors, setupErr.Error())
	}
	r.Status = DeriveStatus(success, failed, setupErr != nil)
	return nil
}

// Duration returns the wall-clock duration of a finalized run.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// CollectionLog is the persisted per-source, per-day collection entry.
type CollectionLog struct {
	Date         string        `json:"date"`
	Source       string        `json:"source"`
	Status       OutcomeStatus `json:"status"`
	RecordCount  int           `json:"record_count"`
	ErrorMessage string        `json:"error_message,omitempty"`
	DurationMs   int64         `json:"duration_ms"`
}

// CollectionLogFrom converts an outcome into its log entry.
func CollectionLogFrom(o SourceOutcome) CollectionLog {
	return CollectionLog{
		Date:         o.Date,
		Source:       o.Source,
		Status:       o.Status,
		RecordCount:  o.Records,
		ErrorMessage: o.Error,
		DurationMs:   o.DurationMs,
	}
}

// RawPayload is one page of upstream data kept as received.
type RawPayload struct {
	Source    string    `json:"source"`
	Date      string    `json:"date"`
	Page      int       `json:"page"`
	Records   int       `json:"records"`
	Body      []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}
