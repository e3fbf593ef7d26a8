package entity

import (
	"fmt"
	"time"
)

// JobKind selects what a job does when it fires.
type JobKind string

const (
	JobKindDaily        JobKind = "daily_collection"
	JobKindHistorical   JobKind = "historical_collection"
	JobKindWeeklyReport JobKind = "weekly_report"
)

// OverlapPolicy decides what happens when a job fires while its previous run
// is still in flight. Only skip-if-running is supported.
type OverlapPolicy string

const OverlapSkip OverlapPolicy = "skip"

// JobDefinition describes a registered job.
type JobDefinition struct {
	ID string `json:"id"`

	// Schedule is the trigger spec handed to the trigger driver.
	// Empty means the job only runs on demand.
	Schedule string `json:"schedule,omitempty"`

	Kind JobKind `json:"kind"`

	// Sources limits the run to these sources; empty means every enabled source
	Sources []string `json:"sources,omitempty"`

	// DateMode is the date expression resolved at fire time ("today", "yesterday", ...)
	DateMode string `json:"date_mode,omitempty"`

	// Timeout bounds one run; zero means no job-level deadline
	Timeout time.Duration `json:"timeout,omitempty"`

	Overlap OverlapPolicy `json:"overlap"`
}

// Validate checks the definition.
func (j *JobDefinition) Validate() error {
	if j.ID == "" {
		return &ValidationError{Field: "id", Message: "job id is required"}
	}
	switch j.Kind {
	case JobKindDaily, JobKindHistorical, JobKindWeeklyReport:
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind %q", j.Kind)}
	}
	if j.Overlap != "" && j.Overlap != OverlapSkip {
		return &ValidationError{Field: "overlap", Message: fmt.Sprintf("unsupported overlap policy %q", j.Overlap)}
	}
	if j.Timeout < 0 {
		return &ValidationError{Field: "timeout", Message: "timeout must not be negative"}
	}
	return nil
}

// DeadLetter is an operation given up after exhausting its policy.
// It is kept for manual inspection and is never retried automatically.
type DeadLetter struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	Source    string    `json:"source"`
	Upstream  string    `json:"upstream"`
	Date      string    `json:"date"`
	Operation string    `json:"operation"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceTally counts per-source outcomes over a reporting window.
type SourceTally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// WeeklyReport aggregates the run history of the last seven days.
type WeeklyReport struct {
	StartDate   string                 `json:"start_date"`
	EndDate     string                 `json:"end_date"`
	TotalJobs   int                    `json:"total_jobs"`
	SuccessJobs int                    `json:"success_jobs"`
	PartialJobs int                    `json:"partial_jobs"`
	FailedJobs  int                    `json:"failed_jobs"`
	PerSource   map[string]SourceTally `json:"per_source"`
	GeneratedAt time.Time              `json:"generated_at"`
}
