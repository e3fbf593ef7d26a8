package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"batch-collector/internal/domain/calendar"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/logging"
	"batch-collector/internal/observability/tracing"
	"batch-collector/internal/repository"
	"batch-collector/internal/usecase/collect"
)

// EntryID identifies a registration with a TriggerDriver.
type EntryID int

// TriggerDriver fires callbacks on a schedule. The scheduler never parses
// schedule specs itself; the driver owns their syntax.
type TriggerDriver interface {
	Schedule(spec string, fire func()) (EntryID, error)
	Remove(id EntryID)
	Start()
	// Stop halts future fires. The returned context is done once running
	// callbacks have returned.
	Stop() context.Context
}

// Collector runs collections. It is satisfied by *collect.Service.
type Collector interface {
	CollectDailyData(ctx context.Context, date time.Time, opts collect.Options) (*entity.DailySummary, error)
	CollectHistoricalData(ctx context.Context, start, end time.Time, opts collect.Options) (*entity.HistoricalSummary, error)
}

// Recorder receives job metrics.
type Recorder interface {
	RecordJobRun(jobID string, status entity.RunStatus, duration time.Duration)
	RecordJobSkipped(jobID string)
}

// Params overrides a job's defaults for one manual run.
type Params struct {
	// Date is a date expression for daily jobs; empty uses the job's DateMode
	Date string

	// Start and End bound a historical run; empty uses the trailing week
	Start string
	End   string

	Options collect.Options
}

// Config holds scheduler settings.
type Config struct {
	// Location resolves date expressions; defaults to UTC
	Location *time.Location

	// DefaultTimeout bounds runs of jobs without their own Timeout
	DefaultTimeout time.Duration

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger
}

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	ID        string         `json:"id"`
	Kind      entity.JobKind `json:"kind"`
	Schedule  string         `json:"schedule,omitempty"`
	Scheduled bool           `json:"scheduled"`
	Running   bool           `json:"running"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Initialized bool        `json:"initialized"`
	Jobs        []JobStatus `json:"jobs"`
	Running     int         `json:"running"`
}

// Scheduler owns job registration and execution.
type Scheduler struct {
	jobs      map[string]entity.JobDefinition
	order     []string
	collector Collector
	runs      repository.RunLogRepository
	driver    TriggerDriver
	recorder  Recorder
	cfg       Config
	logger    *slog.Logger

	// base is the parent of scheduled runs; Shutdown cancels it
	base       context.Context
	cancelBase context.CancelFunc

	mu          sync.Mutex
	initialized bool
	closed      bool
	entries     map[string]EntryID
	running     map[string]context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler validates the job definitions and builds a scheduler.
// runs, driver and recorder may be nil.
func NewScheduler(
	jobs []entity.JobDefinition,
	collector Collector,
	runs repository.RunLogRepository,
	driver TriggerDriver,
	recorder Recorder,
	cfg Config,
) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Scheduler{
		jobs:      make(map[string]entity.JobDefinition, len(jobs)),
		collector: collector,
		runs:      runs,
		driver:    driver,
		recorder:  recorder,
		cfg:       cfg,
		logger:    cfg.Logger,
		entries:   make(map[string]EntryID),
		running:   make(map[string]context.CancelFunc),
	}
	for _, j := range jobs {
		if err := j.Validate(); err != nil {
			return nil, fmt.Errorf("job %q: %w", j.ID, err)
		}
		if _, dup := s.jobs[j.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, j.ID)
		}
		s.jobs[j.ID] = j
		s.order = append(s.order, j.ID)
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())
	return s, nil
}

// Initialize registers every job that has a schedule with the driver and
// starts it. Calling it again is a no-op.
func (s *Scheduler) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if s.closed {
		return ErrShutdown
	}
	if s.driver == nil {
		s.initialized = true
		return nil
	}

	for _, id := range s.order {
		job := s.jobs[id]
		if job.Schedule == "" {
			continue
		}
		entry, err := s.driver.Schedule(job.Schedule, func() { s.fire(job.ID) })
		if err != nil {
			for _, e := range s.entries {
				s.driver.Remove(e)
			}
			clear(s.entries)
			return fmt.Errorf("schedule job %s: %w", job.ID, err)
		}
		s.entries[job.ID] = entry
		s.logger.Info("job scheduled",
			slog.String("job_id", job.ID),
			slog.String("schedule", job.Schedule),
			slog.String("kind", string(job.Kind)))
	}
	s.driver.Start()
	s.initialized = true
	return nil
}

func (s *Scheduler) fire(jobID string) {
	_, err := s.Trigger(s.base, jobID, entity.TriggerScheduled, Params{})
	if err != nil && !errors.Is(err, ErrJobRunning) {
		s.logger.Error("scheduled job failed",
			slog.String("job_id", jobID),
			slog.Any("error", err))
	}
}

// Trigger runs a job now and returns its finalized record. A trigger for a
// job that is already running is skipped with ErrJobRunning and produces no
// record. The error is non-nil for setup failures, in which case the record
// is still returned with status FAILED.
func (s *Scheduler) Trigger(ctx context.Context, jobID string, trigger entity.Trigger, params Params) (*entity.RunRecord, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	return s.start(ctx, job, trigger, params)
}

// RunManual runs an unregistered job of the given kind once, as the manual
// collection commands do. It produces and persists a RunRecord like any
// triggered run. Concurrent manual runs of the same kind are skipped with
// ErrJobRunning.
func (s *Scheduler) RunManual(ctx context.Context, kind entity.JobKind, params Params) (*entity.RunRecord, error) {
	job := entity.JobDefinition{
		ID:       ManualJobID(kind),
		Kind:     kind,
		DateMode: calendar.ExprToday,
		Overlap:  entity.OverlapSkip,
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return s.start(ctx, job, entity.TriggerManual, params)
}

// ManualJobID is the job id recorded for RunManual runs of kind.
func ManualJobID(kind entity.JobKind) string {
	return "manual:" + string(kind)
}

func (s *Scheduler) start(ctx context.Context, job entity.JobDefinition, trigger entity.Trigger, params Params) (*entity.RunRecord, error) {
	jobID := job.ID
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShutdown
	}
	if _, busy := s.running[jobID]; busy {
		s.mu.Unlock()
		if s.recorder != nil {
			s.recorder.RecordJobSkipped(jobID)
		}
		s.logger.Warn("job still running, trigger skipped",
			slog.String("job_id", jobID),
			slog.String("trigger", string(trigger)))
		return nil, ErrJobRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running[jobID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
		s.wg.Done()
	}()

	if timeout := s.timeoutFor(job); timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return s.run(runCtx, job, trigger, params)
}

func (s *Scheduler) timeoutFor(job entity.JobDefinition) time.Duration {
	if job.Timeout > 0 {
		return job.Timeout
	}
	return s.cfg.DefaultTimeout
}

// run executes one invocation and persists its record.
func (s *Scheduler) run(ctx context.Context, job entity.JobDefinition, trigger entity.Trigger, params Params) (*entity.RunRecord, error) {
	record := entity.NewRunRecord(s.cfg.NewID(), job.ID, job.Kind, trigger, s.cfg.Now())

	logger := s.logger.With(
		slog.String("job_id", job.ID),
		slog.String("run_id", record.ID))
	ctx = logging.WithRunID(ctx, record.ID)
	ctx = logging.WithLogger(ctx, s.logger.With(slog.String("job_id", job.ID)))
	ctx, span := tracing.StartSpan(ctx, "job.run",
		attribute.String("job_id", job.ID),
		attribute.String("job_kind", string(job.Kind)),
		attribute.String("trigger", string(trigger)),
	)

	logger.Info("job started", slog.String("kind", string(job.Kind)), slog.String("trigger", string(trigger)))
	s.save(ctx, record)

	var (
		success, failed int
		setupErr        error
	)
	switch job.Kind {
	case entity.JobKindDaily:
		success, failed, setupErr = s.runDaily(ctx, job, params, record)
	case entity.JobKindHistorical:
		success, failed, setupErr = s.runHistorical(ctx, job, params, record)
	case entity.JobKindWeeklyReport:
		setupErr = s.runWeeklyReport(ctx, record)
	}

	if err := record.Finalize(s.cfg.Now(), success, failed, setupErr); err != nil {
		logger.Error("run record finalized twice", slog.Any("error", err))
	}
	s.save(ctx, record)

	if s.recorder != nil {
		s.recorder.RecordJobRun(job.ID, record.Status, record.Duration())
	}

	span.SetAttributes(attribute.String("status", string(record.Status)))
	tracing.EndSpan(span, setupErr)

	level := slog.LevelInfo
	if record.Status != entity.RunStatusSuccess {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "job completed",
		slog.String("status", string(record.Status)),
		slog.Int("success", record.Success),
		slog.Int("failed", record.Failed),
		slog.Duration("duration", record.Duration()))

	return record, setupErr
}

func (s *Scheduler) save(ctx context.Context, record *entity.RunRecord) {
	if s.runs == nil {
		return
	}
	if err := s.runs.SaveRunLog(context.WithoutCancel(ctx), record); err != nil {
		s.logger.Error("failed to save run log",
			slog.String("run_id", record.ID),
			slog.Any("error", err))
	}
}

func (s *Scheduler) runDaily(ctx context.Context, job entity.JobDefinition, params Params, record *entity.RunRecord) (int, int, error) {
	expr := params.Date
	if expr == "" {
		expr = job.DateMode
	}
	date, err := calendar.ResolveDate(expr, s.cfg.Now().In(s.cfg.Location))
	if err != nil {
		return 0, 0, err
	}
	opts := s.options(job, params)

	record.Parameters = map[string]any{
		"date":    date.Format(time.DateOnly),
		"sources": opts.Sources,
		"dry_run": opts.DryRun,
	}

	summary, err := s.collector.CollectDailyData(ctx, date, opts)
	if err != nil {
		return 0, 0, err
	}
	record.Outcomes = summary.PerSource
	record.Errors = append(record.Errors, summary.Errors...)
	record.Result = summary
	return summary.TotalSuccess, summary.TotalFailed, nil
}

func (s *Scheduler) runHistorical(ctx context.Context, job entity.JobDefinition, params Params, record *entity.RunRecord) (int, int, error) {
	now := s.cfg.Now().In(s.cfg.Location)

	endExpr := params.End
	if endExpr == "" {
		endExpr = "yesterday"
	}
	end, err := calendar.ResolveDate(endExpr, now)
	if err != nil {
		return 0, 0, err
	}
	start := end.AddDate(0, 0, -6)
	if params.Start != "" {
		if start, err = calendar.ResolveDate(params.Start, now); err != nil {
			return 0, 0, err
		}
	}
	opts := s.options(job, params)

	record.Parameters = map[string]any{
		"start_date": start.Format(time.DateOnly),
		"end_date":   end.Format(time.DateOnly),
		"sources":    opts.Sources,
		"dry_run":    opts.DryRun,
	}

	summary, err := s.collector.CollectHistoricalData(ctx, start, end, opts)
	if err != nil {
		return 0, 0, err
	}
	for _, d := range summary.Days {
		record.Outcomes = append(record.Outcomes, d.PerSource...)
	}
	record.Errors = append(record.Errors, summary.Errors...)
	if summary.Canceled {
		record.Errors = append(record.Errors, "historical collection canceled")
	}
	record.Result = summary

	var success, failed int
	for _, d := range summary.Days {
		success += d.TotalSuccess
		failed += d.TotalFailed
	}
	return success, failed, nil
}

func (s *Scheduler) options(job entity.JobDefinition, params Params) collect.Options {
	opts := params.Options
	if len(opts.Sources) == 0 {
		opts.Sources = job.Sources
	}
	return opts
}

// Stop removes a job's schedule. A run in flight is not interrupted.
func (s *Scheduler) Stop(jobID string) error {
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[jobID]; ok {
		s.driver.Remove(entry)
		delete(s.entries, jobID)
		s.logger.Info("job unscheduled", slog.String("job_id", jobID))
	}
	return nil
}

// StopAll removes every schedule and stops the driver. Initialize may be
// called again afterwards.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
}

func (s *Scheduler) stopAllLocked() {
	if s.driver == nil {
		s.initialized = false
		return
	}
	for id, entry := range s.entries {
		s.driver.Remove(entry)
		delete(s.entries, id)
	}
	if s.initialized {
		s.driver.Stop()
	}
	s.initialized = false
}

// Shutdown stops every schedule, cancels running jobs and waits for them to
// record their outcome or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopAllLocked()
	s.closed = true
	for _, cancel := range s.running {
		cancel()
	}
	s.mu.Unlock()
	s.cancelBase()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// Status returns the registration and run state of every job.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Initialized: s.initialized, Running: len(s.running)}
	for _, id := range s.order {
		job := s.jobs[id]
		_, scheduled := s.entries[id]
		_, running := s.running[id]
		st.Jobs = append(st.Jobs, JobStatus{
			ID:        id,
			Kind:      job.Kind,
			Schedule:  job.Schedule,
			Scheduled: scheduled,
			Running:   running,
		})
	}
	sort.Slice(st.Jobs, func(i, j int) bool { return st.Jobs[i].ID < st.Jobs[j].ID })
	return st
}

// Jobs returns the registered definitions in registration order.
func (s *Scheduler) Jobs() []entity.JobDefinition {
	out := make([]entity.JobDefinition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out
}
