package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"batch-collector/internal/domain/calendar"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/logging"
	"batch-collector/internal/observability/metrics"
	"batch-collector/internal/observability/tracing"
	"batch-collector/internal/repository"
	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/failure"
	"batch-collector/internal/resilience/recovery"
	"batch-collector/internal/resilience/retry"
)

const (
	defaultParallelism    = 4
	defaultRequestTimeout = 30 * time.Second
	defaultInterDayDelay  = 500 * time.Millisecond

	payloadTable = "raw_payloads"
)

// Config holds orchestration settings.
type Config struct {
	// Parallelism bounds how many sources of one day run at once
	Parallelism int

	// RequestTimeout bounds a single fetch attempt
	RequestTimeout time.Duration

	// InterDayDelay separates consecutive days of a historical run
	InterDayDelay time.Duration

	// Sleep waits between days; defaults to a context-aware timer
	Sleep retry.Sleeper

	// Now defaults to time.Now
	Now func() time.Time

	// LookupEnv resolves credentials; defaults to os.LookupEnv
	LookupEnv func(string) (string, bool)
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Parallelism:    defaultParallelism,
		RequestTimeout: defaultRequestTimeout,
		InterDayDelay:  defaultInterDayDelay,
	}
}

// Options narrows one run.
type Options struct {
	// Sources limits the run; empty means every enabled source
	Sources []string

	// MaxPages and PageSize override the source settings when > 0
	MaxPages int
	PageSize int

	// DryRun fetches without persisting payloads or logs
	DryRun bool
}

// Validate checks the page overrides.
func (o Options) Validate() error {
	if o.MaxPages != 0 && (o.MaxPages < entity.MinMaxPages || o.MaxPages > entity.MaxMaxPages) {
		return fmt.Errorf("%w: max pages must be between %d and %d", ErrInvalidOptions, entity.MinMaxPages, entity.MaxMaxPages)
	}
	if o.PageSize != 0 && (o.PageSize < entity.MinPageSize || o.PageSize > entity.MaxPageSize) {
		return fmt.Errorf("%w: page size must be between %d and %d", ErrInvalidOptions, entity.MinPageSize, entity.MaxPageSize)
	}
	return nil
}

// Service collects data from the configured sources.
type Service struct {
	Sources []entity.Source

	// Fetcher serves every source without an entry in Fetchers
	Fetcher  Fetcher
	Fetchers map[string]Fetcher

	Executor    *retry.Executor
	Logs        repository.CollectionLogRepository
	Payloads    repository.PayloadRepository
	DeadLetters repository.DeadLetterRepository

	config Config
}

// NewService creates a collection Service. logs, payloads and deadLetters may
// be nil to skip the corresponding persistence.
func NewService(
	sources []entity.Source,
	fetcher Fetcher,
	executor *retry.Executor,
	logs repository.CollectionLogRepository,
	payloads repository.PayloadRepository,
	deadLetters repository.DeadLetterRepository,
	cfg Config,
) *Service {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.InterDayDelay < 0 {
		cfg.InterDayDelay = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	return &Service{
		Sources:     sources,
		Fetcher:     fetcher,
		Fetchers:    map[string]Fetcher{},
		Executor:    executor,
		Logs:        logs,
		Payloads:    payloads,
		DeadLetters: deadLetters,
		config:      cfg,
	}
}

// EnvironmentIssue is a missing precondition for a source.
type EnvironmentIssue struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// ValidateEnvironment reports enabled sources whose credential is unset.
func (s *Service) ValidateEnvironment() []EnvironmentIssue {
	var issues []EnvironmentIssue
	for _, src := range s.Sources {
		if !src.Enabled || src.APIKeyEnv == "" {
			continue
		}
		if v, ok := s.config.LookupEnv(src.APIKeyEnv); !ok || v == "" {
			issues = append(issues, EnvironmentIssue{
				Source:  src.Name,
				Message: fmt.Sprintf("%s is not set", src.APIKeyEnv),
			})
		}
	}
	return issues
}

// CollectDailyData collects every requested source for date. Sources run
// concurrently up to the configured parallelism; each source's failure is
// recorded in the summary and never aborts the others. The returned error is
// non-nil only for setup failures (unknown source, missing credential, bad
// options).
func (s *Service) CollectDailyData(ctx context.Context, date time.Time, opts Options) (*entity.DailySummary, error) {
	dateStr := calendar.Format(date)
	ctx, span := tracing.StartSpan(ctx, "collect.daily",
		attribute.String("date", dateStr),
		attribute.Bool("dry_run", opts.DryRun),
	)

	summary, err := s.collectDay(ctx, date, opts)
	tracing.EndSpan(span, err)
	return summary, err
}

func (s *Service) collectDay(ctx context.Context, date time.Time, opts Options) (*entity.DailySummary, error) {
	logger := logging.WithRun(ctx, logging.FromContext(ctx))
	start := s.config.Now()
	dateStr := calendar.Format(date)

	targets, err := s.resolve(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("daily collection started",
		slog.String("date", dateStr),
		slog.Int("sources", len(targets)),
		slog.Bool("dry_run", opts.DryRun))

	outcomes := make([]entity.SourceOutcome, len(targets))
	var g errgroup.Group
	g.SetLimit(s.config.Parallelism)
	for i, t := range targets {
		g.Go(func() error {
			outcomes[i] = s.collectSource(ctx, t, date, opts)
			return nil
		})
	}
	_ = g.Wait()

	summary := &entity.DailySummary{
		Date:      dateStr,
		PerSource: outcomes,
		DryRun:    opts.DryRun,
	}
	for _, o := range outcomes {
		switch o.Status {
		case entity.OutcomeSuccess:
			summary.TotalSuccess++
		case entity.OutcomeFailed:
			summary.TotalFailed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", o.Source, o.Error))
		}
	}
	summary.ProcessingTimeMs = s.config.Now().Sub(start).Milliseconds()

	logger.Info("daily collection completed",
		slog.String("date", dateStr),
		slog.Int("success", summary.TotalSuccess),
		slog.Int("failed", summary.TotalFailed),
		slog.Int64("processing_time_ms", summary.ProcessingTimeMs))

	return summary, nil
}

// CollectSpecific collects a single source for date.
func (s *Service) CollectSpecific(ctx context.Context, source string, date time.Time, opts Options) (entity.SourceOutcome, error) {
	opts.Sources = []string{source}
	summary, err := s.CollectDailyData(ctx, date, opts)
	if err != nil {
		return entity.SourceOutcome{}, err
	}
	return summary.PerSource[0], nil
}

// target is a source resolved for one run.
type target struct {
	src    entity.Source
	apiKey string
	skip   string
}

// resolve picks the sources of a run and checks their credentials.
func (s *Service) resolve(opts Options) ([]target, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var picked []entity.Source
	if len(opts.Sources) == 0 {
		for _, src := range s.Sources {
			if src.Enabled {
				picked = append(picked, src)
			}
		}
	} else {
		seen := make(map[string]bool, len(opts.Sources))
		for _, name := range opts.Sources {
			if seen[name] {
				continue
			}
			seen[name] = true
			src, ok := s.source(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
			}
			picked = append(picked, src)
		}
	}
	if len(picked) == 0 {
		return nil, ErrNoSources
	}

	targets := make([]target, 0, len(picked))
	for _, src := range picked {
		if opts.PageSize > 0 {
			src.PageSize = opts.PageSize
		}
		if opts.MaxPages > 0 {
			src.MaxPages = opts.MaxPages
		}
		t := target{src: src}
		if !src.Enabled {
			t.skip = "source disabled"
		}
		if src.APIKeyEnv != "" {
			key, ok := s.config.LookupEnv(src.APIKeyEnv)
			switch {
			case ok && key != "":
				t.apiKey = key
			case opts.DryRun:
				t.skip = fmt.Sprintf("%s is not set", src.APIKeyEnv)
			default:
				return nil, fmt.Errorf("%w: %s requires %s", ErrMissingCredential, src.Name, src.APIKeyEnv)
			}
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (s *Service) source(name string) (entity.Source, bool) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return entity.Source{}, false
}

func (s *Service) fetcherFor(name string) Fetcher {
	if f, ok := s.Fetchers[name]; ok {
		return f
	}
	return s.Fetcher
}

// collectSource runs fetch-and-store for one source. It never returns an
// error; the outcome carries the failure.
func (s *Service) collectSource(ctx context.Context, t target, date time.Time, opts Options) entity.SourceOutcome {
	src := t.src
	dateStr := calendar.Format(date)
	outcome := entity.SourceOutcome{Source: src.Name, Date: dateStr}

	if t.skip != "" {
		outcome.Status = entity.OutcomeSkipped
		outcome.Error = t.skip
		return outcome
	}

	ctx, span := tracing.StartSpan(ctx, "collect.source",
		attribute.String("source", src.Name),
		attribute.String("upstream", src.Upstream),
		attribute.String("date", dateStr),
	)
	logger := logging.WithRun(ctx, logging.FromContext(ctx)).With(
		slog.String("source", src.Name),
		slog.String("date", dateStr))
	start := s.config.Now()

	pages, attempts, err := s.fetchSource(ctx, t, date)
	outcome.Attempts = attempts
	if err == nil && !opts.DryRun {
		err = s.storePages(ctx, src, dateStr, pages)
	}

	for _, p := range pages {
		outcome.Records += p.Records
	}
	outcome.Pages = len(pages)
	outcome.DurationMs = s.config.Now().Sub(start).Milliseconds()

	if err != nil {
		outcome.Status = entity.OutcomeFailed
		outcome.Error = err.Error()
		outcome.Category = failure.Classify(err).String()
		metrics.RecordFailureCategory(outcome.Category)

		var dl *retry.DeadLetterError
		if errors.As(err, &dl) {
			outcome.DeadLettered = true
			s.pushDeadLetter(ctx, src, dateStr, dl)
		}
		logger.Warn("source collection failed",
			slog.String("category", outcome.Category),
			slog.Int("attempts", outcome.Attempts),
			slog.Bool("circuit_open", circuitbreaker.IsOpenError(err)),
			slog.Any("error", err))
	} else {
		outcome.Status = entity.OutcomeSuccess
		logger.Info("source collection completed",
			slog.Int("records", outcome.Records),
			slog.Int("pages", outcome.Pages),
			slog.Int("attempts", outcome.Attempts))
	}

	metrics.RecordSourceCollection(src.Name, err == nil, outcome.Records, time.Duration(outcome.DurationMs)*time.Millisecond)
	span.SetAttributes(attribute.String("status", string(outcome.Status)), attribute.Int("records", outcome.Records))
	tracing.EndSpan(span, err)

	if !opts.DryRun {
		s.saveLog(ctx, outcome)
	}
	return outcome
}

// fetchSource pages through one day of a source inside the executor. Each
// attempt restarts from the first page with the attempt's page size.
func (s *Service) fetchSource(ctx context.Context, t target, date time.Time) ([]Page, int, error) {
	fetcher := s.fetcherFor(t.src.Name)
	if fetcher == nil {
		return nil, 0, fmt.Errorf("no fetcher for source %s", t.src.Name)
	}

	op := recovery.FetchOperation{
		SourceID: t.src.Name,
		Upstream: t.src.Upstream,
		Date:     date,
		PageSize: t.src.PageSize,
		MaxPages: t.src.MaxPages,
		Timeout:  s.config.RequestTimeout,
	}
	dateStr := calendar.Format(date)

	var pages []Page
	res, err := s.Executor.Execute(ctx, retry.Request{Upstream: t.src.Upstream, Operation: op},
		func(ctx context.Context, op recovery.Operation) error {
			fo := op.(recovery.FetchOperation)
			got := make([]Page, 0, fo.MaxPages)
			for page := 1; page <= fo.MaxPages; page++ {
				p, err := fetcher.Fetch(ctx, FetchRequest{
					Source:   t.src,
					APIKey:   t.apiKey,
					Date:     dateStr,
					Page:     page,
					PageSize: fo.PageSize,
				})
				if err != nil {
					return fmt.Errorf("fetch page %d: %w", page, err)
				}
				got = append(got, p)
				if p.Records < fo.PageSize {
					break
				}
			}
			pages = got
			return nil
		})
	return pages, res.Attempts, err
}

// storePages persists raw pages as a database operation. A retry resumes
// after the last stored page.
func (s *Service) storePages(ctx context.Context, src entity.Source, date string, pages []Page) error {
	if s.Payloads == nil || len(pages) == 0 {
		return nil
	}

	stored := 0
	op := recovery.StoreOperation{Table: payloadTable, BatchSize: len(pages)}
	_, err := s.Executor.Execute(ctx, retry.Request{Operation: op},
		func(ctx context.Context, _ recovery.Operation) error {
			for stored < len(pages) {
				p := pages[stored]
				err := s.Payloads.SavePayload(ctx, entity.RawPayload{
					Source:    src.Name,
					Date:      date,
					Page:      stored + 1,
					Records:   p.Records,
					Body:      p.Body,
					FetchedAt: s.config.Now(),
				})
				if err != nil {
					return err
				}
				stored++
			}
			return nil
		})
	if err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	return nil
}

// saveLog writes the collection log entry. Failures are logged and ignored.
func (s *Service) saveLog(ctx context.Context, o entity.SourceOutcome) {
	if s.Logs == nil {
		return
	}
	if err := s.Logs.SaveCollectionLog(context.WithoutCancel(ctx), entity.CollectionLogFrom(o)); err != nil {
		logging.FromContext(ctx).Warn("failed to save collection log",
			slog.String("source", o.Source),
			slog.String("date", o.Date),
			slog.Any("error", err))
	}
}

func (s *Service) pushDeadLetter(ctx context.Context, src entity.Source, date string, dl *retry.DeadLetterError) {
	metrics.RecordDeadLetter(src.Name)
	if s.DeadLetters == nil {
		return
	}
	entry := entity.DeadLetter{
		ID:        uuid.NewString(),
		RunID:     logging.RunIDFromContext(ctx),
		Source:    src.Name,
		Upstream:  src.Upstream,
		Date:      date,
		Operation: dl.Key.String(),
		Reason:    dl.Reason,
		Attempts:  dl.Attempts,
		LastError: errorString(dl.Err),
		CreatedAt: s.config.Now(),
	}
	if err := s.DeadLetters.Push(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Error("failed to push dead letter",
			slog.String("source", src.Name),
			slog.String("date", date),
			slog.Any("error", err))
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
