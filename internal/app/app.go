// Package app assembles the collector from configuration: storage, dead
// letter queue, resilience registries, fetcher, orchestrator and scheduler.
// Both the worker and the CLI build through it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"batch-collector/internal/config"
	"batch-collector/internal/infra/adapter/persistence/memory"
	pgRepo "batch-collector/internal/infra/adapter/persistence/postgres"
	"batch-collector/internal/infra/db"
	"batch-collector/internal/infra/deadletter"
	"batch-collector/internal/infra/fetcher"
	"batch-collector/internal/repository"
	"batch-collector/internal/resilience/circuitbreaker"
	"batch-collector/internal/resilience/ratecontrol"
	"batch-collector/internal/resilience/recovery"
	"batch-collector/internal/resilience/retry"
	"batch-collector/internal/usecase/collect"
	"batch-collector/internal/usecase/schedule"
)

// Options selects the backends and tunables.
type Options struct {
	Collector *config.CollectorConfig

	// DatabaseURL selects Postgres; empty keeps logs and payloads in memory
	DatabaseURL string
	Pool        db.PoolConfig

	Fetch   fetcher.Config
	Collect collect.Config
	Sched   schedule.Config

	// Driver and Recorder are handed to the scheduler; both may be nil
	Driver   schedule.TriggerDriver
	Recorder schedule.Recorder

	Logger *slog.Logger
}

// App is an assembled collector.
type App struct {
	Collector   *collect.Service
	Scheduler   *schedule.Scheduler
	Breakers    *circuitbreaker.Registry
	Rates       *ratecontrol.Registry
	Analyzer    *recovery.Analyzer
	DeadLetters repository.DeadLetterRepository
	Runs        repository.RunLogRepository

	// DB is nil when running on the in-memory store
	DB *sql.DB

	logger  *slog.Logger
	closers []func() error
}

// New builds an App. On error every resource opened so far is released.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	if opts.Collector == nil {
		opts.Collector = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &App{logger: opts.Logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logs, payloads, err := a.openStore(ctx, opts)
	if err != nil {
		return nil, err
	}
	if a.DeadLetters, err = a.openDeadLetters(ctx, opts.Collector.DeadLetter); err != nil {
		return nil, err
	}

	a.Rates = ratecontrol.NewRegistry(opts.Logger, opts.Collector.RateOverrides())
	a.Breakers = circuitbreaker.NewRegistry(opts.Collector.CircuitOverrides())
	a.Analyzer = recovery.NewAnalyzer(recovery.WithLogger(opts.Logger))
	executor := retry.NewExecutor(a.Rates, a.Breakers, a.Analyzer, retry.WithLogger(opts.Logger))

	if err := opts.Fetch.Validate(); err != nil {
		return nil, fmt.Errorf("fetcher config: %w", err)
	}
	a.Collector = collect.NewService(
		opts.Collector.EntitySources(),
		fetcher.NewHTTPFetcher(opts.Fetch),
		executor,
		logs,
		payloads,
		a.DeadLetters,
		opts.Collect,
	)

	if opts.Sched.Logger == nil {
		opts.Sched.Logger = opts.Logger
	}
	a.Scheduler, err = schedule.NewScheduler(
		opts.Collector.JobDefinitions(),
		a.Collector,
		a.Runs,
		opts.Driver,
		opts.Recorder,
		opts.Sched,
	)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, opts Options) (repository.CollectionLogRepository, repository.PayloadRepository, error) {
	if opts.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, run logs and payloads are kept in memory")
		store := memory.NewStore()
		a.Runs = store
		return store, store, nil
	}

	database, err := db.Open(ctx, opts.DatabaseURL, opts.Pool)
	if err != nil {
		return nil, nil, err
	}
	a.DB = database
	a.closers = append(a.closers, database.Close)

	if err := db.MigrateUp(database); err != nil {
		return nil, nil, err
	}
	cb := circuitbreaker.NewDBCircuitBreaker(database)
	a.Runs = pgRepo.NewRunLogRepo(cb)
	a.logger.Info("postgres store ready")
	return pgRepo.NewCollectionLogRepo(cb), pgRepo.NewPayloadRepo(cb), nil
}

func (a *App) openDeadLetters(ctx context.Context, cfg deadletter.RedisConfig) (repository.DeadLetterRepository, error) {
	url := cfg.URL
	if url == "" {
		url = os.Getenv("REDIS_URL")
	}
	if url == "" {
		a.logger.Info("dead letters kept in memory")
		return deadletter.NewMemoryQueue(), nil
	}

	password := cfg.Password
	if password == "" {
		password = os.Getenv("REDIS_PASSWORD")
	}
	rdb, err := deadletter.NewRedisClient(ctx, deadletter.RedisConfig{URL: url, Password: password})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.logger.Info("redis dead letter queue ready", slog.String("prefix", cfg.Prefix))
	return deadletter.NewRedisQueue(rdb, cfg.Prefix, cfg.TTL), nil
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
