package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"batch-collector/internal/app"
	"batch-collector/internal/config"
	"batch-collector/internal/infra/db"
	"batch-collector/internal/infra/fetcher"
	"batch-collector/internal/infra/trigger"
	workerPkg "batch-collector/internal/infra/worker"
	"batch-collector/internal/observability/logging"
	"batch-collector/internal/observability/tracing"
	"batch-collector/internal/usecase/collect"
	"batch-collector/internal/usecase/schedule"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init("batch-collector-worker")
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to stop tracer provider", slog.Any("error", err))
		}
	}()

	// Load worker configuration (fail-open strategy)
	workerMetrics := workerPkg.NewWorkerMetrics(nil)
	workerConfig := workerPkg.LoadConfigFromEnv(logger, workerMetrics)
	logger.Info("worker configuration loaded",
		slog.String("timezone", workerConfig.Timezone),
		slog.String("collector_config", workerConfig.CollectorConfigPath),
		slog.Duration("request_timeout", workerConfig.RequestTimeout),
		slog.Int("source_parallelism", workerConfig.SourceParallelism),
		slog.Duration("job_timeout", workerConfig.JobTimeout),
		slog.Int("health_port", workerConfig.HealthPort),
		slog.Int("metrics_port", workerConfig.MetricsPort))

	collectorConfig, err := config.Load(workerConfig.CollectorConfigPath)
	if err != nil {
		return err
	}
	fetchConfig, err := fetcher.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	loc := workerConfig.Location()
	a, err := app.New(ctx, app.Options{
		Collector:   collectorConfig,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Pool:        db.PoolConfigFromEnv(),
		Fetch:       fetchConfig,
		Collect: collect.Config{
			Parallelism:    workerConfig.SourceParallelism,
			RequestTimeout: workerConfig.RequestTimeout,
			InterDayDelay:  workerConfig.InterDayDelay,
		},
		Sched: schedule.Config{
			Location:       loc,
			DefaultTimeout: workerConfig.JobTimeout,
		},
		Driver:   trigger.NewCronDriver(loc, logger),
		Recorder: workerMetrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close resources", slog.Any("error", err))
		}
	}()

	for _, issue := range a.Collector.ValidateEnvironment() {
		logger.Warn("source credential missing, its runs will fail",
			slog.String("source", issue.Source),
			slog.String("detail", issue.Message))
	}

	if a.DB != nil {
		go db.ReportStats(ctx, a.DB, 15*time.Second)
	}

	startMetricsServer(ctx, logger, workerConfig.MetricsPort)

	healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
	healthServer := workerPkg.NewHealthServer(healthAddr, logger,
		workerPkg.WithUpstreams(a.Breakers, a.Rates),
		workerPkg.WithJobStatus(a.Scheduler.Status))
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	if err := a.Scheduler.Initialize(); err != nil {
		return err
	}
	healthServer.SetReady(true)
	logger.Info("worker started",
		slog.Int("jobs", len(a.Scheduler.Jobs())),
		slog.String("timezone", loc.String()))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), workerConfig.ShutdownTimeout)
	defer cancel()
	return a.Scheduler.Shutdown(shutdownCtx)
}
