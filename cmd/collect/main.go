// Command collect runs collections on demand and manages the dead letter
// queue. It exits non-zero only when a run cannot be set up; per-source
// failures are reported in the printed summary.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"batch-collector/internal/app"
	"batch-collector/internal/config"
	"batch-collector/internal/infra/db"
	"batch-collector/internal/infra/fetcher"
	workerPkg "batch-collector/internal/infra/worker"
	"batch-collector/internal/observability/logging"
	"batch-collector/internal/usecase/collect"
	"batch-collector/internal/usecase/schedule"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	logger := logging.NewTextLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wc := workerPkg.LoadConfigFromEnv(logger, nil)
	loc := wc.Location()

	c := &cli{
		out:    os.Stdout,
		logger: logger,
		loc:    loc,
		now:    time.Now,
		build: func(ctx context.Context) (*app.App, error) {
			collectorConfig, err := config.Load(wc.CollectorConfigPath)
			if err != nil {
				return nil, err
			}
			fetchConfig, err := fetcher.LoadConfigFromEnv()
			if err != nil {
				return nil, err
			}
			return app.New(ctx, app.Options{
				Collector:   collectorConfig,
				DatabaseURL: os.Getenv("DATABASE_URL"),
				Pool:        db.PoolConfigFromEnv(),
				Fetch:       fetchConfig,
				Collect: collect.Config{
					Parallelism:    wc.SourceParallelism,
					RequestTimeout: wc.RequestTimeout,
					InterDayDelay:  wc.InterDayDelay,
				},
				Sched: schedule.Config{
					Location:       loc,
					DefaultTimeout: wc.JobTimeout,
				},
				Logger: logger,
			})
		},
	}

	if err := newRootCmd(c).ExecuteContext(ctx); err != nil {
		logger.Error("collect failed", slog.Any("error", err))
		os.Exit(1)
	}
}
