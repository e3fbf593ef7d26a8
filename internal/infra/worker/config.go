package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"batch-collector/internal/pkg/config"
)

// WorkerConfig holds the process-level settings of the collector worker.
// Source and job declarations live in the collector YAML file named by
// CollectorConfigPath; everything here comes from the environment.
//
// Environment variables:
//   - WORKER_TIMEZONE: IANA zone for schedules and date expressions (default "Asia/Seoul")
//   - COLLECTOR_CONFIG: path to the collector YAML (default: built-in sources and jobs)
//   - REQUEST_TIMEOUT: per-attempt fetch deadline, 1s-5m (default 30s)
//   - INTER_DAY_DELAY: pause between historical days, 0-1m (default 500ms)
//   - SOURCE_PARALLELISM: sources collected at once, 1-16 (default 4)
//   - JOB_TIMEOUT: deadline for jobs without their own, 1m-12h (default 30m)
//   - WORKER_HEALTH_PORT: health server port, 1024-65535 (default 9091)
//   - METRICS_PORT: Prometheus port, 1024-65535 (default 9090)
//   - SHUTDOWN_TIMEOUT: grace period for running jobs, 1s-10m (default 30s)
type WorkerConfig struct {
	Timezone            string
	CollectorConfigPath string
	RequestTimeout      time.Duration
	InterDayDelay       time.Duration
	SourceParallelism   int
	JobTimeout          time.Duration
	HealthPort          int
	MetricsPort         int
	ShutdownTimeout     time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		Timezone:          "Asia/Seoul",
		RequestTimeout:    30 * time.Second,
		InterDayDelay:     500 * time.Millisecond,
		SourceParallelism: 4,
		JobTimeout:        30 * time.Minute,
		HealthPort:        9091,
		MetricsPort:       9090,
		ShutdownTimeout:   30 * time.Second,
	}
}

var (
	requestTimeoutRange  = config.DurationRange(time.Second, 5*time.Minute)
	interDayDelayRange   = config.DurationRange(0, time.Minute)
	parallelismRange     = config.IntRange(1, 16)
	jobTimeoutRange      = config.DurationRange(time.Minute, 12*time.Hour)
	portRange            = config.IntRange(1024, 65535)
	shutdownTimeoutRange = config.DurationRange(time.Second, 10*time.Minute)
)

// Validate checks every field and joins the failures.
func (c *WorkerConfig) Validate() error {
	var errs []error
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := requestTimeoutRange(c.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("request timeout: %w", err))
	}
	if err := interDayDelayRange(c.InterDayDelay); err != nil {
		errs = append(errs, fmt.Errorf("inter-day delay: %w", err))
	}
	if err := parallelismRange(c.SourceParallelism); err != nil {
		errs = append(errs, fmt.Errorf("source parallelism: %w", err))
	}
	if err := jobTimeoutRange(c.JobTimeout); err != nil {
		errs = append(errs, fmt.Errorf("job timeout: %w", err))
	}
	if err := portRange(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := portRange(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if c.HealthPort == c.MetricsPort {
		errs = append(errs, fmt.Errorf("health and metrics ports must differ, both are %d", c.HealthPort))
	}
	if err := shutdownTimeoutRange(c.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown timeout: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// Location loads Timezone, falling back to UTC.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv overlays the environment on DefaultConfig. Invalid values
// fall back to their default with a warning and a metric; the function never
// fails. metrics may be nil.
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) *WorkerConfig {
	cfg := DefaultConfig()

	var cm *config.ConfigMetrics
	if metrics != nil {
		cm = metrics.ConfigMetrics
	}

	cfg.Timezone = config.Apply(cm, logger, "timezone",
		config.LoadString("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone))
	cfg.CollectorConfigPath = config.Apply(cm, logger, "collector_config",
		config.LoadString("COLLECTOR_CONFIG", cfg.CollectorConfigPath, nil))
	cfg.RequestTimeout = config.Apply(cm, logger, "request_timeout",
		config.LoadDuration("REQUEST_TIMEOUT", cfg.RequestTimeout, requestTimeoutRange))
	cfg.InterDayDelay = config.Apply(cm, logger, "inter_day_delay",
		config.LoadDuration("INTER_DAY_DELAY", cfg.InterDayDelay, interDayDelayRange))
	cfg.SourceParallelism = config.Apply(cm, logger, "source_parallelism",
		config.LoadInt("SOURCE_PARALLELISM", cfg.SourceParallelism, parallelismRange))
	cfg.JobTimeout = config.Apply(cm, logger, "job_timeout",
		config.LoadDuration("JOB_TIMEOUT", cfg.JobTimeout, jobTimeoutRange))
	cfg.HealthPort = config.Apply(cm, logger, "health_port",
		config.LoadInt("WORKER_HEALTH_PORT", cfg.HealthPort, portRange))
	cfg.MetricsPort = config.Apply(cm, logger, "metrics_port",
		config.LoadInt("METRICS_PORT", cfg.MetricsPort, portRange))
	cfg.ShutdownTimeout = config.Apply(cm, logger, "shutdown_timeout",
		config.LoadDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout, shutdownTimeoutRange))

	if cfg.HealthPort == cfg.MetricsPort {
		def := DefaultConfig()
		logger.Warn("configuration fallback applied",
			slog.String("field", "ports"),
			slog.String("warning", fmt.Sprintf("health and metrics ports both %d, using defaults", cfg.HealthPort)))
		cfg.HealthPort, cfg.MetricsPort = def.HealthPort, def.MetricsPort
		if cm != nil {
			cm.RecordFallback("ports")
		}
	}

	if cm != nil {
		cm.RecordLoadTimestamp()
	}
	return &cfg
}
