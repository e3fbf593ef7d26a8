package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the worker and implements
// schedule.Recorder.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total{field}
//   - worker_config_fallbacks_total{field}
//   - worker_config_fallback_active{field}
//
// Job metrics:
//   - worker_job_runs_total{job_id, status}
//   - worker_job_duration_seconds{job_id}
//   - worker_job_skipped_total{job_id}
//   - worker_job_last_success_timestamp{job_id}
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal *prometheus.CounterVec

	// Buckets: 1s, 5s, 30s, 1m, 5m, 15m, 30m, 1h, 3h
	JobDurationSeconds *prometheus.HistogramVec

	JobSkippedTotal *prometheus.CounterVec

	// Set when a run ends SUCCESS or PARTIAL
	JobLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics registers the worker metrics on reg, or on the default
// registerer when reg is nil.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker", reg),

		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of job runs by job and final status",
		}, []string{"job_id", "status"}),

		JobDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600, 10800},
		}, []string{"job_id"}),

		JobSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_skipped_total",
			Help: "Total number of triggers skipped because the job was still running",
		}, []string{"job_id"}),

		JobLastSuccessTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last run that collected at least one source",
		}, []string{"job_id"}),
	}
}

// RecordJobRun records one finished run.
func (m *WorkerMetrics) RecordJobRun(jobID string, status entity.RunStatus, duration time.Duration) {
	m.JobRunsTotal.WithLabelValues(jobID, string(status)).Inc()
	m.JobDurationSeconds.WithLabelValues(jobID).Observe(duration.Seconds())
	if status == entity.RunStatusSuccess || status == entity.RunStatusPartial {
		m.JobLastSuccessTimestamp.WithLabelValues(jobID).SetToCurrentTime()
	}
}

// RecordJobSkipped records a trigger dropped by the overlap policy.
func (m *WorkerMetrics) RecordJobSkipped(jobID string) {
	m.JobSkippedTotal.WithLabelValues(jobID).Inc()
}
