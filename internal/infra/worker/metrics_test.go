package worker

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/usecase/schedule"
)

var _ schedule.Recorder = (*WorkerMetrics)(nil)

func TestNewWorkerMetrics(t *testing.T) {
	metrics := NewWorkerMetrics(prometheus.NewRegistry())

	if metrics.ConfigMetrics == nil {
		t.Error("ConfigMetrics is nil")
	}
	if metrics.JobRunsTotal == nil || metrics.JobDurationSeconds == nil {
		t.Error("job run metrics are nil")
	}
	if metrics.JobSkippedTotal == nil || metrics.JobLastSuccessTimestamp == nil {
		t.Error("job skip or success metrics are nil")
	}
}

func TestNewWorkerMetrics_SeparateRegistries(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("registering on separate registries panicked: %v", r)
		}
	}()
	NewWorkerMetrics(prometheus.NewRegistry())
	NewWorkerMetrics(prometheus.NewRegistry())
}

func TestWorkerMetrics_RecordJobRun(t *testing.T) {
	metrics := NewWorkerMetrics(prometheus.NewRegistry())

	metrics.RecordJobRun("morning", entity.RunStatusSuccess, 2*time.Second)
	metrics.RecordJobRun("morning", entity.RunStatusSuccess, 3*time.Second)
	metrics.RecordJobRun("morning", entity.RunStatusFailed, time.Second)

	if got := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("morning", "SUCCESS")); got != 2 {
		t.Errorf("Expected success count 2, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("morning", "FAILED")); got != 1 {
		t.Errorf("Expected failure count 1, got %f", got)
	}
	if got := testutil.CollectAndCount(metrics.JobDurationSeconds); got != 1 {
		t.Errorf("Expected one duration series, got %d", got)
	}
}

func TestWorkerMetrics_LastSuccess(t *testing.T) {
	tests := []struct {
		status entity.RunStatus
		want   bool
	}{
		{entity.RunStatusSuccess, true},
		{entity.RunStatusPartial, true},
		{entity.RunStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			metrics := NewWorkerMetrics(prometheus.NewRegistry())
			before := float64(time.Now().Unix())

			metrics.RecordJobRun("evening", tt.status, time.Second)

			got := testutil.ToFloat64(metrics.JobLastSuccessTimestamp.WithLabelValues("evening"))
			if tt.want && got < before {
				t.Errorf("expected timestamp >= %v, got %v", before, got)
			}
			if !tt.want && got != 0 {
				t.Errorf("expected no timestamp, got %v", got)
			}
		})
	}
}

func TestWorkerMetrics_RecordJobSkipped(t *testing.T) {
	metrics := NewWorkerMetrics(prometheus.NewRegistry())

	metrics.RecordJobSkipped("afternoon")
	metrics.RecordJobSkipped("afternoon")

	if got := testutil.ToFloat64(metrics.JobSkippedTotal.WithLabelValues("afternoon")); got != 2 {
		t.Errorf("Expected 2 skips, got %f", got)
	}
}

func TestWorkerMetrics_ConcurrentAccess(t *testing.T) {
	metrics := NewWorkerMetrics(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.RecordJobRun("weekly-report", entity.RunStatusSuccess, time.Millisecond)
			metrics.RecordJobSkipped("weekly-report")
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("weekly-report", "SUCCESS")); got != 50 {
		t.Errorf("Expected 50 runs, got %f", got)
	}
}
