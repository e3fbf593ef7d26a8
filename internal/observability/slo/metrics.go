package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SLO targets for the batch collector.
const (
	// CollectionSuccessSLO is the target ratio of successful job runs over the weekly window
	CollectionSuccessSLO = 0.95

	// SourceSuccessSLO is the target ratio of successful per-source collections
	SourceSuccessSLO = 0.99

	// MaxDeadLettersPerWeek is the tolerated number of dead-lettered operations per week
	MaxDeadLettersPerWeek = 10
)

// SLO tracking metrics.
// These gauges are updated by the weekly report job from the persisted run history.
var (
	// SLOCollectionSuccess tracks the weekly ratio of successful job runs (0-1)
	// calculated as: success_jobs / total_jobs
	SLOCollectionSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_collection_success_ratio",
			Help: "Weekly ratio of successful job runs (0-1), target: 0.95",
		},
	)

	// SLOSourceSuccess tracks the weekly per-source success ratio (0-1)
	SLOSourceSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_source_success_ratio",
			Help: "Weekly ratio of successful collections per source (0-1), target: 0.99",
		},
		[]string{"source"},
	)

	// SLOWeeklyFailedJobs tracks the number of failed job runs in the weekly window
	SLOWeeklyFailedJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "slo_weekly_failed_jobs",
			Help: "Number of failed job runs in the last 7 days",
		},
	)
)

// UpdateCollectionSuccess updates the weekly job success ratio.
//
// Example calculation:
//
//	ratio := float64(report.SuccessJobs) / float64(report.TotalJobs)
//	slo.UpdateCollectionSuccess(ratio)
func UpdateCollectionSuccess(ratio float64) {
	SLOCollectionSuccess.Set(ratio)
}

// UpdateSourceSuccess updates the weekly success ratio of one source.
func UpdateSourceSuccess(source string, ratio float64) {
	SLOSourceSuccess.WithLabelValues(source).Set(ratio)
}

// UpdateWeeklyFailedJobs updates the failed job count of the weekly window.
func UpdateWeeklyFailedJobs(n int) {
	SLOWeeklyFailedJobs.Set(float64(n))
}

// Ratio returns part/total, or 1 when total is zero (nothing ran, nothing failed).
func Ratio(part, total int) float64 {
	if total <= 0 {
		return 1
	}
	return float64(part) / float64(total)
}
