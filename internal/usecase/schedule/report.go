package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/slo"
)

const reportWindowDays = 7

var errNoRunLog = errors.New("run log store not configured")

// WeeklyReport aggregates the collection runs of the last seven days and
// refreshes the SLO gauges. Weekly report runs themselves are not counted.
func (s *Scheduler) WeeklyReport(ctx context.Context) (*entity.WeeklyReport, error) {
	if s.runs == nil {
		return nil, errNoRunLog
	}
	now := s.cfg.Now().In(s.cfg.Location)
	since := now.AddDate(0, 0, -reportWindowDays)

	runs, err := s.runs.RecentRuns(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load recent runs: %w", err)
	}

	report := &entity.WeeklyReport{
		StartDate:   since.Format(time.DateOnly),
		EndDate:     now.Format(time.DateOnly),
		PerSource:   map[string]entity.SourceTally{},
		GeneratedAt: now,
	}
	for _, r := range runs {
		if r.JobKind == entity.JobKindWeeklyReport || !r.Finalized() {
			continue
		}
		report.TotalJobs++
		switch r.Status {
		case entity.RunStatusSuccess:
			report.SuccessJobs++
		case entity.RunStatusPartial:
			report.PartialJobs++
		case entity.RunStatusFailed:
			report.FailedJobs++
		}
		for _, o := range r.Outcomes {
			tally := report.PerSource[o.Source]
			switch o.Status {
			case entity.OutcomeSuccess:
				tally.Success++
			case entity.OutcomeFailed:
				tally.Failed++
			default:
				continue
			}
			report.PerSource[o.Source] = tally
		}
	}

	slo.UpdateCollectionSuccess(slo.Ratio(report.SuccessJobs, report.TotalJobs))
	slo.UpdateWeeklyFailedJobs(report.FailedJobs)
	for source, tally := range report.PerSource {
		slo.UpdateSourceSuccess(source, slo.Ratio(tally.Success, tally.Success+tally.Failed))
	}
	return report, nil
}

func (s *Scheduler) runWeeklyReport(ctx context.Context, record *entity.RunRecord) error {
	report, err := s.WeeklyReport(ctx)
	if err != nil {
		return err
	}
	record.Result = report
	record.Parameters = map[string]any{
		"start_date": report.StartDate,
		"end_date":   report.EndDate,
	}

	s.logger.Info("weekly collection report",
		slog.String("start_date", report.StartDate),
		slog.String("end_date", report.EndDate),
		slog.Int("total_jobs", report.TotalJobs),
		slog.Int("success_jobs", report.SuccessJobs),
		slog.Int("partial_jobs", report.PartialJobs),
		slog.Int("failed_jobs", report.FailedJobs))
	if report.TotalJobs > 0 && slo.Ratio(report.SuccessJobs, report.TotalJobs) < slo.CollectionSuccessSLO {
		s.logger.Warn("weekly collection success below target",
			slog.Float64("ratio", slo.Ratio(report.SuccessJobs, report.TotalJobs)),
			slog.Float64("target", slo.CollectionSuccessSLO))
	}
	return nil
}
