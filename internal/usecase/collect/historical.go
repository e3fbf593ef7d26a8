package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"batch-collector/internal/domain/calendar"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/observability/logging"
	"batch-collector/internal/observability/tracing"
)

// CollectHistoricalData backfills every business day in [start, end], one day
// at a time, pausing InterDayDelay between days. A day counts as failed when
// any of its sources failed. Cancellation stops the loop between days or
// during the pause and returns the partial summary with Canceled set.
func (s *Service) CollectHistoricalData(ctx context.Context, start, end time.Time, opts Options) (*entity.HistoricalSummary, error) {
	days, err := calendar.BusinessDays(start, end)
	if err != nil {
		return nil, err
	}
	// Surface setup errors before the first day
	if _, err := s.resolve(opts); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "collect.historical",
		attribute.String("start_date", calendar.Format(start)),
		attribute.String("end_date", calendar.Format(end)),
		attribute.Int("business_days", len(days)),
	)
	logger := logging.WithRun(ctx, logging.FromContext(ctx))
	began := s.config.Now()

	summary := &entity.HistoricalSummary{
		StartDate: calendar.Format(start),
		EndDate:   calendar.Format(end),
		Days:      make([]entity.DailySummary, 0, len(days)),
	}

	logger.Info("historical collection started",
		slog.String("start_date", summary.StartDate),
		slog.String("end_date", summary.EndDate),
		slog.Int("business_days", len(days)))

	for i, day := range days {
		if ctx.Err() != nil {
			summary.Canceled = true
			break
		}

		summary.TotalDays++
		daily, err := s.CollectDailyData(ctx, day, opts)
		if err != nil {
			summary.FailedDays++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", calendar.Format(day), err))
			logger.Error("historical day failed",
				slog.String("date", calendar.Format(day)),
				slog.Any("error", err))
		} else {
			summary.Days = append(summary.Days, *daily)
			if daily.Failed() {
				summary.FailedDays++
			} else {
				summary.SuccessDays++
			}
		}

		if i < len(days)-1 {
			if err := s.config.Sleep(ctx, s.config.InterDayDelay); err != nil {
				summary.Canceled = true
				break
			}
		}
	}

	summary.ProcessingTimeMs = s.config.Now().Sub(began).Milliseconds()
	logger.Info("historical collection completed",
		slog.Int("total_days", summary.TotalDays),
		slog.Int("success_days", summary.SuccessDays),
		slog.Int("failed_days", summary.FailedDays),
		slog.Bool("canceled", summary.Canceled))

	span.SetAttributes(
		attribute.Int("success_days", summary.SuccessDays),
		attribute.Int("failed_days", summary.FailedDays),
	)
	tracing.EndSpan(span, ctx.Err())
	return summary, nil
}
