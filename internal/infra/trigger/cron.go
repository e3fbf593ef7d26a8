// Package trigger drives scheduled jobs from cron expressions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"batch-collector/internal/usecase/schedule"
)

// CronDriver implements schedule.TriggerDriver on robfig/cron with standard
// five-field expressions evaluated in a fixed location.
type CronDriver struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewCronDriver creates a driver. Panics inside a fired job are recovered and
// logged so one job cannot take the worker down.
func NewCronDriver(loc *time.Location, logger *slog.Logger) *CronDriver {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &CronDriver{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger: logger,
	}
}

// Schedule registers fire under spec.
func (d *CronDriver) Schedule(spec string, fire func()) (schedule.EntryID, error) {
	id, err := d.cron.AddFunc(spec, fire)
	if err != nil {
		return 0, fmt.Errorf("add cron entry %q: %w", spec, err)
	}
	return schedule.EntryID(id), nil
}

// Remove unregisters an entry. Unknown ids are ignored.
func (d *CronDriver) Remove(id schedule.EntryID) {
	d.cron.Remove(cron.EntryID(id))
}

func (d *CronDriver) Start() {
	d.cron.Start()
}

func (d *CronDriver) Stop() context.Context {
	return d.cron.Stop()
}

// Next returns the next fire time of an entry, or the zero time.
func (d *CronDriver) Next(id schedule.EntryID) time.Time {
	return d.cron.Entry(cron.EntryID(id)).Next
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
