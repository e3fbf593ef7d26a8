package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"batch-collector/internal/app"
	"batch-collector/internal/domain/calendar"
	"batch-collector/internal/domain/entity"
	"batch-collector/internal/usecase/collect"
	"batch-collector/internal/usecase/schedule"
)

// cli holds what the commands share. build is called once per command.
type cli struct {
	out    io.Writer
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
	build  func(ctx context.Context) (*app.App, error)
}

type collectFlags struct {
	sources  []string
	maxPages int
	pageSize int
	dryRun   bool
}

func (f *collectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.sources, "sources", nil, "comma-separated source names (default: every enabled source)")
	cmd.Flags().IntVar(&f.maxPages, "max-pages", 0, "pages per source, 1-100 (default: source setting)")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "records per page, 1-100 (default: source setting)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "fetch without storing payloads or logs")
}

func (f *collectFlags) options() collect.Options {
	return collect.Options{
		Sources:  f.sources,
		MaxPages: f.maxPages,
		PageSize: f.pageSize,
		DryRun:   f.dryRun,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "collect",
		Short:         "Run data collections and inspect their results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newDailyCmd(c),
		newHistoricalCmd(c),
		newRunCmd(c),
		newReportCmd(c),
		newCheckEnvCmd(c),
		newDeadLettersCmd(c),
	)
	return root
}

func newDailyCmd(c *cli) *cobra.Command {
	var flags collectFlags
	cmd := &cobra.Command{
		Use:   "daily [date]",
		Short: "Collect one day (YYYY-MM-DD, today, yesterday, last-business, last-week; default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := calendar.ExprToday
			if len(args) == 1 {
				expr = args[0]
			}
			if _, err := calendar.ResolveDate(expr, c.now().In(c.loc)); err != nil {
				return err
			}
			return c.runManual(cmd.Context(), entity.JobKindDaily, schedule.Params{
				Date:    expr,
				Options: flags.options(),
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newHistoricalCmd(c *cli) *cobra.Command {
	var (
		flags    collectFlags
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "historical --from DATE [--to DATE]",
		Short: "Collect every business day of a range, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := c.now().In(c.loc)
			if _, err := calendar.ResolveDate(from, now); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if _, err := calendar.ResolveDate(to, now); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			return c.runManual(cmd.Context(), entity.JobKindHistorical, schedule.Params{
				Start:   from,
				End:     to,
				Options: flags.options(),
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "first date of the range")
	cmd.Flags().StringVar(&to, "to", calendar.ExprYesterday, "last date of the range")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		flags collectFlags
		date  string
	)
	cmd := &cobra.Command{
		Use:   "run JOB_ID",
		Short: "Trigger a configured job now and print its run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				record, err := a.Scheduler.Trigger(cmd.Context(), args[0], entity.TriggerManual, schedule.Params{
					Date:    date,
					Options: flags.options(),
				})
				if record != nil {
					if perr := c.print(record); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&date, "date", "", "date expression overriding the job's date mode")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the weekly report over the last seven days of runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Scheduler.WeeklyReport(cmd.Context())
				if err != nil {
					return err
				}
				return c.print(report)
			})
		},
	}
}

var errMissingCredentials = errors.New("missing credentials")

func newCheckEnvCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check-env",
		Short: "Report enabled sources whose API key is not set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				issues := a.Collector.ValidateEnvironment()
				if issues == nil {
					issues = []collect.EnvironmentIssue{}
				}
				if err := c.print(issues); err != nil {
					return err
				}
				if len(issues) > 0 {
					return fmt.Errorf("%w: %d source(s)", errMissingCredentials, len(issues))
				}
				return nil
			})
		},
	}
}

func newDeadLettersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "Inspect operations given up after exhausting their retries",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				dls, err := a.DeadLetters.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if dls == nil {
					dls = []entity.DeadLetter{}
				}
				return c.print(dls)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum entries to print, 0 for all")

	remove := &cobra.Command{
		Use:   "remove ID...",
		Short: "Remove dead letters after manual handling",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				for _, id := range args {
					if err := a.DeadLetters.Remove(cmd.Context(), id); err != nil {
						return err
					}
					c.logger.Info("dead letter removed", slog.String("id", id))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, remove)
	return cmd
}

// runManual runs an ad-hoc job through the scheduler so the invocation gets a
// persisted run record, then prints it. The record is printed even when the
// run failed to set up.
func (c *cli) runManual(ctx context.Context, kind entity.JobKind, params schedule.Params) error {
	return c.withApp(ctx, func(a *app.App) error {
		record, err := a.Scheduler.RunManual(ctx, kind, params)
		if record != nil {
			if perr := c.print(record); perr != nil {
				return perr
			}
		}
		return err
	})
}

func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	a, err := c.build(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			c.logger.Error("failed to close resources", slog.Any("error", err))
		}
	}()
	return fn(a)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
