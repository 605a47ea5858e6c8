package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/core/service"
)

// parseDate reads YYYY-MM-DD in loc. Empty means today.
func parseDate(raw string, loc *time.Location, now time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return now.In(loc), nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --date %q, want YYYY-MM-DD", raw))
	}
	return d, nil
}

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fire due orders and retry failed ones once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			var reports []service.SweepReport
			if tenant != "" {
				report, swept, err := app.Services.Sweeper.SweepTenant(ctx, tenant)
				if err != nil {
					return err
				}
				if !swept {
					return NewExitError(ExitFailure, fmt.Sprintf("sweep for %s already running elsewhere", tenant))
				}
				reports = append(reports, report)
			} else if reports, err = app.Services.Sweeper.SweepAll(ctx); err != nil {
				return err
			}

			return emit(cmd.OutOrStdout(), rootOpts.Format, reports, func(w io.Writer) {
				for _, r := range reports {
					fmt.Fprintf(w, "%s: due=%d printed=%d failed=%d skipped=%d recovered=%d retried=%d exhausted=%d\n",
						r.TenantID, r.Due, r.Printed, r.Failed, r.Skipped, r.Recovered, r.Retry.Attempted, r.Retry.Exhausted)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "sweep a single tenant")
	return cmd
}

func NewAlertCommand(rootOpts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Send the daily prep alert to every active tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			day, err := parseDate(date, app.Config.Location(), app.Services.Scheduler.Now())
			if err != nil {
				return err
			}
			report, err := app.Services.Alerts.SendDailyAlerts(ctx, day)
			if err != nil {
				return err
			}
			if err := emit(cmd.OutOrStdout(), rootOpts.Format, report, func(w io.Writer) {
				fmt.Fprintf(w, "%s: sent=%d no_orders=%d duplicate=%d failed=%d\n",
					report.Date, report.Sent, report.NoOrders, report.Duplicate, report.Failed)
			}); err != nil {
				return err
			}
			if report.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d alerts failed", report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to alert for (YYYY-MM-DD, default today)")
	return cmd
}

func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant, order string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Manually re-send a failed order to the POS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			schedule, err := app.Services.Retry.ManualRetry(ctx, tenant, order)
			if err != nil {
				return err
			}
			if err := emit(cmd.OutOrStdout(), rootOpts.Format, schedule, func(w io.Writer) {
				writeSchedule(w, schedule)
			}); err != nil {
				return err
			}
			if schedule.Status != domain.ScheduleStatusPrinted {
				return NewExitError(ExitFailure, "order still not printed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&order, "order", "", "order id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func NewFailedCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List failed orders and whether they need manual intervention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			failed, err := app.Services.Scheduler.FailedSchedules(ctx, tenant)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, failed, func(w io.Writer) {
				if len(failed) == 0 {
					fmt.Fprintln(w, "no failed orders")
				}
				for _, s := range failed {
					writeSchedule(w, s)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func writeSchedule(w io.Writer, s domain.FireSchedule) {
	manual := ""
	if s.Exhausted() {
		manual = " [manual]"
	}
	fmt.Fprintf(w, "%s %s fire=%s retries=%d", s.OrderID, s.Status, s.FireTime.Format(time.RFC3339), s.RetryCount)
	if s.PrintJobID != "" {
		fmt.Fprintf(w, " job=%s", s.PrintJobID)
	}
	if s.LastError != "" {
		fmt.Fprintf(w, " kind=%s error=%q", s.FailureKind, s.LastError)
	}
	fmt.Fprintln(w, manual)
}

func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	var tenant, date string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Show how many orders fire in each 15 minute window of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			loc := app.Config.Location()
			day, err := parseDate(date, loc, app.Services.Scheduler.Now())
			if err != nil {
				return err
			}
			buckets, err := app.Services.Conflicts.GetOrderConflicts(ctx, tenant, day)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, buckets, func(w io.Writer) {
				if len(buckets) == 0 {
					fmt.Fprintf(w, "no scheduled orders on %s\n", day.Format(time.DateOnly))
				}
				for _, b := range buckets {
					fmt.Fprintf(w, "%s-%s %3d orders %s\n", b.Start.In(loc).Format("15:04"), b.End.In(loc).Format("15:04"), b.Count, b.Level)
				}
			})
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&date, "date", "", "day to inspect (YYYY-MM-DD, default today)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := loadApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", app.Store.Dialect())
			return nil
		},
	}
}
