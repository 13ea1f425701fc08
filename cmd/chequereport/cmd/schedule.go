package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cheque-report-service/cmd/chequereport/config"
	"cheque-report-service/internal/scheduler"
	"cheque-report-service/pkg/logger"
)

var runNow bool

var scheduleFlags = map[string]string{
	"cron":     "schedule.cron",
	"timezone": "schedule.timezone",
}

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the report on a cron schedule",
	Long: `Schedule keeps running and builds the report every time the cron
expression fires. Each run reports on the month of its own run date, so
--as-of is ignored. A failed run is logged and the next run goes ahead.

Examples:
  # 06:00 Kuala Lumpur time on the first of every month, one file per month
  chequereport schedule --cron "0 6 1 * *" --timezone Asia/Kuala_Lumpur --output-file reports/

  # Run once at start-up as well
  chequereport schedule --run-now --source sql --db-dsn ledgers.db`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindReportFlags(cmd, args); err != nil {
			return err
		}
		return bindFlags(cmd.Flags(), scheduleFlags)
	},
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	addReportFlags(scheduleCmd.Flags())
	scheduleCmd.Flags().String("cron", scheduler.DefaultSpec, "cron expression (minute hour day month weekday) or descriptor")
	scheduleCmd.Flags().String("timezone", scheduler.DefaultTimeZone, "IANA time zone the schedule runs in")
	scheduleCmd.Flags().BoolVar(&runNow, "run-now", false, "run once immediately before waiting for the schedule")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	log := logger.GetGlobalLogger().WithComponent("cli")
	if settings.Report.AsOf != "" {
		log.WithField("as_of", settings.Report.AsOf).Warn("Ignoring --as-of for scheduled runs")
		settings.Report.AsOf = ""
	}

	sched, err := newReportScheduler(settings, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runNow {
		// Failure is already logged; the schedule still starts
		_ = sched.RunNow(ctx)
	}

	return sched.Run(ctx)
}

// newReportScheduler builds a scheduler whose runs report on the month of
// each activation in the schedule's time zone, whatever the host zone is
func newReportScheduler(settings *config.Settings, out io.Writer, opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	return scheduler.New(settings.Schedule, func(ctx context.Context, runAt time.Time) error {
		_, err := executeReport(ctx, settings, out, runAt)
		return err
	}, opts...)
}
