package commands

import (
	"log/slog"
	"os"
	"time"

	"repeatbot/lib/util/serviceutil"

	crerr "github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	daemonSchedule *string
	daemonNow      *bool
	daemonNoNotify *bool
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start a fresh run on a schedule until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		if *daemonSchedule != "" {
			cfg.Schedule.Spec = *daemonSchedule
		}

		schedule, err := cron.ParseStandard(cfg.Schedule.Spec)
		if err != nil {
			serviceutil.Fatal("invalid schedule", crerr.WithHint(err,
				"use 5 field cron syntax or a descriptor such as @daily or @every 6h",
			))
		}

		runs := newScheduler(cfg.Schedule.Location(), slog.Default())
		id := runs.Schedule(schedule, cron.FuncJob(func() {
			err := runOnce(ctx, cfg, runOptions{out: os.Stdout, notify: !*daemonNoNotify})
			if err != nil {
				slog.Error("scheduled run failed", "err", err, "hints", serviceutil.Hints(err))
			}
			if ctx.Err() == nil {
				slog.Info("waiting for the next run", "at", schedule.Next(time.Now().In(cfg.Schedule.Location())))
			}
		}))
		runs.Start()
		slog.Info("daemon started", "schedule", cfg.Schedule.Spec, "next", schedule.Next(time.Now().In(cfg.Schedule.Location())))

		if *daemonNow {
			go runs.Entry(id).WrappedJob.Run()
		}

		<-ctx.Done()
		slog.Info("stopping, waiting for the current run to finish")
		<-runs.Stop().Done()
	},
}

// newScheduler creates a scheduler whose jobs never overlap. A tick that
// arrives while the previous run is going is dropped.
func newScheduler(loc *time.Location, logger *slog.Logger) *cron.Cron {
	l := cronLogger{logger: logger}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
}

// cronLogger adapts slog to the logger interface cron expects.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if msg == "skip" {
		l.logger.Warn("skipping scheduled run, the previous run is still going")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}

func init() {
	daemonSchedule = daemonCmd.Flags().String("schedule", "", "Cron schedule, overrides schedule.spec (e.g. \"0 */6 * * *\" or \"@every 6h\").")
	daemonNow = daemonCmd.Flags().Bool("now", false, "Also start a run immediately.")
	daemonNoNotify = daemonCmd.Flags().Bool("no-notify", false, "Do not email summaries even when smtp is configured.")
	rootCmd.AddCommand(daemonCmd)
}
