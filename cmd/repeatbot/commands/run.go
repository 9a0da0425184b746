package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"repeatbot/lib/util/serviceutil"
	"repeatbot/services/tourney"

	crerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	runVisible     *bool
	runForceUnlock *bool
	runMax         *int
	runStrategy    *string
	runDebugDir    *string
	runNoNotify    *bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join every eligible tournament in the configured listings, then claim prizes.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		if cmd.Flags().Changed("visible") && !tourney.Unattended() {
			cfg.Browser.Visible = *runVisible
		}
		if *runForceUnlock {
			cfg.Browser.ForceUnlock = true
		}
		if cmd.Flags().Changed("max") {
			cfg.Join.MaxCandidates = *runMax
		}
		if *runStrategy != "" {
			cfg.Claim.Strategy = tourney.Strategy(*runStrategy)
			if err := cfg.Validate(); err != nil {
				serviceutil.Fatal("invalid --strategy", err)
			}
		}
		if *runDebugDir != "" {
			cfg.Join.DebugDir = *runDebugDir
		}

		err := runOnce(ctx, cfg, runOptions{
			out:    os.Stdout,
			notify: !*runNoNotify,
			linger: cfg.Browser.Visible,
		})
		if err != nil {
			serviceutil.Fatal("run failed", err)
		}
	},
}

type runOptions struct {
	out    io.Writer
	notify bool
	// keep a visible browser open for browser.linger_ms afterwards
	linger bool
}

// runOnce performs one complete run with its own browser. Only setup
// problems are returned, everything after the browser starts ends up in the
// summary.
func runOnce(ctx context.Context, cfg tourney.Config, opts runOptions) error {
	creds, err := tourney.ResolveCredentials(ctx, cfg.Auth, cfg.Browser.ProfileDir, tourney.Unattended())
	if err != nil {
		return crerr.Wrap(err, "no usable credentials")
	}
	preflight := tourney.Preflight(ctx, cfg, creds)

	chrome, err := startBrowser(ctx, cfg, creds)
	if err != nil {
		return err
	}
	defer func() {
		if err := chrome.Close(); err != nil {
			slog.Warn("failed to close browser", "err", err)
		}
	}()

	summary := tourney.Runner{
		Config:      cfg,
		Browser:     chrome,
		Credentials: creds,
		Preflight:   preflight,
	}.Run(ctx)
	tourney.RenderSummary(opts.out, summary)

	if opts.notify {
		if err := (tourney.Notifier{Smtp: cfg.Notify.Smtp}).Send(ctx, summary); err != nil {
			slog.Warn("failed to send summary email", "err", crerr.Wrap(err, "notify"))
		}
	}

	if opts.linger && cfg.Browser.LingerMs.Duration() > 0 && ctx.Err() == nil {
		slog.Info("keeping the browser open", "for", cfg.Browser.LingerMs.Duration())
		select {
		case <-time.After(cfg.Browser.LingerMs.Duration()):
		case <-ctx.Done():
		}
	}
	return nil
}

func init() {
	runVisible = runCmd.Flags().Bool("visible", false, "Show the browser window (ignored when running unattended).")
	runForceUnlock = runCmd.Flags().Bool("force-unlock", false, "Kill browsers holding the automation profile and remove its lock files.")
	runMax = runCmd.Flags().Int("max", 0, "Process at most this many candidates across all listings (0 for no limit).")
	runStrategy = runCmd.Flags().String("strategy", "", "Prize claim strategy: bulk, itemized or none.")
	runDebugDir = runCmd.Flags().String("debug-dir", "", "Save page markup and screenshots of failed joins here.")
	runNoNotify = runCmd.Flags().Bool("no-notify", false, "Do not email the summary even when smtp is configured.")
	rootCmd.AddCommand(runCmd)
}
