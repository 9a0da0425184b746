package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"repeatbot/lib/browser"
	"repeatbot/lib/configutil"
	"repeatbot/lib/osutil"
	"repeatbot/lib/telemetry"
	"repeatbot/lib/util/serviceutil"
	"repeatbot/services/tourney"

	crerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var debug *bool
var configPath *string

var rootCmd = &cobra.Command{
	Use:   "repeatbot",
	Short: "repeatbot joins free repeat.gg tournaments and claims the prizes.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose := *debug
		configutil.EnvBool("REPEATBOT_DEBUG", &verbose)
		telemetry.InitSlog(verbose)
	},
}

func init() {
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level.")
	configPath = rootCmd.PersistentFlags().String("config", "", "Config file to use instead of searching for repeatbot.json5.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() tourney.Config {
	cfg, err := tourney.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to load config", err)
	}
	return cfg
}

// browserOptions builds launch options. Snapshot based sessions use a
// throwaway profile, everything else uses the persistent one.
func browserOptions(cfg tourney.Config, creds tourney.Credentials) browser.Options {
	opts := browser.Options{
		ExecPath:  cfg.Browser.ExecPath,
		Headless:  !cfg.Browser.Visible,
		UserAgent: cfg.Browser.UserAgent,
		RemoteURL: cfg.Browser.RemoteURL,
	}
	if timeout := cfg.Browser.OpTimeoutMs.Duration(); timeout > 0 {
		opts.OpTimeout = timeout
	}
	if !creds.Replays() {
		opts.ProfileDir = creds.ProfileDir
	}
	return opts
}

// launch starts the browser or exits with a hint.
func launch(ctx context.Context, cfg tourney.Config, creds tourney.Credentials) *browser.Chrome {
	chrome, err := startBrowser(ctx, cfg, creds)
	if err != nil {
		serviceutil.Fatal("failed to start browser", err)
	}
	return chrome
}

// startBrowser starts the browser after making sure no other browser holds
// the profile.
func startBrowser(ctx context.Context, cfg tourney.Config, creds tourney.Credentials) (*browser.Chrome, error) {
	opts := browserOptions(cfg, creds)
	if opts.ProfileDir != "" && opts.RemoteURL == "" {
		if err := os.MkdirAll(opts.ProfileDir, 0700); err != nil {
			return nil, crerr.Wrap(err, "create profile directory")
		}
		if cfg.Browser.ForceUnlock {
			killed, err := osutil.ForceUnlock(ctx, opts.ProfileDir)
			if err != nil {
				return nil, crerr.Wrap(err, "unlock profile")
			}
			slog.Warn("unlocked profile", "dir", opts.ProfileDir, "killed", killed)
		} else if lock, err := osutil.CheckProfileLock(ctx, opts.ProfileDir); err != nil {
			return nil, crerr.WithHintf(err,
				"close the browser (pid %d) using %s or rerun with --force-unlock", lock.Pid, opts.ProfileDir,
			)
		}
	}

	chrome, err := browser.Launch(ctx, opts)
	if err != nil {
		return nil, crerr.WithHint(err,
			"install Google Chrome or Chromium, or set CHROME_PATH to the browser binary",
		)
	}
	return chrome, nil
}
