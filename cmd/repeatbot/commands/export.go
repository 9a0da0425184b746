package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"repeatbot/lib/authsnap"
	"repeatbot/lib/browser"
	"repeatbot/lib/scrapers/repeatgg"
	"repeatbot/lib/util/serviceutil"
	"repeatbot/services/tourney"

	"github.com/atotto/clipboard"
	crerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

const (
	authExportFile   = "github_auth_data.txt"
	authDebugFile    = "github_auth_data_debug.json"
	cookieExportFile = "repeat_gg_cookies.txt"

	authSecretName   = "REPEAT_GG_AUTH_DATA"
	cookieSecretName = "REPEAT_GG_COOKIES"
)

var (
	exportOut       *string
	exportClipboard *bool
	exportVault     *bool
	exportProfile   *string
)

// captureSnapshot reads the site's cookies and both web storages from a
// page that is already on the site.
func captureSnapshot(ctx context.Context, page browser.Page) (authsnap.Snapshot, error) {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return authsnap.Snapshot{}, err
	}
	local, err := page.Storage(ctx, browser.LocalStorage)
	if err != nil {
		return authsnap.Snapshot{}, err
	}
	session, err := page.Storage(ctx, browser.SessionStorage)
	if err != nil {
		return authsnap.Snapshot{}, err
	}
	snap := authsnap.Snapshot{
		Cookies:        cookies,
		LocalStorage:   local,
		SessionStorage: session,
	}
	return snap.ScopedTo(repeatgg.Domain), nil
}

func secretFile(secret, encoded string, notes ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# GitHub secret: %s\n", secret)
	fmt.Fprintf(&b, "# Size: %.1f KB\n", float64(len(encoded))/1024)
	b.WriteString("# Repository settings > Secrets and variables > Actions > New repository secret.\n")
	b.WriteString("# Paste the last line of this file as the value.\n")
	for _, n := range notes {
		fmt.Fprintf(&b, "# %s\n", n)
	}
	b.WriteString(encoded)
	b.WriteString("\n")
	return b.String()
}

// writeAuthExport writes the secret file and an indented copy of what it
// contains, returning both paths.
func writeAuthExport(dir string, fit authsnap.FitResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	var notes []string
	for _, d := range fit.Dropped {
		notes = append(notes, fmt.Sprintf("dropped %s %q (%d bytes) to fit the secret size limit", d.Storage, d.Key, d.Size))
	}
	if fit.OverBudget {
		notes = append(notes, fmt.Sprintf("WARNING: still larger than %d bytes, GitHub may reject it", authsnap.DefaultBudget))
	}

	secretPath := filepath.Join(dir, authExportFile)
	if err := os.WriteFile(secretPath, []byte(secretFile(authSecretName, fit.Encoded, notes...)), 0600); err != nil {
		return nil, err
	}

	debug, err := authsnap.Indented(fit.Snapshot)
	if err != nil {
		return nil, err
	}
	debugPath := filepath.Join(dir, authDebugFile)
	if err := os.WriteFile(debugPath, debug, 0600); err != nil {
		return nil, err
	}
	return []string{secretPath, debugPath}, nil
}

func exportDir() string {
	dir, err := filepath.Abs(*exportOut)
	if err != nil {
		serviceutil.Fatal("invalid --out", err)
	}
	return dir
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the logged in session for unattended runs.",
}

var exportAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Export cookies and web storage from the automation profile as " + authSecretName + ".",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		creds := tourney.Credentials{Source: tourney.SourceProfile, ProfileDir: cfg.Browser.ProfileDir}

		chrome := launch(ctx, cfg, creds)
		defer func() {
			if err := chrome.Close(); err != nil {
				slog.Warn("failed to close browser", "err", err)
			}
		}()

		if err := chrome.Navigate(ctx, repeatgg.BaseURL); err != nil {
			serviceutil.Fatal("failed to open repeat.gg", err)
		}
		if _, err := chrome.WaitPresent(ctx, repeatgg.BodySelector, cfg.Join.ListingWaitMs.Duration()); err != nil {
			serviceutil.Fatal("repeat.gg did not load", err)
		}
		if loggedIn, err := checkLogin(ctx, chrome); err == nil && !loggedIn {
			slog.Warn("the profile does not look logged in, the export may not authenticate", "profile", cfg.Browser.ProfileDir)
		}

		snap, err := captureSnapshot(ctx, chrome)
		if err != nil {
			serviceutil.Fatal("failed to read the session", err)
		}
		if snap.Empty() {
			serviceutil.Fatal("nothing to export", crerr.WithHint(
				crerr.New("no repeat.gg cookies or storage in the profile"),
				"run `repeatbot login` first",
			))
		}

		fit, err := authsnap.Fit(snap, authsnap.DefaultBudget, authsnap.DefaultDropThreshold)
		if err != nil {
			serviceutil.Fatal("failed to encode the session", err)
		}
		paths, err := writeAuthExport(exportDir(), fit)
		if err != nil {
			serviceutil.Fatal("failed to write export", err)
		}
		slog.Info("exported session",
			"cookies", len(fit.Snapshot.Cookies),
			"local_storage", len(fit.Snapshot.LocalStorage),
			"session_storage", len(fit.Snapshot.SessionStorage),
			"dropped", len(fit.Dropped),
			"size_kb", fmt.Sprintf("%.1f", float64(len(fit.Encoded))/1024),
			"files", paths,
		)

		if *exportClipboard {
			if err := clipboard.WriteAll(fit.Encoded); err != nil {
				slog.Warn("failed to copy to clipboard", "err", err)
			} else {
				slog.Info("copied " + authSecretName + " to the clipboard")
			}
		}
		if *exportVault {
			vault, err := authsnap.OpenVault(cfg.Auth.VaultDir, cfg.Auth.VaultKey)
			if err != nil {
				serviceutil.Fatal("failed to open vault", crerr.WithHint(err, "set REPEATBOT_VAULT_KEY"))
			}
			if err := vault.Save(ctx, fit.Snapshot); err != nil {
				serviceutil.Fatal("failed to save to vault", err)
			}
			slog.Info("saved session to vault", "dir", cfg.Auth.VaultDir)
		}
	},
}

var exportCookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Export repeat.gg cookies straight from a Chrome profile's cookie database as " + cookieSecretName + ".",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		profile := *exportProfile
		if profile == "" {
			cfg := loadConfig()
			profile = cfg.Auth.ImportProfile
			if profile == "" {
				profile = filepath.Join(cfg.Browser.ProfileDir, "Default")
			}
		}

		dbPath, err := authsnap.CookieDBPath(profile)
		if err != nil {
			serviceutil.Fatal("no cookie database", crerr.WithHint(err,
				"pass --profile with a Chrome profile directory such as ~/.config/google-chrome/Default",
			))
		}
		cookies, err := authsnap.ReadChromeCookies(ctx, dbPath, repeatgg.Domain)
		if err != nil {
			serviceutil.Fatal("failed to read cookies", crerr.WithHint(err, "close Chrome and try again"))
		}
		if len(cookies) == 0 {
			slog.Warn("no repeat.gg cookies found", "db", dbPath)
		}

		encoded, err := authsnap.EncodeCookies(cookies)
		if err != nil {
			serviceutil.Fatal("failed to encode cookies", err)
		}
		dir := exportDir()
		if err := os.MkdirAll(dir, 0700); err != nil {
			serviceutil.Fatal("failed to create output directory", err)
		}
		path := filepath.Join(dir, cookieExportFile)
		if err := os.WriteFile(path, []byte(secretFile(cookieSecretName, encoded)), 0600); err != nil {
			serviceutil.Fatal("failed to write export", err)
		}
		slog.Info("exported cookies", "count", len(cookies), "file", path)

		if *exportClipboard {
			if err := clipboard.WriteAll(encoded); err != nil {
				slog.Warn("failed to copy to clipboard", "err", err)
			}
		}
	},
}

func init() {
	exportOut = exportCmd.PersistentFlags().String("out", ".", "Directory the export files are written to.")
	exportClipboard = exportCmd.PersistentFlags().Bool("clipboard", false, "Also copy the encoded value to the clipboard.")
	exportVault = exportAuthCmd.Flags().Bool("vault", false, "Also store the session in the encrypted vault.")
	exportProfile = exportCookiesCmd.Flags().String("profile", "", "Chrome profile directory to read (defaults to import_profile, then the automation profile).")

	exportCmd.AddCommand(exportAuthCmd)
	exportCmd.AddCommand(exportCookiesCmd)
	rootCmd.AddCommand(exportCmd)
}
