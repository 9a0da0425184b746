package tourney

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"repeatbot/lib/authsnap"
	"repeatbot/lib/browser"
	"repeatbot/lib/osutil"
	"repeatbot/lib/scrapers/repeatgg"

	crerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Source string

const (
	SourceAuto     Source = "auto"
	SourceSnapshot Source = "snapshot"
	SourceToken    Source = "token"
	SourceVault    Source = "vault"
	SourceProfile  Source = "profile"
)

var ErrNoCredentials = crerr.New("no credential source available")

// Credentials is the selected way of authenticating the browser: either a
// snapshot to replay onto a fresh context, or a profile directory that
// already carries the session.
type Credentials struct {
	Source     Source
	Snapshot   authsnap.Snapshot
	ProfileDir string
}

// Replays reports whether the snapshot must be applied to the browser.
func (c Credentials) Replays() bool {
	return c.Source != SourceProfile
}

func noCredentials(reason string, hints ...string) error {
	err := crerr.Wrap(ErrNoCredentials, reason)
	for _, h := range hints {
		err = crerr.WithHint(err, h)
	}
	return err
}

func snapshotCredentials(cfg AuthConfig) (Credentials, error) {
	if cfg.Data == "" {
		return Credentials{}, noCredentials("no auth data", "set REPEAT_GG_AUTH_DATA to the output of `repeatbot export auth`")
	}
	snap, err := authsnap.Decode(cfg.Data)
	if err != nil {
		return Credentials{}, crerr.WithHint(
			crerr.Wrap(err, "decode auth data"),
			"REPEAT_GG_AUTH_DATA must be the base64 text written by `repeatbot export auth`",
		)
	}
	return Credentials{Source: SourceSnapshot, Snapshot: snap}, nil
}

func tokenCredentials(cfg AuthConfig) (Credentials, error) {
	if cfg.SessionToken == "" {
		return Credentials{}, noCredentials("no session token", "set REPEAT_GG_SESSION_TOKEN to the PHPSESSID cookie value")
	}
	return Credentials{
		Source:   SourceToken,
		Snapshot: authsnap.SessionToken(repeatgg.Host, repeatgg.SessionCookie, cfg.SessionToken),
	}, nil
}

func vaultCredentials(ctx context.Context, cfg AuthConfig) (Credentials, error) {
	if !authsnap.VaultExists(cfg.VaultDir) {
		return Credentials{}, noCredentials("no vault at "+cfg.VaultDir, "store a snapshot with `repeatbot vault put`")
	}
	if cfg.VaultKey == "" {
		return Credentials{}, noCredentials("vault is locked", "set REPEATBOT_VAULT_KEY to the vault passphrase")
	}
	vault, err := authsnap.OpenVault(cfg.VaultDir, cfg.VaultKey)
	if err != nil {
		return Credentials{}, crerr.WithHint(crerr.Wrap(err, "open vault"), "check REPEATBOT_VAULT_KEY")
	}
	snap, err := vault.Load(ctx)
	if err != nil {
		return Credentials{}, crerr.Wrap(err, "read vault")
	}
	return Credentials{Source: SourceVault, Snapshot: snap}, nil
}

func profileCredentials(cfg AuthConfig, profileDir string) (Credentials, error) {
	if cfg.ImportProfile != "" {
		if err := os.MkdirAll(profileDir, 0700); err != nil {
			return Credentials{}, err
		}
		copied, err := osutil.CopyProfileSession(cfg.ImportProfile, profileDir)
		if err != nil {
			return Credentials{}, crerr.WithHint(
				crerr.Wrap(err, "import browser profile"),
				"PROFILE_PATH must point at Chrome's User Data directory and PROFILE_NAME at a profile inside it",
			)
		}
		slog.Info("imported browser session", "from", cfg.ImportProfile, "entries", copied)
	}

	if _, err := os.Stat(filepath.Join(profileDir, "Default")); err != nil {
		return Credentials{}, noCredentials(
			"profile "+profileDir+" has never been logged in",
			"run `repeatbot login` once to sign in interactively",
			"or set PROFILE_PATH (and PROFILE_NAME) to copy the session from your own Chrome profile",
		)
	}
	return Credentials{Source: SourceProfile, ProfileDir: profileDir}, nil
}

// ResolveCredentials selects exactly one credential source. With source
// auto, unattended runs use the first of auth data, session token and vault
// that is configured, interactive runs use the browser profile.
func ResolveCredentials(ctx context.Context, cfg AuthConfig, profileDir string, unattended bool) (Credentials, error) {
	switch cfg.Source {
	case SourceSnapshot:
		return snapshotCredentials(cfg)
	case SourceToken:
		return tokenCredentials(cfg)
	case SourceVault:
		return vaultCredentials(ctx, cfg)
	case SourceProfile:
		return profileCredentials(cfg, profileDir)
	}

	if !unattended {
		return profileCredentials(cfg, profileDir)
	}
	switch {
	case cfg.Data != "":
		return snapshotCredentials(cfg)
	case cfg.SessionToken != "":
		return tokenCredentials(cfg)
	case authsnap.VaultExists(cfg.VaultDir):
		return vaultCredentials(ctx, cfg)
	}
	return Credentials{}, noCredentials(
		"unattended run without credentials",
		"set REPEAT_GG_AUTH_DATA (from `repeatbot export auth`) or REPEAT_GG_SESSION_TOKEN as a secret",
	)
}

type SessionReport struct {
	Source         Source
	CookiesApplied int
	// cookies the browser refused
	CookiesFailed int
	// cookies for other sites, never applied
	CookiesForeign int
	CookiesExpired int
	// cookies whose expiry could not be represented and were applied as
	// session cookies
	CookiesUnbounded int
	StorageEntries   int
	// false when the verification page still offered to log in
	Authenticated bool
	Verified      bool
}

// Bootstrap applies creds to page and checks whether verifyURL renders as
// logged in. Failures to apply individual cookies or storage entries are
// logged and skipped. A failed check is reported, not returned: the run
// continues unauthenticated.
func Bootstrap(ctx context.Context, page browser.Page, creds Credentials, verifyURL string) (SessionReport, error) {
	ctx, span := tracer.Start(ctx, "Bootstrap")
	defer span.End()

	report := SessionReport{Source: creds.Source}
	if creds.Replays() {
		if err := replay(ctx, page, creds.Snapshot, &report); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to replay snapshot")
			return report, err
		}
	}

	span.SetAttributes(
		attribute.String("source", string(creds.Source)),
		attribute.Int("cookies_applied", report.CookiesApplied),
		attribute.Int("cookies_failed", report.CookiesFailed),
	)

	if verifyURL == "" {
		return report, nil
	}
	authenticated, err := VerifyLogin(ctx, page, verifyURL)
	if err != nil {
		slog.WarnContext(ctx, "could not verify login", "url", verifyURL, "err", err)
		return report, nil
	}
	report.Verified = true
	report.Authenticated = authenticated
	if !authenticated {
		slog.WarnContext(ctx, "login markers present, continuing without authentication", "url", verifyURL)
	} else {
		slog.InfoContext(ctx, "session authenticated", "source", creds.Source)
	}
	return report, nil
}

func replay(ctx context.Context, page browser.Page, snap authsnap.Snapshot, report *SessionReport) error {
	scoped := snap.ScopedTo(repeatgg.Domain)
	report.CookiesForeign = len(snap.Cookies) - len(scoped.Cookies)
	if report.CookiesForeign > 0 {
		slog.DebugContext(ctx, "ignoring cookies for other sites", "count", report.CookiesForeign)
	}

	// cookies and storage can only be set once the origin is loaded
	if err := page.Navigate(ctx, repeatgg.BaseURL); err != nil {
		return fmt.Errorf("open %s: %w", repeatgg.BaseURL, err)
	}

	now := time.Now()
	for _, c := range scoped.Cookies {
		if c.Expired(now) {
			report.CookiesExpired++
			slog.DebugContext(ctx, "skipping expired cookie", "name", c.Name)
			continue
		}
		if secs, ok := c.UnixExpiry(); ok {
			c.Expiry = secs
		} else {
			if c.Expiry != 0 {
				report.CookiesUnbounded++
			}
			c.Expiry = 0
		}
		if err := page.SetCookie(ctx, c); err != nil {
			report.CookiesFailed++
			slog.WarnContext(ctx, "failed to apply cookie", "name", c.Name, "domain", c.Domain, "err", err)
			continue
		}
		report.CookiesApplied++
	}

	for kind, items := range map[browser.StorageKind]map[string]string{
		browser.LocalStorage:   scoped.LocalStorage,
		browser.SessionStorage: scoped.SessionStorage,
	} {
		if len(items) == 0 {
			continue
		}
		n, err := page.SetStorage(ctx, kind, items)
		if err != nil {
			slog.WarnContext(ctx, "failed to inject storage", "kind", kind, "err", err)
		}
		report.StorageEntries += n
	}

	slog.InfoContext(ctx, "applied session snapshot",
		"cookies", report.CookiesApplied,
		"failed", report.CookiesFailed,
		"expired", report.CookiesExpired,
		"storage", report.StorageEntries,
	)

	// storage is read by the site's scripts on load
	if err := page.Reload(ctx); err != nil {
		slog.WarnContext(ctx, "failed to reload after applying session", "err", err)
	}
	return nil
}

// VerifyLogin loads url and reports whether it renders without login
// prompts.
func VerifyLogin(ctx context.Context, page browser.Page, url string) (bool, error) {
	if err := page.Navigate(ctx, url); err != nil {
		return false, err
	}
	bodies, err := page.FindAll(ctx, repeatgg.BodySelector)
	if err != nil {
		return false, err
	}
	if len(bodies) == 0 {
		return false, fmt.Errorf("%s rendered no body", url)
	}
	return !repeatgg.HasLoginMarkers(bodies[0]), nil
}
