package tourney

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"repeatbot/lib/scrapers/repeatgg"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"CI", "GITHUB_ACTIONS", "K_SERVICE",
		"REPEAT_GG_AUTH_DATA", "REPEAT_GG_SESSION_TOKEN", "REPEATBOT_VAULT_KEY",
		"REPEATBOT_HEADLESS", "CHROME_PATH", "PROFILE_PATH", "PROFILE_NAME",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("REPEATBOT_STATE_DIR", t.TempDir())
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, []Listing{{Label: "Brawl Stars", URL: repeatgg.DefaultListingURL}}, cfg.Listings)
	require.Equal(t, StrategyBulk, cfg.Claim.Strategy)
	require.Equal(t, 15*time.Second, cfg.Join.ListingWaitMs.Duration())
	require.Equal(t, 10*time.Second, cfg.Browser.LingerMs.Duration())
	require.False(t, cfg.Browser.Visible)
	require.True(t, filepath.IsAbs(cfg.Browser.ProfileDir))
	require.Equal(t, "chrome_automation_profile", filepath.Base(cfg.Browser.ProfileDir))

	// only <state> paths differ from the built in defaults
	if diff := cmp.Diff(DefaultConfig(), cfg, cmpopts.IgnoreFields(Config{}, "Browser.ProfileDir", "Auth.VaultDir")); diff != "" {
		t.Fatalf("defaults differ (-want +got):\n%s", diff)
	}
}

func TestScheduleLocation(t *testing.T) {
	require.Equal(t, time.Local, ScheduleConfig{}.Location())
	require.Equal(t, "America/Los_Angeles", ScheduleConfig{Timezone: "America/Los_Angeles"}.Location().String())
	require.Equal(t, time.Local, ScheduleConfig{Timezone: "Nowhere/Special"}.Location())

	cfg := DefaultConfig()
	cfg.Schedule.Timezone = "Nowhere/Special"
	require.ErrorContains(t, cfg.Validate(), "invalid configuration")
}

func TestLoadConfigLayers(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{
		// every game we play
		listings: [
			{label: "Brawl Stars", url: "https://www.repeat.gg/mobile/brawl-stars"},
			{label: "Clash Royale", url: "https://www.repeat.gg/mobile/clash-royale"},
		],
		claim: {strategy: "itemized"},
		join: {max_candidates: 5},
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repeatbot.local.json5"), []byte(`{
		browser: {visible: true},
	}`), 0600))

	t.Setenv("REPEAT_GG_SESSION_TOKEN", " sess ")
	t.Setenv("PROFILE_PATH", "/home/me/.config/google-chrome")
	t.Setenv("PROFILE_NAME", "Profile 1")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Len(t, cfg.Listings, 2)
	require.Equal(t, StrategyItemized, cfg.Claim.Strategy)
	require.Equal(t, repeatgg.DefaultClaimCaption, cfg.Claim.Caption)
	require.Equal(t, 5, cfg.Join.MaxCandidates)
	require.True(t, cfg.Browser.Visible)
	require.Equal(t, "sess", cfg.Auth.SessionToken)
	require.Equal(t, filepath.Join("/home/me/.config/google-chrome", "Profile 1"), cfg.Auth.ImportProfile)

	// hosted runs never show a window
	t.Setenv("CI", "true")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	require.False(t, cfg.Browser.Visible)
}

func TestLoadConfigKeepsExplicitZeroDurations(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{
		browser: {linger_ms: 0, op_timeout_ms: 5000},
		join: {delay_ms: 0, dialog_wait_ms: 0},
	}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "repeatbot.local.json5"), []byte(`{
		browser: {op_timeout_ms: 0},
	}`), 0600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, NewMillis(0), cfg.Browser.LingerMs)
	require.Equal(t, NewMillis(0), cfg.Browser.OpTimeoutMs)
	require.Equal(t, NewMillis(0), cfg.Join.DelayMs)
	require.Equal(t, NewMillis(0), cfg.Join.DialogWaitMs)
	require.Zero(t, cfg.Join.DelayMs.Duration())
	// unset fields still get their defaults
	require.Equal(t, NewMillis(15_000), cfg.Join.ListingWaitMs)
	require.Equal(t, NewMillis(10_000), cfg.Claim.PageWaitMs)

	require.Zero(t, (*Millis)(nil).Duration())
}

func TestLoadConfigRejectsNegativeDurations(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "negative.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{join: {delay_ms: -1}}`), 0600))
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "invalid configuration")
}

func TestLoadConfigHeadlessEnv(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("REPEATBOT_HEADLESS", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.True(t, cfg.Browser.Visible)
}

func TestLoadConfigValidation(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "bad.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{claim: {strategy: "sometimes"}, listings: [{label: "x", url: "not a url"}]}`), 0600))
	_, err := LoadConfig(path)
	require.ErrorContains(t, err, "invalid configuration")

	_, err = LoadConfig(filepath.Join(dir, "missing.json5"))
	require.Error(t, err)
}
