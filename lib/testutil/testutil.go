package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"repeatbot/lib/telemetry"

	_ "modernc.org/sqlite"
)

// Setup installs telemetry for the test binary and points the state
// directory at a fresh temp dir.
func Setup(t *testing.T, name string) {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", name))
	t.Cleanup(cleanup)
	t.Setenv("REPEATBOT_STATE_DIR", t.TempDir())
}

// RequireIntegration skips unless REPEATBOT_INTEGRATION is set. Integration
// tests need docker or a real browser.
func RequireIntegration(t testing.TB, what string) {
	t.Helper()
	if os.Getenv("REPEATBOT_INTEGRATION") == "" {
		t.Skipf("set REPEATBOT_INTEGRATION=1 to run %s", what)
	}
}

// Fixture reads a file from the package's testdata directory.
func Fixture(t testing.TB, name string) string {
	t.Helper()
	contents, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return string(contents)
}

type CookieRow struct {
	HostKey string
	Name    string
	Value   string
	Path    string
	// microseconds since 1601, 0 for session cookies
	ExpiresUTC int64
	Secure     bool
	HTTPOnly   bool
	// -1 unspecified, 0 none, 1 lax, 2 strict
	SameSite int
}

const cookieSchema = `
CREATE TABLE cookies (
	creation_utc INTEGER NOT NULL,
	host_key TEXT NOT NULL,
	top_frame_site_key TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	encrypted_value BLOB NOT NULL DEFAULT '',
	path TEXT NOT NULL,
	expires_utc INTEGER NOT NULL,
	is_secure INTEGER NOT NULL,
	is_httponly INTEGER NOT NULL,
	last_access_utc INTEGER NOT NULL DEFAULT 0,
	has_expires INTEGER NOT NULL DEFAULT 1,
	is_persistent INTEGER NOT NULL DEFAULT 1,
	priority INTEGER NOT NULL DEFAULT 1,
	samesite INTEGER NOT NULL DEFAULT -1,
	source_scheme INTEGER NOT NULL DEFAULT 0
)`

// ChromeCookieDB writes a cookie database laid out like a Chrome profile's
// (<profile>/Network/Cookies) and returns the profile directory.
func ChromeCookieDB(t testing.TB, rows ...CookieRow) string {
	t.Helper()
	profile := t.TempDir()
	if err := os.MkdirAll(filepath.Join(profile, "Network"), 0700); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", filepath.Join(profile, "Network", "Cookies"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(cookieSchema); err != nil {
		t.Fatal(err)
	}
	for i, r := range rows {
		path := r.Path
		if path == "" {
			path = "/"
		}
		_, err := db.Exec(
			`INSERT INTO cookies (creation_utc, host_key, name, value, path, expires_utc, is_secure, is_httponly, samesite)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i+1, r.HostKey, r.Name, r.Value, path, r.ExpiresUTC, r.Secure, r.HTTPOnly, r.SameSite,
		)
		if err != nil {
			t.Fatal(err)
		}
	}
	return profile
}
