package authsnap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"repeatbot/lib/testutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// 2100-01-01T00:00:00Z in microseconds since 1601
const chrome2100 = (4102444800 + windowsEpochOffset) * 1_000_000

func TestReadChromeCookies(t *testing.T) {
	profile := testutil.ChromeCookieDB(t,
		testutil.CookieRow{HostKey: ".repeat.gg", Name: "PHPSESSID", Value: "abc", ExpiresUTC: chrome2100, Secure: true, HTTPOnly: true, SameSite: 1},
		testutil.CookieRow{HostKey: "www.repeat.gg", Name: "lang", Value: "en", SameSite: 0},
		testutil.CookieRow{HostKey: "www.repeat.gg", Name: "pref", Value: "1", SameSite: -1},
		testutil.CookieRow{HostKey: ".google.com", Name: "NID", Value: "x"},
	)

	dbPath, err := CookieDBPath(profile)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(profile, "Network", "Cookies"), dbPath)

	cookies, err := ReadChromeCookies(context.Background(), dbPath, "repeat.gg")
	require.NoError(t, err)

	expected := []Cookie{
		{Domain: ".repeat.gg", Name: "PHPSESSID", Value: "abc", Path: "/", Expiry: chrome2100, Secure: true, HTTPOnly: true, SameSite: SameSiteLax},
		{Domain: "www.repeat.gg", Name: "lang", Value: "en", Path: "/", SameSite: SameSiteNone},
		{Domain: "www.repeat.gg", Name: "pref", Value: "1", Path: "/", SameSite: SameSiteStrict},
	}
	if diff := cmp.Diff(expected, cookies); diff != "" {
		t.Fatalf("cookies differ (-want +got):\n%s", diff)
	}

	at, ok := cookies[0].ExpiresAt()
	require.True(t, ok)
	require.Equal(t, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC), at)
	_, ok = cookies[1].ExpiresAt()
	require.False(t, ok)
}

func TestCookieDBPathFallback(t *testing.T) {
	profile := t.TempDir()
	_, err := CookieDBPath(profile)
	require.ErrorIs(t, err, os.ErrNotExist)

	legacy := filepath.Join(profile, "Cookies")
	require.NoError(t, os.WriteFile(legacy, nil, 0600))
	dbPath, err := CookieDBPath(profile)
	require.NoError(t, err)
	require.Equal(t, legacy, dbPath)
}

func TestReadChromeCookiesLeavesNoTempFiles(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	profile := testutil.ChromeCookieDB(t, testutil.CookieRow{HostKey: ".repeat.gg", Name: "a", Value: "b"})
	dbPath, err := CookieDBPath(profile)
	require.NoError(t, err)

	_, err = ReadChromeCookies(context.Background(), dbPath, "repeat.gg")
	require.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(os.TempDir(), "repeatbot-cookies-*"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}
