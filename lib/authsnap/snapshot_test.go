package authsnap

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestUnixExpiry(t *testing.T) {
	cases := []struct {
		name   string
		expiry float64
		expect float64
		ok     bool
	}{
		{name: "session", expiry: 0, ok: false},
		{name: "negative", expiry: -1, ok: false},
		{name: "unix seconds", expiry: 1767225600, expect: 1767225600, ok: true},
		{
			name:   "chrome microseconds",
			expiry: (1767225600 + windowsEpochOffset) * 1e6,
			expect: 1767225600,
			ok:     true,
		},
		{name: "beyond max", expiry: MaxExpiry + 1, ok: false},
		{name: "chrome beyond max", expiry: (MaxExpiry + windowsEpochOffset + 10) * 1e6, ok: false},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			got, ok := Cookie{Expiry: test.expiry}.UnixExpiry()
			require.Equal(t, test.ok, ok)
			require.InDelta(t, test.expect, got, 0.001)
		})
	}
}

func TestExpired(t *testing.T) {
	now := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, Cookie{Expiry: float64(now.Add(-time.Hour).Unix())}.Expired(now))
	require.False(t, Cookie{Expiry: float64(now.Add(time.Hour).Unix())}.Expired(now))
	require.False(t, Cookie{}.Expired(now))
}

func TestScopedTo(t *testing.T) {
	snap := Snapshot{
		Cookies: []Cookie{
			{Domain: ".repeat.gg", Name: "a"},
			{Domain: "www.repeat.gg", Name: "b"},
			{Domain: "repeat.gg", Name: "c"},
			{Domain: "notrepeat.gg", Name: "d"},
			{Domain: ".google.com", Name: "e"},
		},
		LocalStorage: map[string]string{"k": "v"},
	}

	scoped := snap.ScopedTo("repeat.gg")
	var names []string
	for _, c := range scoped.Cookies {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"a", "b", "c"}, names)
	require.Equal(t, snap.LocalStorage, scoped.LocalStorage)
}

func TestDecodeForms(t *testing.T) {
	snap := Snapshot{
		Cookies: []Cookie{{
			Domain: "www.repeat.gg", Name: "PHPSESSID", Value: "abc",
			Path: "/", Secure: true, HTTPOnly: true, SameSite: SameSiteLax,
		}},
		LocalStorage:   map[string]string{"theme": "dark"},
		SessionStorage: map[string]string{},
	}
	encoded, err := Encode(snap)
	require.NoError(t, err)

	decoded, err := Decode("  " + encoded[:10] + "\n" + encoded[10:] + "\n")
	require.NoError(t, err)
	if diff := cmp.Diff(snap, decoded); diff != "" {
		t.Fatalf("decoded snapshot mismatch (-want +got):\n%s", diff)
	}

	list, err := EncodeCookies(snap.Cookies)
	require.NoError(t, err)
	decoded, err = Decode(list)
	require.NoError(t, err)
	require.Equal(t, snap.Cookies, decoded.Cookies)
	require.Empty(t, decoded.LocalStorage)

	_, err = Decode("%%%")
	require.Error(t, err)
	_, err = Decode("")
	require.Error(t, err)
}

func TestFitDropsOversizedEntries(t *testing.T) {
	snap := Snapshot{
		Cookies: []Cookie{{Domain: ".repeat.gg", Name: "PHPSESSID", Value: "token", Path: "/"}},
		LocalStorage: map[string]string{
			"huge": strings.Repeat("x", 12*1024),
		},
	}
	for i := range 9 {
		snap.LocalStorage[fmt.Sprintf("item-%d", i)] = strings.Repeat("y", 4600)
	}

	before, err := Encode(snap)
	require.NoError(t, err)
	require.Greater(t, len(before), DefaultBudget)

	res, err := Fit(snap, DefaultBudget, DefaultDropThreshold)
	require.NoError(t, err)
	require.False(t, res.OverBudget)
	require.Less(t, len(res.Encoded), DefaultBudget)
	require.Equal(t, []DroppedEntry{{Storage: "localStorage", Key: "huge", Size: 12 * 1024}}, res.Dropped)

	decoded, err := Decode(res.Encoded)
	require.NoError(t, err)
	require.NotContains(t, decoded.LocalStorage, "huge")
	require.Len(t, decoded.LocalStorage, 9)

	// input must not be mutated
	require.Contains(t, snap.LocalStorage, "huge")
}

func TestFitWithinBudget(t *testing.T) {
	snap := Snapshot{LocalStorage: map[string]string{"big": strings.Repeat("z", 20000)}}
	res, err := Fit(snap, DefaultBudget, DefaultDropThreshold)
	require.NoError(t, err)
	require.Empty(t, res.Dropped)
	require.False(t, res.OverBudget)
}

func TestFitStillOverBudget(t *testing.T) {
	snap := Snapshot{LocalStorage: map[string]string{}}
	for i := range 20 {
		snap.LocalStorage[fmt.Sprintf("small-%d", i)] = strings.Repeat("s", 5000)
	}
	snap.LocalStorage["large"] = strings.Repeat("l", 15000)

	res, err := Fit(snap, DefaultBudget, DefaultDropThreshold)
	require.NoError(t, err)
	require.True(t, res.OverBudget)
	require.Len(t, res.Dropped, 1)
	require.Len(t, res.Snapshot.LocalStorage, 20)
}

func TestVaultRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.False(t, VaultExists(dir))

	vault, err := OpenVault(dir, "correct horse")
	require.NoError(t, err)
	require.True(t, VaultExists(dir))

	_, err = vault.Load(context.Background())
	require.Error(t, err)

	snap := SessionToken("www.repeat.gg", "PHPSESSID", "secret")
	require.NoError(t, vault.Save(context.Background(), snap))

	reopened, err := OpenVault(dir, "correct horse")
	require.NoError(t, err)
	loaded, err := reopened.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, snap.Cookies, loaded.Cookies)

	_, err = OpenVault(dir, "wrong")
	require.Error(t, err)
}
