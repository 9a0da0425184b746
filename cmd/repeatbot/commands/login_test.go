package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"repeatbot/lib/browser/browsertest"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m loginModel, key tea.KeyMsg) (loginModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(loginModel), cmd
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	yes   = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}
	no    = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")}
)

// settle runs the command returned by the model and feeds its message back.
func settle(t *testing.T, m loginModel, cmd tea.Cmd) (loginModel, tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, cmd := m.Update(cmd())
	return next.(loginModel), cmd
}

func TestLoginConfirmed(t *testing.T) {
	m := newLoginModel("https://www.repeat.gg/mobile/brawl-stars", func() (bool, error) {
		return true, nil
	})
	require.Contains(t, m.View(), "Press enter")

	m, cmd := press(t, m, enter)
	require.Equal(t, stageChecking, m.stage)
	require.Contains(t, m.View(), "Checking")

	m, cmd = settle(t, m, cmd)
	require.Equal(t, stageDone, m.stage)
	require.True(t, m.loggedIn)
	require.True(t, m.accepted)
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "Logged in")
}

func TestLoginAsksWhenStillLoggedOut(t *testing.T) {
	check := func() (bool, error) { return false, nil }

	m, cmd := press(t, newLoginModel("u", check), enter)
	m, _ = settle(t, m, cmd)
	require.Equal(t, stageConfirm, m.stage)
	require.Contains(t, m.View(), "[y/n]")

	accepted, _ := press(t, m, yes)
	require.Equal(t, stageDone, accepted.stage)
	require.True(t, accepted.accepted)
	require.False(t, accepted.loggedIn)

	declined, _ := press(t, m, no)
	require.Equal(t, stageDone, declined.stage)
	require.False(t, declined.accepted)
	require.Contains(t, declined.View(), "cancelled")
}

func TestLoginCheckErrorAllowsRetry(t *testing.T) {
	calls := 0
	m := newLoginModel("u", func() (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("page crashed")
		}
		return true, nil
	})

	m, cmd := press(t, m, enter)
	m, _ = settle(t, m, cmd)
	require.Equal(t, stageWaiting, m.stage)
	require.Contains(t, m.View(), "page crashed")

	m, cmd = press(t, m, enter)
	m, _ = settle(t, m, cmd)
	require.True(t, m.loggedIn)
	require.Equal(t, 2, calls)
}

func TestLoginQuitKeys(t *testing.T) {
	m := newLoginModel("u", func() (bool, error) {
		t.Fatal("check must not run")
		return false, nil
	})
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		next, cmd := press(t, m, key)
		require.Equal(t, stageDone, next.stage, key.String())
		require.False(t, next.accepted)
		require.NotNil(t, cmd)
	}
}

func TestCheckLogin(t *testing.T) {
	const url = "https://www.repeat.gg/mobile/brawl-stars"
	ctx := context.Background()
	b := browsertest.New()

	b.Serve(url, `<html><body><nav><button>Log in</button></nav></body></html>`)
	require.NoError(t, b.Navigate(ctx, url))
	loggedIn, err := checkLogin(ctx, b)
	require.NoError(t, err)
	require.False(t, loggedIn)

	// a profile widget wins over a stray login link
	b.Serve(url, `<html><body><a>Log in with another account</a><div class="UserAvatar"></div></body></html>`)
	loggedIn, err = checkLogin(ctx, b)
	require.NoError(t, err)
	require.True(t, loggedIn)

	b.Serve(url, `<html><body><h1>Tournaments</h1></body></html>`)
	loggedIn, err = checkLogin(ctx, b)
	require.NoError(t, err)
	require.True(t, loggedIn)
}

func TestLoginViewMentionsURL(t *testing.T) {
	m := newLoginModel("https://example.test/listing", nil)
	require.True(t, strings.Contains(m.View(), "https://example.test/listing"))
}
