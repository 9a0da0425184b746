package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"repeatbot/lib/browser"
	"repeatbot/lib/scrapers/repeatgg"
	"repeatbot/lib/util/serviceutil"
	"repeatbot/services/tourney"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	crerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type loginStage int

const (
	stageWaiting loginStage = iota
	stageChecking
	stageConfirm
	stageDone
)

type loginCheckedMsg struct {
	loggedIn bool
	err      error
}

// loginModel waits for the user to sign in inside the browser window, then
// checks the page. When the page still looks logged out it asks before
// keeping the session anyway.
type loginModel struct {
	url   string
	check func() (bool, error)

	stage    loginStage
	loggedIn bool
	accepted bool
	err      error
}

func newLoginModel(url string, check func() (bool, error)) loginModel {
	return loginModel{url: url, check: check}
}

func (m loginModel) Init() tea.Cmd {
	return nil
}

func (m loginModel) runCheck() tea.Msg {
	loggedIn, err := m.check()
	return loginCheckedMsg{loggedIn: loggedIn, err: err}
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loginCheckedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.stage = stageWaiting
			return m, nil
		}
		m.err = nil
		if msg.loggedIn {
			m.loggedIn = true
			m.accepted = true
			m.stage = stageDone
			return m, tea.Quit
		}
		m.stage = stageConfirm
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.stage = stageDone
			return m, tea.Quit
		}
		switch m.stage {
		case stageWaiting:
			switch msg.String() {
			case "enter":
				m.stage = stageChecking
				return m, m.runCheck
			case "q":
				m.stage = stageDone
				return m, tea.Quit
			}
		case stageConfirm:
			switch strings.ToLower(msg.String()) {
			case "y":
				m.accepted = true
				m.stage = stageDone
				return m, tea.Quit
			case "n", "q":
				m.stage = stageDone
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("repeat.gg login"))
	b.WriteString("\n\n")

	switch m.stage {
	case stageWaiting:
		fmt.Fprintf(&b, "Sign in to repeat.gg in the browser window (%s).\n", m.url)
		b.WriteString(dimStyle.Render("Press enter when you are logged in, q to give up."))
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errStyle.Render("check failed: " + m.err.Error()))
		}
	case stageChecking:
		b.WriteString(dimStyle.Render("Checking the page..."))
	case stageConfirm:
		b.WriteString(warnStyle.Render("The page still shows a login button and no profile widget."))
		b.WriteString("\n")
		b.WriteString("Keep this session anyway? [y/n]")
	case stageDone:
		switch {
		case m.loggedIn:
			b.WriteString(okStyle.Render("Logged in. The session is saved in the profile."))
		case m.accepted:
			b.WriteString(warnStyle.Render("Keeping the session without a confirmed login."))
		default:
			b.WriteString(dimStyle.Render("Login cancelled."))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// checkLogin reloads the page and treats it as logged in when it offers no
// login button or shows a profile widget.
func checkLogin(ctx context.Context, page browser.Page) (bool, error) {
	if err := page.Reload(ctx); err != nil {
		return false, err
	}
	if _, err := page.WaitPresent(ctx, repeatgg.BodySelector, 5*time.Second); err != nil {
		return false, err
	}
	bodies, err := page.FindAll(ctx, repeatgg.BodySelector)
	if err != nil {
		return false, err
	}
	if len(bodies) == 0 {
		return false, nil
	}
	return !repeatgg.HasLoginMarkers(bodies[0]) || repeatgg.HasUserMarkers(bodies[0]), nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in once in a visible browser so the automation profile carries the session.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if tourney.Unattended() {
			serviceutil.Fatal("login needs a display", crerr.WithHint(
				crerr.New("running unattended"),
				"run `repeatbot login` on your own machine, then `repeatbot export auth`",
			))
		}

		cfg := loadConfig()
		cfg.Browser.Visible = true
		creds := tourney.Credentials{Source: tourney.SourceProfile, ProfileDir: cfg.Browser.ProfileDir}

		chrome := launch(ctx, cfg, creds)
		defer func() {
			if err := chrome.Close(); err != nil {
				slog.Warn("failed to close browser", "err", err)
			}
		}()

		url := cfg.Listings[0].URL
		if err := chrome.Navigate(ctx, url); err != nil {
			serviceutil.Fatal("failed to open repeat.gg", err)
		}

		model := newLoginModel(url, func() (bool, error) {
			return checkLogin(ctx, chrome)
		})
		final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
		if err != nil {
			serviceutil.Fatal("login prompt failed", err)
		}
		result := final.(loginModel)
		if !result.accepted {
			slog.Warn("login not completed, the profile may not be authenticated", "profile", cfg.Browser.ProfileDir)
			return
		}
		slog.Info("login saved", "profile", cfg.Browser.ProfileDir, "confirmed", result.loggedIn)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}
