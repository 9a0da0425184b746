package tourney

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"repeatbot/lib/scrapers/repeatgg"
	"repeatbot/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

// rejection reasons at least this similar are reported together
const reasonSimilarity = 0.9

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func formatSchedule(s *repeatgg.Schedule) string {
	if s == nil {
		return "unknown"
	}
	if s.End == "" {
		return s.Start
	}
	return fmt.Sprintf("%s - %s", s.Start, s.End)
}

func formatPrize(p *repeatgg.Prize) string {
	if p == nil {
		return "unknown"
	}
	if p.Currency == repeatgg.USD {
		return "$" + p.Amount
	}
	return fmt.Sprintf("%s %s", p.Amount, strings.ToLower(string(p.Currency)))
}

// FormatTotals renders per currency totals in a stable order, e.g.
// "2500 coins, $10.00".
func FormatTotals(totals map[repeatgg.Currency]float64) string {
	if len(totals) == 0 {
		return "none"
	}
	currencies := make([]string, 0, len(totals))
	for c := range totals {
		currencies = append(currencies, string(c))
	}
	slices.Sort(currencies)

	var parts []string
	for _, c := range currencies {
		amount := totals[repeatgg.Currency(c)]
		if repeatgg.Currency(c) == repeatgg.USD {
			parts = append(parts, fmt.Sprintf("$%.2f", amount))
			continue
		}
		parts = append(parts, fmt.Sprintf("%g %s", amount, strings.ToLower(c)))
	}
	return strings.Join(parts, ", ")
}

// RenderSummary writes the run summary as a set of tables.
func RenderSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Run %s (%s)\n", s.RunID, s.Finished.Sub(s.Started).Round(time.Second))

	session := newTable(w, "Session")
	session.AppendRow(table.Row{"Source", s.Session.Source})
	if s.Preflight != nil {
		session.AppendRow(table.Row{"Preflight", fmt.Sprintf("HTTP %d, logged out: %t", s.Preflight.Status, s.Preflight.LoggedOut)})
	}
	if s.Session.Source != SourceProfile {
		session.AppendRow(table.Row{"Cookies applied", s.Session.CookiesApplied})
		session.AppendRow(table.Row{"Cookies failed", s.Session.CookiesFailed})
		session.AppendRow(table.Row{"Storage entries", s.Session.StorageEntries})
	}
	authenticated := "not checked"
	if s.Session.Verified {
		authenticated = fmt.Sprint(s.Session.Authenticated)
	}
	session.AppendRow(table.Row{"Authenticated", authenticated})
	if s.SessionError != "" {
		session.AppendRow(table.Row{"Error", s.SessionError})
	}
	session.Render()

	listings := newTable(w, "Listings")
	listings.AppendHeader(table.Row{"Listing", "Rendered", "Rows", "Eligible", "Duplicates"})
	for _, l := range s.Listings {
		listings.AppendRow(table.Row{l.Label, l.Rendered, l.Rows, l.Eligible, l.Duplicates})
	}
	listings.Render()

	if len(s.Join.Attempts) > 0 {
		attempts := newTable(w, "Tournaments")
		attempts.AppendHeader(table.Row{"Listing", "Name", "Schedule", "Prize", "Outcome", "Reason"})
		for _, a := range s.Join.Attempts {
			reason := a.Outcome.Reason
			if a.Outcome.Kind != Rejected {
				reason = a.Outcome.Message
			}
			attempts.AppendRow(table.Row{
				a.Tournament.Listing,
				orUnknown(a.Tournament.Name),
				formatSchedule(a.Tournament.Schedule),
				formatPrize(a.Tournament.Prize),
				a.Outcome.Kind,
				reason,
			})
		}
		attempts.Render()
	}

	var reasons []string
	for _, a := range s.Join.Attempts {
		if a.Outcome.Kind == Rejected {
			reasons = append(reasons, a.Outcome.Reason)
		}
	}
	if groups := textutil.GroupSimilar(reasons, reasonSimilarity); len(groups) > 0 {
		rejections := newTable(w, "Rejection reasons")
		rejections.AppendHeader(table.Row{"Reason", "Count"})
		for _, g := range groups {
			rejections.AppendRow(table.Row{g.Label, g.Count})
		}
		rejections.Render()
	}

	claim := newTable(w, "Prizes")
	claim.AppendRow(table.Row{"Strategy", s.Claim.Strategy})
	switch s.Claim.Strategy {
	case StrategyBulk:
		claim.AppendRow(table.Row{"Claim all triggered", s.Claim.BulkClicked})
	case StrategyItemized:
		for _, p := range s.Claim.Claimed {
			claim.AppendRow(table.Row{"Claimed", p.Label})
		}
		for _, p := range s.Claim.Skipped {
			claim.AppendRow(table.Row{"Skipped", fmt.Sprintf("%s (%s)", orUnknown(p.Label), p.Reason)})
		}
		claim.AppendRow(table.Row{"Total", FormatTotals(s.Claim.Totals)})
	}
	for _, e := range s.Claim.Errors {
		claim.AppendRow(table.Row{"Error", e})
	}
	claim.Render()

	counts := newTable(w, "Totals")
	counts.AppendHeader(table.Row{"Joined", "Rejected", "Errors", "Skipped", "Prizes claimed"})
	counts.AppendRow(table.Row{s.Join.Joined, s.Join.Rejected, s.Join.Errored, s.Join.Skipped, s.Claim.Count()})
	counts.Render()
}

// Headline is a one line summary, used as the notification subject.
func (s Summary) Headline() string {
	return fmt.Sprintf(
		"repeat.gg: joined %d, rejected %d, errors %d, prizes claimed %d",
		s.Join.Joined, s.Join.Rejected, s.Join.Errored, s.Claim.Count(),
	)
}
