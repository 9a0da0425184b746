package tourney

import (
	"bytes"
	"testing"
	"time"

	"repeatbot/lib/scrapers/repeatgg"

	"github.com/stretchr/testify/require"
)

func TestRenderSummary(t *testing.T) {
	started := time.Date(2026, 3, 3, 19, 0, 0, 0, time.UTC)
	summary := Summary{
		RunID:    "run-1",
		Started:  started,
		Finished: started.Add(95 * time.Second),
		Session:  SessionReport{Source: SourceSnapshot, CookiesApplied: 4, Verified: true, Authenticated: true},
		Listings: []ListingReport{{Label: "Brawl Stars", Rendered: true, Rows: 3, Eligible: 2}},
		Claim: ClaimResult{
			Strategy: StrategyItemized,
			Claimed:  []ClaimedPrize{{Label: "2500 coins", Amount: 2500, Currency: repeatgg.Coins}},
			Skipped:  []SkippedPrize{{Label: "$10", Reason: "disabled"}},
			Totals:   map[repeatgg.Currency]float64{repeatgg.Coins: 2500, repeatgg.USD: 1.5},
		},
	}
	summary.Join.Add(Attempt{
		Tournament: EligibleTournament{
			Listing: "Brawl Stars", Name: "Daily Cup",
			Schedule: &repeatgg.Schedule{Start: "Mar 3rd • 7:00 PM", End: "Mar 4th • 9:30 PM"},
			Prize:    &repeatgg.Prize{Currency: repeatgg.USD, Amount: "25.00"},
		},
		Outcome: JoinOutcome{Kind: Joined},
	})
	for _, reason := range []string{"Game Account Required", "Game account required", "Tournament Full"} {
		summary.Join.Add(Attempt{Outcome: JoinOutcome{Kind: Rejected, Reason: reason}})
	}

	var out bytes.Buffer
	RenderSummary(&out, summary)
	text := out.String()

	require.Contains(t, text, "Run run-1 (1m35s)")
	require.Contains(t, text, "Daily Cup")
	require.Contains(t, text, "Mar 3rd • 7:00 PM - Mar 4th • 9:30 PM")
	require.Contains(t, text, "$25.00")
	require.Contains(t, text, "Tournament Full")
	require.Contains(t, text, "2500 coins, $1.50")
	require.Contains(t, text, "$10 (disabled)")
	require.Equal(t, "repeat.gg: joined 1, rejected 3, errors 0, prizes claimed 1", summary.Headline())
}

func TestFormatTotals(t *testing.T) {
	require.Equal(t, "none", FormatTotals(nil))
	require.Equal(t, "$10.00", FormatTotals(map[repeatgg.Currency]float64{repeatgg.USD: 10}))
	require.Equal(t, "1250 coins, $0.25", FormatTotals(map[repeatgg.Currency]float64{
		repeatgg.USD:   0.25,
		repeatgg.Coins: 1250,
	}))
}

func TestFormatSchedule(t *testing.T) {
	require.Equal(t, "unknown", formatSchedule(nil))
	require.Equal(t, "Mar 3rd • 7:00 PM", formatSchedule(&repeatgg.Schedule{Start: "Mar 3rd • 7:00 PM"}))
	require.Equal(t, "Mar 3rd • 7:00 PM - Mar 4th • 9:30 PM", formatSchedule(&repeatgg.Schedule{
		Start: "Mar 3rd • 7:00 PM",
		End:   "Mar 4th • 9:30 PM",
	}))
}
