package tourney

import (
	"context"
	"fmt"
	"testing"

	"repeatbot/lib/browser"
	"repeatbot/lib/browser/browsertest"
	"repeatbot/lib/scrapers/repeatgg"

	"github.com/stretchr/testify/require"
)

func newClaimer(site *browsertest.Browser, strategy Strategy) Claimer {
	return Claimer{
		Page:     site,
		URL:      repeatgg.ClaimPrizesURL,
		Strategy: strategy,
		Caption:  repeatgg.DefaultClaimCaption,
	}
}

func TestClaimBulk(t *testing.T) {
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, fixture(t, "claim_bulk.html"))

	result := newClaimer(site, StrategyBulk).Claim(context.Background())
	require.True(t, result.BulkClicked)
	require.Empty(t, result.Errors)
	require.Equal(t, []browsertest.Click{{
		URL:     repeatgg.ClaimPrizesURL,
		Locator: browser.Locator{Selector: repeatgg.ButtonSelector, Index: 1},
	}}, site.Clicks())
}

func TestClaimBulkDisabledIsNothingToClaim(t *testing.T) {
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, fixture(t, "claim_bulk_disabled.html"))
	claimer := newClaimer(site, StrategyBulk)

	for range 2 {
		result := claimer.Claim(context.Background())
		require.False(t, result.BulkClicked)
		require.Equal(t, 0, result.Count())
		require.Empty(t, result.Errors)
	}
	require.Empty(t, site.Clicks())
}

func TestClaimBulkWithoutControl(t *testing.T) {
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, fixture(t, "claim_itemized.html"))

	result := newClaimer(site, StrategyBulk).Claim(context.Background())
	require.False(t, result.BulkClicked)
	require.Empty(t, result.Errors)
}

func TestClaimItemized(t *testing.T) {
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, fixture(t, "claim_itemized.html"))

	result := newClaimer(site, StrategyItemized).Claim(context.Background())
	require.Equal(t, 1, result.Count())
	require.Equal(t, []ClaimedPrize{{Label: "2500 coins", Amount: 2500, Currency: repeatgg.Coins}}, result.Claimed)
	require.Equal(t, map[repeatgg.Currency]float64{repeatgg.Coins: 2500}, result.Totals)
	require.Equal(t, []SkippedPrize{{Label: "$10", Reason: "disabled"}}, result.Skipped)
	require.Empty(t, result.Errors)

	require.Equal(t, []browsertest.Click{{
		URL:     repeatgg.ClaimPrizesURL,
		Locator: browser.Locator{Selector: repeatgg.ClaimItemSelector, Index: 0, Inner: "button"},
	}}, site.Clicks())
	require.Equal(t, "2500 coins", FormatTotals(result.Totals))
}

func TestClaimItemizedIsolatesFailures(t *testing.T) {
	page := `<html><body>
<div data-testid="prize card"><span>Mystery box</span><button>Claim Prize</button></div>
<div data-testid="prize card"><span>$2.50</span><button>Claim Prize</button></div>
<div data-testid="prize card"><span>100 coins</span><button>Claimed</button></div>
<div data-testid="prize card"><span>40 coins</span><button>Claim Prize</button></div>
</body></html>`
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, page)
	site.OnClick(repeatgg.ClaimPrizesURL, func(p *browsertest.Page, loc browser.Locator) error {
		if loc.Index == 1 {
			panic("stale element")
		}
		return nil
	})

	result := newClaimer(site, StrategyItemized).Claim(context.Background())
	require.Equal(t, []ClaimedPrize{{Label: "40 coins", Amount: 40, Currency: repeatgg.Coins}}, result.Claimed)
	require.Equal(t, map[repeatgg.Currency]float64{repeatgg.Coins: 40}, result.Totals)
	require.Len(t, result.Errors, 2)
	require.Len(t, result.Skipped, 2)
}

func TestClaimItemizedIdenticalCards(t *testing.T) {
	card := `<div data-testid="prize card"><span>100 coins</span><button>Claim Prize</button></div>`
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, "<html><body>"+card+card+"</body></html>")

	result := newClaimer(site, StrategyItemized).Claim(context.Background())
	require.Empty(t, result.Errors)
	require.Equal(t, map[repeatgg.Currency]float64{repeatgg.Coins: 200}, result.Totals)

	var indices []int
	for _, click := range site.Clicks() {
		indices = append(indices, click.Locator.Index)
	}
	require.Equal(t, []int{0, 1}, indices)
}

func TestClaimItemizedAfterRerender(t *testing.T) {
	card := func(amount int, caption string) string {
		return fmt.Sprintf(`<div data-testid="prize card"><span>%d coins</span><button>%s</button></div>`, amount, caption)
	}
	site := browsertest.New()
	site.Serve(repeatgg.ClaimPrizesURL, "<html><body>"+card(50, "Claim Prize")+card(75, "Claim Prize")+"</body></html>")
	// a claimed card leaves the list
	site.OnClick(repeatgg.ClaimPrizesURL, func(p *browsertest.Page, loc browser.Locator) error {
		p.SetHTML("<html><body>" + card(75, "Claim Prize") + "</body></html>")
		return nil
	})

	result := newClaimer(site, StrategyItemized).Claim(context.Background())
	require.Empty(t, result.Errors)
	require.Equal(t, map[repeatgg.Currency]float64{repeatgg.Coins: 125}, result.Totals)
	clicks := site.Clicks()
	require.Len(t, clicks, 2)
	require.Equal(t, 0, clicks[0].Locator.Index)
	require.Equal(t, 0, clicks[1].Locator.Index)
}

func TestClaimNone(t *testing.T) {
	site := browsertest.New()
	result := newClaimer(site, StrategyNone).Claim(context.Background())
	require.Equal(t, 0, result.Count())
	require.Empty(t, site.Clicks())
}
