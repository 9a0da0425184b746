package tourney

import (
	"testing"

	"repeatbot/lib/browser"
	"repeatbot/lib/browser/browsertest"
	"repeatbot/lib/scrapers/repeatgg"
	"repeatbot/lib/testutil"
)

const (
	dailyURL   = "https://www.repeat.gg/tournament/1001/brawl-stars-daily"
	privateURL = "https://www.repeat.gg/tournament/1002/private-night"
	weekendURL = "https://www.repeat.gg/tournament/1003/weekend-showdown"
)

var fixture = testutil.Fixture

// newSite serves the default listing with rows 1 and 3 eligible. Joining
// the daily cup succeeds, joining the weekend showdown is rejected.
func newSite(t testing.TB) *browsertest.Browser {
	t.Helper()
	site := browsertest.New()
	site.Serve(repeatgg.DefaultListingURL, fixture(t, "listing.html"))
	site.Serve(dailyURL, fixture(t, "detail_free.html"))
	site.Serve(weekendURL, fixture(t, "detail_free.html"))
	site.OnClick(weekendURL, func(p *browsertest.Page, loc browser.Locator) error {
		p.SetHTML(fixture(t, "detail_rejected.html"))
		return nil
	})
	return site
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Join.DelayMs = NewMillis(0)
	cfg.Join.ListingWaitMs = NewMillis(10)
	cfg.Join.DetailWaitMs = NewMillis(10)
	cfg.Join.DialogWaitMs = NewMillis(10)
	cfg.Claim.PageWaitMs = NewMillis(10)
	cfg.Claim.Strategy = StrategyNone
	return cfg
}
