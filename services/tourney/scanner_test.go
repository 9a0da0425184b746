package tourney

import (
	"context"
	"slices"
	"testing"

	"repeatbot/lib/browser/browsertest"
	"repeatbot/lib/scrapers/repeatgg"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestScanReturnsEligibleRowsInOrder(t *testing.T) {
	site := newSite(t)
	scanner := Scanner{Page: site, Rule: repeatgg.DefaultRule}
	listing := Listing{Label: "Brawl Stars", URL: repeatgg.DefaultListingURL}

	seq, report := scanner.Scan(context.Background(), listing)
	require.Equal(t, ListingReport{Label: listing.Label, URL: listing.URL}, *report, "nothing happens before iteration")

	got := slices.Collect(seq)
	expect := []EligibleTournament{
		{Listing: "Brawl Stars", Name: "Brawl Stars Daily Cup", DetailURL: dailyURL},
		{Listing: "Brawl Stars", Name: "Weekend Showdown", DetailURL: weekendURL},
	}
	if diff := cmp.Diff(expect, got); diff != "" {
		t.Fatalf("scan mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, ListingReport{
		Label: listing.Label, URL: listing.URL,
		Rendered: true, Rows: 3, Eligible: 2,
	}, *report)

	// a scan is single use
	require.Empty(t, slices.Collect(seq))
}

func TestScanStopsEarly(t *testing.T) {
	site := newSite(t)
	seq, report := Scanner{Page: site}.Scan(context.Background(), Listing{URL: repeatgg.DefaultListingURL})
	for range seq {
		break
	}
	require.Equal(t, 1, report.Eligible)
}

func TestScanUnrenderedListingIsEmpty(t *testing.T) {
	site := browsertest.New()
	seq, report := Scanner{Page: site}.Scan(context.Background(), Listing{URL: "https://www.repeat.gg/mobile/empty"})
	require.Empty(t, slices.Collect(seq))
	require.False(t, report.Rendered)

	site.FailNavigation("https://www.repeat.gg/mobile/down", context.DeadlineExceeded)
	seq, report = Scanner{Page: site}.Scan(context.Background(), Listing{URL: "https://www.repeat.gg/mobile/down"})
	require.Empty(t, slices.Collect(seq))
	require.False(t, report.Rendered)
}

func TestZeroEligibleRowsOpenNoTabs(t *testing.T) {
	site := browsertest.New()
	site.Serve(repeatgg.DefaultListingURL, fixture(t, "listing_mixed.html"))

	runner := Runner{Config: testConfig(), Browser: site, Credentials: Credentials{Source: SourceProfile}}
	summary := runner.Run(context.Background())

	require.Empty(t, summary.Join.Attempts)
	require.Equal(t, 0, site.TabsOpened())
	require.Equal(t, []ListingReport{{
		Label: "Brawl Stars", URL: repeatgg.DefaultListingURL,
		Rendered: true, Rows: 3, Eligible: 0,
	}}, summary.Listings)
}
