package tourney

import (
	"context"
	"iter"
	"log/slog"
	"net/url"
	"time"

	"repeatbot/lib/browser"
	"repeatbot/lib/scrapers/repeatgg"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EligibleTournament is a listed tournament that passed the listing rule.
// Schedule and Prize are only known once the detail page has been read.
type EligibleTournament struct {
	Listing   string
	Name      string
	DetailURL string
	Schedule  *repeatgg.Schedule
	Prize     *repeatgg.Prize
}

type ListingReport struct {
	Label string
	URL   string
	// false when the rows never rendered within the wait
	Rendered bool
	Rows     int
	Eligible int
	// eligible rows already attempted from an earlier listing
	Duplicates int
}

type Scanner struct {
	Page browser.Page
	Rule repeatgg.EligibilityRule
	Wait time.Duration
}

// Scan returns the listing's eligible tournaments in page order. Nothing
// happens until the sequence is ranged over. The sequence can be consumed
// once, ranging again yields nothing. A listing that fails to load or
// render is treated as empty. The report is filled in as the sequence is
// consumed.
func (s Scanner) Scan(ctx context.Context, listing Listing) (iter.Seq[EligibleTournament], *ListingReport) {
	report := &ListingReport{Label: listing.Label, URL: listing.URL}
	rule := s.Rule
	if rule == nil {
		rule = repeatgg.DefaultRule
	}

	consumed := false
	seq := func(yield func(EligibleTournament) bool) {
		if consumed {
			slog.WarnContext(ctx, "listing scan already consumed", "listing", listing.Label)
			return
		}
		consumed = true

		ctx, span := tracer.Start(ctx, "Scan", trace.WithAttributes(
			attribute.String("listing", listing.Label),
			attribute.String("url", listing.URL),
			attribute.String("rule", rule.Version()),
		))
		defer span.End()

		rows, ok := s.load(ctx, listing)
		if !ok {
			return
		}
		report.Rendered = true
		report.Rows = len(rows)

		pageURL, err := url.Parse(listing.URL)
		if err != nil {
			slog.WarnContext(ctx, "invalid listing url", "url", listing.URL, "err", err)
			return
		}

		for _, row := range rows {
			if !rule.Eligible(row) {
				continue
			}
			parsed, ok := repeatgg.ParseListingRow(row, pageURL)
			if !ok {
				slog.WarnContext(ctx, "eligible row has no link", "listing", listing.Label)
				continue
			}
			report.Eligible++
			span.SetAttributes(attribute.Int("eligible", report.Eligible))
			if !yield(EligibleTournament{
				Listing:   listing.Label,
				Name:      parsed.Name,
				DetailURL: parsed.DetailURL,
			}) {
				return
			}
		}
	}
	return seq, report
}

// load returns a snapshot of every row's markup so that later navigation
// cannot invalidate it.
func (s Scanner) load(ctx context.Context, listing Listing) ([]string, bool) {
	if err := s.Page.Navigate(ctx, listing.URL); err != nil {
		slog.WarnContext(ctx, "failed to open listing", "listing", listing.Label, "url", listing.URL, "err", err)
		return nil, false
	}
	present, err := s.Page.WaitPresent(ctx, repeatgg.ListingRowSelector, s.Wait)
	if err != nil {
		slog.WarnContext(ctx, "failed waiting for listing", "listing", listing.Label, "err", err)
		return nil, false
	}
	if !present {
		slog.WarnContext(ctx, "no tournaments rendered", "listing", listing.Label, "wait", s.Wait)
		return nil, false
	}
	rows, err := s.Page.FindAll(ctx, repeatgg.ListingRowSelector)
	if err != nil {
		slog.WarnContext(ctx, "failed to read listing rows", "listing", listing.Label, "err", err)
		return nil, false
	}
	slog.InfoContext(ctx, "listing loaded", "listing", listing.Label, "rows", len(rows))
	return rows, true
}
