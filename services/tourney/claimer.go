package tourney

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repeatbot/lib/browser"
	"repeatbot/lib/scrapers/repeatgg"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type Strategy string

const (
	StrategyBulk     Strategy = "bulk"
	StrategyItemized Strategy = "itemized"
	StrategyNone     Strategy = "none"
)

type ClaimedPrize struct {
	Label    string
	Amount   float64
	Currency repeatgg.Currency
}

type SkippedPrize struct {
	Label  string
	Reason string
}

type ClaimResult struct {
	Strategy Strategy
	Claimed  []ClaimedPrize
	Skipped  []SkippedPrize
	// the claim all control was triggered, its payout is not itemized
	BulkClicked bool
	// per currency, amounts of different currencies are never summed
	Totals map[repeatgg.Currency]float64
	Errors []string
}

func (r ClaimResult) Count() int {
	return len(r.Claimed)
}

func (r *ClaimResult) errorf(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Errors = append(r.Errors, msg)
	slog.WarnContext(ctx, "claim problem", "err", msg)
}

type Claimer struct {
	Page     browser.Page
	URL      string
	Strategy Strategy
	// the exact caption of an item's claim button
	Caption string
	Wait    time.Duration
}

// Claim runs the configured strategy once. Nothing to claim is a normal
// result, problems are collected in Errors and never abort the run.
func (c Claimer) Claim(ctx context.Context) ClaimResult {
	ctx, span := tracer.Start(ctx, "Claim", trace.WithAttributes(
		attribute.String("strategy", string(c.Strategy)),
	))
	defer span.End()

	result := ClaimResult{Strategy: c.Strategy, Totals: map[repeatgg.Currency]float64{}}
	if c.Strategy == StrategyNone || c.Strategy == "" {
		return result
	}

	url := c.URL
	if url == "" {
		url = repeatgg.ClaimPrizesURL
	}
	if err := c.Page.Navigate(ctx, url); err != nil {
		result.errorf(ctx, "open claim page: %v", err)
		return result
	}

	recovered := panics.Try(func() {
		switch c.Strategy {
		case StrategyBulk:
			c.bulk(ctx, &result)
		case StrategyItemized:
			c.itemized(ctx, &result)
		default:
			result.errorf(ctx, "unknown claim strategy %q", c.Strategy)
		}
	})
	if recovered != nil {
		result.errorf(ctx, "claim aborted: panic: %v", recovered.Value)
	}

	for currency, total := range result.Totals {
		claimedCounter.Add(ctx, total, metric.WithAttributes(attribute.String("currency", string(currency))))
	}
	span.SetAttributes(
		attribute.Int("claimed", result.Count()),
		attribute.Bool("bulk_clicked", result.BulkClicked),
		attribute.Int("errors", len(result.Errors)),
	)
	return result
}

func (c Claimer) bulk(ctx context.Context, result *ClaimResult) {
	present, err := c.Page.WaitPresent(ctx, repeatgg.ButtonSelector, c.Wait)
	if err != nil {
		result.errorf(ctx, "wait for claim page: %v", err)
		return
	}
	if !present {
		slog.InfoContext(ctx, "claim page rendered no buttons, nothing to claim")
		return
	}

	buttons, err := c.Page.FindAll(ctx, repeatgg.ButtonSelector)
	if err != nil {
		result.errorf(ctx, "read buttons: %v", err)
		return
	}
	button, ok := repeatgg.FindBulkButton(buttons)
	loc := browser.Locator{Selector: repeatgg.ButtonSelector, Index: button.Index}
	if !ok {
		fallback, err := c.Page.FindAll(ctx, repeatgg.BulkClaimFallback)
		if err != nil || len(fallback) == 0 {
			slog.InfoContext(ctx, "no claim all control, nothing to claim")
			return
		}
		button = repeatgg.ParseButton(fallback[0])
		loc = browser.Locator{Selector: repeatgg.BulkClaimFallback}
	}

	if !button.Enabled {
		slog.InfoContext(ctx, "claim all is disabled, nothing to claim", "label", button.Label)
		return
	}
	if err := c.Page.Click(ctx, loc); err != nil {
		result.errorf(ctx, "click %q: %v", button.Label, err)
		return
	}
	result.BulkClicked = true
	slog.InfoContext(ctx, "claimed all prizes", "label", button.Label)
}

func (c Claimer) itemized(ctx context.Context, result *ClaimResult) {
	present, err := c.Page.WaitPresent(ctx, repeatgg.ClaimItemSelector, c.Wait)
	if err != nil {
		result.errorf(ctx, "wait for claim page: %v", err)
		return
	}
	if !present {
		slog.InfoContext(ctx, "no claimable prizes")
		return
	}
	items, err := c.Page.FindAll(ctx, repeatgg.ClaimItemSelector)
	if err != nil {
		result.errorf(ctx, "read prizes: %v", err)
		return
	}

	caption := c.Caption
	if caption == "" {
		caption = repeatgg.DefaultClaimCaption
	}
	clicked := map[int]string{}
	for i, itemHTML := range items {
		recovered := panics.Try(func() {
			c.claimItem(ctx, i, itemHTML, caption, clicked, result)
		})
		if recovered != nil {
			result.errorf(ctx, "claim item: panic: %v", recovered.Value)
		}
	}
	slog.InfoContext(ctx, "claimed prizes", "count", result.Count(), "totals", result.Totals)
}

// claimItem claims the card at position i of the initial listing. clicked
// maps positions already clicked during this pass to the markup clicked there.
func (c Claimer) claimItem(ctx context.Context, i int, itemHTML, caption string, clicked map[int]string, result *ClaimResult) {
	item, err := repeatgg.ParseClaimItem(itemHTML)
	if err != nil {
		result.Skipped = append(result.Skipped, SkippedPrize{Label: item.Label, Reason: err.Error()})
		result.errorf(ctx, "read prize %q: %v", item.Label, err)
		return
	}
	if !repeatgg.CaptionMatches(item.Caption, caption) {
		result.Skipped = append(result.Skipped, SkippedPrize{Label: item.Label, Reason: fmt.Sprintf("button reads %q", item.Caption)})
		return
	}
	if !item.Enabled {
		result.Skipped = append(result.Skipped, SkippedPrize{Label: item.Label, Reason: "disabled"})
		return
	}

	// earlier claims can re-render the list, find the card again
	index, ok := c.locate(ctx, i, itemHTML, item.Label, clicked)
	if !ok {
		result.errorf(ctx, "prize %q disappeared before it was claimed", item.Label)
		return
	}
	clicked[index] = itemHTML
	err = c.Page.Click(ctx, browser.Locator{Selector: repeatgg.ClaimItemSelector, Index: index, Inner: "button"})
	if err != nil {
		result.errorf(ctx, "claim %q: %v", item.Label, err)
		return
	}

	result.Claimed = append(result.Claimed, ClaimedPrize{Label: item.Label, Amount: item.Amount, Currency: item.Currency})
	result.Totals[item.Currency] += item.Amount
	slog.InfoContext(ctx, "claimed prize", "label", item.Label, "amount", item.Amount, "currency", item.Currency)
}

// locate finds the card that was at position i. While the card is still
// there it is used as is, otherwise the first unclicked card with the same
// markup, then the same label, takes its place. Identical cards are told
// apart by position; a position stops counting as clicked once its markup
// changes.
func (c Claimer) locate(ctx context.Context, i int, itemHTML, label string, clicked map[int]string) (int, bool) {
	current, err := c.Page.FindAll(ctx, repeatgg.ClaimItemSelector)
	if err != nil {
		return 0, false
	}
	done := func(j int) bool {
		h, ok := clicked[j]
		return ok && h == current[j]
	}
	if i < len(current) && current[i] == itemHTML && !done(i) {
		return i, true
	}
	for j, h := range current {
		if h == itemHTML && !done(j) {
			return j, true
		}
	}
	for j, h := range current {
		if done(j) {
			continue
		}
		parsed, err := repeatgg.ParseClaimItem(h)
		if err == nil && parsed.Label == label && parsed.Enabled {
			return j, true
		}
	}
	return 0, false
}
