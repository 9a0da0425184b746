package tourney

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"repeatbot/lib/browser"
	"repeatbot/lib/scrapers/repeatgg"
	"repeatbot/lib/telemetry"

	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type JoinState string

const (
	StateOpened            JoinState = "opened"
	StateVerifiedFree      JoinState = "verified_free"
	StateJoining           JoinState = "joining"
	StateOutcomeDetermined JoinState = "outcome_determined"
)

type OutcomeKind string

const (
	Joined   OutcomeKind = "joined"
	Rejected OutcomeKind = "rejected"
	Errored  OutcomeKind = "error"
	// the detail page did not confirm free entry, no join was attempted
	Skipped OutcomeKind = "skipped"
)

type JoinOutcome struct {
	Kind OutcomeKind
	// Reason and Details are set for Rejected
	Reason  string
	Details []string
	// Message is set for Errored and Skipped
	Message string
}

func (o JoinOutcome) String() string {
	switch o.Kind {
	case Rejected:
		return fmt.Sprintf("rejected: %s", o.Reason)
	case Errored, Skipped:
		return fmt.Sprintf("%s: %s", o.Kind, o.Message)
	}
	return string(o.Kind)
}

type Attempt struct {
	Tournament EligibleTournament
	State      JoinState
	Outcome    JoinOutcome
	Duration   time.Duration
}

// Joiner drives one candidate at a time through
// opened -> verified free -> joining -> outcome determined, each in its own
// tab that is closed before Join returns.
type Joiner struct {
	Browser    browser.Browser
	DetailWait time.Duration
	DialogWait time.Duration
	DebugDir   string
}

// Join never fails: every problem, panics included, becomes the attempt's
// outcome.
func (j Joiner) Join(ctx context.Context, t EligibleTournament) Attempt {
	ctx, span := tracer.Start(ctx, "Join", trace.WithAttributes(
		attribute.String("listing", t.Listing),
		attribute.String("url", t.DetailURL),
	))
	defer span.End()

	start := time.Now()
	attempt := &Attempt{Tournament: t}
	recovered := panics.Try(func() {
		j.join(ctx, attempt)
	})
	if recovered != nil {
		span.RecordError(recovered.AsError())
		slog.DebugContext(ctx, "recovered from panic", "stack", string(recovered.Stack))
		attempt.State = StateOutcomeDetermined
		attempt.Outcome = JoinOutcome{Kind: Errored, Message: fmt.Sprintf("panic: %v", recovered.Value)}
	}
	attempt.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("state", string(attempt.State)),
		attribute.String("outcome", string(attempt.Outcome.Kind)),
	)
	attrs := metric.WithAttributes(attribute.String("listing", t.Listing))
	switch attempt.Outcome.Kind {
	case Joined:
		joinedCounter.Add(ctx, 1, attrs)
		slog.InfoContext(ctx, "joined tournament", "tournament", attempt.Tournament.Name, "url", t.DetailURL)
	case Rejected:
		rejectedCounter.Add(ctx, 1, attrs)
		slog.WarnContext(ctx, "join rejected", "tournament", attempt.Tournament.Name, "reason", attempt.Outcome.Reason, "details", attempt.Outcome.Details)
	case Errored:
		errorCounter.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, attempt.Outcome.Message)
		slog.ErrorContext(ctx, "join failed", "tournament", attempt.Tournament.Name, "url", t.DetailURL, "err", attempt.Outcome.Message)
	case Skipped:
		skippedCounter.Add(ctx, 1, attrs)
		slog.InfoContext(ctx, "skipping tournament", "tournament", attempt.Tournament.Name, "reason", attempt.Outcome.Message)
	}
	return *attempt
}

func (j Joiner) join(ctx context.Context, a *Attempt) {
	tab, err := j.Browser.NewTab(ctx, a.Tournament.DetailURL)
	if err != nil {
		a.fail(fmt.Errorf("open tab: %w", err))
		return
	}
	defer func() {
		if err := tab.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close tab", "err", err)
		}
		stats := telemetry.RecordProcessStats(ctx, j.Browser.Pid())
		slog.DebugContext(ctx, "browser resources", "rss_mb", stats.RSSMegabytes, "processes", stats.Processes)
	}()
	a.State = StateOpened

	// the listing can be stale, the detail page decides
	if _, err := tab.WaitPresent(ctx, repeatgg.EntryFeeSelector, j.DetailWait); err != nil {
		j.fail(ctx, tab, a, fmt.Errorf("wait for detail page: %w", err))
		return
	}
	fees, err := tab.FindAll(ctx, repeatgg.EntryFeeSelector)
	if err != nil {
		j.fail(ctx, tab, a, fmt.Errorf("read entry fee: %w", err))
		return
	}
	if !repeatgg.IsFreeEntry(fees) {
		a.Outcome = JoinOutcome{Kind: Skipped, Message: "entry fee is not free on the detail page"}
		return
	}
	a.State = StateVerifiedFree

	j.describe(ctx, tab, &a.Tournament)

	a.State = StateJoining
	err = tab.Click(ctx, browser.Locator{Selector: repeatgg.JoinButton})
	if err != nil {
		j.fail(ctx, tab, a, fmt.Errorf("click join: %w", err))
		return
	}

	rejected, err := tab.WaitPresent(ctx, repeatgg.RejectionDialog, j.DialogWait)
	if err != nil {
		j.fail(ctx, tab, a, fmt.Errorf("check for rejection: %w", err))
		return
	}
	a.State = StateOutcomeDetermined
	if !rejected {
		a.Outcome = JoinOutcome{Kind: Joined}
		return
	}

	dialogs, err := tab.FindAll(ctx, repeatgg.RejectionDialog)
	if err != nil || len(dialogs) == 0 {
		// the dialog was seen, so the join was still refused
		a.Outcome = JoinOutcome{Kind: Rejected, Reason: "unknown"}
		return
	}
	rejection := repeatgg.ParseRejection(dialogs[0])
	a.Outcome = JoinOutcome{Kind: Rejected, Reason: rejection.Reason, Details: rejection.Details}
}

// describe fills in whatever detail fields the page offers. Each field is
// independent, a missing one stays unknown.
func (j Joiner) describe(ctx context.Context, tab browser.Page, t *EligibleTournament) {
	if headers, err := tab.FindAll(ctx, repeatgg.HeaderSelector); err == nil && len(headers) > 0 {
		if name, ok := repeatgg.ParseName(headers[0]); ok {
			t.Name = name
		}
	} else if err != nil {
		slog.DebugContext(ctx, "failed to read tournament header", "err", err)
	}

	if candidates, err := tab.FindAll(ctx, repeatgg.ScheduleSelector); err == nil {
		if schedule, ok := repeatgg.ParseSchedule(candidates); ok {
			t.Schedule = &schedule
		}
	} else {
		slog.DebugContext(ctx, "failed to read schedule", "err", err)
	}

	if pools, err := tab.FindAll(ctx, repeatgg.PrizePoolSelector); err == nil {
		if prize, ok := repeatgg.ParsePrize(pools); ok {
			t.Prize = &prize
		}
	} else {
		slog.DebugContext(ctx, "failed to read prize pool", "err", err)
	}
}

func (a *Attempt) fail(err error) {
	a.State = StateOutcomeDetermined
	a.Outcome = JoinOutcome{Kind: Errored, Message: err.Error()}
}

func (j Joiner) fail(ctx context.Context, tab browser.Page, a *Attempt, err error) {
	a.fail(err)
	if j.DebugDir != "" {
		j.capture(ctx, tab, a.Tournament)
	}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

func debugName(t EligibleTournament) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(t.DetailURL, "_"), "_")
	if len(name) > 80 {
		name = name[len(name)-80:]
	}
	return fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), name)
}

// capture writes the page's markup and a screenshot next to each other. The
// markup starts with a comment naming the URL the tab ended up on, which can
// differ from the detail URL after a redirect.
func (j Joiner) capture(ctx context.Context, tab browser.Page, t EligibleTournament) {
	if err := os.MkdirAll(j.DebugDir, 0755); err != nil {
		slog.WarnContext(ctx, "failed to create debug dir", "dir", j.DebugDir, "err", err)
		return
	}
	base := filepath.Join(j.DebugDir, debugName(t))

	final, err := tab.URL(ctx)
	if err != nil {
		slog.DebugContext(ctx, "failed to read tab url", "err", err)
		final = t.DetailURL
	}
	if docs, err := tab.FindAll(ctx, "html"); err == nil && len(docs) > 0 {
		page := fmt.Sprintf("<!-- %s -->\n%s", final, docs[0])
		if err := os.WriteFile(base+".html", []byte(page), 0644); err != nil {
			slog.WarnContext(ctx, "failed to write page capture", "err", err)
		}
	}
	if png, err := tab.Screenshot(ctx); err == nil {
		if err := os.WriteFile(base+".png", png, 0644); err != nil {
			slog.WarnContext(ctx, "failed to write screenshot", "err", err)
		}
	}
	slog.InfoContext(ctx, "saved debug capture", "path", base, "url", final)
}
