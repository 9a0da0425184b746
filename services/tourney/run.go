package tourney

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"repeatbot/lib/browser"
	"repeatbot/lib/restyutil"
	"repeatbot/lib/scrapers/repeatgg"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

type JoinSummary struct {
	Attempts []Attempt
	Joined   int
	Rejected int
	Errored  int
	Skipped  int
}

// Add records an attempt. The counters are only ever changed here so they
// always agree with Attempts.
func (s *JoinSummary) Add(a Attempt) {
	s.Attempts = append(s.Attempts, a)
	switch a.Outcome.Kind {
	case Joined:
		s.Joined++
	case Rejected:
		s.Rejected++
	case Errored:
		s.Errored++
	case Skipped:
		s.Skipped++
	}
}

type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Preflight    *repeatgg.PreflightResult
	Session      SessionReport
	SessionError string

	Listings []ListingReport
	Join     JoinSummary
	Claim    ClaimResult
}

type Runner struct {
	Config      Config
	Browser     browser.Browser
	Credentials Credentials
	// optional, reported as is
	Preflight *repeatgg.PreflightResult
}

// Run bootstraps the session, scans and joins every listing in order, then
// claims prizes once. It always returns a summary, failures are recorded in
// it.
func (r Runner) Run(ctx context.Context) Summary {
	summary := Summary{
		RunID:     uuid.NewString(),
		Started:   time.Now(),
		Preflight: r.Preflight,
	}
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", summary.RunID))

	logger := slog.Default().With("run_id", summary.RunID)
	logger.InfoContext(ctx, "starting run", "listings", len(r.Config.Listings), "source", r.Credentials.Source)

	verifyURL := ""
	if len(r.Config.Listings) > 0 {
		verifyURL = r.Config.Listings[0].URL
	}
	session, err := Bootstrap(ctx, r.Browser, r.Credentials, verifyURL)
	summary.Session = session
	if err != nil {
		summary.SessionError = err.Error()
		logger.ErrorContext(ctx, "failed to establish session, continuing without authentication", "err", err)
	}

	r.joinAll(ctx, logger, &summary)

	claimer := Claimer{
		Page:     r.Browser,
		URL:      r.Config.Claim.URL,
		Strategy: r.Config.Claim.Strategy,
		Caption:  r.Config.Claim.Caption,
		Wait:     r.Config.Claim.PageWaitMs.Duration(),
	}
	summary.Claim = claimer.Claim(ctx)

	summary.Finished = time.Now()
	span.SetAttributes(
		attribute.Int("joined", summary.Join.Joined),
		attribute.Int("rejected", summary.Join.Rejected),
		attribute.Int("errors", summary.Join.Errored),
		attribute.Int("claimed", summary.Claim.Count()),
	)
	logger.InfoContext(ctx, "run finished",
		"joined", summary.Join.Joined,
		"rejected", summary.Join.Rejected,
		"errors", summary.Join.Errored,
		"skipped", summary.Join.Skipped,
		"claimed", summary.Claim.Count(),
		"elapsed", summary.Finished.Sub(summary.Started).Round(time.Second),
	)
	return summary
}

func (r Runner) joinAll(ctx context.Context, logger *slog.Logger, summary *Summary) {
	scanner := Scanner{
		Page: r.Browser,
		Rule: repeatgg.DefaultRule,
		Wait: r.Config.Join.ListingWaitMs.Duration(),
	}
	joiner := Joiner{
		Browser:    r.Browser,
		DetailWait: r.Config.Join.DetailWaitMs.Duration(),
		DialogWait: r.Config.Join.DialogWaitMs.Duration(),
		DebugDir:   r.Config.Join.DebugDir,
	}
	limit := r.Config.Join.MaxCandidates
	pacer := rate.NewLimiter(rate.Every(r.Config.Join.DelayMs.Duration()), 1)
	seen := seenTournaments{}

	processed := 0
	for _, listing := range r.Config.Listings {
		if limitReached(limit, processed) || ctx.Err() != nil {
			break
		}
		logger.InfoContext(ctx, "scanning listing", "listing", listing.Label, "url", listing.URL)

		candidates, report := scanner.Scan(ctx, listing)
		for t := range candidates {
			if limitReached(limit, processed) {
				logger.InfoContext(ctx, "candidate limit reached", "max_candidates", limit)
				break
			}
			if ctx.Err() != nil {
				logger.WarnContext(ctx, "run cancelled, no more candidates are opened", "err", ctx.Err())
				break
			}
			if !seen.add(t) {
				report.Duplicates++
				logger.DebugContext(ctx, "tournament already attempted in this run", "listing", listing.Label, "url", t.DetailURL)
				continue
			}
			if err := pacer.Wait(ctx); err != nil {
				logger.WarnContext(ctx, "stopped waiting for the next candidate", "err", err)
				break
			}
			summary.Join.Add(joiner.Join(ctx, t))
			processed++
		}
		summary.Listings = append(summary.Listings, *report)
	}
}

func limitReached(limit, processed int) bool {
	return limit > 0 && processed >= limit
}

// Preflight checks the snapshot over plain HTTP before a browser is
// started. Its result is informational only.
func Preflight(ctx context.Context, cfg Config, creds Credentials) *repeatgg.PreflightResult {
	if cfg.Auth.SkipPreflight || !creds.Replays() {
		return nil
	}
	opts := repeatgg.PreflightOptions{UserAgent: cfg.Browser.UserAgent}
	if cfg.Join.DebugDir != "" {
		// exchanges are only written while debug logging is on
		out, err := restyutil.NewFilesystemOutput(filepath.Join(cfg.Join.DebugDir, "http"))
		if err != nil {
			slog.WarnContext(ctx, "failed to prepare http debug output", "err", err)
		} else {
			opts.Output = out
		}
	}
	result, err := repeatgg.Preflight(ctx, creds.Snapshot, opts)
	if err != nil {
		slog.WarnContext(ctx, "preflight request failed", "err", err)
		return nil
	}
	if result.LoggedOut {
		slog.WarnContext(ctx, "preflight: site does not recognize the session", "status", result.Status, "expired_cookies", result.ExpiredCookies)
	} else {
		slog.InfoContext(ctx, "preflight ok", "status", result.Status, "cookies", result.CookiesSent)
	}
	return &result
}
