// Package repeatgg is the only place that knows what repeat.gg pages look
// like. The site has no public API, so everything here matches rendered
// markup and will need updating whenever the site is redesigned.
package repeatgg

import (
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("repeatbot.lib.scrapers.repeatgg")

const (
	Domain            = "repeat.gg"
	Host              = "www.repeat.gg"
	BaseURL           = "https://www.repeat.gg"
	ClaimPrizesURL    = BaseURL + "/marketplace/claim-prizes"
	DefaultListingURL = BaseURL + "/mobile/brawl-stars"

	SessionCookie = "PHPSESSID"
)

// Selectors, all CSS.
const (
	ListingRowSelector = `[data-testid="tournament row"]`

	EntryFeeSelector = `.entryFee`
	HeaderSelector   = `[data-testid="tournament header"]`
	JoinButton       = HeaderSelector + ` button`
	// the schedule is rendered as "Mar 3rd • 7:00 PM ... Mar 4th • 9:00 PM"
	ScheduleSelector  = `div[data-notranslate="true"]`
	PrizePoolSelector = `div[class*="prizePool"]`
	RejectionDialog   = `.MuiDialog-container`

	ButtonSelector = `button`
	// fallback for the "Claim All" control when its label changes
	BulkClaimFallback = `button[class*="mui-xezng5"]`
	ClaimItemSelector = `[data-testid="prize card"], div[class*="prizeCard"]`

	BodySelector = `body`
)

type Currency string

const (
	USD   Currency = "USD"
	Coins Currency = "Coins"
)
