package repeatgg

import (
	"net/url"
	"strings"

	"repeatbot/lib/htmlutil"
)

// EligibilityRule decides from a listing row's markup whether the
// tournament is worth opening. Rules are versioned so that a site change
// can ship a new rule without losing the old one.
type EligibilityRule interface {
	Version() string
	Eligible(rowHTML string) bool
}

// RuleV1 is a plain substring test on the row's outer HTML:
//
//	contains "Free Entry" AND contains "Join Now" AND NOT contains "Password"
//
// It is case sensitive and does not care where in the row the phrases
// appear, so e.g. a tournament named "Password Party" is rejected. Detail
// pages re-check the entry fee, so false positives are harmless.
type RuleV1 struct{}

func (RuleV1) Version() string {
	return "v1"
}

func (RuleV1) Eligible(rowHTML string) bool {
	return strings.Contains(rowHTML, "Free Entry") &&
		strings.Contains(rowHTML, "Join Now") &&
		!strings.Contains(rowHTML, "Password")
}

var DefaultRule EligibilityRule = RuleV1{}

type ListingRow struct {
	Name      string
	DetailURL string
}

// ParseListingRow extracts the detail link (rows are anchors) and a best
// effort name. ok is false when the row has no usable link.
func ParseListingRow(rowHTML string, pageURL *url.URL) (ListingRow, bool) {
	sel, err := htmlutil.Fragment(rowHTML)
	if err != nil {
		return ListingRow{}, false
	}
	href, ok := htmlutil.ResolveHref(sel, pageURL)
	if !ok {
		return ListingRow{}, false
	}

	name := ""
	for _, q := range []string{`[data-testid="tournament name"]`, "h1, h2, h3, h4, h5, h6"} {
		if found := sel.Find(q).First(); found.Length() > 0 {
			name = htmlutil.CleanText(found)
			break
		}
	}
	return ListingRow{Name: name, DetailURL: href}, true
}
