package repeatgg

import (
	"regexp"
	"strings"

	"repeatbot/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// IsFreeEntry reports whether any of the entry fee labels on a detail page
// reads "Free Entry". Detail pages are authoritative over listing rows.
func IsFreeEntry(entryFeeHTML []string) bool {
	for _, h := range entryFeeHTML {
		if strings.Contains(h, "Free Entry") {
			return true
		}
	}
	return false
}

// ParseName returns the tournament title from the header's h1.
func ParseName(headerHTML string) (string, bool) {
	sel, err := htmlutil.Fragment(headerHTML)
	if err != nil {
		return "", false
	}
	name := htmlutil.CleanText(sel.Find("h1").First())
	return name, name != ""
}

type Schedule struct {
	Start string
	End   string
}

var scheduleRegex = regexp.MustCompile(`\b[A-Za-z]+\s\d{1,2}(?:st|nd|rd|th)?\s•\s\d{1,2}:\d{2}\s[APM]{2}\b`)

// ParseSchedule looks for "Month Day • H:MM AM" timestamps in the first
// candidate element that contains a bullet. End is empty when only one
// timestamp is shown.
func ParseSchedule(candidateHTML []string) (Schedule, bool) {
	for _, h := range candidateHTML {
		sel, err := htmlutil.Fragment(h)
		if err != nil {
			continue
		}
		text := htmlutil.CleanText(sel)
		if !strings.Contains(text, "•") {
			continue
		}
		matches := scheduleRegex.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		s := Schedule{Start: matches[0]}
		if len(matches) > 1 {
			s.End = matches[len(matches)-1]
		}
		return s, true
	}
	return Schedule{}, false
}

type Prize struct {
	Currency Currency
	Amount   string
}

var prizeMarkers = []struct {
	currency Currency
	span     string
	img      string
}{
	{currency: USD, span: `span[data-testid="USD"]`, img: `img[alt="dollar"]`},
	{currency: Coins, span: `span[data-testid="PM"]`, img: `img[alt="coins"]`},
}

// ParsePrize reads the prize pool amount, preferring a cash prize over a
// coin prize when both are shown.
func ParsePrize(prizePoolHTML []string) (Prize, bool) {
	for _, h := range prizePoolHTML {
		sel, err := htmlutil.Fragment(h)
		if err != nil {
			continue
		}
		for _, m := range prizeMarkers {
			var found Prize
			sel.Find(m.span).EachWithBreak(func(_ int, span *goquery.Selection) bool {
				if span.Find(m.img).Length() == 0 {
					return true
				}
				found = Prize{Currency: m.currency, Amount: htmlutil.CleanText(span)}
				return false
			})
			if found.Currency != "" {
				return found, true
			}
		}
	}
	return Prize{}, false
}

type Rejection struct {
	Reason  string
	Details []string
}

// ParseRejection reads the dialog shown when the site refuses a join: the
// h2 is the reason, each paragraph is a detail line.
func ParseRejection(dialogHTML string) Rejection {
	sel, err := htmlutil.Fragment(dialogHTML)
	if err != nil {
		return Rejection{}
	}
	r := Rejection{
		Reason: htmlutil.CleanText(sel.Find("h2").First()),
	}
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := htmlutil.CleanText(p); text != "" {
			r.Details = append(r.Details, text)
		}
	})
	return r
}
