package repeatgg

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"repeatbot/lib/htmlutil"
	"repeatbot/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// DefaultClaimCaption is the label of a per item claim button.
const DefaultClaimCaption = "Claim Prize"

// Enabled reports whether a button can be clicked. MUI renders disabled
// buttons with either the attribute, aria-disabled or a class.
func Enabled(button *goquery.Selection) bool {
	if button.Length() == 0 {
		return false
	}
	if _, disabled := button.Attr("disabled"); disabled {
		return false
	}
	if strings.EqualFold(button.AttrOr("aria-disabled", ""), "true") {
		return false
	}
	return !button.HasClass("Mui-disabled")
}

type BulkButton struct {
	Index   int
	Label   string
	Enabled bool
}

func isBulkLabel(label string) bool {
	return textutil.ContainsAnyFold(label, "claim all") &&
		textutil.ContainsAnyFold(label, "cash", "coins")
}

// FindBulkButton picks the "Claim All Cash & Coins" control among every
// button on the claims page. Index is the button's position in that list.
func FindBulkButton(buttonHTML []string) (BulkButton, bool) {
	for i, h := range buttonHTML {
		sel, err := htmlutil.Fragment(h)
		if err != nil {
			continue
		}
		label := htmlutil.CleanText(sel)
		if !isBulkLabel(label) {
			continue
		}
		return BulkButton{Index: i, Label: label, Enabled: Enabled(sel)}, true
	}
	return BulkButton{}, false
}

// ParseButton reads the label and state of a single button, used for the
// class based fallback.
func ParseButton(buttonHTML string) BulkButton {
	sel, err := htmlutil.Fragment(buttonHTML)
	if err != nil {
		return BulkButton{}
	}
	return BulkButton{Label: htmlutil.CleanText(sel), Enabled: Enabled(sel)}
}

type ClaimItem struct {
	Label    string
	Amount   float64
	Currency Currency
	Caption  string
	Enabled  bool
}

var amountRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParseAmount extracts the first number in label, thousands separators
// allowed, and classifies the currency by keyword: anything mentioning
// coins is Coins, a dollar sign, "usd" or "cash" is USD.
func ParseAmount(label string) (float64, Currency, error) {
	var currency Currency
	switch {
	case textutil.ContainsAnyFold(label, "coin"):
		currency = Coins
	case textutil.ContainsAnyFold(label, "$", "usd", "cash"):
		currency = USD
	default:
		return 0, "", fmt.Errorf("no currency in %q", label)
	}

	raw := amountRegex.FindString(label)
	if raw == "" {
		return 0, "", fmt.Errorf("no amount in %q", label)
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return amount, currency, nil
}

// ParseClaimItem reads one claimable prize card. The label is the card's
// text without its button.
func ParseClaimItem(itemHTML string) (ClaimItem, error) {
	sel, err := htmlutil.Fragment(itemHTML)
	if err != nil {
		return ClaimItem{}, err
	}

	button := sel.Find("button").First()
	item := ClaimItem{
		Caption: htmlutil.CleanText(button),
		Enabled: Enabled(button),
	}

	labelSel := sel.Clone()
	labelSel.Find("button").Remove()
	item.Label = htmlutil.CleanText(labelSel)
	if item.Label == "" {
		return item, fmt.Errorf("prize card has no label")
	}

	item.Amount, item.Currency, err = ParseAmount(item.Label)
	if err != nil {
		return item, err
	}
	return item, nil
}

// CaptionMatches is an exact comparison once surrounding and repeated
// whitespace is ignored.
func CaptionMatches(caption, expected string) bool {
	return textutil.CollapseSpace(caption) == textutil.CollapseSpace(expected)
}
