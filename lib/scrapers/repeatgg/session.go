package repeatgg

import (
	"strings"

	"repeatbot/lib/htmlutil"
	"repeatbot/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var loginMarkers = []string{"Log in", "Sign in", "Login"}

// HasLoginMarkers reports whether the page offers to log in, meaning the
// session is not authenticated. Only an element's own text is considered
// so that a wrapping container does not count.
func HasLoginMarkers(pageHTML string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return false
	}
	found := false
	doc.Find("body *").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		node := sel.Nodes[0]
		if node.Data == "script" || node.Data == "style" {
			return true
		}
		text := htmlutil.OwnText(node)
		for _, m := range loginMarkers {
			if strings.Contains(text, m) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// HasUserMarkers looks for the avatar/profile widgets shown to signed in
// users.
func HasUserMarkers(pageHTML string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return false
	}
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if textutil.ContainsAnyFold(sel.AttrOr("class", ""), "avatar", "profile", "user") {
			found = true
			return false
		}
		return true
	})
	return found
}
