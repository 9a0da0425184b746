package textutil

import (
	"regexp"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Squash lowercases s and removes all whitespace so that labels that only
// differ in spacing or case compare equal.
func Squash(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.ToLower(s), "")
}

// ContainsAnyFold reports whether s contains one of keywords, ignoring case
// and whitespace on both sides.
func ContainsAnyFold(s string, keywords ...string) bool {
	s = Squash(s)
	for _, k := range keywords {
		if strings.Contains(s, Squash(k)) {
			return true
		}
	}
	return false
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return whitespaceRegex.ReplaceAllString(strings.TrimSpace(s), " ")
}

type Group struct {
	Label string
	Count int
}

// GroupSimilar buckets near-identical phrases ("Tournament full" and
// "Tournament is full") using Jaro-Winkler similarity against the first
// member of each bucket. Groups are ordered by descending count.
func GroupSimilar(phrases []string, threshold float64) []Group {
	var groups []Group
	var keys []string
	for _, p := range phrases {
		key := strings.ToLower(CollapseSpace(p))
		matched := false
		for i, k := range keys {
			if matchr.JaroWinkler(key, k, false) >= threshold {
				groups[i].Count++
				matched = true
				break
			}
		}
		if !matched {
			keys = append(keys, key)
			groups = append(groups, Group{Label: CollapseSpace(p), Count: 1})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}
