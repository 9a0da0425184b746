package tourney

import (
	"github.com/PuerkitoBio/purell"
)

const detailURLFlags = purell.FlagsSafe |
	purell.FlagsUsuallySafeNonGreedy |
	purell.FlagRemoveDirectoryIndex |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// normalizeDetailURL returns the form two links to the same tournament
// share. Unparsable links are returned as is.
func normalizeDetailURL(raw string) string {
	normalized, err := purell.NormalizeURLString(raw, detailURLFlags)
	if err != nil {
		return raw
	}
	return normalized
}

// seenTournaments holds the detail pages already attempted in one run.
type seenTournaments map[string]struct{}

// add reports whether the tournament was new.
func (s seenTournaments) add(t EligibleTournament) bool {
	key := normalizeDetailURL(t.DetailURL)
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}
