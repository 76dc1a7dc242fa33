// Package matcher filters raw provider results down to plausible matches
// for an expected title, year, and media type.
package matcher

import (
	"strings"

	"github.com/streamweave/streamweave/internal/source/types"
	"github.com/streamweave/streamweave/internal/titles"
)

// Expected describes the title being resolved.
type Expected struct {
	Title     string
	Year      string
	MediaType types.MediaType
	// SeasonHintText is scanned for season markers; when empty the
	// expected title itself is scanned.
	SeasonHintText string
}

// Filter returns the plausible matches for the expected title, or an empty
// slice when nothing plausible is found.
//
// Matching is two-pass and season-aware: candidates are pooled year-strict
// first, then relaxed to any year. Within a pool an exact normalized-title
// match wins outright; for series a season-aware fuzzy pass follows. The
// year-strict pool always runs before the relaxed pool so that a strong
// year signal cannot produce a false empty result for retitled or
// re-released seasons.
func Filter(items []types.Candidate, expected Expected) []types.Candidate {
	normalizedExpected := titles.Normalize(expected.Title)
	expectedNoSeason := titles.StripSeasonTokens(expected.Title)

	hintSource := expected.SeasonHintText
	if hintSource == "" {
		hintSource = expected.Title
	}
	var seasonHints []string
	for _, hint := range titles.ExtractSeasonHints(hintSource) {
		if normalized := titles.Normalize(hint); normalized != "" {
			seasonHints = append(seasonHints, normalized)
		}
	}

	typeFiltered := filterByMediaType(items, expected.MediaType)

	pools := [][]types.Candidate{typeFiltered}
	if expected.Year != "" {
		yearFiltered := make([]types.Candidate, 0, len(typeFiltered))
		for _, item := range typeFiltered {
			if strings.EqualFold(item.Year, expected.Year) {
				yearFiltered = append(yearFiltered, item)
			}
		}
		pools = [][]types.Candidate{yearFiltered, typeFiltered}
	}

	for _, pool := range pools {
		var exact []types.Candidate
		for _, item := range pool {
			if titles.Normalize(item.Title) == normalizedExpected {
				exact = append(exact, item)
			}
		}
		if len(exact) > 0 {
			return exact
		}

		if expected.MediaType != types.MediaTypeSeries {
			continue
		}

		var fuzzy []types.Candidate
		for _, item := range pool {
			if matchesFuzzy(item, expectedNoSeason, seasonHints) {
				fuzzy = append(fuzzy, item)
			}
		}
		if len(fuzzy) > 0 {
			return fuzzy
		}
	}

	return nil
}

func filterByMediaType(items []types.Candidate, mediaType types.MediaType) []types.Candidate {
	if mediaType == types.MediaTypeUnknown {
		return items
	}
	filtered := make([]types.Candidate, 0, len(items))
	for _, item := range items {
		episodic := len(item.Episodes) > 1
		if (mediaType == types.MediaTypeSeries && episodic) ||
			(mediaType == types.MediaTypeMovie && !episodic) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// matchesFuzzy compares season-stripped base titles and, when the query
// carried season hints, requires the candidate to carry at least one of the
// same hints in its own title or extracted hint set.
func matchesFuzzy(item types.Candidate, expectedNoSeason string, seasonHints []string) bool {
	titleNoSeason := titles.StripSeasonTokens(item.Title)
	if titleNoSeason == "" || expectedNoSeason == "" {
		return false
	}
	baseMatch := titleNoSeason == expectedNoSeason ||
		strings.Contains(titleNoSeason, expectedNoSeason) ||
		strings.Contains(expectedNoSeason, titleNoSeason)
	if !baseMatch {
		return false
	}

	if len(seasonHints) == 0 {
		return true
	}

	normalizedTitle := titles.Normalize(item.Title)
	var itemHints []string
	for _, hint := range titles.ExtractSeasonHints(item.Title) {
		if normalized := titles.Normalize(hint); normalized != "" {
			itemHints = append(itemHints, normalized)
		}
	}

	for _, hint := range seasonHints {
		if strings.Contains(normalizedTitle, hint) {
			return true
		}
		for _, itemHint := range itemHints {
			if itemHint == hint {
				return true
			}
		}
	}
	return false
}
