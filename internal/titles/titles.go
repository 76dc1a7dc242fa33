// Package titles provides title normalization and season-token parsing for
// matching the same show across providers that index it under different
// surface strings.
package titles

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	punctuationRegex = regexp.MustCompile("[·•:：\\-_.()\\[\\]【】「」『』\"'‘’“”`~!@#$%^&*+={}\\\\/|<>?,;，。！？、]")
	whitespaceRegex  = regexp.MustCompile(`\s+`)

	arabicSeasonRegex  = regexp.MustCompile(`第\s*(\d{1,2})\s*季`)
	westernSeasonRegex = regexp.MustCompile(`(?i)(?:season|series|s)\s*0*(\d{1,2})`)
	chineseSeasonRegex = regexp.MustCompile(`第\s*([一二三四五六七八九十两]{1,3})\s*季`)

	stripSeasonRegexes = []*regexp.Regexp{
		regexp.MustCompile(`第\s*[一二三四五六七八九十百千万两\d]+\s*季`),
		regexp.MustCompile(`第\s*\d+\s*部`),
		regexp.MustCompile(`(?i)(?:season|series|s)\s*0*\d{1,2}`),
		regexp.MustCompile(`第\s*[一二三四五六七八九十百千万两\d]+\s*辑`),
	}

	colonRegex  = regexp.MustCompile(`\s*[：:]\s*`)
	dashRegex   = regexp.MustCompile("\\s*[-\u2010\u2011\u2012\u2013\u2014]\\s*")
	middotRegex = regexp.MustCompile(`[·•]`)
)

// Normalize converts a title to a compact comparison form: lower-cased,
// width-folded, with all whitespace and a fixed punctuation set removed.
// Two titles that normalize equal are treated as the same title.
func Normalize(value string) string {
	normalized := strings.ToLower(width.Fold.String(value))
	normalized = whitespaceRegex.ReplaceAllString(normalized, "")
	normalized = punctuationRegex.ReplaceAllString(normalized, "")
	return normalized
}

// NormalizeQuery collapses runs of whitespace and trims, keeping the title
// otherwise intact. Used for outbound search queries rather than comparison.
func NormalizeQuery(value string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(value, " "))
}

var chineseDigits = []string{"零", "一", "二", "三", "四", "五", "六", "七", "八", "九"}

var chineseDigitValues = map[string]int{
	"一": 1, "二": 2, "三": 3, "四": 4, "五": 5,
	"六": 6, "七": 7, "八": 8, "九": 9,
}

// ChineseNumeral renders 1-99 as a Chinese numeral. Values outside that
// range fall back to the Arabic spelling.
func ChineseNumeral(value int) string {
	if value <= 0 || value >= 100 {
		return fmt.Sprintf("%d", value)
	}
	if value < 10 {
		return chineseDigits[value]
	}
	if value == 10 {
		return "十"
	}
	if value < 20 {
		return "十" + chineseDigits[value-10]
	}
	tens := value / 10
	ones := value % 10
	result := chineseDigits[tens] + "十"
	if ones > 0 {
		result += chineseDigits[ones]
	}
	return result
}

// ParseChineseNumeral parses a Chinese numeral in 1-99 using tens/ones
// decomposition. Unrecognized input yields 0, which callers must treat as
// "no value", never as a real season number.
func ParseChineseNumeral(value string) int {
	text := strings.ReplaceAll(strings.TrimSpace(value), "两", "二")
	if text == "" {
		return 0
	}
	if text == "十" {
		return 10
	}
	if left, right, found := strings.Cut(text, "十"); found {
		tens := 1
		if left != "" {
			tens = chineseDigitValues[left]
		}
		return tens*10 + chineseDigitValues[right]
	}
	return chineseDigitValues[text]
}

// ExtractSeasonHints scans free text for season markers in any spelling
// (第N季 with Arabic or Chinese numerals, SxxEyy, "Season N", "Series N")
// and returns every equivalent spelling of each season found. Emitting the
// whole family means downstream matching only needs substring containment.
func ExtractSeasonHints(value string) []string {
	seen := make(map[string]struct{})
	var hints []string

	add := func(season int) {
		if season <= 0 {
			return
		}
		for _, hint := range []string{
			fmt.Sprintf("第%d季", season),
			fmt.Sprintf("第%s季", ChineseNumeral(season)),
			fmt.Sprintf("S%02d", season),
			fmt.Sprintf("Season %d", season),
		} {
			if _, ok := seen[hint]; ok {
				continue
			}
			seen[hint] = struct{}{}
			hints = append(hints, hint)
		}
	}

	for _, m := range arabicSeasonRegex.FindAllStringSubmatch(value, -1) {
		add(parseInt(m[1]))
	}
	for _, m := range westernSeasonRegex.FindAllStringSubmatch(value, -1) {
		add(parseInt(m[1]))
	}
	for _, m := range chineseSeasonRegex.FindAllStringSubmatch(value, -1) {
		add(ParseChineseNumeral(m[1]))
	}

	return hints
}

// StripSeasonTokens removes season markers from an already-normalized title
// so that base titles can be compared independent of season.
func StripSeasonTokens(value string) string {
	stripped := Normalize(value)
	for _, re := range stripSeasonRegexes {
		stripped = re.ReplaceAllString(stripped, "")
	}
	return stripped
}

// StripSeasonTokensForQuery removes season markers from a raw title while
// preserving readable spacing, for building outbound queries.
func StripSeasonTokensForQuery(value string) string {
	stripped := value
	for _, re := range stripSeasonRegexes {
		stripped = re.ReplaceAllString(stripped, " ")
	}
	return NormalizeQuery(stripped)
}

// ExpandQueryVariants produces punctuation-spacing variants of a query
// (colon, dash, and middle-dot separators spaced, tightened, or dropped).
// Providers index the same show under different surface strings; searching
// every variant compensates.
func ExpandQueryVariants(value string) []string {
	base := NormalizeQuery(value)
	if base == "" {
		return nil
	}

	seen := make(map[string]struct{})
	var variants []string
	push := func(input string) {
		normalized := NormalizeQuery(input)
		if normalized == "" {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		variants = append(variants, normalized)
	}

	push(base)
	push(whitespaceRegex.ReplaceAllString(base, ""))

	push(colonRegex.ReplaceAllString(base, ":"))
	push(colonRegex.ReplaceAllString(base, "："))
	push(colonRegex.ReplaceAllString(base, " "))
	push(colonRegex.ReplaceAllString(base, ""))

	push(dashRegex.ReplaceAllString(base, " "))
	push(dashRegex.ReplaceAllString(base, ""))
	push(middotRegex.ReplaceAllString(base, " "))
	push(middotRegex.ReplaceAllString(base, ""))

	bare := colonRegex.ReplaceAllString(base, "")
	bare = dashRegex.ReplaceAllString(bare, "")
	bare = middotRegex.ReplaceAllString(bare, "")
	push(bare)

	return variants
}

// BuildSeriesQueries generates the ordered query candidates for a series
// title: every punctuation variant of the primary title, then the
// season-stripped base combined with each season-hint spelling.
func BuildSeriesQueries(primary, seasonHintText string) []string {
	seen := make(map[string]struct{})
	var queries []string

	push := func(value string) {
		for _, variant := range ExpandQueryVariants(value) {
			key := strings.ToLower(variant)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			queries = append(queries, variant)
		}
	}
	pushRaw := func(value string) {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			return
		}
		key := strings.ToLower(normalized)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		queries = append(queries, normalized)
	}

	push(primary)

	hintSource := seasonHintText
	if hintSource == "" {
		hintSource = primary
	}
	hints := ExtractSeasonHints(hintSource)

	baseNoSeason := StripSeasonTokensForQuery(primary)
	if baseNoSeason == "" {
		baseNoSeason = NormalizeQuery(primary)
	}
	compactBase := whitespaceRegex.ReplaceAllString(baseNoSeason, "")

	for _, hint := range hints {
		compactHint := whitespaceRegex.ReplaceAllString(hint, "")
		push(baseNoSeason + " " + hint)
		push(baseNoSeason + hint)
		if compactBase != "" && compactHint != "" {
			pushRaw(compactBase + compactHint)
		}
	}

	return queries
}

// BuildMatchFilenames synthesizes filename candidates for the overlay
// provider's match-by-filename API, covering the common ways an episode of
// the title is named.
func BuildMatchFilenames(title string, episodeIndex int) []string {
	episodeNumber := episodeIndex + 1
	if episodeNumber < 1 {
		episodeNumber = 1
	}
	padded := fmt.Sprintf("%02d", episodeNumber)

	seen := make(map[string]struct{})
	var candidates []string
	push := func(value string) {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		candidates = append(candidates, normalized)
	}

	push(title)
	push(fmt.Sprintf("%s 第%d集", title, episodeNumber))
	push(fmt.Sprintf("%s 第%d话", title, episodeNumber))
	push(fmt.Sprintf("%s - 第%d集", title, episodeNumber))
	push(fmt.Sprintf("%s.E%d", title, episodeNumber))
	push(fmt.Sprintf("%s.S01E%s", title, padded))
	push(fmt.Sprintf("%s.%s.mp4", title, padded))

	return candidates
}

func parseInt(value string) int {
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
