// Package filter applies viewer-defined block rules to overlay comments
// and downsamples oversized comment sets.
package filter

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/streamweave/streamweave/internal/overlay/types"
)

// Rule blocks comments whose text matches a keyword. A literal rule matches
// by substring; a regex rule matches by pattern.
type Rule struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	IsRegex bool   `json:"isRegex"`
	Enabled bool   `json:"enabled"`
}

// RuleInput is the wire form of a rule. Enabled is a pointer so a payload
// that omits the flag defaults to enabled rather than disabled.
type RuleInput struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
	IsRegex bool   `json:"isRegex"`
	Enabled *bool  `json:"enabled"`
}

// Normalize sanitizes incoming rules: empty keywords are dropped, missing
// ids are generated, and rules without an explicit enabled flag default to
// enabled.
func Normalize(inputs []RuleInput) []Rule {
	normalized := make([]Rule, 0, len(inputs))
	for _, input := range inputs {
		keyword := strings.TrimSpace(input.Keyword)
		if keyword == "" {
			continue
		}
		rule := Rule{
			ID:      input.ID,
			Keyword: keyword,
			IsRegex: input.IsRegex,
			Enabled: input.Enabled == nil || *input.Enabled,
		}
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		normalized = append(normalized, rule)
	}
	return normalized
}

// Engine evaluates block rules against comment text. Regex rules compile
// per evaluation pass; a malformed pattern is logged once per pass and
// treated as matching nothing.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a filter engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger.With().Str("component", "overlay-filter").Logger()}
}

// Apply removes blocked comments. The returned original count follows the
// player contract: zero when nothing was filtered, the raw count otherwise,
// so the player can show "N of M" only when filtering actually reduced the
// set.
func (e *Engine) Apply(comments []types.Comment, rules []Rule) ([]types.Comment, int) {
	active := e.compile(rules)
	if len(active) == 0 {
		return comments, 0
	}

	kept := make([]types.Comment, 0, len(comments))
	for _, comment := range comments {
		if !matches(comment.M, active) {
			kept = append(kept, comment)
		}
	}

	if len(kept) == len(comments) {
		return comments, 0
	}
	return kept, len(comments)
}

// IsBlocked reports whether a single comment text is blocked by any
// enabled rule.
func (e *Engine) IsBlocked(text string, rules []Rule) bool {
	return matches(text, e.compile(rules))
}

// compiledRule is one enabled rule ready for evaluation.
type compiledRule struct {
	keyword string
	pattern *regexp.Regexp
}

func (e *Engine) compile(rules []Rule) []compiledRule {
	var active []compiledRule
	for _, rule := range rules {
		if !rule.Enabled || rule.Keyword == "" {
			continue
		}
		if !rule.IsRegex {
			active = append(active, compiledRule{keyword: rule.Keyword})
			continue
		}
		pattern, err := regexp.Compile(rule.Keyword)
		if err != nil {
			e.logger.Warn().Err(err).Str("keyword", rule.Keyword).Msg("skipping malformed filter pattern")
			continue
		}
		active = append(active, compiledRule{pattern: pattern})
	}
	return active
}

func matches(text string, rules []compiledRule) bool {
	for _, rule := range rules {
		if rule.pattern != nil {
			if rule.pattern.MatchString(text) {
				return true
			}
		} else if strings.Contains(text, rule.keyword) {
			return true
		}
	}
	return false
}

// Downsample reduces a comment set to at most max comments by even-stride
// sampling across the whole set, preserving temporal spread. A non-positive
// max or an already-small set passes through untouched.
func Downsample(comments []types.Comment, max int) []types.Comment {
	if max <= 0 || len(comments) <= max {
		return comments
	}
	sampled := make([]types.Comment, 0, max)
	for i := 0; i < max; i++ {
		idx := int(float64(i) * float64(len(comments)) / float64(max))
		sampled = append(sampled, comments[idx])
	}
	return sampled
}
