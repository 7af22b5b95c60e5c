package graphmem

import (
	"regexp"
	"strings"
)

// Extractor recognises named entities in turn content. The precise
// recogniser is pluggable, per spec §4.7; HeuristicExtractor is the
// built-in regex/lexical default.
type Extractor interface {
	ExtractEntities(content string) []string
}

var (
	capitalizedWordPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]{1,}\b`)
	mentionOrTagPattern    = regexp.MustCompile(`[@#][A-Za-z0-9_]{2,}`)
)

var commonSentenceStarters = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
	"It": true, "I": true, "We": true, "You": true, "They": true,
	"A": true, "An": true, "In": true, "On": true, "At": true,
	"If": true, "But": true, "And": true, "Or": true, "So": true,
}

// HeuristicExtractor extracts capitalized words, @mentions, and #tags as
// entity candidates, deduplicated and stripped of common sentence-leading
// words that aren't proper nouns.
type HeuristicExtractor struct{}

// ExtractEntities implements Extractor.
func (HeuristicExtractor) ExtractEntities(content string) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		name := strings.TrimSpace(raw)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, match := range capitalizedWordPattern.FindAllString(content, -1) {
		if commonSentenceStarters[match] {
			continue
		}
		add(match)
	}
	for _, match := range mentionOrTagPattern.FindAllString(content, -1) {
		add(match)
	}

	return out
}
