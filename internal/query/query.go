// Package query transforms raw user questions before retrieval: spelling
// normalization, retrieval-oriented rewriting, intent classification, and
// optional sub-query decomposition. Every stage is a single LLM round trip
// and fails open, so a noisy or unreachable model degrades the query instead
// of failing it.
package query

import "strings"

// Intent is the closed classification of the type of question asked.
type Intent string

const (
	IntentResearchQuestion Intent = "research_question"
	IntentDefinition       Intent = "definition"
	IntentComparison       Intent = "comparison"
	IntentTutorial         Intent = "tutorial"
	IntentLatestNews       Intent = "latest_news"
	IntentSummary          Intent = "summary"
)

// knownIntents guards against free-text drift in model replies.
var knownIntents = map[Intent]struct{}{
	IntentResearchQuestion: {},
	IntentDefinition:       {},
	IntentComparison:       {},
	IntentTutorial:         {},
	IntentLatestNews:       {},
	IntentSummary:          {},
}

// ParseIntent maps a free-text label onto the closed intent set, defaulting
// to IntentResearchQuestion for anything unrecognized.
func ParseIntent(s string) Intent {
	candidate := Intent(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownIntents[candidate]; ok {
		return candidate
	}
	return IntentResearchQuestion
}

// IntentInfo carries the classification of a processed query.
type IntentInfo struct {
	Intent    Intent
	Entities  []string
	TimeScope string // empty when the query has no time scope
}

// ProcessedQuery is the immutable output of the processing pipeline.
type ProcessedQuery struct {
	Original   string
	Processed  string
	Intent     *IntentInfo
	SubQueries []string
}

// Options toggles the individual processing stages.
type Options struct {
	CorrectSpelling bool
	Rewrite         bool
	ExtractIntent   bool

	// Expand adds synonyms and related terms to the retrieval text after
	// the rewrite stage.
	Expand bool

	// Decompose generates independent sub-queries for complex questions.
	Decompose     bool
	MaxSubQueries int
}

// DefaultOptions enables spelling correction, rewriting, and intent
// extraction; decomposition stays opt-in.
func DefaultOptions() Options {
	return Options{
		CorrectSpelling: true,
		Rewrite:         true,
		ExtractIntent:   true,
		MaxSubQueries:   3,
	}
}
