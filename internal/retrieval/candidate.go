// Package retrieval implements candidate retrieval over the vector index:
// vector-only and hybrid (vector + lexical overlap) search strategies,
// deduplication, and reciprocal rank fusion of independently ranked lists.
package retrieval

import (
	"strconv"
	"strings"
	"time"

	"github.com/paperhub/rag/internal/vectorstore"
)

// Metadata is the structured metadata bag attached to a retrieved chunk.
// It is parsed from the flat string payload stored in the vector index.
type Metadata struct {
	Title      string
	Authors    []string
	Published  string // RFC 3339 or YYYY-MM-DD, may be empty
	Source     string
	Citations  int
	Categories []string
	URL        string
}

// PublishedTime parses the publication timestamp. The second return value
// reports whether a usable date was found.
func (m Metadata) PublishedTime() (time.Time, bool) {
	if m.Published == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, m.Published); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Candidate is a retrieved document chunk eligible for ranking and context
// assembly. It lives only for the duration of one query.
type Candidate struct {
	ID         string // chunk id, stable identity within one ranked list
	DocumentID string // owning paper id
	Content    string
	Metadata   Metadata

	// Score is the native relevance score of the strategy that produced the
	// candidate. Re-ranking never overwrites it.
	Score float64

	// Derived scores, populated by the hybrid strategy and the re-ranker.
	LexicalScore   float64
	RecencyScore   float64
	CitationScore  float64
	CombinedScore  float64
	RerankPosition int
}

// EffectiveScore returns the combined score when a re-ranking stage has set
// one, otherwise the native relevance score.
func (c Candidate) EffectiveScore() float64 {
	if c.CombinedScore != 0 {
		return c.CombinedScore
	}
	return c.Score
}

// fromSearchResult converts a vector store hit into a Candidate.
func fromSearchResult(r vectorstore.SearchResult) Candidate {
	return Candidate{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Content:    r.Content,
		Metadata:   parseMetadata(r.Metadata),
		Score:      float64(r.Score),
	}
}

// parseMetadata interprets the flat payload keys written at indexing time.
// Missing or malformed fields degrade to zero values, never errors.
func parseMetadata(m map[string]string) Metadata {
	md := Metadata{
		Title:     m["title"],
		Published: m["published"],
		Source:    m["source"],
		URL:       m["url"],
	}
	if v := m["authors"]; v != "" {
		md.Authors = splitList(v)
	}
	if v := m["categories"]; v != "" {
		md.Categories = splitList(v)
	}
	if v := m["citations"]; v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			md.Citations = n
		}
	}
	return md
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dedupeByID drops candidates whose chunk id was already seen, keeping the
// first (higher ranked) occurrence.
func dedupeByID(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// dedupeByContent drops candidates whose content term set is a near-duplicate
// of an earlier, higher-ranked candidate. Overlapping chunking windows produce
// passages with distinct ids but almost identical text.
func dedupeByContent(candidates []Candidate, threshold float64) []Candidate {
	out := candidates[:0:0]
	kept := make([]map[string]struct{}, 0, len(candidates))
	for _, c := range candidates {
		terms := Terms(c.Content)
		dup := false
		for _, k := range kept {
			if JaccardSimilarity(terms, k) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, c)
		kept = append(kept, terms)
	}
	return out
}
