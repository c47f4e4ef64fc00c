package retrieval

import "strings"

// Terms converts text into a set of lowercase terms for overlap scoring.
func Terms(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}=<>")
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}

// OverlapScore scores how much of the query vocabulary appears in the
// candidate text: |query ∩ candidate| / |query|. Returns 0 for an empty
// query term set.
func OverlapScore(queryTerms, candidateTerms map[string]struct{}) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	overlap := 0
	for t := range queryTerms {
		if _, ok := candidateTerms[t]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTerms))
}

// JaccardSimilarity computes |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func JaccardSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
