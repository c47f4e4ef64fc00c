package rerank

import (
	"regexp"
	"strconv"
	"strings"
)

// FallbackScore is the documented default when a numeric judgment reply
// cannot be parsed: the midpoint of the valid range.
const FallbackScore = 0.5

var (
	numberPattern  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	integerPattern = regexp.MustCompile(`\d+`)
)

// ParseScore extracts a relevance score from a free-text model reply using a
// permissive first-match-number rule: the first decimal or integer found is
// clamped to [0, 1]. Replies like "0.73", "Score: 0.7" and "1" all parse;
// anything without a number yields FallbackScore.
func ParseScore(reply string) float64 {
	match := numberPattern.FindString(reply)
	if match == "" {
		return FallbackScore
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return FallbackScore
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ParseOrdering extracts a document ordering from a free-text reply such as
// "3,1,5,2,4". Numbers are 1-based document indices; out-of-range values and
// duplicates are dropped. Returns nil when no valid index survives, which
// callers treat as "keep the original order".
func ParseOrdering(reply string, n int) []int {
	if n <= 0 {
		return nil
	}

	// Ignore everything after the first line break: models often append an
	// explanation below the ordering.
	if idx := strings.IndexByte(reply, '\n'); idx >= 0 {
		reply = reply[:idx]
	}

	matches := integerPattern.FindAllString(reply, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, n)
	ordering := make([]int, 0, n)
	for _, m := range matches {
		v, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		idx := v - 1
		if idx < 0 || idx >= n {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		ordering = append(ordering, idx)
	}
	if len(ordering) == 0 {
		return nil
	}
	return ordering
}
