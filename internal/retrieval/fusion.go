package retrieval

import "sort"

// DefaultFusionK is the standard rank-smoothing constant for reciprocal rank
// fusion. Larger values flatten the difference between adjacent ranks.
const DefaultFusionK = 60

// FuseRankedLists merges multiple independently ranked candidate lists into a
// single ranking using reciprocal rank fusion: a candidate at 1-based rank r
// in a list contributes 1/(k+r) to its total, and candidates appearing in
// several lists accumulate one contribution per list. Raw scores are never
// compared across lists, so strategies with incomparable score scales fuse
// cleanly.
//
// The returned candidates carry the fused score in Score and are sorted by it
// descending. Ties resolve to first-seen order across the input lists, so the
// result is deterministic regardless of score collisions.
func FuseRankedLists(lists [][]Candidate, k int) []Candidate {
	if k <= 0 {
		k = DefaultFusionK
	}

	type accumulator struct {
		candidate Candidate
		fused     float64
	}
	byID := make(map[string]*accumulator)
	var firstSeen []string

	for _, list := range lists {
		for rank, c := range list {
			acc, ok := byID[c.ID]
			if !ok {
				acc = &accumulator{candidate: c}
				byID[c.ID] = acc
				firstSeen = append(firstSeen, c.ID)
			}
			acc.fused += 1.0 / float64(k+rank+1)
		}
	}

	fused := make([]Candidate, 0, len(firstSeen))
	for _, id := range firstSeen {
		acc := byID[id]
		c := acc.candidate
		c.Score = acc.fused
		fused = append(fused, c)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})

	return fused
}
