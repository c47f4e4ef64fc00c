package retrieval

import (
	"math"
	"testing"
)

func rankedList(ids ...string) []Candidate {
	list := make([]Candidate, len(ids))
	for i, id := range ids {
		list[i] = Candidate{ID: id, Content: "content " + id}
	}
	return list
}

func TestFuseRankedLists_ScoreIsSumOfContributions(t *testing.T) {
	lists := [][]Candidate{
		rankedList("a", "b"),
		rankedList("b", "a"),
	}

	fused := FuseRankedLists(lists, 60)
	if len(fused) != 2 {
		t.Fatalf("expected 2 fused candidates, got %d", len(fused))
	}

	// Both appear at rank 0 in one list and rank 1 in the other.
	want := 1.0/61 + 1.0/62
	for _, c := range fused {
		if math.Abs(c.Score-want) > 1e-12 {
			t.Errorf("candidate %s: expected fused score %v, got %v", c.ID, want, c.Score)
		}
	}
}

func TestFuseRankedLists_FirstSeenTieBreak(t *testing.T) {
	lists := [][]Candidate{
		rankedList("a", "b", "c"),
		rankedList("b", "a", "d"),
	}

	fused := FuseRankedLists(lists, 60)

	got := make([]string, len(fused))
	for i, c := range fused {
		got[i] = c.ID
	}

	// a and b tie exactly, as do c and d; first-seen order breaks both ties.
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFuseRankedLists_CommutativeScores(t *testing.T) {
	forward := [][]Candidate{
		rankedList("a", "b", "c"),
		rankedList("c", "d"),
		rankedList("b"),
	}
	reversed := [][]Candidate{
		rankedList("b"),
		rankedList("c", "d"),
		rankedList("a", "b", "c"),
	}

	scoresOf := func(fused []Candidate) map[string]float64 {
		m := make(map[string]float64, len(fused))
		for _, c := range fused {
			m[c.ID] = c.Score
		}
		return m
	}

	a := scoresOf(FuseRankedLists(forward, 60))
	b := scoresOf(FuseRankedLists(reversed, 60))

	if len(a) != len(b) {
		t.Fatalf("expected same candidate sets, got %d vs %d", len(a), len(b))
	}
	for id, score := range a {
		if math.Abs(score-b[id]) > 1e-12 {
			t.Errorf("candidate %s: score %v differs from %v under reversed list order", id, score, b[id])
		}
	}
}

func TestFuseRankedLists_LengthBoundedByUnion(t *testing.T) {
	lists := [][]Candidate{
		rankedList("a", "b", "c"),
		rankedList("b", "c", "d"),
		rankedList("a", "d"),
	}

	fused := FuseRankedLists(lists, 60)
	if len(fused) != 4 {
		t.Errorf("expected union of 4 candidates, got %d", len(fused))
	}
}

func TestFuseRankedLists_DefaultK(t *testing.T) {
	lists := [][]Candidate{rankedList("a", "b")}

	explicit := FuseRankedLists(lists, DefaultFusionK)
	defaulted := FuseRankedLists(lists, 0)

	for i := range explicit {
		if explicit[i].Score != defaulted[i].Score {
			t.Errorf("k=0 should select the default: %v vs %v", explicit[i].Score, defaulted[i].Score)
		}
	}
}

func TestFuseRankedLists_Empty(t *testing.T) {
	if fused := FuseRankedLists(nil, 60); len(fused) != 0 {
		t.Errorf("expected no candidates for no lists, got %d", len(fused))
	}
	if fused := FuseRankedLists([][]Candidate{nil, {}}, 60); len(fused) != 0 {
		t.Errorf("expected no candidates for empty lists, got %d", len(fused))
	}
}
