package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/retrieval"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (llm.GenerateResult, error) {
	if f.err != nil {
		return llm.GenerateResult{}, f.err
	}
	return llm.GenerateResult{Text: f.reply}, nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

// fixedClock pins recency scoring to the end of 2024.
func fixedClock() time.Time {
	return time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
}

func paperSet() []retrieval.Candidate {
	return []retrieval.Candidate{
		{ID: "a", Score: 0.85, Metadata: retrieval.Metadata{Published: "2023-01-01", Citations: 100}},
		{ID: "b", Score: 0.82, Metadata: retrieval.Metadata{Published: "2024-06-01", Citations: 10}},
		{ID: "c", Score: 0.80, Metadata: retrieval.Metadata{Published: "2024-01-01", Citations: 50}},
	}
}

func ids(candidates []retrieval.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.ID
	}
	return out
}

func assertOrder(t *testing.T, got []retrieval.Candidate, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %v", len(want), ids(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids(got))
		}
	}
}

func TestRerank_ScoreMethod(t *testing.T) {
	r := New(WithClock(fixedClock))

	shuffled := []retrieval.Candidate{
		{ID: "low", Score: 0.2},
		{ID: "high", Score: 0.9},
		{ID: "mid", Score: 0.5},
	}
	got := r.Rerank(context.Background(), "q", shuffled, 0, MethodScore)
	assertOrder(t, got, "high", "mid", "low")
}

func TestRerank_RecencyPromotesNewerPapers(t *testing.T) {
	r := New(WithClock(fixedClock))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodRecency)

	// The two-year-old paper loses its whole recency share; the mid-2024
	// paper overtakes despite the lower native score.
	assertOrder(t, got, "b", "c", "a")
	if got[2].RecencyScore != 0 {
		t.Errorf("paper at the decay horizon should score 0 recency, got %v", got[2].RecencyScore)
	}
	for _, c := range got {
		if c.Score == 0 {
			t.Errorf("candidate %s lost its native score", c.ID)
		}
	}
}

func TestRerank_RecencyUnparseableDate(t *testing.T) {
	r := New(WithClock(fixedClock))

	candidates := []retrieval.Candidate{
		{ID: "dated", Score: 0.5, Metadata: retrieval.Metadata{Published: "2024-12-01"}},
		{ID: "undated", Score: 0.5, Metadata: retrieval.Metadata{Published: "circa 2024"}},
	}
	got := r.Rerank(context.Background(), "q", candidates, 0, MethodRecency)

	assertOrder(t, got, "dated", "undated")
	if got[1].RecencyScore != 0 {
		t.Errorf("unparseable date should clamp recency to 0, got %v", got[1].RecencyScore)
	}
}

func TestRerank_CitationsPromoteCitedPapers(t *testing.T) {
	r := New(WithClock(fixedClock))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodCitations)

	// a: 0.8*0.85 + 0.2*1.0, c: 0.8*0.80 + 0.2*0.5, b: 0.8*0.82 + 0.2*0.1
	assertOrder(t, got, "a", "c", "b")
	if got[0].CitationScore != 1.0 {
		t.Errorf("most cited paper should normalize to 1, got %v", got[0].CitationScore)
	}
}

func TestRerank_AllZeroCitationsMatchesPureRelevance(t *testing.T) {
	r := New(WithClock(fixedClock))

	candidates := []retrieval.Candidate{
		{ID: "a", Score: 0.9},
		{ID: "b", Score: 0.7},
		{ID: "c", Score: 0.8},
	}
	byCit := r.Rerank(context.Background(), "q", candidates, 0, MethodCitations)
	byRel := r.Rerank(context.Background(), "q", candidates, 0, MethodScore)

	for i := range byCit {
		if byCit[i].ID != byRel[i].ID {
			t.Fatalf("all-zero citations must match pure relevance: %v vs %v", ids(byCit), ids(byRel))
		}
		if byCit[i].CitationScore != 0 {
			t.Errorf("candidate %s: expected citation score 0, got %v", byCit[i].ID, byCit[i].CitationScore)
		}
	}
}

func TestRerank_HybridAppliesBothSignals(t *testing.T) {
	r := New(WithClock(fixedClock))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodHybrid)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for i, c := range got {
		if c.RecencyScore == 0 && c.ID != "a" {
			t.Errorf("candidate %s missing recency signal", c.ID)
		}
		if c.RerankPosition != i+1 {
			t.Errorf("candidate %s: expected position %d, got %d", c.ID, i+1, c.RerankPosition)
		}
	}
}

func TestRerank_Idempotent(t *testing.T) {
	r := New(WithClock(fixedClock))

	for _, method := range []Method{MethodScore, MethodRecency, MethodCitations, MethodHybrid} {
		once := r.Rerank(context.Background(), "q", paperSet(), 0, method)
		twice := r.Rerank(context.Background(), "q", once, 0, method)
		for i := range once {
			if once[i].ID != twice[i].ID {
				t.Errorf("method %s not idempotent: %v vs %v", method, ids(once), ids(twice))
				break
			}
		}
	}
}

func TestRerank_JudgedFollowsOrdering(t *testing.T) {
	r := New(WithClock(fixedClock), WithJudge(&fakeLLM{reply: "3,1,2"}, "judge"))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodJudged)
	assertOrder(t, got, "c", "a", "b")
}

func TestRerank_JudgedMalformedReplyKeepsOriginalOrder(t *testing.T) {
	r := New(WithClock(fixedClock), WithJudge(&fakeLLM{reply: "abc"}, "judge"))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodJudged)
	assertOrder(t, got, "a", "b", "c")
}

func TestRerank_JudgedErrorKeepsOriginalOrder(t *testing.T) {
	r := New(WithClock(fixedClock), WithJudge(&fakeLLM{err: errors.New("model down")}, "judge"))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodJudged)
	assertOrder(t, got, "a", "b", "c")
}

func TestRerank_JudgedPartialOrderingAppendsRest(t *testing.T) {
	r := New(WithClock(fixedClock), WithJudge(&fakeLLM{reply: "2"}, "judge"))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodJudged)
	assertOrder(t, got, "b", "a", "c")
}

// scoringLLM replies per document, keyed by a content fragment in the prompt.
type scoringLLM struct {
	replies map[string]string
}

func (f *scoringLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (llm.GenerateResult, error) {
	for fragment, reply := range f.replies {
		if strings.Contains(prompt, fragment) {
			return llm.GenerateResult{Text: reply}, nil
		}
	}
	return llm.GenerateResult{Text: "no rating"}, nil
}

func (f *scoringLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func TestRerank_JudgedScoreOrdersByParsedRatings(t *testing.T) {
	judge := &scoringLLM{replies: map[string]string{
		"alpha": "Score: 0.3",
		"beta":  "0.9",
		"gamma": "definitely relevant", // no number in the reply
	}}
	r := New(WithClock(fixedClock), WithJudge(judge, "judge"))

	candidates := []retrieval.Candidate{
		{ID: "a", Score: 0.9, Content: "alpha"},
		{ID: "b", Score: 0.8, Content: "beta"},
		{ID: "c", Score: 0.7, Content: "gamma"},
	}
	got := r.Rerank(context.Background(), "q", candidates, 0, MethodJudgedScore)

	assertOrder(t, got, "b", "c", "a")
	if got[1].CombinedScore != FallbackScore {
		t.Errorf("unparseable rating should score %v, got %v", FallbackScore, got[1].CombinedScore)
	}
	if got[0].Score != 0.8 {
		t.Errorf("native score must survive judged scoring, got %v", got[0].Score)
	}
}

func TestRerank_JudgedScoreErrorFallsBackPerCandidate(t *testing.T) {
	r := New(WithClock(fixedClock), WithJudge(&fakeLLM{err: errors.New("model down")}, "judge"))

	got := r.Rerank(context.Background(), "q", paperSet(), 0, MethodJudgedScore)

	// Every judgment fails, so every candidate ties at the fallback score and
	// the stable sort keeps the original order.
	assertOrder(t, got, "a", "b", "c")
	for _, c := range got {
		if c.CombinedScore != FallbackScore {
			t.Errorf("candidate %s: expected fallback score, got %v", c.ID, c.CombinedScore)
		}
	}
}

func TestSnippetBacksOffToRuneBoundary(t *testing.T) {
	// A two-byte rune straddles the byte limit; the cut must land before it.
	content := strings.Repeat("a", judgeSnippetLimit-1) + "é" + strings.Repeat("b", 20)

	got := snippet(content)
	if !utf8.ValidString(got) {
		t.Fatal("snippet split a multi-byte rune")
	}
	if len(got) != judgeSnippetLimit-1 {
		t.Errorf("expected cut at %d bytes, got %d", judgeSnippetLimit-1, len(got))
	}
	if short := snippet("short"); short != "short" {
		t.Errorf("short content must pass through, got %q", short)
	}
}

func TestRerank_TopKCapsLast(t *testing.T) {
	r := New(WithClock(fixedClock))

	got := r.Rerank(context.Background(), "q", paperSet(), 2, MethodCitations)

	// The cap applies after re-ordering, so the most cited paper survives
	// even though it would be cut by a pre-ranking truncation.
	assertOrder(t, got, "a", "c")
}

func TestRerank_EmptyInput(t *testing.T) {
	r := New(WithClock(fixedClock))

	if got := r.Rerank(context.Background(), "q", nil, 5, MethodScore); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestRerank_DoesNotMutateInput(t *testing.T) {
	r := New(WithClock(fixedClock))

	input := paperSet()
	r.Rerank(context.Background(), "q", input, 0, MethodRecency)

	assertOrder(t, input, "a", "b", "c")
	if input[0].RerankPosition != 0 {
		t.Errorf("input slice was mutated: position %d", input[0].RerankPosition)
	}
}
