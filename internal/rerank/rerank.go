// Package rerank re-orders retrieved candidates using signals the initial
// retrieval did not see: publication recency, citation counts, or an LLM
// judgment call over query-document pairs.
//
// Every method is a total, stable order over its input (ties keep original
// order), caps to topK as its last step, and preserves the native relevance
// score alongside any combined score it computes. Judgment failures never
// error the query: malformed model output falls back to the original order.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/retrieval"
)

// Method selects the re-ranking signal. The set is closed; unknown values
// behave like MethodScore.
type Method string

const (
	// MethodScore sorts by the native relevance score.
	MethodScore Method = "score"

	// MethodRecency blends relevance with a linear two-year recency decay.
	MethodRecency Method = "recency"

	// MethodCitations blends relevance with max-normalized citation counts.
	MethodCitations Method = "citations"

	// MethodJudged asks an LLM to order the candidates by relevance.
	MethodJudged Method = "judged"

	// MethodJudgedScore asks an LLM to rate each candidate's relevance
	// individually on [0, 1] and sorts by the parsed scores.
	MethodJudgedScore Method = "judged_score"

	// MethodHybrid applies a low-weight recency pass, then a low-weight
	// citation pass over the recency-adjusted list.
	MethodHybrid Method = "hybrid"
)

const (
	// DefaultRecencyWeight is the recency share when MethodRecency runs alone.
	DefaultRecencyWeight = 0.3

	// DefaultCitationWeight is the citation share when MethodCitations runs alone.
	DefaultCitationWeight = 0.2

	// Weights for the two sequential passes of MethodHybrid. The sequential
	// composition (recency first, citations second, stage-2 relevance taken
	// from the native score with stage-1 order as the tie-break baseline) is
	// preserved for compatibility with the established ranking behavior.
	// Treat these, and the composition itself, as tunables.
	hybridRecencyWeight  = 0.2
	hybridCitationWeight = 0.2

	// recencyDecayDays is the window over which recency decays linearly to
	// zero. Unparseable or missing dates clamp to zero.
	recencyDecayDays = 730

	// judgeSnippetLimit bounds the candidate text shown to the judge.
	judgeSnippetLimit = 500
)

// Reranker re-orders candidate lists. The zero value is not usable; construct
// with New.
type Reranker struct {
	llm            llm.LLM // only needed for MethodJudged
	model          string
	recencyWeight  float64
	citationWeight float64
	now            func() time.Time
	logger         *slog.Logger
}

// Option is a functional option for configuring a Reranker.
type Option func(*Reranker)

// WithJudge sets the LLM used by MethodJudged.
func WithJudge(client llm.LLM, model string) Option {
	return func(r *Reranker) {
		r.llm = client
		r.model = model
	}
}

// WithRecencyWeight overrides the standalone recency weight.
func WithRecencyWeight(w float64) Option {
	return func(r *Reranker) {
		if w >= 0 && w <= 1 {
			r.recencyWeight = w
		}
	}
}

// WithCitationWeight overrides the standalone citation weight.
func WithCitationWeight(w float64) Option {
	return func(r *Reranker) {
		if w >= 0 && w <= 1 {
			r.citationWeight = w
		}
	}
}

// WithClock overrides the time source used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Reranker) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reranker) { r.logger = l }
}

// New creates a Reranker.
func New(opts ...Option) *Reranker {
	r := &Reranker{
		recencyWeight:  DefaultRecencyWeight,
		citationWeight: DefaultCitationWeight,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank re-orders candidates with the chosen method and caps the result to
// topK. The input slice is never mutated. Rerank cannot fail: judgment-call
// problems fall back to the original order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int, method Method) []retrieval.Candidate {
	if len(candidates) == 0 {
		return nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	work := make([]retrieval.Candidate, len(candidates))
	copy(work, candidates)

	switch method {
	case MethodRecency:
		work = r.byRecency(work, r.recencyWeight)
	case MethodCitations:
		work = r.byCitations(work, r.citationWeight)
	case MethodJudged:
		work = r.judged(ctx, query, work)
	case MethodJudgedScore:
		work = r.judgedScore(ctx, query, work)
	case MethodHybrid:
		work = r.byRecency(work, hybridRecencyWeight)
		work = r.byCitations(work, hybridCitationWeight)
	default:
		work = byScore(work)
	}

	if len(work) > topK {
		work = work[:topK]
	}
	for i := range work {
		work[i].RerankPosition = i + 1
	}
	return work
}

// byScore sorts by the native relevance score, stable on ties.
func byScore(candidates []retrieval.Candidate) []retrieval.Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// byRecency computes recency = max(0, 1 - daysSincePublished/730) and sorts
// by combined = (1-w)*relevance + w*recency.
func (r *Reranker) byRecency(candidates []retrieval.Candidate, w float64) []retrieval.Candidate {
	now := r.now()
	for i := range candidates {
		recency := 0.0
		if published, ok := candidates[i].Metadata.PublishedTime(); ok {
			days := now.Sub(published).Hours() / 24
			recency = 1 - days/recencyDecayDays
			if recency < 0 {
				recency = 0
			}
		}
		candidates[i].RecencyScore = recency
		candidates[i].CombinedScore = (1-w)*candidates[i].Score + w*recency
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return candidates
}

// byCitations normalizes citation counts by the maximum present in the set
// (max 1 when every count is zero, avoiding division by zero) and sorts by
// combined = (1-w)*relevance + w*citationScore.
func (r *Reranker) byCitations(candidates []retrieval.Candidate, w float64) []retrieval.Candidate {
	maxCitations := 1
	for _, c := range candidates {
		if c.Metadata.Citations > maxCitations {
			maxCitations = c.Metadata.Citations
		}
	}

	for i := range candidates {
		score := float64(candidates[i].Metadata.Citations) / float64(maxCitations)
		candidates[i].CitationScore = score
		candidates[i].CombinedScore = (1-w)*candidates[i].Score + w*score
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return candidates
}

// judged asks the LLM to order the candidates by relevance to the query.
// Any failure, whether the call itself or an unparseable ordering, falls
// back to the original input order.
func (r *Reranker) judged(ctx context.Context, query string, candidates []retrieval.Candidate) []retrieval.Candidate {
	if r.llm == nil {
		r.logger.Warn("judged re-ranking requested without a judge, keeping original order")
		return candidates
	}

	prompt := r.buildJudgePrompt(query, candidates)
	result, err := r.llm.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		r.logger.Warn("judged re-ranking call failed, keeping original order", "error", err)
		return candidates
	}

	ordering := ParseOrdering(result.Text, len(candidates))
	if ordering == nil {
		r.logger.Warn("could not parse judge ordering, keeping original order", "reply", result.Text)
		return candidates
	}

	reordered := make([]retrieval.Candidate, 0, len(candidates))
	used := make(map[int]struct{}, len(ordering))
	for _, idx := range ordering {
		reordered = append(reordered, candidates[idx])
		used[idx] = struct{}{}
	}
	// Candidates the judge did not mention keep their relative order at the
	// tail, so the result stays a total order over the input.
	for i, c := range candidates {
		if _, ok := used[i]; !ok {
			reordered = append(reordered, c)
		}
	}
	return reordered
}

// judgedScore asks the LLM for a relevance rating per candidate and sorts by
// the parsed scores. A failed call or an unparseable reply scores the single
// candidate at FallbackScore instead of degrading the whole list.
func (r *Reranker) judgedScore(ctx context.Context, query string, candidates []retrieval.Candidate) []retrieval.Candidate {
	if r.llm == nil {
		r.logger.Warn("judged scoring requested without a judge, keeping original order")
		return candidates
	}

	for i := range candidates {
		candidates[i].CombinedScore = r.judgeOne(ctx, query, candidates[i])
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return candidates
}

func (r *Reranker) judgeOne(ctx context.Context, query string, c retrieval.Candidate) float64 {
	prompt := fmt.Sprintf(`Rate the relevance of the document to the query on a scale from 0 to 1.

Query: %q

Document:
%s

Respond with ONLY a number between 0 and 1.`, query, snippet(c.Content))

	result, err := r.llm.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		r.logger.Warn("relevance judgment failed, using fallback score", "id", c.ID, "error", err)
		return FallbackScore
	}
	return ParseScore(result.Text)
}

func (r *Reranker) buildJudgePrompt(query string, candidates []retrieval.Candidate) string {
	var sb strings.Builder

	sb.WriteString("Given the query and documents below, rank the documents by relevance to the query.\n\n")
	sb.WriteString(fmt.Sprintf("Query: %q\n\n", query))
	sb.WriteString("Documents:\n")
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("\n[Doc %d]\n%s\n", i+1, snippet(c.Content)))
	}
	sb.WriteString("\nRespond with ONLY the document numbers in order of relevance (most relevant first), comma-separated.\n")
	sb.WriteString("Example: 3,1,5,2,4")

	return sb.String()
}

// snippet bounds candidate text shown to the judge, backing off to a rune
// boundary so a multi-byte character is never split.
func snippet(content string) string {
	if len(content) <= judgeSnippetLimit {
		return content
	}
	cut := judgeSnippetLimit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut]
}
