package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/paperhub/rag/internal/embedder"
	"github.com/paperhub/rag/internal/vectorstore"
)

// Strategy selects how candidates are gathered from the vector index.
type Strategy string

const (
	// StrategyVector runs a single dense similarity search and passes the
	// index's native scores through unchanged.
	StrategyVector Strategy = "vector"

	// StrategyHybrid over-fetches a dense search and re-scores each hit by
	// combining the vector score with lexical term overlap.
	StrategyHybrid Strategy = "hybrid"

	// StrategyKeyword degrades to StrategyVector: the index carries no
	// native lexical index, so a true keyword search is not available.
	// This is a documented limitation, not a silent fallback.
	StrategyKeyword Strategy = "keyword"
)

const (
	// DefaultTopK is the number of candidates returned when the caller does
	// not override it.
	DefaultTopK = 10

	// DefaultVectorWeight is the dense-score weight in hybrid re-scoring;
	// the lexical overlap score receives the remaining 1-w.
	DefaultVectorWeight = 0.7

	// hybridOverFetch widens the initial dense search so overlap re-scoring
	// has enough material before truncation to topK.
	hybridOverFetch = 2

	// nearDuplicateThreshold is the Jaccard similarity over content terms
	// above which two candidates count as the same passage.
	nearDuplicateThreshold = 0.9
)

// Retriever issues vector and hybrid searches and produces deduplicated,
// score-populated candidate lists.
type Retriever struct {
	embedder       embedder.Embedder
	store          vectorstore.VectorStore
	strategy       Strategy
	topK           int
	scoreThreshold float32
	vectorWeight   float64
	logger         *slog.Logger
}

// Option is a functional option for configuring a Retriever.
type Option func(*Retriever)

// WithStrategy sets the retrieval strategy.
func WithStrategy(s Strategy) Option {
	return func(r *Retriever) { r.strategy = s }
}

// WithTopK sets the default result count.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithScoreThreshold sets the minimum native similarity score.
func WithScoreThreshold(t float32) Option {
	return func(r *Retriever) { r.scoreThreshold = t }
}

// WithVectorWeight sets the dense-score weight used by the hybrid strategy.
func WithVectorWeight(w float64) Option {
	return func(r *Retriever) {
		if w > 0 && w <= 1 {
			r.vectorWeight = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever over the given embedder and vector store.
func NewRetriever(emb embedder.Embedder, store vectorstore.VectorStore, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:     emb,
		store:        store,
		strategy:     StrategyHybrid,
		topK:         DefaultTopK,
		vectorWeight: DefaultVectorWeight,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most topK deduplicated candidates for the query.
// Score always carries the underlying index's native score; the hybrid
// strategy additionally records the weighted vector+lexical combination in
// CombinedScore and orders by it. Any failure at the embedding or index
// boundary is fatal for the query and propagates to the caller.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter *vectorstore.Filter) ([]Candidate, error) {
	if topK <= 0 {
		topK = r.topK
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var candidates []Candidate
	switch r.strategy {
	case StrategyHybrid:
		candidates, err = r.hybridSearch(ctx, vector, query, topK, filter)
	case StrategyKeyword:
		r.logger.Warn("keyword strategy has no lexical index, degrading to vector search")
		candidates, err = r.vectorSearch(ctx, vector, topK, filter)
	default:
		candidates, err = r.vectorSearch(ctx, vector, topK, filter)
	}
	if err != nil {
		return nil, err
	}

	candidates = dedupeByID(candidates)
	candidates = dedupeByContent(candidates, nearDuplicateThreshold)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	r.logger.Debug("retrieved candidates",
		"strategy", string(r.strategy),
		"count", len(candidates),
	)
	return candidates, nil
}

// BatchRetrieve runs Retrieve for each query independently. The result slice
// is positionally aligned with the input; the first failure aborts the batch.
func (r *Retriever) BatchRetrieve(ctx context.Context, queries []string, topK int, filter *vectorstore.Filter) ([][]Candidate, error) {
	results := make([][]Candidate, len(queries))
	for i, q := range queries {
		candidates, err := r.Retrieve(ctx, q, topK, filter)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		results[i] = candidates
	}
	return results, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, vector []float32, limit int, filter *vectorstore.Filter) ([]Candidate, error) {
	hits, err := r.store.Search(ctx, vector, limit, filter, r.scoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	candidates := make([]Candidate, len(hits))
	for i, h := range hits {
		candidates[i] = fromSearchResult(h)
	}
	return candidates, nil
}

// hybridSearch re-scores an over-fetched dense result set with lexical term
// overlap: combined = w*vector + (1-w)*overlap, then re-sorts descending.
func (r *Retriever) hybridSearch(ctx context.Context, vector []float32, query string, limit int, filter *vectorstore.Filter) ([]Candidate, error) {
	candidates, err := r.vectorSearch(ctx, vector, limit*hybridOverFetch, filter)
	if err != nil {
		return nil, err
	}

	queryTerms := Terms(query)
	lexicalWeight := 1 - r.vectorWeight
	for i := range candidates {
		overlap := OverlapScore(queryTerms, Terms(candidates[i].Content))
		candidates[i].LexicalScore = overlap
		candidates[i].CombinedScore = r.vectorWeight*candidates[i].Score + lexicalWeight*overlap
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CombinedScore > candidates[j].CombinedScore
	})
	return candidates, nil
}
