// Package pipeline orchestrates a query end to end: query processing,
// retrieval, re-ranking, context assembly, and answer generation. A pipeline
// run always produces a Result; failures inside a run never escape as errors
// and never affect other in-flight queries.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/paperhub/rag/internal/assembler"
	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/memory"
	"github.com/paperhub/rag/internal/prompts"
	"github.com/paperhub/rag/internal/query"
	"github.com/paperhub/rag/internal/rerank"
	"github.com/paperhub/rag/internal/retrieval"
	"github.com/paperhub/rag/internal/vectorstore"
)

// FallbackAnswer is returned verbatim when a query fails at the retrieval or
// generation boundary.
const FallbackAnswer = "Sorry, I encountered an error processing your query. Please try again."

const (
	// DefaultBatchConcurrency bounds how many batch queries run at once.
	DefaultBatchConcurrency = 4

	// historyTurns is how many recent session turns are folded into the
	// generation prompt.
	historyTurns = 10
)

// Options tunes a single pipeline run. The zero value uses the pipeline's
// configured defaults.
type Options struct {
	TopK         int
	Filter       *vectorstore.Filter
	RerankMethod rerank.Method
	Style        prompts.Style
	Temperature  float32
	MaxTokens    int

	// SessionID enables conversation history for multi-turn sessions.
	SessionID string

	// Processing overrides the query-processing stage toggles. Nil uses
	// query.DefaultOptions.
	Processing *query.Options
}

// Pipeline wires the stages together. Construct with New; the zero value is
// not usable.
type Pipeline struct {
	processor    *query.Processor
	retriever    *retrieval.Retriever
	reranker     *rerank.Reranker
	builder      *assembler.Builder
	llm          llm.LLM
	model        string
	sessions     *memory.Store
	rerankMethod rerank.Method
	processing   query.Options
	style        prompts.Style
	temperature  float32
	maxTokens    int
	concurrency  int
	logger       *slog.Logger
}

// PipelineOption is a functional option for configuring a Pipeline.
type PipelineOption func(*Pipeline)

// WithGenerationModel sets the model used for answer generation.
func WithGenerationModel(model string) PipelineOption {
	return func(p *Pipeline) { p.model = model }
}

// WithSessions enables conversation memory.
func WithSessions(store *memory.Store) PipelineOption {
	return func(p *Pipeline) { p.sessions = store }
}

// WithRerankMethod sets the default re-ranking method.
func WithRerankMethod(m rerank.Method) PipelineOption {
	return func(p *Pipeline) { p.rerankMethod = m }
}

// WithProcessingOptions sets the query-processing stage toggles used when a
// request does not carry its own.
func WithProcessingOptions(opts query.Options) PipelineOption {
	return func(p *Pipeline) { p.processing = opts }
}

// WithStyle sets the default answer style.
func WithStyle(s prompts.Style) PipelineOption {
	return func(p *Pipeline) { p.style = s }
}

// WithTemperature sets the default generation temperature.
func WithTemperature(t float32) PipelineOption {
	return func(p *Pipeline) { p.temperature = t }
}

// WithMaxTokens sets the default generation token budget.
func WithMaxTokens(n int) PipelineOption {
	return func(p *Pipeline) { p.maxTokens = n }
}

// WithBatchConcurrency bounds BatchQuery fan-out.
func WithBatchConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a Pipeline over the given stages.
func New(
	processor *query.Processor,
	retriever *retrieval.Retriever,
	reranker *rerank.Reranker,
	builder *assembler.Builder,
	client llm.LLM,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		processor:    processor,
		retriever:    retriever,
		reranker:     reranker,
		builder:      builder,
		llm:          client,
		rerankMethod: rerank.MethodHybrid,
		processing:   query.DefaultOptions(),
		style:        prompts.StyleBalanced,
		temperature:  0.7,
		concurrency:  DefaultBatchConcurrency,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Query runs the full pipeline. It never returns an error: boundary failures
// produce a Result at StageFailed carrying FallbackAnswer, everything
// completed before the failure, and an error descriptor. An empty query and
// an empty retrieval result both short-circuit with a zero-cost result.
func (p *Pipeline) Query(ctx context.Context, userQuery string, opts Options) Result {
	start := time.Now()

	result := Result{
		ID:             uuid.NewString(),
		Query:          userQuery,
		ProcessedQuery: userQuery,
		Stage:          StageReceived,
		Timing:         make(map[string]time.Duration),
		Model:          p.model,
	}

	if strings.TrimSpace(userQuery) == "" {
		p.logger.Warn("empty query, skipping pipeline")
		result.Stage = StageDone
		result.Timing[TimingTotal] = time.Since(start)
		return result
	}

	p.logger.Info("processing query", "id", result.ID, "query", userQuery)

	// Stage 1: query processing. Fail-open by construction, never aborts.
	processed := p.processQuery(ctx, userQuery, opts, &result)
	result.Stage = StageProcessed

	// Stage 2: retrieval. Index or embedding failures are fatal for this
	// query.
	retrieveStart := time.Now()
	candidates, err := p.retrieve(ctx, processed, result.SubQueries, opts)
	result.Timing[TimingRetrieval] = time.Since(retrieveStart)
	if err != nil {
		return p.fail(&result, start, fmt.Errorf("retrieval: %w", err))
	}
	result.Stage = StageRetrieved

	if len(candidates) == 0 {
		p.logger.Info("no candidates retrieved", "id", result.ID)
		result.Stage = StageDone
		result.Timing[TimingTotal] = time.Since(start)
		return result
	}

	// Stage 3: re-ranking. Total, never fails.
	rerankStart := time.Now()
	method := opts.RerankMethod
	if method == "" {
		method = p.rerankMethod
	}
	candidates = p.reranker.Rerank(ctx, processed, candidates, opts.TopK, method)
	result.Retrieved = candidates
	result.Timing[TimingReranking] = time.Since(rerankStart)
	result.Stage = StageRanked

	// Stage 4: context assembly.
	contextStart := time.Now()
	contextText, citations := p.builder.Build(candidates)
	result.Context = contextText
	result.Citations = citations
	result.Timing[TimingContextBuilding] = time.Since(contextStart)
	result.Stage = StageContextBuilt

	// Stage 5: generation.
	generationStart := time.Now()
	intent := query.IntentResearchQuestion
	if result.Intent != nil {
		intent = result.Intent.Intent
	}
	answer, usage, err := p.generate(ctx, intent, userQuery, contextText, opts)
	result.Timing[TimingGeneration] = time.Since(generationStart)
	if err != nil {
		return p.fail(&result, start, fmt.Errorf("generation: %w", err))
	}
	result.Answer = answer
	result.Usage = usage
	result.Stage = StageGenerated

	p.recordTurns(opts.SessionID, userQuery, answer)

	result.Stage = StageDone
	result.Timing[TimingTotal] = time.Since(start)
	p.logger.Info("query done",
		"id", result.ID,
		"candidates", len(candidates),
		"citations", len(citations),
		"total_ms", result.Timing[TimingTotal].Milliseconds(),
	)
	return result
}

// QueryStream runs the pipeline through context assembly, then streams the
// generated answer. The first event is always EventMetadata carrying the
// retrieval outcome and citations; token events follow. The channel closes
// after EventDone or EventError, or when ctx is cancelled.
func (p *Pipeline) QueryStream(ctx context.Context, userQuery string, opts Options) <-chan StreamEvent {
	out := make(chan StreamEvent)

	go func() {
		defer close(out)

		if strings.TrimSpace(userQuery) == "" {
			p.send(ctx, out, StreamEvent{Type: EventMetadata})
			p.send(ctx, out, StreamEvent{Type: EventDone})
			return
		}

		result := Result{Timing: make(map[string]time.Duration)}
		processed := p.processQuery(ctx, userQuery, opts, &result)

		candidates, err := p.retrieve(ctx, processed, result.SubQueries, opts)
		if err != nil {
			p.send(ctx, out, StreamEvent{Type: EventError, Err: fmt.Sprintf("retrieval: %v", err)})
			return
		}

		method := opts.RerankMethod
		if method == "" {
			method = p.rerankMethod
		}
		candidates = p.reranker.Rerank(ctx, processed, candidates, opts.TopK, method)
		contextText, citations := p.builder.Build(candidates)

		if !p.send(ctx, out, StreamEvent{
			Type:      EventMetadata,
			Retrieved: len(candidates),
			Citations: citations,
		}) {
			return
		}

		if len(candidates) == 0 {
			p.send(ctx, out, StreamEvent{Type: EventDone})
			return
		}

		intent := query.IntentResearchQuestion
		if result.Intent != nil {
			intent = result.Intent.Intent
		}
		prompt := p.buildPrompt(intent, userQuery, contextText, opts.SessionID)

		chunks, err := p.llm.GenerateStream(ctx, prompt, p.generateOptions(opts))
		if err != nil {
			p.send(ctx, out, StreamEvent{Type: EventError, Err: fmt.Sprintf("generation: %v", err)})
			return
		}

		var answer strings.Builder
		for chunk := range chunks {
			if chunk.Error != nil {
				p.send(ctx, out, StreamEvent{Type: EventError, Err: fmt.Sprintf("generation: %v", chunk.Error)})
				return
			}
			if chunk.Done {
				break
			}
			if chunk.Token == "" {
				continue
			}
			answer.WriteString(chunk.Token)
			if !p.send(ctx, out, StreamEvent{Type: EventToken, Token: chunk.Token}) {
				return
			}
		}

		p.recordTurns(opts.SessionID, userQuery, answer.String())
		p.send(ctx, out, StreamEvent{Type: EventDone})
	}()

	return out
}

// BatchQuery runs independent pipelines for the queries with bounded
// concurrency. Results are positionally aligned with the input; per-query
// failures surface inside the corresponding Result, never as an error.
func (p *Pipeline) BatchQuery(ctx context.Context, queries []string, opts Options) []Result {
	results := make([]Result, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			results[i] = p.Query(ctx, q, opts)
			return nil
		})
	}
	// Workers never return errors; failures land in their Result.
	_ = g.Wait()

	return results
}

// retrieve gathers candidates for the query. When decomposition produced
// sub-queries, each one is retrieved independently and the ranked lists are
// merged with reciprocal rank fusion; otherwise a single retrieval runs.
func (p *Pipeline) retrieve(ctx context.Context, processed string, subQueries []string, opts Options) ([]retrieval.Candidate, error) {
	if len(subQueries) < 2 {
		return p.retriever.Retrieve(ctx, processed, opts.TopK, opts.Filter)
	}

	queries := append([]string{processed}, subQueries...)
	lists, err := p.retriever.BatchRetrieve(ctx, queries, opts.TopK, opts.Filter)
	if err != nil {
		return nil, err
	}

	fused := retrieval.FuseRankedLists(lists, retrieval.DefaultFusionK)
	topK := opts.TopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if len(fused) > topK {
		fused = fused[:topK]
	}
	p.logger.Debug("fused sub-query rankings", "lists", len(lists), "fused", len(fused))
	return fused, nil
}

// processQuery runs the query-processing stage, fills the result's
// processing fields, and returns the text to retrieve with.
func (p *Pipeline) processQuery(ctx context.Context, userQuery string, opts Options, result *Result) string {
	start := time.Now()
	defer func() { result.Timing[TimingQueryProcessing] = time.Since(start) }()

	procOpts := p.processing
	if opts.Processing != nil {
		procOpts = *opts.Processing
	}

	pq := p.processor.Process(ctx, userQuery, procOpts)
	result.ProcessedQuery = pq.Processed
	result.Intent = pq.Intent
	result.SubQueries = pq.SubQueries
	return pq.Processed
}

// generate builds the intent-keyed prompt and calls the LLM once. The
// question shown to the model is the original wording, not the
// retrieval-expanded one.
func (p *Pipeline) generate(ctx context.Context, intent query.Intent, userQuery, contextText string, opts Options) (string, llm.TokenUsage, error) {
	prompt := p.buildPrompt(intent, userQuery, contextText, opts.SessionID)

	res, err := p.llm.Generate(ctx, prompt, p.generateOptions(opts))
	if err != nil {
		return "", llm.TokenUsage{}, err
	}
	return res.Text, res.Usage, nil
}

func (p *Pipeline) generateOptions(opts Options) llm.GenerateOptions {
	style := opts.Style
	if style == "" {
		style = p.style
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	return llm.GenerateOptions{
		Model:        p.model,
		SystemPrompt: prompts.SystemPrompt(style),
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	}
}

// buildPrompt renders the intent-keyed user prompt, prefixed with recent
// session history when a session is active.
func (p *Pipeline) buildPrompt(intent query.Intent, userQuery, contextText, sessionID string) string {
	prompt := prompts.ForIntent(intent, userQuery, contextText)

	if p.sessions == nil || sessionID == "" {
		return prompt
	}
	history := memory.FormatForPrompt(p.sessions.History(sessionID, historyTurns))
	if history == "" {
		return prompt
	}
	return "Previous conversation:\n" + history + "\n" + prompt
}

func (p *Pipeline) recordTurns(sessionID, userQuery, answer string) {
	if p.sessions == nil || sessionID == "" {
		return
	}
	p.sessions.Append(sessionID, memory.RoleUser, userQuery)
	p.sessions.Append(sessionID, memory.RoleAssistant, answer)
}

// fail finalizes a result at StageFailed with the static fallback answer.
func (p *Pipeline) fail(result *Result, start time.Time, err error) Result {
	p.logger.Error("pipeline failed", "id", result.ID, "stage", string(result.Stage), "error", err)
	result.Stage = StageFailed
	result.Answer = FallbackAnswer
	result.Err = err.Error()
	result.Timing[TimingTotal] = time.Since(start)
	return *result
}

// send delivers an event unless the consumer is gone.
func (p *Pipeline) send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
