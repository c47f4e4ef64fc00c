package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paperhub/rag/internal/llm"
)

// Processor runs the query processing pipeline. Stages execute in fixed
// order: spelling correction, then rewrite over the corrected text, then
// intent extraction. Intent extraction also reads the corrected text, not
// the rewritten one, so classification reflects the user's wording rather
// than the retrieval-expanded form.
type Processor struct {
	llm    llm.LLM
	model  string
	logger *slog.Logger
}

// ProcessorOption is a functional option for configuring a Processor.
type ProcessorOption func(*Processor)

// WithModel sets the model used for all processing stages.
func WithModel(model string) ProcessorOption {
	return func(p *Processor) { p.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a query processor backed by the given LLM.
func NewProcessor(client llm.LLM, opts ...ProcessorOption) *Processor {
	p := &Processor{
		llm:    client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the enabled stages over the query. It never returns an error:
// every stage falls back to its input on failure, and intent extraction
// falls back to research_question with no entities or time scope.
func (p *Processor) Process(ctx context.Context, query string, opts Options) ProcessedQuery {
	corrected := query
	if opts.CorrectSpelling {
		corrected = p.correctSpelling(ctx, query)
	}

	processed := corrected
	if opts.Rewrite {
		processed = p.rewriteQuery(ctx, corrected)
	}
	if opts.Expand {
		processed = p.ExpandQuery(ctx, processed)
	}

	result := ProcessedQuery{
		Original:  query,
		Processed: processed,
	}

	if opts.ExtractIntent {
		info := p.extractIntent(ctx, corrected)
		result.Intent = &info
	}

	if opts.Decompose {
		n := opts.MaxSubQueries
		if n <= 0 {
			n = 3
		}
		result.SubQueries = p.generateSubQueries(ctx, corrected, n)
	}

	return result
}

// correctSpelling fixes spelling errors in the query. Fails open: on any
// error the input is returned unchanged.
func (p *Processor) correctSpelling(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(`Correct any spelling errors in this query. If there are no errors, return it unchanged.

Query: "%s"

Return only the corrected query, nothing else.`, query)

	reply, err := p.complete(ctx, prompt, "You are a spelling correction expert.", 0.1, 150)
	if err != nil {
		p.logger.Warn("spelling correction failed, keeping original query", "error", err)
		return query
	}

	corrected := cleanReply(reply)
	if corrected == "" {
		return query
	}
	if corrected != query {
		p.logger.Debug("corrected query", "original", query, "corrected", corrected)
	}
	return corrected
}

// rewriteQuery expands the query for semantic retrieval. Fails open to the
// post-correction text.
func (p *Processor) rewriteQuery(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(`You are an expert at reformulating search queries for academic paper retrieval.

Original query: "%s"

Rewrite this query to be more specific, detailed, and better suited for semantic search in a database of Large Language Model research papers. Include relevant technical terms and concepts.

Return only the rewritten query, nothing else.`, query)

	reply, err := p.complete(ctx, prompt, "You are a search query optimization expert.", 0.3, 200)
	if err != nil {
		p.logger.Warn("query rewrite failed, keeping corrected query", "error", err)
		return query
	}

	rewritten := cleanReply(reply)
	if rewritten == "" {
		return query
	}
	p.logger.Debug("rewrote query", "original", query, "rewritten", rewritten)
	return rewritten
}

// ExpandQuery adds synonyms and related technical terms while keeping the
// original meaning. Fails open to the input.
func (p *Processor) ExpandQuery(ctx context.Context, query string) string {
	prompt := fmt.Sprintf(`Add relevant synonyms and related technical terms to this query to improve semantic search.

Original query: "%s"

Return an expanded version that includes synonyms and related concepts, maintaining the original meaning. Keep it concise.`, query)

	reply, err := p.complete(ctx, prompt, "You are a semantic search expert.", 0.3, 200)
	if err != nil {
		p.logger.Warn("query expansion failed, keeping query", "error", err)
		return query
	}
	if expanded := cleanReply(reply); expanded != "" {
		return expanded
	}
	return query
}

// extractIntent classifies the query into the closed intent set and pulls
// out entities and time scope. The model reply is line-oriented free text;
// parse failures of any line default that field.
func (p *Processor) extractIntent(ctx context.Context, query string) IntentInfo {
	info := IntentInfo{Intent: IntentResearchQuestion}

	prompt := fmt.Sprintf(`Analyze this query and extract:
1. Main intent (research_question, definition, comparison, tutorial, latest_news, summary)
2. Key entities (specific models, techniques, papers mentioned)
3. Time scope (recent, historical, specific year, or none)

Query: "%s"

Respond in this exact format:
Intent: [one of the intents above]
Entities: [comma-separated list or "none"]
Time Scope: [time scope or "none"]`, query)

	reply, err := p.complete(ctx, prompt, "You are a query intent analyzer.", 0.2, 150)
	if err != nil {
		p.logger.Warn("intent extraction failed, using defaults", "error", err)
		return info
	}

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Intent:"):
			info.Intent = ParseIntent(strings.TrimPrefix(line, "Intent:"))
		case strings.HasPrefix(line, "Entities:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "Entities:"))
			if value != "" && !strings.EqualFold(value, "none") {
				for _, e := range strings.Split(value, ",") {
					if e = strings.TrimSpace(e); e != "" {
						info.Entities = append(info.Entities, e)
					}
				}
			}
		case strings.HasPrefix(line, "Time Scope:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "Time Scope:"))
			if value != "" && !strings.EqualFold(value, "none") {
				info.TimeScope = value
			}
		}
	}

	p.logger.Debug("extracted intent",
		"intent", string(info.Intent),
		"entities", len(info.Entities),
		"time_scope", info.TimeScope,
	)
	return info
}

// generateSubQueries breaks a complex query into up to n independent
// sub-queries. Fails open to a single-element slice holding the input.
func (p *Processor) generateSubQueries(ctx context.Context, query string, n int) []string {
	prompt := fmt.Sprintf(`Break down this complex query into %d specific sub-queries that can be answered independently.

Original query: "%s"

Generate %d focused sub-queries, one per line. Each should address a specific aspect of the original question.`, n, query, n)

	reply, err := p.complete(ctx, prompt, "You are a query decomposition expert.", 0.5, 300)
	if err != nil {
		p.logger.Warn("sub-query generation failed", "error", err)
		return []string{query}
	}

	var subQueries []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.-) ")
		if line != "" {
			subQueries = append(subQueries, line)
		}
		if len(subQueries) == n {
			break
		}
	}
	if len(subQueries) == 0 {
		return []string{query}
	}
	return subQueries
}

func (p *Processor) complete(ctx context.Context, prompt, system string, temperature float32, maxTokens int) (string, error) {
	result, err := p.llm.Generate(ctx, prompt, llm.GenerateOptions{
		Model:        p.model,
		SystemPrompt: system,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// cleanReply strips whitespace and surrounding quotes the model tends to
// echo back.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}
