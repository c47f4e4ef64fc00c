package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paperhub/rag/internal/llm"
)

// scriptedLLM replies based on which processing stage the prompt belongs to.
type scriptedLLM struct {
	spelling string
	rewrite  string
	expand   string
	intent   string
	decomp   string
	err      error
}

func (f *scriptedLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (llm.GenerateResult, error) {
	if f.err != nil {
		return llm.GenerateResult{}, f.err
	}
	var text string
	switch {
	case strings.Contains(prompt, "spelling errors"):
		text = f.spelling
	case strings.Contains(prompt, "Rewrite this query"):
		text = f.rewrite
	case strings.Contains(prompt, "synonyms"):
		text = f.expand
	case strings.Contains(prompt, "Main intent"):
		text = f.intent
	case strings.Contains(prompt, "sub-queries"):
		text = f.decomp
	}
	return llm.GenerateResult{Text: text}, nil
}

func (f *scriptedLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func TestProcess_AllStages(t *testing.T) {
	p := NewProcessor(&scriptedLLM{
		spelling: "what is retrieval augmented generation",
		rewrite:  "retrieval augmented generation architecture for large language models",
		intent:   "Intent: definition\nEntities: RAG, LLM\nTime Scope: none",
	})

	got := p.Process(context.Background(), "wat is retrieval augmentd generation", DefaultOptions())

	if got.Original != "wat is retrieval augmentd generation" {
		t.Errorf("original query changed: %q", got.Original)
	}
	if got.Processed != "retrieval augmented generation architecture for large language models" {
		t.Errorf("unexpected processed query %q", got.Processed)
	}
	if got.Intent == nil {
		t.Fatal("expected intent info")
	}
	if got.Intent.Intent != IntentDefinition {
		t.Errorf("expected definition intent, got %s", got.Intent.Intent)
	}
	if len(got.Intent.Entities) != 2 || got.Intent.Entities[0] != "RAG" {
		t.Errorf("unexpected entities %v", got.Intent.Entities)
	}
	if got.Intent.TimeScope != "" {
		t.Errorf("expected no time scope, got %q", got.Intent.TimeScope)
	}
}

func TestProcess_StagesDisabled(t *testing.T) {
	p := NewProcessor(&scriptedLLM{spelling: "SHOULD NOT APPEAR", rewrite: "SHOULD NOT APPEAR"})

	got := p.Process(context.Background(), "my query", Options{})
	if got.Processed != "my query" {
		t.Errorf("disabled stages must leave the query unchanged, got %q", got.Processed)
	}
	if got.Intent != nil {
		t.Errorf("expected no intent extraction, got %v", got.Intent)
	}
}

func TestProcess_FailsOpenOnLLMError(t *testing.T) {
	p := NewProcessor(&scriptedLLM{err: errors.New("model unreachable")})

	got := p.Process(context.Background(), "my query", DefaultOptions())
	if got.Processed != "my query" {
		t.Errorf("expected original query on failure, got %q", got.Processed)
	}
	if got.Intent == nil || got.Intent.Intent != IntentResearchQuestion {
		t.Errorf("expected default intent on failure, got %v", got.Intent)
	}
	if len(got.Intent.Entities) != 0 {
		t.Errorf("expected no entities on failure, got %v", got.Intent.Entities)
	}
}

func TestProcess_QuotedRepliesCleaned(t *testing.T) {
	p := NewProcessor(&scriptedLLM{
		spelling: "\"corrected query\"",
		rewrite:  "  \"expanded corrected query\"  ",
	})

	got := p.Process(context.Background(), "corected query", Options{CorrectSpelling: true, Rewrite: true})
	if got.Processed != "expanded corrected query" {
		t.Errorf("expected cleaned reply, got %q", got.Processed)
	}
}

func TestProcess_ExpandRunsAfterRewrite(t *testing.T) {
	p := NewProcessor(&scriptedLLM{
		rewrite: "vector retrieval",
		expand:  "vector retrieval dense embedding nearest neighbor search",
	})

	got := p.Process(context.Background(), "vector search", Options{Rewrite: true, Expand: true})
	if got.Processed != "vector retrieval dense embedding nearest neighbor search" {
		t.Errorf("expected expanded retrieval text, got %q", got.Processed)
	}
}

func TestProcess_ExpandFailsOpen(t *testing.T) {
	p := NewProcessor(&scriptedLLM{err: errors.New("model unreachable")})

	got := p.Process(context.Background(), "vector search", Options{Expand: true})
	if got.Processed != "vector search" {
		t.Errorf("expected original query on expansion failure, got %q", got.Processed)
	}
}

func TestProcess_Decompose(t *testing.T) {
	p := NewProcessor(&scriptedLLM{
		decomp: "1. How do transformers work?\n2) What is attention?\n3 - Why does scale matter?\n4. extra beyond limit",
	})

	got := p.Process(context.Background(), "complex question", Options{Decompose: true, MaxSubQueries: 3})
	if len(got.SubQueries) != 3 {
		t.Fatalf("expected 3 sub-queries, got %v", got.SubQueries)
	}
	if got.SubQueries[0] != "How do transformers work?" {
		t.Errorf("expected numbering stripped, got %q", got.SubQueries[0])
	}
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in   string
		want Intent
	}{
		{"definition", IntentDefinition},
		{" Comparison ", IntentComparison},
		{"LATEST_NEWS", IntentLatestNews},
		{"something else", IntentResearchQuestion},
		{"", IntentResearchQuestion},
	}
	for _, tt := range tests {
		if got := ParseIntent(tt.in); got != tt.want {
			t.Errorf("ParseIntent(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
