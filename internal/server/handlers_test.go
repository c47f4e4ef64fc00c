package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paperhub/rag/internal/assembler"
	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/pipeline"
	"github.com/paperhub/rag/internal/query"
	"github.com/paperhub/rag/internal/rerank"
	"github.com/paperhub/rag/internal/retrieval"
	"github.com/paperhub/rag/internal/vectorstore"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int    { return 3 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubStore struct{}

func (stubStore) EnsureCollection(ctx context.Context, dimension int) error    { return nil }
func (stubStore) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error { return nil }
func (stubStore) Delete(ctx context.Context, documentID string) error          { return nil }

func (stubStore) Search(ctx context.Context, vector []float32, limit int, filter *vectorstore.Filter, scoreThreshold float32) ([]vectorstore.SearchResult, error) {
	return []vectorstore.SearchResult{
		{ID: "1", DocumentID: "d1", Content: "attention is all you need", Score: 0.9,
			Metadata: map[string]string{"title": "Paper One"}},
	}, nil
}

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (llm.GenerateResult, error) {
	return llm.GenerateResult{Text: "the answer [1]"}, nil
}

func (stubLLM) GenerateStream(ctx context.Context, prompt string, opts llm.GenerateOptions) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Token: "the answer"}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func newTestServer() *HTTPServer {
	retriever := retrieval.NewRetriever(stubEmbedder{}, stubStore{}, retrieval.WithStrategy(retrieval.StrategyVector))
	pipe := pipeline.New(
		query.NewProcessor(stubLLM{}),
		retriever,
		rerank.New(),
		assembler.NewBuilder(0),
		stubLLM{},
		pipeline.WithRerankMethod(rerank.MethodScore),
	)
	return NewHTTPServer(HTTPServerConfig{
		Port:      0,
		Pipeline:  pipe,
		Retriever: retriever,
	})
}

func TestHandleQuery(t *testing.T) {
	s := newTestServer()

	body := `{"query": "what is attention?", "top_k": 3}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if result.Answer != "the answer [1]" {
		t.Errorf("unexpected answer %q", result.Answer)
	}
	if result.Stage != pipeline.StageDone {
		t.Errorf("expected done stage, got %s", result.Stage)
	}
}

func TestHandleQuery_MissingQuery(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRetrieve(t *testing.T) {
	s := newTestServer()

	body := `{"query": "attention", "filters": {"match": {"source": "arxiv"}, "gte": {"citations": 10}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Candidates []retrieval.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Errorf("expected 1 candidate, got %d", len(resp.Candidates))
	}
}

func TestHandleBatchQuery(t *testing.T) {
	s := newTestServer()

	body := `{"queries": ["first", "second"]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Results []pipeline.Result `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(resp.Results))
	}
}

func TestHandleQueryStream(t *testing.T) {
	s := newTestServer()

	body := `{"query": "what is attention?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}

	out := rec.Body.String()
	if !strings.Contains(out, "event: metadata") {
		t.Error("missing metadata event")
	}
	if !strings.Contains(out, "event: token") {
		t.Error("missing token events")
	}
	if !strings.Contains(out, "event: done") {
		t.Error("missing done event")
	}

	// Metadata must precede the first token.
	if strings.Index(out, "event: metadata") > strings.Index(out, "event: token") {
		t.Error("metadata event must come first")
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer()

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}
