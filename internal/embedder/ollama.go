package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultOllamaBaseURL is the default Ollama API base URL.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaDimension is the default embedding dimension for nomic-embed-text.
	DefaultOllamaDimension = 768

	// DefaultBatchConcurrency is the default number of concurrent embedding requests.
	DefaultBatchConcurrency = 4
)

// OllamaEmbedder generates embeddings through Ollama's embeddings API.
type OllamaEmbedder struct {
	baseURL     string
	model       string
	dimension   int
	concurrency int
	client      *http.Client
}

// OllamaOption is a functional option for configuring OllamaEmbedder.
type OllamaOption func(*OllamaEmbedder)

// WithBaseURL sets a custom base URL for the Ollama API.
func WithBaseURL(url string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithModel sets the embedding model.
func WithModel(model string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.model = model
	}
}

// WithDimension sets the expected embedding dimension.
func WithDimension(d int) OllamaOption {
	return func(e *OllamaEmbedder) {
		if d > 0 {
			e.dimension = d
		}
	}
}

// WithConcurrency bounds concurrent requests during batch embedding.
func WithConcurrency(n int) OllamaOption {
	return func(e *OllamaEmbedder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.client = client
	}
}

// NewOllamaEmbedder creates a new Ollama embedder with the given options.
func NewOllamaEmbedder(opts ...OllamaOption) *OllamaEmbedder {
	e := &OllamaEmbedder{
		baseURL:     DefaultOllamaBaseURL,
		model:       DefaultOllamaModel,
		dimension:   DefaultOllamaDimension,
		concurrency: DefaultBatchConcurrency,
		client:      http.DefaultClient,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// embedRequest represents the request body for Ollama's embeddings API.
type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embedResponse represents the response from Ollama's embeddings API.
type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding vector for a single text input.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Newlines degrade embedding quality for most models.
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(msg))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned from ollama")
	}

	vector := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

// EmbedBatch embeds texts concurrently with bounded parallelism. The output
// is positionally aligned with the input; the first failure aborts the batch.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vector, err := e.Embed(ctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName returns the name of the embedding model being used.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Ensure OllamaEmbedder implements Embedder interface.
var _ Embedder = (*OllamaEmbedder)(nil)
