package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paperhub/rag/internal/assembler"
	"github.com/paperhub/rag/internal/config"
	"github.com/paperhub/rag/internal/embedder"
	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/memory"
	"github.com/paperhub/rag/internal/pipeline"
	"github.com/paperhub/rag/internal/prompts"
	"github.com/paperhub/rag/internal/query"
	"github.com/paperhub/rag/internal/rerank"
	"github.com/paperhub/rag/internal/retrieval"
	"github.com/paperhub/rag/internal/server"
	"github.com/paperhub/rag/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting retrieval pipeline service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
	)

	// Qdrant vector store
	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL, cfg.QdrantCollection)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, cfg.EmbeddingDimension); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	slog.Info("connected to Qdrant", "collection", cfg.QdrantCollection)

	// Embedder stack: Ollama, wrapped with retry then an LRU cache.
	ollama := embedder.NewOllamaEmbedder(
		embedder.WithBaseURL(cfg.OllamaURL),
		embedder.WithModel(cfg.OllamaEmbeddingModel),
		embedder.WithDimension(cfg.EmbeddingDimension),
	)
	retrying := embedder.NewRetryingEmbedder(ollama, embedder.DefaultRetryAttempts)
	embed, err := embedder.NewCachedEmbedder(retrying, cfg.EmbeddingCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create embedding cache: %w", err)
	}
	slog.Info("initialized Ollama embedder", "model", cfg.OllamaEmbeddingModel)

	// Ollama LLM
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithModel(cfg.OllamaLLMModel),
	)
	slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)

	// Pipeline stages
	processor := query.NewProcessor(llmClient, query.WithModel(cfg.OllamaLLMModel))
	retriever := retrieval.NewRetriever(embed, store,
		retrieval.WithStrategy(retrieval.Strategy(cfg.SearchStrategy)),
		retrieval.WithTopK(cfg.TopK),
		retrieval.WithScoreThreshold(cfg.MinScore),
		retrieval.WithVectorWeight(cfg.VectorWeight),
	)
	reranker := rerank.New(
		rerank.WithJudge(llmClient, cfg.OllamaLLMModel),
		rerank.WithRecencyWeight(cfg.RecencyWeight),
		rerank.WithCitationWeight(cfg.CitationWeight),
	)
	builder := assembler.NewBuilder(cfg.MaxContextLength)

	sessions := memory.NewStore(memory.DefaultMaxTurns, memory.DefaultTTL)
	defer sessions.Close()

	pipe := pipeline.New(processor, retriever, reranker, builder, llmClient,
		pipeline.WithGenerationModel(cfg.OllamaLLMModel),
		pipeline.WithSessions(sessions),
		pipeline.WithRerankMethod(rerank.Method(cfg.RerankMethod)),
		pipeline.WithProcessingOptions(query.Options{
			CorrectSpelling: true,
			Rewrite:         cfg.EnableQueryRewriting,
			ExtractIntent:   true,
			Expand:          cfg.EnableQueryExpansion,
			MaxSubQueries:   3,
		}),
		pipeline.WithStyle(prompts.Style(cfg.PromptStyle)),
		pipeline.WithTemperature(cfg.Temperature),
		pipeline.WithMaxTokens(cfg.MaxTokens),
	)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Pipeline:       pipe,
		Retriever:      retriever,
		Logger:         slog.Default(),
		AllowedOrigins: []string{"*"}, // Configure in production
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// Ensure interfaces are satisfied at compile time
var (
	_ vectorstore.VectorStore = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder       = (*embedder.OllamaEmbedder)(nil)
	_ embedder.Embedder       = (*embedder.CachedEmbedder)(nil)
	_ embedder.Embedder       = (*embedder.RetryingEmbedder)(nil)
	_ llm.LLM                 = (*llm.OllamaClient)(nil)
)
