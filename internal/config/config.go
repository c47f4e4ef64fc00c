// Package config loads configuration from environment variables and .env files.
package config

import (
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the retrieval pipeline service.
type Config struct {
	// Server
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Qdrant
	QdrantGRPCURL    string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantCollection string `env:"QDRANT_COLLECTION" envDefault:"papers"`

	// Ollama
	OllamaURL            string `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	OllamaLLMModel       string `env:"OLLAMA_LLM_MODEL" envDefault:"llama3.2"`
	EmbeddingDimension   int    `env:"EMBEDDING_DIMENSION" envDefault:"768"`
	EmbeddingCacheSize   int    `env:"EMBEDDING_CACHE_SIZE" envDefault:"4096"`

	// Retrieval
	SearchStrategy string  `env:"SEARCH_STRATEGY" envDefault:"hybrid"`
	TopK           int     `env:"TOP_K" envDefault:"10"`
	MinScore       float32 `env:"MIN_SCORE" envDefault:"0"`
	VectorWeight   float64 `env:"VECTOR_WEIGHT" envDefault:"0.7"`

	// Re-ranking
	RerankMethod   string  `env:"RERANK_METHOD" envDefault:"hybrid"`
	RecencyWeight  float64 `env:"RECENCY_WEIGHT" envDefault:"0.3"`
	CitationWeight float64 `env:"CITATION_WEIGHT" envDefault:"0.2"`

	// Generation
	MaxContextLength int     `env:"MAX_CONTEXT_LENGTH" envDefault:"4000"`
	PromptStyle      string  `env:"PROMPT_STYLE" envDefault:"balanced"`
	Temperature      float32 `env:"TEMPERATURE" envDefault:"0.7"`
	MaxTokens        int     `env:"MAX_TOKENS" envDefault:"1024"`

	// Query processing
	EnableQueryRewriting bool `env:"ENABLE_QUERY_REWRITING" envDefault:"true"`
	EnableQueryExpansion bool `env:"ENABLE_QUERY_EXPANSION" envDefault:"false"`
}

// Load loads configuration from .env file (if present) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
