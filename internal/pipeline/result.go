package pipeline

import (
	"time"

	"github.com/paperhub/rag/internal/assembler"
	"github.com/paperhub/rag/internal/llm"
	"github.com/paperhub/rag/internal/query"
	"github.com/paperhub/rag/internal/retrieval"
)

// Stage tracks how far a query made it through the pipeline. A Result created
// at query start advances stage by stage and ends at StageDone, or at
// StageFailed from any stage.
type Stage string

const (
	StageReceived     Stage = "received"
	StageProcessed    Stage = "processed"
	StageRetrieved    Stage = "retrieved"
	StageRanked       Stage = "ranked"
	StageContextBuilt Stage = "context_built"
	StageGenerated    Stage = "generated"
	StageDone         Stage = "done"

	// StageFailed is terminal and non-retryable for the query that reached
	// it; retries belong to the caller.
	StageFailed Stage = "failed"
)

// Timing keys for Result.Timing.
const (
	TimingQueryProcessing = "query_processing"
	TimingRetrieval       = "retrieval"
	TimingReranking       = "reranking"
	TimingContextBuilding = "context_building"
	TimingGeneration      = "generation"
	TimingTotal           = "total"
)

// Result is the complete outcome of one pipeline run. It is created empty at
// query start, filled incrementally, and returned whole; on failure it is
// partially filled, carries the user-safe fallback answer, and has Err set.
type Result struct {
	ID             string                   `json:"id"`
	Query          string                   `json:"query"`
	ProcessedQuery string                   `json:"processed_query"`
	Intent         *query.IntentInfo        `json:"intent,omitempty"`
	SubQueries     []string                 `json:"sub_queries,omitempty"`
	Retrieved      []retrieval.Candidate    `json:"retrieved_docs"`
	Context        string                   `json:"context"`
	Citations      []assembler.Citation     `json:"citations"`
	Answer         string                   `json:"answer"`
	Stage          Stage                    `json:"stage"`
	Timing         map[string]time.Duration `json:"timing"`
	Usage          llm.TokenUsage           `json:"usage"`
	Model          string                   `json:"model,omitempty"`
	Err            string                   `json:"error,omitempty"`
}

// StreamEventType discriminates streaming pipeline events.
type StreamEventType string

const (
	// EventMetadata is sent once, before any tokens: retrieval outcome and
	// the citation list the tokens will refer to.
	EventMetadata StreamEventType = "metadata"

	// EventToken carries one generated token.
	EventToken StreamEventType = "token"

	// EventError terminates the stream on generation failure.
	EventError StreamEventType = "error"

	// EventDone terminates the stream on success.
	EventDone StreamEventType = "done"
)

// StreamEvent is one element of the streaming query response.
type StreamEvent struct {
	Type      StreamEventType      `json:"type"`
	Retrieved int                  `json:"retrieved_docs,omitempty"`
	Citations []assembler.Citation `json:"citations,omitempty"`
	Token     string               `json:"token,omitempty"`
	Err       string               `json:"error,omitempty"`
}
