package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/paperhub/rag/internal/pipeline"
	"github.com/paperhub/rag/internal/prompts"
	"github.com/paperhub/rag/internal/rerank"
	"github.com/paperhub/rag/internal/vectorstore"
)

type filterSpec struct {
	Match map[string]string  `json:"match,omitempty"`
	Gte   map[string]float64 `json:"gte,omitempty"`
}

type queryRequest struct {
	Query        string      `json:"query"`
	TopK         int         `json:"top_k,omitempty"`
	RerankMethod string      `json:"rerank_method,omitempty"`
	Style        string      `json:"style,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	Temperature  float32     `json:"temperature,omitempty"`
	MaxTokens    int         `json:"max_tokens,omitempty"`
	Filters      *filterSpec `json:"filters,omitempty"`
}

type batchQueryRequest struct {
	Queries []string `json:"queries"`
	TopK    int      `json:"top_k,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (r queryRequest) pipelineOptions() pipeline.Options {
	opts := pipeline.Options{
		TopK:         r.TopK,
		RerankMethod: rerank.Method(r.RerankMethod),
		Style:        prompts.Style(r.Style),
		SessionID:    r.SessionID,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
	}
	if r.Filters != nil {
		opts.Filter = &vectorstore.Filter{
			Match: r.Filters.Match,
			Gte:   r.Filters.Gte,
		}
	}
	return opts
}

func (s *HTTPServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	result := s.pipeline.Query(r.Context(), req.Query, req.pipelineOptions())
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleBatchQuery(w http.ResponseWriter, r *http.Request) {
	var req batchQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, http.StatusBadRequest, "queries are required")
		return
	}

	results := s.pipeline.BatchQuery(r.Context(), req.Queries, pipeline.Options{TopK: req.TopK})
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	var filter *vectorstore.Filter
	if req.Filters != nil {
		filter = &vectorstore.Filter{Match: req.Filters.Match, Gte: req.Filters.Gte}
	}

	candidates, err := s.retriever.Retrieve(r.Context(), req.Query, req.TopK, filter)
	if err != nil {
		s.logger.Error("retrieve failed", "error", err)
		writeError(w, http.StatusBadGateway, "retrieval failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

// handleQueryStream streams pipeline events as server-sent events. The first
// event carries retrieval metadata and citations, then one event per token.
func (s *HTTPServer) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.pipeline.QueryStream(r.Context(), req.Query, req.pipelineOptions())
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("encoding stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
		flusher.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
