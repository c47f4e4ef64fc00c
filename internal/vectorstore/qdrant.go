package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
)

// upsertBatchSize bounds the number of points per upsert request.
const upsertBatchSize = 100

// QdrantStore implements VectorStore using a single Qdrant collection of
// research-paper chunks.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantStore creates a Qdrant-backed vector store.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantStore(ctx context.Context, url, collection string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		logger:     slog.Default(),
	}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the collection if it does not exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.Info("created collection", "collection", s.collection, "dimension", dimension)
	return nil
}

// Upsert inserts or updates chunks, writing at most upsertBatchSize points
// per request.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]*qdrant.Value{
			"document_id": qdrant.NewValueString(chunk.DocumentID),
			"content":     qdrant.NewValueString(chunk.Content),
		}
		for k, v := range chunk.Metadata {
			payload[k] = payloadValue(v)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Payload: payload,
			Vectors: qdrant.NewVectors(chunk.Vector...),
		}
	}

	batches := (len(points) + upsertBatchSize - 1) / upsertBatchSize
	for i := 0; i < len(points); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d/%d: %w", i/upsertBatchSize+1, batches, err)
		}
		s.logger.Debug("indexed batch", "batch", i/upsertBatchSize+1, "total", batches)
	}

	return nil
}

// Search performs dense similarity search with optional payload filtering.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter, scoreThreshold float32) ([]SearchResult, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if scoreThreshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(scoreThreshold)
	}
	if !filter.IsZero() {
		query.Filter = buildFilter(filter)
	}

	response, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0, len(response))
	for _, point := range response {
		result := SearchResult{
			ID:       point.Id.GetUuid(),
			Score:    point.Score,
			Metadata: make(map[string]string),
		}

		if payload := point.Payload; payload != nil {
			if docID, ok := payload["document_id"]; ok {
				result.DocumentID = docID.GetStringValue()
			}
			if content, ok := payload["content"]; ok {
				result.Content = content.GetStringValue()
			}
			for k, v := range payload {
				if k != "document_id" && k != "content" {
					result.Metadata[k] = valueString(v)
				}
			}
		}

		results = append(results, result)
	}

	return results, nil
}

// Delete removes all chunks belonging to a document.
func (s *QdrantStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("document_id", documentID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete by document ID: %w", err)
	}

	return nil
}

// buildFilter translates the abstract filter into Qdrant must-conditions.
func buildFilter(f *Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	for field, value := range f.Match {
		must = append(must, qdrant.NewMatch(field, value))
	}
	for field, bound := range f.Gte {
		must = append(must, qdrant.NewRange(field, &qdrant.Range{
			Gte: qdrant.PtrOf(bound),
		}))
	}
	return &qdrant.Filter{Must: must}
}

// payloadValue stores integer-valued metadata as numbers so range filters
// work against them; everything else stays a string.
func payloadValue(v string) *qdrant.Value {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return qdrant.NewValueInt(n)
	}
	return qdrant.NewValueString(v)
}

// valueString renders a payload value back to its string form.
func valueString(v *qdrant.Value) string {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(kind.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(kind.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(kind.BoolValue)
	default:
		return v.GetStringValue()
	}
}

// Ensure QdrantStore implements VectorStore
var _ VectorStore = (*QdrantStore)(nil)
