package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys written alongside every point.
const (
	payloadContent = "content"
	payloadSource  = "source"
)

// QdrantConfig holds connection parameters for a Qdrant-backed index.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use (default: docqa).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this
	// collection. Zero takes the size of the first inserted vector.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index on a Qdrant collection. The collection is
// created on first insert and deleted on Drop, so "no collection" is the
// EMPTY state.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex creates a Qdrant client for cfg. No RPC is made until the
// first Index call.
func NewQdrantIndex(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "docqa"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// Client exposes the gRPC client for readiness probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// Load reports how many points the collection already holds.
func (q *QdrantIndex) Load(ctx context.Context) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return 0, nil
	}
	return q.count(ctx)
}

// Add upserts entries as points, creating the collection if needed. Points
// already stored for the sources in entries are removed first, so a
// re-uploaded file never keeps chunks from its previous version. It returns
// the exact number of points afterwards.
func (q *QdrantIndex) Add(ctx context.Context, entries []Entry) (int, error) {
	if len(entries) == 0 {
		return q.count(ctx)
	}
	size := q.cfg.VectorSize
	if size == 0 {
		size = uint64(len(entries[0].Vector))
	}
	if err := q.ensureCollection(ctx, size); err != nil {
		return 0, err
	}
	if err := q.deleteSources(ctx, entrySources(entries)); err != nil {
		return 0, err
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, e := range entries {
		payload := map[string]any{
			payloadContent: e.Chunk.Content,
			payloadSource:  e.Chunk.Source,
		}
		for k, v := range e.Chunk.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(e.Chunk.ID),
			Vectors: qdrant.NewVectors(e.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return q.count(ctx)
}

// Search performs a cosine similarity search and returns the top-k results.
func (q *QdrantIndex) Search(ctx context.Context, vector []float32, topK int) ([]Chunk, error) {
	limit := uint64(topK)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		c := Chunk{
			ID:       r.GetId().GetUuid(),
			Score:    r.GetScore(),
			Metadata: make(map[string]string),
		}
		for k, v := range r.GetPayload() {
			switch k {
			case payloadContent:
				c.Content = v.GetStringValue()
			case payloadSource:
				c.Source = v.GetStringValue()
			default:
				c.Metadata[k] = v.GetStringValue()
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DeleteSource removes every point whose source payload equals source, then
// returns the exact number of points left.
func (q *QdrantIndex) DeleteSource(ctx context.Context, source string) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return 0, nil
	}

	if err := q.deleteSources(ctx, []string{source}); err != nil {
		return 0, err
	}
	return q.count(ctx)
}

// deleteSources removes every point whose source payload matches any of
// sources. The collection must exist.
func (q *QdrantIndex) deleteSources(ctx context.Context, sources []string) error {
	conds := make([]*qdrant.Condition, 0, len(sources))
	for _, s := range sources {
		conds = append(conds, qdrant.NewMatch(payloadSource, s))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Should: conds}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete by source failed: %w", err)
	}
	return nil
}

// entrySources returns the distinct chunk sources in entries, in first-seen
// order.
func entrySources(entries []Entry) []string {
	seen := make(map[string]struct{}, 1)
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.Chunk.Source]; ok {
			continue
		}
		seen[e.Chunk.Source] = struct{}{}
		out = append(out, e.Chunk.Source)
	}
	return out
}

// Drop deletes the collection if it exists.
func (q *QdrantIndex) Drop(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context, size uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}
	return nil
}

// count returns the exact number of points in the collection.
func (q *QdrantIndex) count(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // point counts fit in int
}
