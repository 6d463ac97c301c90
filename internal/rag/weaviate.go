package rag

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateConfig holds connection parameters for a Weaviate vector store instance.
type WeaviateConfig struct {
	// Host is the Weaviate host:port (default: localhost:8080).
	Host string

	// Scheme is http or https (default: http).
	Scheme string

	// Class is the Weaviate class name. Weaviate requires class names to
	// start with an upper-case letter (default: Biology).
	Class string

	// APIKey is the optional API key for authenticated clusters.
	APIKey string
}

// WeaviateStore implements VectorStore backed by a Weaviate instance.
// Vectors are supplied by the caller; the class is created with
// Vectorizer "none" so Weaviate never computes embeddings itself.
type WeaviateStore struct {
	client *weaviate.Client
	cfg    *WeaviateConfig
}

// NewWeaviateStore creates a WeaviateStore, ensuring the target class exists.
func NewWeaviateStore(ctx context.Context, cfg *WeaviateConfig) (*WeaviateStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost:8080"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = "Biology"
	}

	clientCfg := weaviate.Config{
		Host:   cfg.Host,
		Scheme: cfg.Scheme,
	}
	if cfg.APIKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate: failed to create client: %w", err)
	}

	store := &WeaviateStore{client: client, cfg: cfg}
	if err := store.ensureClass(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureClass creates the Weaviate class if it does not already exist.
func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(s.cfg.Class).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: failed to check class existence: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       s.cfg.Class,
		Description: "Document chunks with caller-supplied embeddings",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("weaviate: failed to create class %q: %w", s.cfg.Class, err)
	}

	return nil
}

// Upsert stores a batch of documents with their pre-computed embeddings.
// embeddings must be parallel to docs.
func (s *WeaviateStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("weaviate: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	for i, doc := range docs {
		props := map[string]interface{}{
			"content": doc.Content,
			"title":   doc.Title,
			"source":  doc.Source,
		}
		if v, ok := doc.Metadata["chunk_index"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				props["chunkIndex"] = n
			}
		}

		_, err := s.client.Data().Creator().
			WithClassName(s.cfg.Class).
			WithID(doc.ID).
			WithProperties(props).
			WithVector(embeddings[i]).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate: failed to store chunk %s: %w", doc.ID, err)
		}
	}

	return nil
}

// Search performs a nearVector similarity search and returns the top-k results.
func (s *WeaviateStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "source"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryEmbedding)

	res, err := s.client.GraphQL().Get().
		WithClassName(s.cfg.Class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate: search failed: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("weaviate: search failed: %s", res.Errors[0].Message)
	}

	get, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return []Document{}, nil
	}
	items, ok := get[s.cfg.Class].([]interface{})
	if !ok {
		return []Document{}, nil
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}

		doc := Document{Metadata: make(map[string]string)}
		if v, ok := obj["content"].(string); ok {
			doc.Content = v
		}
		if v, ok := obj["title"].(string); ok {
			doc.Title = v
		}
		if v, ok := obj["source"].(string); ok {
			doc.Source = v
		}
		if v, ok := obj["chunkIndex"].(float64); ok {
			doc.Metadata["chunk_index"] = strconv.Itoa(int(v))
		}

		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if id, ok := add["id"].(string); ok {
				doc.ID = id
			}
			// Cosine distance in [0,2]; report 1-distance so callers see a
			// descending similarity score like the other backends.
			switch d := add["distance"].(type) {
			case float64:
				doc.Score = 1 - float32(d)
			case string:
				var f float64
				if _, err := fmt.Sscanf(d, "%f", &f); err == nil {
					doc.Score = 1 - float32(f)
				}
			}
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// DeleteByTitle removes every object whose title property matches title.
func (s *WeaviateStore) DeleteByTitle(ctx context.Context, title string) error {
	where := filters.Where().
		WithPath([]string{"title"}).
		WithOperator(filters.Equal).
		WithValueText(title)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.cfg.Class).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: delete by title failed: %w", err)
	}

	return nil
}

// Ping verifies the Weaviate instance reports ready.
func (s *WeaviateStore) Ping(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: readiness check failed: %w", err)
	}
	if !ready {
		return fmt.Errorf("weaviate: instance not ready")
	}
	return nil
}

// Close is a no-op; the Weaviate client holds no persistent connection.
func (s *WeaviateStore) Close() error {
	return nil
}
