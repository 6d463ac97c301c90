package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever implements the Retriever interface by combining an Embedder
// and a VectorStore. It embeds the query at retrieval time and delegates
// similarity search to the store.
type DefaultRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore
}

// NewRetriever constructs a DefaultRetriever from the given Embedder and VectorStore.
func NewRetriever(embedder Embedder, store VectorStore) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &DefaultRetriever{
		embedder: embedder,
		store:    store,
	}, nil
}

// Retrieve embeds the query and returns the top-k most relevant documents.
// topK must be positive; callers apply their own defaulting before calling.
// A nil error with zero documents means nothing relevant is indexed — a valid
// outcome the caller must handle explicitly.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		return nil, &ConfigurationError{Field: "topK", Reason: fmt.Sprintf("must be positive, got %d", topK)}
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, &ProviderError{Provider: "embedder", Err: err}
	}
	if len(embeddings) == 0 {
		return nil, &ProviderError{Provider: "embedder", Err: fmt.Errorf("empty result for query")}
	}

	docs, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, &ProviderError{Provider: "vector store", Err: err}
	}

	return docs, nil
}
