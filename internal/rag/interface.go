// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, document retrieval, and embedding.
// Concrete implementations (Qdrant, Weaviate, pgvector) satisfy these
// interfaces so the agent layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Title is the title of the parent document the chunk was cut from.
	// All chunks of one document share the parent's title.
	Title string

	// Source is the origin URI or file path of the parent document.
	Source string

	// Metadata holds arbitrary key-value pairs (chunk index, language, etc.).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores a batch of documents with their pre-computed embeddings.
	// The embeddings slice must be parallel to docs — embeddings[i] is the
	// vector for docs[i]. Records are inserted under their fresh IDs; existing
	// records are never overwritten.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant documents for the given query embedding, ordered by
	// descending score. An empty result is valid and not an error.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// DeleteByTitle removes every record whose parent document title matches
	// title exactly. Used when a re-ingested document replaces its old records.
	DeleteByTitle(ctx context.Context, title string) error

	// Ping reports whether the backing index is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the generator to fetch
// relevant context for a given query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	// topK must be positive; zero results is a valid outcome, not an error.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
