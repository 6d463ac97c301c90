package rag

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorConfig holds connection parameters for a Postgres+pgvector store.
type PgvectorConfig struct {
	// DSN is the Postgres connection string (postgres://...).
	DSN string

	// Table is the table holding chunk records (default: biology).
	Table string

	// VectorSize is the dimensionality of the embeddings stored in the table.
	VectorSize uint64
}

// PgvectorStore implements VectorStore backed by Postgres with the pgvector
// extension. Similarity is cosine via the <=> operator.
type PgvectorStore struct {
	pool *pgxpool.Pool
	cfg  *PgvectorConfig
}

// NewPgvectorStore connects to Postgres and ensures the extension, table,
// and index exist.
func NewPgvectorStore(ctx context.Context, cfg *PgvectorConfig) (*PgvectorStore, error) {
	if cfg.DSN == "" {
		return nil, &ConfigurationError{Field: "PGVECTOR_DSN", Reason: "required for the pgvector backend"}
	}
	if cfg.Table == "" {
		cfg.Table = "biology"
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to connect: %w", err)
	}

	store := &PgvectorStore{pool: pool, cfg: cfg}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// ensureSchema creates the vector extension, chunk table, and ivfflat index
// if they do not already exist.
func (s *PgvectorStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: failed to create extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			content TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			chunk_index INTEGER NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL
		)`, s.cfg.Table, s.cfg.VectorSize)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: failed to create table %q: %w", s.cfg.Table, err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, s.cfg.Table, s.cfg.Table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("pgvector: failed to create index: %w", err)
	}

	return nil
}

// Upsert inserts a batch of documents with their pre-computed embeddings in
// one transaction. embeddings must be parallel to docs.
func (s *PgvectorStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("pgvector: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, content, title, source, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index,
			embedding = EXCLUDED.embedding`, s.cfg.Table)

	for i, doc := range docs {
		chunkIndex := 0
		if v, ok := doc.Metadata["chunk_index"]; ok {
			fmt.Sscanf(v, "%d", &chunkIndex) //nolint:errcheck
		}

		_, err := tx.Exec(ctx, stmt,
			doc.ID,
			doc.Content,
			doc.Title,
			doc.Source,
			chunkIndex,
			pgvector.NewVector(embeddings[i]),
		)
		if err != nil {
			return fmt.Errorf("pgvector: failed to insert chunk %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgvector: failed to commit: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *PgvectorStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	query := fmt.Sprintf(`
		SELECT id, content, title, source, chunk_index,
		       1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.cfg.Table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, topK)
	for rows.Next() {
		var (
			doc        Document
			chunkIndex int
			score      float64
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Title, &doc.Source, &chunkIndex, &score); err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan row: %w", err)
		}
		doc.Score = float32(score)
		doc.Metadata = map[string]string{"chunk_index": fmt.Sprintf("%d", chunkIndex)}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: row iteration failed: %w", err)
	}

	return docs, nil
}

// DeleteByTitle removes every record whose title column matches title.
func (s *PgvectorStore) DeleteByTitle(ctx context.Context, title string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE title = $1", s.cfg.Table)
	if _, err := s.pool.Exec(ctx, stmt, title); err != nil {
		return fmt.Errorf("pgvector: delete by title failed: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *PgvectorStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pgvector: ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}
