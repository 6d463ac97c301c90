// Package ingestion implements the document ingestion pipeline.
// It turns raw text documents into embedded vector records: chunk the text,
// embed each chunk, and upsert the results into the vector store under
// freshly generated ids. This pipeline is invoked by the `biorag ingest`
// CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/rag"
	"github.com/54b3r/biorag-go/internal/store"
)

// Document is one unit of ingestable text.
type Document struct {
	// Title identifies the document (usually the source file name). All
	// chunks cut from the document carry it, and re-ingestion replaces
	// records by it.
	Title string

	// Text is the full document content.
	Text string

	// SourceURL is the origin of the document, when known. It becomes the
	// source field of every chunk record.
	SourceURL string
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of bytes per document chunk.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of bytes consecutive chunks share.
	// Defaults to DefaultChunkOverlap if zero. A value ≥ ChunkSize is a
	// configuration error.
	ChunkOverlap int

	// Boundaries is the chunk boundary preference, tried in order.
	// Defaults to DefaultBoundaries if nil.
	Boundaries []string

	// Workers bounds how many documents a batch ingests concurrently.
	// Defaults to 4 if zero.
	Workers int

	// HTTPTimeout is the timeout for each document fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// Force re-ingests documents even when the manifest says their content
	// is unchanged.
	Force bool
}

// Pipeline orchestrates the chunk → embed → upsert flow for documents.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// manifest tracks what has been ingested so unchanged documents can be
	// skipped and changed ones replaced. May be nil, in which case every
	// ingest inserts fresh records unconditionally.
	manifest store.IngestManifest

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching remote documents.
	httpClient *http.Client
}

// DocumentResult reports the outcome of ingesting one document in a batch.
type DocumentResult struct {
	// Title is the document the result belongs to.
	Title string

	// Chunks is the number of chunk records stored (0 when skipped or failed).
	Chunks int

	// Err is the per-document failure, nil on success or skip.
	Err error
}

// BatchResult collects per-document outcomes of a batch ingestion.
type BatchResult struct {
	// Results holds one entry per input document, in input order.
	Results []DocumentResult
}

// Stored returns the total number of chunk records stored across the batch.
func (r BatchResult) Stored() int {
	total := 0
	for _, res := range r.Results {
		total += res.Chunks
	}
	return total
}

// Failed returns how many documents in the batch failed.
func (r BatchResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// Invalid chunking parameters fail fast here rather than at ingest time.
func NewPipeline(embedder rag.Embedder, vs rag.VectorStore, manifest store.IngestManifest, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkOverlap == 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.Boundaries == nil {
		cfg.Boundaries = DefaultBoundaries
	}
	if cfg.ChunkSize < 0 {
		return nil, &rag.ConfigurationError{Field: "chunk_size", Reason: fmt.Sprintf("must be positive, got %d", cfg.ChunkSize)}
	}
	if cfg.ChunkOverlap < 0 {
		return nil, &rag.ConfigurationError{Field: "chunk_overlap", Reason: fmt.Sprintf("must not be negative, got %d", cfg.ChunkOverlap)}
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, &rag.ConfigurationError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be smaller than chunk_size (%d >= %d)", cfg.ChunkOverlap, cfg.ChunkSize)}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "biorag-go/1.0 (document ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		store:    vs,
		manifest: manifest,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest chunks, embeds, and stores one document, returning the number of
// chunk records stored. Every record gets a fresh id; existing records are
// never overwritten. When a manifest is configured, an unchanged document is
// skipped (returns 0) and a changed one has its previous records deleted
// before the new ones are inserted.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (int, error) {
	log := logging.FromContext(ctx)

	hash := contentHash(doc.Text)
	if p.manifest != nil {
		prevHash, known, err := p.manifest.Lookup(ctx, doc.Title)
		if err != nil {
			return 0, fmt.Errorf("ingestion: manifest lookup failed for %q: %w", doc.Title, err)
		}
		if known {
			if !p.cfg.Force && prevHash == hash {
				log.Info("document unchanged, skipping", "title", doc.Title)
				return 0, nil
			}
			// Content changed (or force): replace the old records so the
			// index never serves both versions at once.
			if err := p.store.DeleteByTitle(ctx, doc.Title); err != nil {
				return 0, &rag.ProviderError{Provider: "vector store", Err: err}
			}
			log.Info("replacing previously ingested document", "title", doc.Title)
		}
	}

	chunks, err := Split(doc.Text, p.cfg.ChunkSize, p.cfg.ChunkOverlap, p.cfg.Boundaries)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		log.Info("document produced no chunks", "title", doc.Title)
		return 0, nil
	}

	embeddings, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, &rag.ProviderError{Provider: "embedder", Err: fmt.Errorf("embedding failed for %q: %w", doc.Title, err)}
	}
	if len(embeddings) != len(chunks) {
		return 0, &rag.ProviderError{Provider: "embedder", Err: fmt.Errorf("returned %d embeddings for %d chunks of %q", len(embeddings), len(chunks), doc.Title)}
	}

	records := make([]rag.Document, 0, len(chunks))
	for i, chunk := range chunks {
		records = append(records, rag.Document{
			ID:      uuid.NewString(),
			Content: chunk,
			Title:   doc.Title,
			Source:  doc.SourceURL,
			Metadata: map[string]string{
				"chunk_index": strconv.Itoa(i),
			},
		})
	}

	if err := p.store.Upsert(ctx, records, embeddings); err != nil {
		return 0, &rag.ProviderError{Provider: "vector store", Err: fmt.Errorf("upsert failed for %q: %w", doc.Title, err)}
	}

	if p.manifest != nil {
		// Bookkeeping only — the records are already persisted, so a manifest
		// write failure must not fail the ingest.
		if err := p.manifest.Record(ctx, doc.Title, doc.SourceURL, hash, len(chunks)); err != nil {
			log.Warn("failed to record ingest manifest entry", "title", doc.Title, "error", err)
		}
	}

	log.Info("document ingested", "title", doc.Title, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestBatch ingests documents concurrently on a bounded worker pool.
// Failures are isolated per document: one document failing never aborts the
// rest of the batch. Results are returned in input order.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []Document) BatchResult {
	log := logging.FromContext(ctx)
	results := make([]DocumentResult, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	for i, doc := range docs {
		g.Go(func() error {
			n, err := p.Ingest(gctx, doc)
			results[i] = DocumentResult{Title: doc.Title, Chunks: n, Err: err}
			if err != nil {
				log.Warn("document ingestion failed", "title", doc.Title, "error", err)
			}
			// Per-document isolation: never propagate the error, or the
			// group would cancel the remaining workers.
			return nil
		})
	}

	// Workers always return nil, so Wait only reflects ctx cancellation.
	_ = g.Wait()

	return BatchResult{Results: results}
}

// FetchDocument retrieves a remote document over HTTP(S), deriving its title
// from the URL path.
func (p *Pipeline) FetchDocument(ctx context.Context, rawURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("ingestion: unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("ingestion: reading body: %w", err)
	}

	return Document{
		Title:     TitleFromURL(rawURL),
		Text:      string(body),
		SourceURL: rawURL,
	}, nil
}

// contentHash returns the hex sha256 of a document's text, the identity used
// by the ingest manifest to detect unchanged content.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
