package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/biorag-go/internal/citations"
	"github.com/54b3r/biorag-go/internal/ingestion"
	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/store"
)

// NewIngestCmd constructs the `biorag ingest` command, which chunks, embeds,
// and indexes publication text into the vector store.
func NewIngestCmd() *cobra.Command {
	var urls []string
	var citationsPath string
	var force bool
	var workers int
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest publications into the vector store",
		Long: `Chunk, embed, and index publication text into the vector store.

Documents come from local text files given as arguments, from remote URLs
given with --url, or both. Each document is split into overlapping chunks,
embedded, and upserted under its title. Re-ingesting an unchanged document
is skipped via the content hash recorded in the ingest manifest; a changed
document replaces its previous chunks.

A citations CSV (title,link) maps document titles to their source articles
so answers can cite them. Pass it with --citations or BIORAG_CITATIONS_CSV.

Required environment variables:
  VECTOR_BACKEND       Vector store backend: qdrant, weaviate, pgvector (default: qdrant)
  BIORAG_COLLECTION    Collection name (default: biology)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure, gemini (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  biorag ingest data/publications/*.txt --citations data/citations.csv
  biorag ingest --url https://www.ncbi.nlm.nih.gov/pmc/articles/PMC8044432/
  biorag ingest --force bone-loss-iss.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if len(args) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: provide publication files as arguments or URLs via --url")
			}

			// Explicit flag wins over BIORAG_INGEST_WORKERS wins over default.
			if !cmd.Flags().Changed("workers") {
				workers = getEnvInt("BIORAG_INGEST_WORKERS", workers)
			}

			// Citation links are baked into stored chunks, so a broken CSV is
			// fatal here rather than degrading like it does under serve.
			cites := citations.Map{}
			csvPath := citationsPath
			if csvPath == "" {
				csvPath = os.Getenv("BIORAG_CITATIONS_CSV")
			}
			if csvPath != "" {
				rows, err := citations.LoadFile(csvPath)
				if err != nil {
					return fmt.Errorf("ingest: citations: %w", err)
				}
				cites = citations.Build(rows)
				log.Info("citations loaded", slog.String("path", csvPath), slog.Int("titles", len(cites)))
			}

			stack, closeStack, err := buildRetrievalStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeStack()

			var manifest store.IngestManifest
			if db := openDatabase(log); db != nil {
				defer func() { _ = db.Close() }()
				manifest = db
			}

			pipeline, err := ingestion.NewPipeline(stack.embedder, stack.store, manifest, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
				Workers:      workers,
				Force:        force,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			docs := make([]ingestion.Document, 0, len(args)+len(urls))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: read %q: %w", path, err)
				}
				title := ingestion.TitleFromPath(path)
				doc := ingestion.Document{Title: title, Text: string(data)}
				if link := cites.Resolve(title); link != citations.Unknown {
					doc.SourceURL = link
				}
				docs = append(docs, doc)
			}
			for _, u := range urls {
				doc, err := pipeline.FetchDocument(ctx, u)
				if err != nil {
					log.Warn("fetch failed, skipping", slog.String("url", u), slog.Any("error", err))
					continue
				}
				docs = append(docs, doc)
			}
			if len(docs) == 0 {
				return fmt.Errorf("ingest: nothing to ingest")
			}

			log.Info("starting ingestion", slog.Int("documents", len(docs)))

			result := pipeline.IngestBatch(ctx, docs)

			for _, res := range result.Results {
				switch {
				case res.Err != nil:
					fmt.Printf("%-40s FAILED: %v\n", res.Title, res.Err)
				case res.Chunks == 0:
					fmt.Printf("%-40s skipped (no new content)\n", res.Title)
				default:
					fmt.Printf("%-40s %d chunks\n", res.Title, res.Chunks)
				}
			}
			fmt.Printf("\n%d documents, %d chunks stored, %d failed\n",
				len(result.Results), result.Stored(), result.Failed())

			if n := result.Failed(); n > 0 {
				return fmt.Errorf("ingest: %d of %d documents failed", n, len(result.Results))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Publication URL to ingest (repeatable)")
	cmd.Flags().StringVar(&citationsPath, "citations", "", "Path to citations CSV (default: $BIORAG_CITATIONS_CSV)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest documents even when unchanged")
	cmd.Flags().IntVar(&workers, "workers", 4, "Number of documents to ingest concurrently")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", ingestion.DefaultChunkSize, "Maximum chunk size in bytes")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", ingestion.DefaultChunkOverlap, "Overlap between consecutive chunks in bytes")

	return cmd
}
