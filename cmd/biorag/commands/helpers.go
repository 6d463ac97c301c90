package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/biorag-go/internal/citations"
	"github.com/54b3r/biorag-go/internal/embedder"
	"github.com/54b3r/biorag-go/internal/rag"
	"github.com/54b3r/biorag-go/internal/server"
	"github.com/54b3r/biorag-go/internal/store"
)

// retrievalStack bundles the embedding backend and vector store assembled
// from the environment, plus the retriever built on top of them.
type retrievalStack struct {
	// embedder converts text into dense vectors.
	embedder rag.Embedder
	// store is the vector index.
	store rag.VectorStore
	// retriever performs embed-then-search.
	retriever rag.Retriever

	// embedderName and storeName label readiness probes and logs.
	embedderName string
	storeName    string
}

// buildRetrievalStack wires the embedding backend and vector store from the
// environment. The returned cleanup releases the store's connections.
func buildRetrievalStack(ctx context.Context, log *slog.Logger) (*retrievalStack, func(), error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	embBackend := embedder.Backend()
	dims := embedder.DefaultDimensions(embBackend)

	storeBackend := getEnvOrDefault("VECTOR_BACKEND", "qdrant")
	vs, err := rag.NewStoreFromEnv(ctx, uint64(dims))
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}

	retriever, err := rag.NewRetriever(emb, vs)
	if err != nil {
		_ = vs.Close()
		return nil, nil, err
	}

	log.Info("retrieval stack ready",
		slog.String("embedding_backend", embBackend),
		slog.Int("dimensions", dims),
		slog.String("vector_backend", storeBackend),
	)

	cleanup := func() {
		if err := vs.Close(); err != nil {
			log.Warn("vector store close failed", slog.Any("error", err))
		}
	}

	return &retrievalStack{
		embedder:     emb,
		store:        vs,
		retriever:    retriever,
		embedderName: embBackend,
		storeName:    storeBackend,
	}, cleanup, nil
}

// buildPingers assembles the readiness probes: the vector store, the
// embedding backend, and the chat model, in dependency order.
func buildPingers(stack *retrievalStack, chatModel model.ToolCallingChatModel, modelName string) []server.Pinger {
	return []server.Pinger{
		server.NewStorePinger(stack.store, stack.storeName),
		server.NewEmbedderPinger(stack.embedder, stack.embedderName),
		server.NewLLMPinger(chatModel, modelName),
	}
}

// loadCitations reads the citation CSV named by BIORAG_CITATIONS_CSV.
// Unset or unreadable paths degrade to an empty map — every title then
// resolves to the "unknown" sentinel rather than failing the command.
func loadCitations(log *slog.Logger) citations.Map {
	path := os.Getenv("BIORAG_CITATIONS_CSV")
	if path == "" {
		return citations.Map{}
	}
	rows, err := citations.LoadFile(path)
	if err != nil {
		log.Warn("citations: load failed, links will resolve to unknown", slog.Any("error", err))
		return citations.Map{}
	}
	m := citations.Build(rows)
	log.Info("citations loaded", slog.String("path", path), slog.Int("titles", len(m)))
	return m
}

// openDatabase opens the SQLite bookkeeping database (conversation history
// and ingest manifest). BIORAG_HISTORY_DB overrides the default path
// (~/.biorag/history.db); the value "disabled" turns persistence off.
// Failures degrade to nil — commands run without bookkeeping rather than
// aborting.
func openDatabase(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("BIORAG_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("bookkeeping disabled via BIORAG_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("could not resolve default DB path, bookkeeping disabled", slog.Any("error", err))
			return nil
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		log.Warn("could not open bookkeeping DB, continuing without it", slog.Any("error", err))
		return nil
	}
	log.Info("bookkeeping DB opened", slog.String("path", dbPath))
	return db
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment
// variable, or fallback if the variable is unset, empty, or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
