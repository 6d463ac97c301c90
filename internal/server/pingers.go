package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/biorag-go/internal/rag"
)

// LLMPinger probes a chat model backend by sending a minimal single-token
// generate request. It satisfies the Pinger interface and is used by
// GET /api/ready. Each probe consumes tokens, so /api/ready should not be
// polled aggressively when the model is a metered API.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.ToolCallingChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a one-word generate request to the chat model.
// Returns nil if the backend produced a response, or a descriptive error.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// StorePinger probes a vector store through its own Ping method.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the vector store to probe.
	store rag.VectorStore
	// name identifies the backend in readiness responses
	// (e.g. "qdrant", "weaviate", "pgvector").
	name string
}

// NewStorePinger constructs a StorePinger for the given store and backend name.
func NewStorePinger(store rag.VectorStore, name string) *StorePinger {
	return &StorePinger{store: store, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *StorePinger) Name() string { return p.name }

// Ping reports whether the vector store is reachable.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

// EmbedderPinger probes an embedding backend by embedding a single short
// string. It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// embedder is the embedding backend to probe.
	embedder rag.Embedder
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewEmbedderPinger constructs an EmbedderPinger for the given embedder and
// backend name.
func NewEmbedderPinger(e rag.Embedder, name string) *EmbedderPinger {
	return &EmbedderPinger{embedder: e, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *EmbedderPinger) Name() string { return p.name }

// Ping embeds a one-word probe string.
// Returns nil if the backend produced a vector, or a descriptive error.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return fmt.Errorf("embed returned no vector")
	}
	return nil
}
