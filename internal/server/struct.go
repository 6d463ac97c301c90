package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/biorag-go/internal/agent"
	"github.com/54b3r/biorag-go/internal/citations"
	"github.com/54b3r/biorag-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single /api/chat SSE stream end to end.
	// Defaults to 5 minutes if zero.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/query, /api/chat, and
	// /api/sources. If empty, authentication is disabled (development mode).
	APIKey string
	// Sources lists ingested documents for GET /api/sources. If nil, the
	// endpoint reports that no manifest is configured.
	Sources SourceLister
	// Citations resolves manifest titles to links when the manifest entry
	// carries no source URL. May be nil.
	Citations citations.Map
	// MetricsRegistry receives all server metric registrations. Defaults to
	// prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// generator is the interface the query and chat handlers call.
// *agent.BiologyAgent satisfies it; tests inject a fake.
type generator interface {
	// Query returns a schema-validated structured answer for the question.
	Query(ctx context.Context, question string, topK int) (*agent.StructuredAnswer, error)
	// Chat streams a conversational answer for the message to w.
	Chat(ctx context.Context, conversationID, message string, topK int, w io.Writer) error
}

// SourceLister lists ingest manifest entries for GET /api/sources.
// *store.SQLiteStore satisfies it.
type SourceLister interface {
	Sources(ctx context.Context) ([]store.SourceRecord, error)
}

// Server is the HTTP server that exposes the biology agent.
type Server struct {
	// generator answers structured queries and streams chat turns.
	generator generator
	// sources lists ingested documents; nil when no manifest is configured.
	sources SourceLister
	// citations resolves manifest titles to links.
	citations citations.Map
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Question is the natural language question to answer.
	Question string `json:"question"`
	// KChunks is how many context chunks to retrieve. Zero selects the
	// default (5); negative values are rejected as a configuration error.
	KChunks int `json:"k_chunks"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's conversational message.
	Message string `json:"message"`
	// ConversationID keys the conversation history. If empty the server
	// generates one and announces it in an SSE "conversation" event.
	ConversationID string `json:"conversation_id"`
	// KChunks is how many context chunks to retrieve. Zero selects the default.
	KChunks int `json:"k_chunks"`
}

// errorResponse is the JSON error envelope for non-2xx API responses.
type errorResponse struct {
	// Error is the human-readable failure description.
	Error string `json:"error"`
	// Raw carries the model's raw output on schema violations. Omitted otherwise.
	Raw string `json:"raw,omitempty"`
}

// sourceEntry is one document in the GET /api/sources response.
type sourceEntry struct {
	// Title is the document title the chunks were stored under.
	Title string `json:"title"`
	// Link is the resolved source link for the document.
	Link string `json:"link"`
	// Chunks is how many chunk records the document produced.
	Chunks int `json:"chunks"`
	// ContentHash is the hex sha256 of the document text at ingest time.
	ContentHash string `json:"content_hash"`
	// IngestedAt is the RFC 3339 timestamp of the last ingest.
	IngestedAt string `json:"ingested_at"`
}

// sourcesResponse is the JSON body for GET /api/sources.
type sourcesResponse struct {
	// Sources lists the ingest manifest entries, newest first.
	Sources []sourceEntry `json:"sources"`
}
