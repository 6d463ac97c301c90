// Package server implements the HTTP server that exposes the biology agent
// via a REST/SSE API: structured queries, streaming chat, source listings,
// health/readiness probes, and Prometheus metrics.
// The server is started by the `biorag serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/rag"
)

// New constructs a Server from the provided generator and config.
func New(gen generator, cfg *Config) (*Server, error) {
	if gen == nil {
		return nil, fmt.Errorf("server: generator must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: BIORAG_API_KEY not set — API authentication is disabled")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)

	s := &Server{
		generator: gen,
		sources:   cfg.Sources,
		citations: cfg.Citations,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
		stopRL:    stopRL,
	}

	// Protected routes get the full chain: instrumentation → auth → rate
	// limit → handler, so denied requests still show up in the HTTP metrics.
	// Probes and metrics stay open so orchestrators can reach them.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", protected("query", s.handleQuery))
	mux.Handle("POST /api/chat", protected("chat", s.handleChat))
	mux.Handle("GET /api/sources", protected("sources", s.handleSources))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. It runs the structured query flow and
// maps each failure cause to a distinct status code — a generic 500 means a
// genuinely unclassified fault.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.finishQuery(outcomeError, start)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.finishQuery(outcomeError, start)
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.generator.Query(r.Context(), req.Question, req.KChunks)
	if err != nil {
		outcome := s.writeQueryError(w, r, err)
		s.finishQuery(outcome, start)
		return
	}

	s.finishQuery(outcomeOK, start)
	writeJSON(w, http.StatusOK, answer)
}

// writeQueryError maps a typed query failure to its HTTP response and
// returns the metrics outcome label.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) string {
	log := logging.FromContext(r.Context())

	var configErr *rag.ConfigurationError
	var emptyErr *rag.EmptyContextError
	var schemaErr *rag.SchemaViolationError
	var providerErr *rag.ProviderError

	switch {
	case errors.As(err, &configErr):
		writeError(w, http.StatusBadRequest, err.Error())
		return outcomeError

	case errors.As(err, &emptyErr):
		writeError(w, http.StatusNotFound, err.Error())
		return outcomeNoContext

	case errors.As(err, &schemaErr):
		log.Warn("query: model output rejected", slog.Any("error", err))
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Raw:   schemaErr.RawOutput,
		})
		return outcomeInvalidSchema

	case errors.As(err, &providerErr):
		log.Error("query: provider failure", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, err.Error())
		return outcomeModelFailure

	default:
		log.Error("query: unclassified failure", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return outcomeError
	}
}

// finishQuery records the outcome counter and duration histogram for one
// /api/query request.
func (s *Server) finishQuery(outcome string, start time.Time) {
	s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// handleChat handles POST /api/chat requests. It streams the agent's response
// using Server-Sent Events (SSE) so clients can render tokens as they arrive.
// Failures after the headers are sent are delivered in-band as "error" events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	conversationID := req.ConversationID
	generated := false
	if conversationID == "" {
		conversationID = uuid.NewString()
		generated = true
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()

	// Announce a server-generated conversation id so the client can keep the
	// thread going on its next request.
	if generated {
		fmt.Fprintf(w, "event: conversation\ndata: %s\n\n", conversationID)
		flusher.Flush()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	sw := &sseWriter{w: w, flusher: flusher}
	if err := s.generator.Chat(ctx, conversationID, req.Message, req.KChunks, sw); err != nil {
		s.metrics.chatRequestsTotal.WithLabelValues(outcomeError).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcomeError).Observe(time.Since(start).Seconds())
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	s.metrics.chatRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())

	// Signal stream completion.
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("server: response encode error", slog.Any("error", err))
	}
}

// writeError writes the standard JSON error envelope with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
