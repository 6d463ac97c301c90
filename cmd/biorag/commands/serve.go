package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/biorag-go/internal/agent"
	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/provider"
	"github.com/54b3r/biorag-go/internal/server"
	"github.com/54b3r/biorag-go/internal/store"
	"github.com/54b3r/biorag-go/internal/tracing"
)

// NewServeCmd constructs the `biorag serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the biorag HTTP API server",
		Long: `Start the biorag HTTP server on localhost.

The server exposes a REST/SSE API: POST /api/query returns a structured
answer for a single question, POST /api/chat streams a conversational
answer over SSE, and GET /api/sources lists the ingested publications.

Examples:
  biorag serve
  biorag serve --port 9090
  MODEL_PROVIDER=openai biorag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Explicit flags win over BIORAG_HOST/BIORAG_PORT (which the YAML
			// config bridge may have set) win over the flag defaults.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("BIORAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("BIORAG_PORT", port)
			}

			modelName := getEnvOrDefault("MODEL_PROVIDER", "ollama")
			log.Info("serve starting", slog.String("provider", modelName))

			// Setup Langfuse tracing. Opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", modelName))

			// One SQLite file backs both conversation history and the ingest
			// manifest behind GET /api/sources.
			var history store.ConversationStore
			var sources server.SourceLister
			if db := openDatabase(log); db != nil {
				defer func() { _ = db.Close() }()
				history = db
				sources = db
			}

			stack, closeStack, err := buildRetrievalStack(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeStack()

			cites := loadCitations(log)

			bioAgent, err := agent.New(&agent.Config{
				ChatModel:    chatModel,
				Retriever:    stack.retriever,
				Citations:    cites,
				History:      history,
				TopK:         getEnvInt("BIORAG_TOPK", 0),
				SnippetChars: getEnvInt("BIORAG_SNIPPET_CHARS", 0),
				QueryTimeout: getEnvDuration("BIORAG_QUERY_TIMEOUT", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			srv, err := server.New(bioAgent, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(stack, chatModel, modelName),
				APIKey:    os.Getenv("BIORAG_API_KEY"),
				Sources:   sources,
				Citations: cites,
				RateLimit: getEnvFloat("BIORAG_RATE_LIMIT", 0),
				RateBurst: getEnvInt("BIORAG_RATE_BURST", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
