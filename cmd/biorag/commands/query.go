package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/biorag-go/internal/agent"
	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/provider"
)

// NewQueryCmd constructs the `biorag query` command, which asks a single
// question and prints the structured answer as indented JSON on stdout.
func NewQueryCmd() *cobra.Command {
	var kChunks int

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a space-biology question and print the structured answer",
		Long: `Ask a single question about the ingested publications.

The question is embedded, the most relevant chunks are retrieved from the
vector store, and the model produces a structured answer with a summary,
key findings, and a concept graph citing the source articles. The answer
is printed as indented JSON.

Examples:
  biorag query "how does microgravity affect bone density?"
  biorag query -k 10 "what countermeasures reduce muscle atrophy in orbit?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("query: failed to initialise model provider: %w", err)
			}

			stack, closeStack, err := buildRetrievalStack(ctx, log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer closeStack()

			bioAgent, err := agent.New(&agent.Config{
				ChatModel:    chatModel,
				Retriever:    stack.retriever,
				Citations:    loadCitations(log),
				TopK:         getEnvInt("BIORAG_TOPK", 0),
				SnippetChars: getEnvInt("BIORAG_SNIPPET_CHARS", 0),
				QueryTimeout: getEnvDuration("BIORAG_QUERY_TIMEOUT", 0),
			})
			if err != nil {
				return fmt.Errorf("query: failed to initialise agent: %w", err)
			}

			question := strings.Join(args, " ")

			answer, err := bioAgent.Query(ctx, question, kChunks)
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point — error goes directly to cobra
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		},
	}

	cmd.Flags().IntVarP(&kChunks, "k-chunks", "k", 0, "Number of chunks to retrieve (0 = default)")

	return cmd
}
