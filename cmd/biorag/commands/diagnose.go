package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/biorag-go/internal/logging"
	"github.com/54b3r/biorag-go/internal/provider"
)

// NewDiagnoseCmd constructs the `biorag diagnose` command, which probes every
// external dependency (vector store, embedding backend, chat model) and
// reports which are reachable. It runs the same checks the server's
// /api/ready endpoint uses.
func NewDiagnoseCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check connectivity to the vector store, embedder, and model",
		Long: `Probe each external dependency and report its status.

Runs the same readiness checks the HTTP server exposes at /api/ready:
the vector store, the embedding backend, and the chat model are each
pinged with a per-probe timeout.

Examples:
  biorag diagnose
  biorag diagnose --timeout 10s
  MODEL_PROVIDER=openai biorag diagnose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			modelName := getEnvOrDefault("MODEL_PROVIDER", "ollama")

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("diagnose: failed to initialise model provider: %w", err)
			}

			stack, closeStack, err := buildRetrievalStack(ctx, log)
			if err != nil {
				return fmt.Errorf("diagnose: %w", err)
			}
			defer closeStack()

			failed := 0
			pingers := buildPingers(stack, chatModel, modelName)
			for _, p := range pingers {
				probeCtx, cancel := context.WithTimeout(ctx, timeout)
				start := time.Now()
				err := p.Ping(probeCtx)
				elapsed := time.Since(start).Round(time.Millisecond)
				cancel()

				if err != nil {
					failed++
					fmt.Printf("%-12s FAILED: %v\n", p.Name(), err)
					continue
				}
				fmt.Printf("%-12s ok (%s)\n", p.Name(), elapsed)
			}

			if failed > 0 {
				return fmt.Errorf("diagnose: %d of %d checks failed", failed, len(pingers))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Per-probe timeout")

	return cmd
}
