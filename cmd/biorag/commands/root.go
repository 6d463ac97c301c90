// Package commands defines all Cobra CLI commands for the biorag binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/biorag-go/internal/audit"
	"github.com/54b3r/biorag-go/internal/config"
	"github.com/54b3r/biorag-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "biorag",
		Short: "biorag — a retrieval-augmented assistant for space-biology research",
		Long: `biorag answers questions about space-biology publications using
retrieval-augmented generation.

It ingests publication text into a vector store, retrieves the passages most
relevant to a question, and asks an LLM to produce a structured answer with
citations back to the source articles.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.biorag/config.yaml).
See 'biorag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load .env from the working directory if present. Real
			// environment variables always win over .env values.
			if err := godotenv.Load(); err == nil {
				log.Debug("loaded environment from .env")
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.biorag/config.yaml)")

	root.AddCommand(
		NewQueryCmd(),
		NewDiagnoseCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
