// Command biorag is the entry point for the space-biology research
// assistant. It provides a CLI (via Cobra) for ingesting publications,
// asking one-shot questions, and serving the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/biorag-go/cmd/biorag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
