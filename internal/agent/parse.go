package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/54b3r/biorag-go/internal/rag"
)

// parseAnswer parses the model's raw text response as JSON and validates it
// against the answer schema. Markdown code fences around the JSON are
// tolerated — the schema hint is advisory and models wrap output anyway.
// Any parse or validation failure yields a rag.SchemaViolationError carrying
// the raw text; a partially populated answer is never returned.
func parseAnswer(raw string) (*StructuredAnswer, error) {
	answer := &StructuredAnswer{}
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), answer); err != nil {
		return nil, &rag.SchemaViolationError{RawOutput: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := validateAnswer(answer); err != nil {
		return nil, &rag.SchemaViolationError{RawOutput: raw, Err: err}
	}
	return answer, nil
}

// validateAnswer enforces the required keys JSON decoding cannot: a report
// summary must be present, and every graph node must name its concept.
func validateAnswer(a *StructuredAnswer) error {
	if strings.TrimSpace(a.Reporte.Resumen) == "" {
		return fmt.Errorf("reporte.resumen is required")
	}
	for i, node := range a.Grafo {
		if strings.TrimSpace(node.Palabra) == "" {
			return fmt.Errorf("grafo[%d].palabra is required", i)
		}
	}
	return nil
}

// stripCodeFences removes a surrounding markdown code fence (``` or ```json)
// from the model output, if present. Output without fences passes through
// untouched apart from whitespace trimming.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
