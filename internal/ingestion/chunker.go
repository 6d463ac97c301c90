package ingestion

import (
	"fmt"
	"strings"

	"github.com/54b3r/biorag-go/internal/rag"
)

// Default chunking parameters, sized for embedding models with ~512-token
// input windows.
const (
	// DefaultChunkSize is the maximum chunk length in bytes.
	DefaultChunkSize = 510

	// DefaultChunkOverlap is the number of trailing bytes each chunk shares
	// with the next one.
	DefaultChunkOverlap = 50
)

// DefaultBoundaries is the boundary preference used when a caller passes
// none: paragraph break, then sentence end, then line break.
var DefaultBoundaries = []string{"\n\n", ". ", "\n"}

// Split cuts text into chunks of at most maxSize bytes. Cuts prefer the
// given boundary delimiters in priority order and fall back to a hard cut
// at maxSize. Consecutive chunks share up to overlap bytes: the window for
// the next chunk starts overlap bytes before the previous cut, so removing
// the first overlap bytes of every chunk after the first and concatenating
// reconstructs text exactly.
//
// Empty text yields an empty sequence. Invalid parameters (maxSize ≤ 0,
// overlap < 0, or overlap ≥ maxSize) fail fast with a ConfigurationError —
// they are never silently clamped.
func Split(text string, maxSize, overlap int, boundaries []string) ([]string, error) {
	if maxSize <= 0 {
		return nil, &rag.ConfigurationError{Field: "max_size", Reason: fmt.Sprintf("must be positive, got %d", maxSize)}
	}
	if overlap < 0 {
		return nil, &rag.ConfigurationError{Field: "overlap", Reason: fmt.Sprintf("must not be negative, got %d", overlap)}
	}
	if overlap >= maxSize {
		return nil, &rag.ConfigurationError{Field: "overlap", Reason: fmt.Sprintf("must be smaller than max_size (%d >= %d)", overlap, maxSize)}
	}
	if text == "" {
		return nil, nil
	}
	if boundaries == nil {
		boundaries = DefaultBoundaries
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxSize
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		// Prefer the latest boundary inside the window, trying delimiters in
		// priority order. A boundary cut is only accepted when it advances
		// past the overlap region, which guarantees forward progress.
		cut := end
		for _, b := range boundaries {
			if idx := strings.LastIndex(text[start:end], b); idx >= 0 {
				candidate := start + idx + len(b)
				if candidate-start > overlap {
					cut = candidate
					break
				}
			}
		}

		chunks = append(chunks, text[start:cut])
		start = cut - overlap
	}

	return chunks, nil
}

// SplitDefault splits text with the default chunk size, overlap, and
// boundary order.
func SplitDefault(text string) ([]string, error) {
	return Split(text, DefaultChunkSize, DefaultChunkOverlap, DefaultBoundaries)
}
