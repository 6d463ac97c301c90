package agent

import (
	"fmt"
	"strings"

	"github.com/54b3r/biorag-go/internal/budget"
	"github.com/54b3r/biorag-go/internal/citations"
	"github.com/54b3r/biorag-go/internal/rag"
)

// AssembleContext formats retrieved chunks into the prompt-ready context
// block: one record per chunk carrying its rank, title, resolved citation
// link, and text. Ordering follows the retrieval result (most relevant
// first) and the output is deterministic for identical input.
//
// A chunk's stored source URL wins over the citation map; the map is the
// fallback for documents ingested from local files.
//
// snippetChars > 0 truncates each chunk's text for prompt budget control;
// zero keeps the full text.
func AssembleContext(docs []rag.Document, cites citations.Map, snippetChars int) string {
	var sb strings.Builder
	for i, doc := range docs {
		title := doc.Title
		if title == "" {
			title = citations.Unknown
		}
		link := doc.Source
		if link == "" {
			link = cites.Resolve(title)
		}
		text := doc.Content
		if snippetChars > 0 {
			text = budget.Snippet(text, snippetChars)
		}

		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "### [%d] %s\n", i+1, title)
		fmt.Fprintf(&sb, "Fuente: %s\n", link)
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String()
}
