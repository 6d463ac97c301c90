package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/biorag-go/internal/logging"
)

// handleSources handles GET /api/sources. It lists every document recorded in
// the ingest manifest so clients can show what the index was built from.
// Entries are returned newest first.
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	if s.sources == nil {
		writeError(w, http.StatusServiceUnavailable, "source manifest not configured")
		return
	}

	records, err := s.sources.Sources(r.Context())
	if err != nil {
		log.Error("sources: manifest read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read source manifest")
		return
	}

	resp := sourcesResponse{Sources: make([]sourceEntry, 0, len(records))}
	for _, rec := range records {
		link := rec.SourceURL
		if link == "" {
			link = s.citations.Resolve(rec.Title)
		}
		resp.Sources = append(resp.Sources, sourceEntry{
			Title:       rec.Title,
			Link:        link,
			Chunks:      rec.ChunkCount,
			ContentHash: rec.ContentHash,
			IngestedAt:  rec.IngestedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
