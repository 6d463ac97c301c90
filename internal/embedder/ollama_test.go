package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "mxbai-embed-large" {
			t.Errorf("model = %q", req.Model)
		}
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{float32(i), 0.5}
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"})
	got, err := emb.Embed(context.Background(), []string{"first chunk", "second chunk"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(got))
	}
	if got[1][0] != 1 {
		t.Errorf("embeddings out of order: %v", got)
	}
}

func TestOllamaEmbedder_BackendErrorSurfaced(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: `model "missing" not found`}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := emb.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("Embed() should surface the backend error")
	}
	if want := `model "missing" not found`; err.Error() != "ollama embedder: "+want {
		t.Errorf("error = %q, want it to carry %q", err, want)
	}
}

func TestOllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{0.1}}}) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	emb := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "mxbai-embed-large"})
	if _, err := emb.Embed(context.Background(), []string{"one", "two"}); err == nil {
		t.Error("Embed() should reject an embedding count mismatch")
	}
}
