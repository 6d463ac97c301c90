package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/54b3r/biorag-go/internal/rag"
	"github.com/54b3r/biorag-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeEmbedder returns fixed-size vectors. Texts containing failOn trigger
// an error, which lets batch tests fail one document without touching the rest.
type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, fmt.Errorf("embedding backend rejected input")
		}
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeVectorStore records upserts and deletions.
type fakeVectorStore struct {
	mu       sync.Mutex
	upserted []rag.Document
	deleted  []string
}

func (f *fakeVectorStore) Upsert(_ context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("docs/embeddings length mismatch: %d vs %d", len(docs), len(embeddings))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *fakeVectorStore) Search(context.Context, []float32, int) ([]rag.Document, error) {
	return nil, nil
}

func (f *fakeVectorStore) DeleteByTitle(_ context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, title)
	return nil
}

func (f *fakeVectorStore) Ping(context.Context) error { return nil }
func (f *fakeVectorStore) Close() error               { return nil }

func (f *fakeVectorStore) stored() []rag.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rag.Document(nil), f.upserted...)
}

// fakeManifest is an in-memory store.IngestManifest.
type fakeManifest struct {
	mu      sync.Mutex
	entries map[string]store.SourceRecord
}

func newFakeManifest() *fakeManifest {
	return &fakeManifest{entries: make(map[string]store.SourceRecord)}
}

func (f *fakeManifest) Lookup(_ context.Context, title string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.entries[title]
	return rec.ContentHash, ok, nil
}

func (f *fakeManifest) Record(_ context.Context, title, sourceURL, contentHash string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[title] = store.SourceRecord{
		Title:       title,
		SourceURL:   sourceURL,
		ContentHash: contentHash,
		ChunkCount:  chunkCount,
	}
	return nil
}

func (f *fakeManifest) Sources(context.Context) ([]store.SourceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.SourceRecord, 0, len(f.entries))
	for _, rec := range f.entries {
		out = append(out, rec)
	}
	return out, nil
}

func newTestPipeline(t *testing.T, vs rag.VectorStore, manifest store.IngestManifest, cfg *Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(&fakeEmbedder{}, vs, manifest, cfg)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewPipeline_InvalidChunkingFailsFast(t *testing.T) {
	t.Parallel()
	_, err := NewPipeline(&fakeEmbedder{}, &fakeVectorStore{}, nil, &Config{ChunkSize: 100, ChunkOverlap: 100})
	var cfgErr *rag.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("NewPipeline(overlap=size) error = %v, want ConfigurationError", err)
	}

	_, err = NewPipeline(&fakeEmbedder{}, &fakeVectorStore{}, nil, &Config{ChunkSize: 100, ChunkOverlap: 150})
	if !errors.As(err, &cfgErr) {
		t.Errorf("NewPipeline(overlap>size) error = %v, want ConfigurationError", err)
	}
}

func TestNewPipeline_NilDependencies(t *testing.T) {
	t.Parallel()
	if _, err := NewPipeline(nil, &fakeVectorStore{}, nil, nil); err == nil {
		t.Error("NewPipeline(nil embedder) should fail")
	}
	if _, err := NewPipeline(&fakeEmbedder{}, nil, nil, nil); err == nil {
		t.Error("NewPipeline(nil store) should fail")
	}
}

// ---------------------------------------------------------------------------
// Ingest
// ---------------------------------------------------------------------------

func TestIngest_StoresChunksWithFreshIDs(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	manifest := newFakeManifest()
	p := newTestPipeline(t, vs, manifest, &Config{ChunkSize: 20, ChunkOverlap: 5})

	doc := Document{
		Title:     "pets.txt",
		Text:      "Cats sleep 16 hours a day. Dogs need daily walks.",
		SourceURL: "http://example.com/pets.txt",
	}
	n, err := p.Ingest(context.Background(), doc)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if n < 2 {
		t.Fatalf("stored %d chunks, want at least 2", n)
	}

	records := vs.stored()
	if len(records) != n {
		t.Fatalf("store holds %d records, want %d", len(records), n)
	}
	seen := make(map[string]bool)
	for i, rec := range records {
		if rec.ID == "" {
			t.Errorf("record %d has empty id", i)
		}
		if seen[rec.ID] {
			t.Errorf("record %d reuses id %s", i, rec.ID)
		}
		seen[rec.ID] = true
		if rec.Title != "pets.txt" {
			t.Errorf("record %d title = %q, want pets.txt", i, rec.Title)
		}
		if rec.Source != "http://example.com/pets.txt" {
			t.Errorf("record %d source = %q", i, rec.Source)
		}
		if rec.Metadata["chunk_index"] == "" {
			t.Errorf("record %d is missing chunk_index metadata", i)
		}
	}

	hash, ok, _ := manifest.Lookup(context.Background(), "pets.txt")
	if !ok || hash == "" {
		t.Error("manifest entry not recorded after ingest")
	}
}

func TestIngest_SkipsUnchangedDocument(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	manifest := newFakeManifest()
	p := newTestPipeline(t, vs, manifest, nil)

	doc := Document{Title: "same.txt", Text: "identical content every run"}

	if _, err := p.Ingest(context.Background(), doc); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	before := len(vs.stored())

	n, err := p.Ingest(context.Background(), doc)
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second ingest stored %d chunks, want 0 (skip)", n)
	}
	if got := len(vs.stored()); got != before {
		t.Errorf("store grew from %d to %d records on an unchanged document", before, got)
	}
	if len(vs.deleted) != 0 {
		t.Errorf("unexpected delete of %v on an unchanged document", vs.deleted)
	}
}

func TestIngest_ReplacesChangedDocument(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	manifest := newFakeManifest()
	p := newTestPipeline(t, vs, manifest, nil)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, Document{Title: "doc.txt", Text: "version one"}); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	if _, err := p.Ingest(ctx, Document{Title: "doc.txt", Text: "version two, revised"}); err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if len(vs.deleted) != 1 || vs.deleted[0] != "doc.txt" {
		t.Errorf("deleted = %v, want the old records for doc.txt removed first", vs.deleted)
	}
}

func TestIngest_ForceReingestsUnchangedDocument(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	manifest := newFakeManifest()
	p := newTestPipeline(t, vs, manifest, &Config{Force: true})
	ctx := context.Background()

	doc := Document{Title: "forced.txt", Text: "stable content"}
	if _, err := p.Ingest(ctx, doc); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	n, err := p.Ingest(ctx, doc)
	if err != nil {
		t.Fatalf("forced Ingest() error = %v", err)
	}
	if n == 0 {
		t.Error("force should re-ingest even when content is unchanged")
	}
	if len(vs.deleted) != 1 {
		t.Errorf("force re-ingest should replace prior records, deleted = %v", vs.deleted)
	}
}

func TestIngest_EmptyDocumentStoresNothing(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	p := newTestPipeline(t, vs, nil, nil)

	n, err := p.Ingest(context.Background(), Document{Title: "empty.txt", Text: ""})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if n != 0 || len(vs.stored()) != 0 {
		t.Errorf("empty document stored %d chunks", n)
	}
}

func TestIngest_EmbedderFailureIsProviderError(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(&fakeEmbedder{failOn: "broken"}, &fakeVectorStore{}, nil, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Ingest(context.Background(), Document{Title: "bad.txt", Text: "broken text"})
	var provErr *rag.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("Ingest() error = %v, want ProviderError", err)
	}
	if provErr.Provider != "embedder" {
		t.Errorf("Provider = %q, want embedder", provErr.Provider)
	}
}

// ---------------------------------------------------------------------------
// IngestBatch
// ---------------------------------------------------------------------------

func TestIngestBatch_IsolatesPerDocumentFailures(t *testing.T) {
	t.Parallel()
	vs := &fakeVectorStore{}
	p, err := NewPipeline(&fakeEmbedder{failOn: "poison"}, vs, nil, &Config{Workers: 2})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	docs := []Document{
		{Title: "ok-one.txt", Text: "healthy content about cats"},
		{Title: "bad.txt", Text: "poison content that the embedder rejects"},
		{Title: "ok-two.txt", Text: "healthy content about dogs"},
	}
	result := p.IngestBatch(context.Background(), docs)

	if len(result.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(result.Results))
	}
	if result.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", result.Failed())
	}
	if result.Results[1].Err == nil {
		t.Error("the poisoned document should carry its error")
	}
	if result.Results[0].Err != nil || result.Results[2].Err != nil {
		t.Error("healthy documents must not be affected by the failing one")
	}
	if result.Stored() == 0 {
		t.Error("healthy documents should have stored chunks despite the failure")
	}
	if result.Results[0].Title != "ok-one.txt" || result.Results[2].Title != "ok-two.txt" {
		t.Error("results must be returned in input order")
	}
}

// ---------------------------------------------------------------------------
// FetchDocument
// ---------------------------------------------------------------------------

func TestFetchDocument(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); !strings.Contains(got, "biorag") {
			t.Errorf("User-Agent = %q, want the pipeline agent string", got)
		}
		fmt.Fprint(w, "remote document body")
	}))
	t.Cleanup(srv.Close)

	p := newTestPipeline(t, &fakeVectorStore{}, nil, nil)
	doc, err := p.FetchDocument(context.Background(), srv.URL+"/papers/space-bio.txt")
	if err != nil {
		t.Fatalf("FetchDocument() error = %v", err)
	}
	if doc.Text != "remote document body" {
		t.Errorf("Text = %q", doc.Text)
	}
	if doc.Title != "space-bio.txt" {
		t.Errorf("Title = %q, want space-bio.txt", doc.Title)
	}
	if doc.SourceURL != srv.URL+"/papers/space-bio.txt" {
		t.Errorf("SourceURL = %q", doc.SourceURL)
	}
}

func TestFetchDocument_Non200Status(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	p := newTestPipeline(t, &fakeVectorStore{}, nil, nil)
	if _, err := p.FetchDocument(context.Background(), srv.URL+"/missing.txt"); err == nil {
		t.Error("FetchDocument() on 404 should fail")
	}
}
