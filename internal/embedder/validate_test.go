package embedder

import (
	"testing"

	"github.com/54b3r/biorag-go/internal/logging"
)

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"llama3.1:8b", true},
		{"gemini-2.5-flash", true},
		{"gemini-1.5-pro", true},
		{"mistral-7b", true},
		{"gemini-embedding-001", false},
		{"mxbai-embed-large", false},
		{"nomic-embed-text", false},
		{"text-embedding-3-small", false},
	}
	for _, tc := range cases {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}

func TestValidateForRAG_OllamaDefaultPasses(t *testing.T) {
	clearEmbeddingEnv(t)

	if err := ValidateForRAG(logging.Discard()); err != nil {
		t.Errorf("ValidateForRAG() error = %v, want nil for the ollama default", err)
	}
}

func TestValidateForRAG_MissingCredentialsFail(t *testing.T) {
	for _, backend := range []string{"openai", "azure", "gemini", "bedrock"} {
		t.Run(backend, func(t *testing.T) {
			clearEmbeddingEnv(t)
			t.Setenv("EMBEDDING_PROVIDER", backend)

			if err := ValidateForRAG(logging.Discard()); err == nil {
				t.Errorf("ValidateForRAG() should fail for %s without credentials", backend)
			}
		})
	}
}

func TestValidateForRAG_CompleteConfigPasses(t *testing.T) {
	clearEmbeddingEnv(t)
	t.Setenv("EMBEDDING_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")

	if err := ValidateForRAG(logging.Discard()); err != nil {
		t.Errorf("ValidateForRAG() error = %v", err)
	}
}
