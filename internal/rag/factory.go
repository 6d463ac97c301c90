package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// NewStoreFromEnv constructs the VectorStore selected by VECTOR_BACKEND.
//
// Supported backends and their environment variables:
//
//	qdrant (default): QDRANT_HOST, QDRANT_PORT, QDRANT_API_KEY, QDRANT_USE_TLS
//	weaviate:         WEAVIATE_HOST, WEAVIATE_SCHEME, WEAVIATE_CLASS, WEAVIATE_API_KEY
//	pgvector:         PGVECTOR_DSN
//
// All backends share BIORAG_COLLECTION (default: biology) as the
// collection/class/table name; the Weaviate class name is capitalized to
// satisfy Weaviate's naming rules unless WEAVIATE_CLASS overrides it.
// vectorSize must match the embedder's output dimensions.
func NewStoreFromEnv(ctx context.Context, vectorSize uint64) (VectorStore, error) {
	backend := getEnvOrDefault("VECTOR_BACKEND", "qdrant")
	collection := getEnvOrDefault("BIORAG_COLLECTION", "biology")

	switch backend {
	case "qdrant":
		return NewQdrantStore(ctx, &QdrantConfig{
			Host:       getEnv("QDRANT_HOST"),
			Port:       getEnvInt("QDRANT_PORT", 0),
			Collection: collection,
			VectorSize: vectorSize,
			APIKey:     getEnv("QDRANT_API_KEY"),
			UseTLS:     getEnvBool("QDRANT_USE_TLS", false),
		})

	case "weaviate":
		class := getEnv("WEAVIATE_CLASS")
		if class == "" {
			class = strings.ToUpper(collection[:1]) + collection[1:]
		}
		return NewWeaviateStore(ctx, &WeaviateConfig{
			Host:   getEnv("WEAVIATE_HOST"),
			Scheme: getEnv("WEAVIATE_SCHEME"),
			Class:  class,
			APIKey: getEnv("WEAVIATE_API_KEY"),
		})

	case "pgvector":
		return NewPgvectorStore(ctx, &PgvectorConfig{
			DSN:        getEnv("PGVECTOR_DSN"),
			Table:      collection,
			VectorSize: vectorSize,
		})

	default:
		return nil, &ConfigurationError{
			Field:  "VECTOR_BACKEND",
			Reason: fmt.Sprintf("unknown backend %q (supported: qdrant, weaviate, pgvector)", backend),
		}
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvBool returns the boolean value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
