package rag

import "fmt"

// ConfigurationError reports an invalid static configuration value — bad
// chunk sizes, a non-positive result count, missing credentials. It is fatal
// at startup or request-validation time and never worth retrying as-is.
type ConfigurationError struct {
	// Field names the offending setting (e.g. "overlap", "topK").
	Field string

	// Reason describes why the value was rejected.
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rag: invalid configuration: %s: %s", e.Field, e.Reason)
}

// ProviderError reports a failure in an external collaborator: the embedding
// service, the vector index, or the LLM. These are transient conditions the
// caller may retry with backoff.
type ProviderError struct {
	// Provider names the collaborator that failed ("embedder", "vector store", "model").
	Provider string

	// Err is the underlying failure.
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("rag: %s unavailable: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmptyContextError reports that retrieval produced zero documents for a
// query, so there is nothing to ground an answer on. Not retryable without
// re-ingestion; callers must not prompt the model in this state.
type EmptyContextError struct {
	// Query is the user question that retrieved nothing.
	Query string
}

func (e *EmptyContextError) Error() string {
	return fmt.Sprintf("rag: no context retrieved for query %q", e.Query)
}

// SchemaViolationError reports model output that failed JSON parsing or
// validation against the answer schema. Retryable by revising the prompt,
// not by blind repetition.
type SchemaViolationError struct {
	// RawOutput is the model's unmodified text response, kept for diagnosis.
	RawOutput string

	// Err is the parse or validation failure.
	Err error
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("rag: model output violates answer schema: %v", e.Err)
}

func (e *SchemaViolationError) Unwrap() error { return e.Err }
