// Package llm provides clients for text generation and embedding models.
// All remote calls are wrapped with circuit breaker protection so a
// misbehaving provider degrades the memory layer instead of stalling it.
package llm

import "context"

// TextGenerator is the interface for LLM text completion. The quality
// evaluator uses single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Returns float32 slice; callers convert to float64 for storage.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
