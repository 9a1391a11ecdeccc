// Package llm wraps the external language-model client Engram delegates to
// for embeddings and short-form completions. All outbound calls go through a
// circuit breaker and a rate limiter; embeddings are additionally cached, so
// repeated queries never re-embed the same text.
package llm

import "context"

// TextGenerator produces short-form completions, used for summarization and
// entity extraction.
type TextGenerator interface {
	// Complete sends a prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmbeddingGenerator converts text into an embedding vector.
type EmbeddingGenerator interface {
	// Embed returns the embedding for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Client bundles both capabilities of the external language-model service.
type Client interface {
	TextGenerator
	EmbeddingGenerator
}
