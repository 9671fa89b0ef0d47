package embeddings

import (
	"context"
	"errors"
)

// Sentinel errors for embedding operations.
var (
	// ErrEmptyInput is returned for empty text.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidConfig indicates an unusable backend or model configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")

	// ErrModelInit indicates the selected model could not be initialized.
	ErrModelInit = errors.New("embedding model initialization failed")

	// ErrEmbeddingFailed indicates a generation call failed.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrDimensionMismatch is returned when a backend emits vectors of an
	// unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// EmbedDocuments embeds texts that will be stored.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder bound to one model.
type Provider interface {
	Embedder
	// Dimension returns the output vector length.
	Dimension() int
	// Model returns the resolved model name.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}
