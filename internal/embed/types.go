// Package embed turns text passages into dense vectors.
package embed

import (
	"context"
	"time"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	// The result has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size this embedder produces.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder can serve requests now.
	Available(ctx context.Context) bool

	Close() error
}

// OllamaConfig configures the Ollama-backed embedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL.
	Host string

	// Model is the embedding model name.
	Model string

	// Dimensions fixes the vector size. Zero means auto-detect from a
	// probe embedding at startup.
	Dimensions int

	// Timeout bounds a single embedding request.
	Timeout time.Duration

	// SkipProbe disables the startup connectivity and dimension probe.
	SkipProbe bool
}

// Defaults for the Ollama embedder.
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "embeddinggemma"
	DefaultTimeout     = 2 * time.Minute
)

// ollamaEmbedRequest is the POST /api/embed payload.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the POST /api/embed result.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}
