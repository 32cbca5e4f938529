package vector

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"atlas/rag"
)

// Embedding defaults. The dimension matches the text-embedding-v3 deployment;
// the batch size bounds request payloads against the remote service.
const (
	DefaultEmbeddingDim = 1024
	DefaultBatchSize    = 10
	DefaultMaxAttempts  = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// EmbeddingConfig configures the embedding client.
type EmbeddingConfig struct {
	Dim          int           // Expected vector dimension
	BatchSize    int           // Texts per request to the remote service
	MaxAttempts  int           // Attempts per batch before giving up
	RetryBackoff time.Duration // Base backoff, doubled per retry
}

// DefaultEmbeddingConfig returns the default configuration, with the
// dimension overridable through VECTOR_DIM.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Dim:          getEnvInt("VECTOR_DIM", DefaultEmbeddingDim),
		BatchSize:    getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		MaxAttempts:  DefaultMaxAttempts,
		RetryBackoff: defaultRetryBackoff,
	}
}

// EmbeddingClient wraps an embedding model for vector generation. The
// underlying embedder is injected once at construction and shared; the
// client itself holds no mutable state.
type EmbeddingClient struct {
	embedder embedding.Embedder
	config   EmbeddingConfig
}

// NewEmbeddingClient creates a new embedding client around an injected
// embedder.
func NewEmbeddingClient(embedder embedding.Embedder, config EmbeddingConfig) *EmbeddingClient {
	if config.Dim <= 0 {
		config.Dim = DefaultEmbeddingDim
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaultRetryBackoff
	}
	return &EmbeddingClient{
		embedder: embedder,
		config:   config,
	}
}

// Dimension returns the configured embedding dimension.
func (c *EmbeddingClient) Dimension() int {
	return c.config.Dim
}

// Embed generates an embedding vector for a single text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", rag.ErrInvalidQuery)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts, one vector per
// input in the same order. Requests are chunked into batches of BatchSize;
// each batch is retried with exponential backoff before the whole call fails
// with rag.ErrEmbeddingService carrying the last cause.
func (c *EmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += c.config.BatchSize {
		end := i + c.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}

	return result, nil
}

// embedBatch sends one batch to the remote service with bounded retry.
func (c *EmbeddingClient) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff << (attempt - 1)
			log.Printf("[embedding] retrying batch of %d after %v (attempt %d/%d): %v",
				len(texts), backoff, attempt+1, c.config.MaxAttempts, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingService, ctx.Err())
			}
		}

		vectors, err := c.embedder.EmbedStrings(ctx, texts)
		if err != nil {
			lastErr = err
			continue
		}

		return c.convert(texts, vectors)
	}

	return nil, fmt.Errorf("%w: %d attempts exhausted: %v",
		rag.ErrEmbeddingService, c.config.MaxAttempts, lastErr)
}

// convert validates the response shape and narrows float64 vectors to the
// float32 representation the stores persist.
func (c *EmbeddingClient) convert(texts []string, vectors [][]float64) ([][]float32, error) {
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d vectors, got %d",
			rag.ErrEmbeddingService, len(texts), len(vectors))
	}

	result := make([][]float32, len(vectors))
	for i, vec := range vectors {
		if len(vec) != c.config.Dim {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d",
				rag.ErrDimensionMismatch, c.config.Dim, len(vec))
		}
		result[i] = make([]float32, len(vec))
		for j, v := range vec {
			result[i][j] = float32(v)
		}
	}

	return result, nil
}
