package providers

import (
	"context"
	"fmt"
	"os"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
)

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// NewEmbeddingModel creates an OpenAI-compatible embedding model from specific configuration.
func NewEmbeddingModel(ctx context.Context, config *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}

	modelName := config.Model
	if modelName == "" {
		modelName = "text-embedding-v3"
	}

	embedCfg := &openaiEmbed.EmbeddingConfig{
		APIKey:  config.APIKey,
		BaseURL: baseURL,
		Model:   modelName,
	}
	if config.Dimensions > 0 {
		dims := config.Dimensions
		embedCfg.Dimensions = &dims
	}

	return openaiEmbed.NewEmbedder(ctx, embedCfg)
}

// CreateEmbeddingModel creates an OpenAI-compatible embedding model from environment variables.
// Required environment variables:
//   - EMBEDDING_MODEL_API_KEY: API key for the embedding provider
//
// Optional environment variables:
//   - EMBEDDING_MODEL_BASE_URL: Base URL for OpenAI-compatible API (default: https://dashscope.aliyuncs.com/compatible-mode/v1)
//   - EMBEDDING_MODEL: Model name (default: text-embedding-v3)
func CreateEmbeddingModel(ctx context.Context) (einoEmbedding.Embedder, error) {
	apiKey := os.Getenv("EMBEDDING_MODEL_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("EMBEDDING_MODEL_API_KEY environment variable is required")
	}

	return NewEmbeddingModel(ctx, &EmbeddingConfig{
		APIKey:  apiKey,
		BaseURL: os.Getenv("EMBEDDING_MODEL_BASE_URL"),
		Model:   os.Getenv("EMBEDDING_MODEL"),
	})
}
