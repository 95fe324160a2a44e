package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"mnemo/pkg/errors"
	"mnemo/pkg/logger"
)

// Embedder maps text to a fixed-dimension vector via an OpenAI-compatible
// embeddings endpoint
type Embedder struct {
	client    *openai.Client
	model     string
	dimension int
	logger    *zap.Logger
}

// NewEmbedder creates an embedding adapter. The configured dimension must
// match the vector collection; the server checks this once at startup.
func NewEmbedder(baseURL, apiKey, modelID string, dimension int) *Embedder {
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"

	return &Embedder{
		client:    openai.NewClientWithConfig(config),
		model:     modelID,
		dimension: dimension,
		logger:    logger.Named("embedder"),
	}
}

// Dimension returns the configured embedding dimension
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed returns the embedding vector for one text
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.NewBaseError(errors.ErrorTypeEmbedding, "embedding request failed", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.NewBaseError(errors.ErrorTypeEmbedding, "no embedding in response", nil)
	}

	vector := resp.Data[0].Embedding
	if len(vector) != e.dimension {
		// The endpoint disagrees with the deployment configuration; a vector
		// of the wrong size would poison the collection.
		e.logger.Error("Embedding dimension mismatch",
			zap.Int("configured", e.dimension),
			zap.Int("returned", len(vector)),
			zap.String("model", e.model),
		)
		return nil, errors.NewBaseError(errors.ErrorTypeEmbedding,
			fmt.Sprintf("embedding dimension mismatch: configured %d, got %d", e.dimension, len(vector)), nil)
	}
	return vector, nil
}
