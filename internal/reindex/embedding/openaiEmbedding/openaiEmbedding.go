package openaiEmbedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/akolanti/docsync/internal/domain/commonModels"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"github.com/akolanti/docsync/pkg/logger_i"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// client talks to any OpenAI compatible embeddings endpoint, e.g. a local bge-m3 server.
type client struct {
	api       openai.Client
	model     string
	dimension int
	logger    *logger_i.Logger
}

func NewOpenAIEmbedder(modelName string, apiKey string, baseURL string, dimension int, httpClient *http.Client) embedding.Embedder {
	logger := logger_i.NewLogger("openai_embedding")

	opts := []option.RequestOption{option.WithMaxRetries(2)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	logger.Info("OpenAI compatible embedding client created", "model", modelName, "baseUrl", baseURL)
	return &client{
		api:       openai.NewClient(opts...),
		model:     modelName,
		dimension: dimension,
		logger:    logger,
	}
}

func (c *client) Dimension() int {
	return c.dimension
}

func (c *client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := c.BatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	log := c.logger.WithTrace(ctx)

	res, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		log.Error("Error getting Embeddings", "error", err, "texts", len(texts))
		return nil, wrapTransient(err)
	}
	return toVectors(res.Data, len(texts))
}

// toVectors places every embedding at its reported index and narrows it to float32.
func toVectors(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: got %d for %d texts", embedding.ErrCountMismatch, len(data), want)
	}
	out := make([][]float32, want)
	for _, d := range data {
		if d.Index < 0 || int(d.Index) >= want || out[d.Index] != nil {
			return nil, fmt.Errorf("embedding response has invalid index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func wrapTransient(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError) {
		return fmt.Errorf("%w: %w", commonModels.ErrTransient, err)
	}
	return err
}
