package googleEmbedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/akolanti/docsync/internal/config"
	"github.com/akolanti/docsync/internal/reindex/embedding"
	"github.com/akolanti/docsync/pkg/logger_i"
	"google.golang.org/genai"
)

type client struct {
	genAi     *genai.Client
	model     string
	dimension int32
	logger    *logger_i.Logger
}

func NewGoogleEmbedder(ctx context.Context, modelName string, apiKey string, dimension int, httpClient *http.Client) (embedding.Embedder, error) {
	logger := logger_i.NewLogger("google_embedding")
	if apiKey == "" {
		return nil, errors.New("google embedding needs EMBEDDING_API_KEY")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		logger.Error("Error creating Google Embedding client:", "error", err)
		return nil, fmt.Errorf("creating google embedding client: %w", err)
	}
	logger.Debug("Google Embedding model name: " + modelName)
	logger.Info("Google Embedding client created")
	return &client{
		genAi:     c,
		model:     modelName,
		dimension: int32(dimension),
		logger:    logger,
	}, nil
}

func (c *client) Dimension() int {
	return int(c.dimension)
}

func (c *client) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := c.BatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (c *client) BatchEmbedding(ctx context.Context, chunks []string) ([][]float32, error) {
	log := c.logger.WithTrace(ctx)

	res, err := c.doCall(ctx, getContent(chunks))
	if err != nil && doRetry(err, log) {
		log.Debug("Retrying after rate limit", "wait", config.EmbeddingRetryAfterRateLimit)
		if waitErr := sleepCtx(ctx, config.EmbeddingRetryAfterRateLimit); waitErr != nil {
			return nil, waitErr
		}
		res, err = c.doCall(ctx, getContent(chunks))
	}
	if err != nil {
		log.Error("Error getting Embeddings from Google", "error", err)
		return nil, wrapTransient(err)
	}
	if res == nil {
		return nil, errors.New("google embedding returned an empty response")
	}

	embeddingResults := make([][]float32, 0, len(res.Embeddings))
	for _, r := range res.Embeddings {
		if r == nil {
			embeddingResults = append(embeddingResults, nil)
			continue
		}
		embeddingResults = append(embeddingResults, r.Values)
	}
	return embeddingResults, nil
}

func (c *client) doCall(ctx context.Context, content []*genai.Content) (*genai.EmbedContentResponse, error) {
	return c.genAi.Models.EmbedContent(ctx, c.model, content, &genai.EmbedContentConfig{
		OutputDimensionality: &c.dimension,
		TaskType:             config.EmbeddingTaskType,
	})
}
