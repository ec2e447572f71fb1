package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akolanti/docsync/pkg/logger_i"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrCountMismatch     = errors.New("embedding count does not match input")
)

type Embedder interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
	BatchEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ChunkEmbedder is what the reindex worker needs: one vector per chunk text.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, texts []string) ([][]float32, error)
}

// Manager fans chunk texts out to an Embedder in rate limited batches.
type Manager struct {
	embedder    Embedder
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	callTimeout time.Duration
	logger      *logger_i.Logger
}

func NewManager(embedder Embedder, batchSize int, concurrency int, ratePerSecond float64, callTimeout time.Duration) *Manager {
	if batchSize <= 0 {
		batchSize = 1
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &Manager{
		embedder:    embedder,
		batchSize:   batchSize,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
		callTimeout: callTimeout,
		logger:      logger_i.NewLogger("embedding_manager"),
	}
}

// EmbedChunks returns one vector per text, in input order.
func (m *Manager) EmbedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log := m.logger.WithTrace(ctx)
	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for start := 0; start < len(texts); start += m.batchSize {
		end := min(start+m.batchSize, len(texts))
		batch := texts[start:end]
		offset := start

		g.Go(func() error {
			if err := m.limiter.Wait(gctx); err != nil {
				return err
			}
			vectors, err := m.embedBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("embedding batch at %d: %w", offset, err)
			}
			copy(results[offset:], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("embedding failed", "chunks", len(texts), "error", err)
		return nil, err
	}
	log.Debug("chunks embedded", "chunks", len(texts))
	return results, nil
}

func (m *Manager) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx := ctx
	if m.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.callTimeout)
		defer cancel()
	}

	vectors, err := m.embedder.BatchEmbedding(callCtx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: got %d for %d texts", ErrCountMismatch, len(vectors), len(batch))
	}
	want := m.embedder.Dimension()
	for i, v := range vectors {
		if len(v) != want {
			return nil, fmt.Errorf("%w: vector %d has %d values, want %d", ErrDimensionMismatch, i, len(v), want)
		}
	}
	return vectors, nil
}
