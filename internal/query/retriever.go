package query

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

const DefaultTopK = 5

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is a nearest-neighbour index over fact embeddings, ordered by
// ascending L2 distance.
type Searcher interface {
	NearestFacts(ctx context.Context, embedding []float32, k int) ([]models.ScoredFact, error)
}

type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
}

func NewRetriever(embedder Embedder, searcher Searcher, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, searcher: searcher, topK: topK}
}

// Retrieve returns the facts nearest to the query. Embedding failures come
// back as-is; search failures are wrapped in errs.ErrRetrieval.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.ScoredFact, error) {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	facts, err := r.searcher.NearestFacts(ctx, embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRetrieval, err)
	}

	logger.Debug("Facts retrieved",
		zap.Int("top_k", r.topK),
		zap.Int("results", len(facts)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return facts, nil
}
