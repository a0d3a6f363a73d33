package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/pkg/logger"
	"github.com/factrag/backend/pkg/retry"
	"github.com/factrag/backend/pkg/utils"
)

type EmbeddingBackend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is satisfied by the redis cache client.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error
}

type EmbedderConfig struct {
	Model     string
	Dimension int
	Retry     retry.Config
	Cache     EmbeddingCache
	CacheTTL  time.Duration
}

// Embedder turns text into a vector of a fixed dimension. With the default
// single-attempt retry config a failed call is reported, not repeated.
type Embedder struct {
	backend   EmbeddingBackend
	model     string
	dimension int
	retry     retry.Config
	cache     EmbeddingCache
	cacheTTL  time.Duration
}

func NewEmbedder(backend EmbeddingBackend, cfg EmbedderConfig) *Embedder {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Fixed("embedding", 1, time.Second, logger.GetLogger())
	}

	return &Embedder{
		backend:   backend,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retry:     cfg.Retry,
		cache:     cfg.Cache,
		cacheTTL:  cfg.CacheTTL,
	}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.ErrEmptyInput
	}

	key := utils.HashParts(e.model, text)
	if v, ok := e.lookup(ctx, key); ok {
		return v, nil
	}

	vector, err := retry.DoWithResult(ctx, e.retry, func() ([]float32, error) {
		v, err := e.backend.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty embedding payload", errs.ErrEmbedding)
		}
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", errs.ErrDimensionMismatch, len(v), e.dimension)
		}
		return v, nil
	})
	if err != nil {
		if !errors.Is(err, errs.ErrEmbedding) {
			err = fmt.Errorf("%w: %v", errs.ErrEmbedding, err)
		}
		return nil, err
	}

	e.store(ctx, key, vector)
	return vector, nil
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	if e.cache == nil {
		return nil, false
	}

	v, ok, err := e.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok || (e.dimension > 0 && len(v) != e.dimension) {
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("embedding").Inc()
	return v, true
}

func (e *Embedder) store(ctx context.Context, key string, vector []float32) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetEmbedding(ctx, key, vector, e.cacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}
