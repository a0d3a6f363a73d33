// Package app builds the ingestion and chat services from configuration.
// Both the API server and the operator CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/cache/redis"
	"github.com/factrag/backend/internal/ingestion"
	"github.com/factrag/backend/internal/llm"
	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/internal/storage"
	"github.com/factrag/backend/internal/storage/postgres"
	"github.com/factrag/backend/internal/storage/sqlite"
	"github.com/factrag/backend/internal/vector/milvus"
	"github.com/factrag/backend/pkg/config"
	"github.com/factrag/backend/pkg/logger"
	"github.com/factrag/backend/pkg/retry"
)

type App struct {
	Store     storage.Store
	Cache     *redis.Client
	Mirror    *milvus.Client
	Embedder  *llm.Embedder
	Processor *ingestion.Processor
	Retriever *query.Retriever
	Engine    *query.Engine
	Sessions  *query.SessionStore

	llmClient *llm.Client
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	a.llmClient = llm.NewClient(provider, llm.ClientConfig{
		CallTimeout:      time.Duration(cfg.LLM.CallTimeoutSec) * time.Second,
		BreakerFailures:  uint32(cfg.LLM.BreakerFailures),
		BreakerResetTime: time.Duration(cfg.LLM.BreakerResetSec) * time.Second,
	})

	embedderCfg := llm.EmbedderConfig{
		Model:     cfg.LLM.EmbeddingModel,
		Dimension: cfg.LLM.EmbeddingDim,
		Retry: retry.Fixed("embedding", cfg.Embedding.Attempts,
			time.Duration(cfg.Embedding.BackoffMs)*time.Millisecond, logger.GetLogger()),
		CacheTTL: time.Duration(cfg.Redis.EmbeddingTTLMinutes) * time.Minute,
	}
	if cfg.Redis.Enabled {
		cache, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.Cache = cache
			embedderCfg.Cache = cache
		}
	}
	embedder := llm.NewEmbedder(a.llmClient, embedderCfg)
	a.Embedder = embedder

	var mirror ingestion.VectorMirror
	if cfg.Milvus.Enabled {
		m, err := milvus.NewClient(ctx, cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Milvus.CollectionName, cfg.LLM.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		a.Mirror = m
		if err := m.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		mirror = m
	}

	extractor := ingestion.NewFactExtractor(
		a.llmClient,
		cfg.Ingestion.FactAttempts,
		time.Duration(cfg.Ingestion.BackoffMs)*time.Millisecond,
		cfg.Ingestion.MaxConcurrency,
	)
	a.Processor = ingestion.NewProcessor(store, extractor, embedder, ingestion.Options{
		ChunkLength:    cfg.Ingestion.ChunkLength,
		MaxConcurrency: cfg.Ingestion.MaxConcurrency,
		Mirror:         mirror,
	})

	var searcher query.Searcher = store
	if cfg.Retrieval.Backend == "milvus" {
		if a.Mirror == nil {
			return nil, errors.New("retrieval.backend milvus requires milvus.enabled")
		}
		searcher = a.Mirror
	}

	a.Retriever = query.NewRetriever(embedder, searcher, cfg.Retrieval.TopK)
	composer := query.NewComposer(a.llmClient, query.ComposerConfig{
		HistoryTurns: cfg.Chat.HistoryTurns,
		Attempts:     cfg.Chat.Attempts,
		Backoff:      time.Duration(cfg.Chat.BackoffMs) * time.Millisecond,
	})
	a.Engine = query.NewEngine(a.Retriever, composer)
	a.Sessions = query.NewSessionStore(time.Duration(cfg.Chat.SessionIdleMinute) * time.Minute)

	logger.Info("Application initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("retrieval_backend", cfg.Retrieval.Backend),
		zap.Bool("embedding_cache", a.Cache != nil),
		zap.Bool("milvus_mirror", a.Mirror != nil),
	)

	ok = true
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		client, err := sqlite.NewClient(cfg.SQLite.Path, cfg.LLM.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil

	case "postgres":
		client, err := postgres.NewClient(postgres.Options{
			DSN:          cfg.Postgres.DSN(),
			EmbeddingDim: cfg.LLM.EmbeddingDim,
			HNSWIndex:    cfg.Postgres.HNSWIndex,
			MaxConns:     cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func newProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, cfg.Temperature), nil
	case "gemini":
		return llm.NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (a *App) Ready(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

// Close releases every client that was opened. It is safe on a partially
// built App.
func (a *App) Close() error {
	var errList []error

	if a.Sessions != nil {
		a.Sessions.Stop()
	}
	if a.Mirror != nil {
		errList = append(errList, a.Mirror.Close())
	}
	if a.Cache != nil {
		errList = append(errList, a.Cache.Close())
	}
	if a.llmClient != nil {
		errList = append(errList, a.llmClient.Close())
	}
	if a.Store != nil {
		errList = append(errList, a.Store.Close())
	}

	return errors.Join(errList...)
}
