package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/internal/storage"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

type Extractor interface {
	ExtractAll(ctx context.Context, segments []string) [][]string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorMirror receives committed facts after the store transaction.
type VectorMirror interface {
	Upsert(ctx context.Context, facts []models.FactChunk) error
	DeleteDocument(ctx context.Context, documentID int64) error
}

type Options struct {
	ChunkLength    int
	MaxConcurrency int
	// Mirror is optional.
	Mirror VectorMirror
}

type Processor struct {
	store          storage.Store
	extractor      Extractor
	embedder       Embedder
	mirror         VectorMirror
	chunkLength    int
	maxConcurrency int
}

func NewProcessor(store storage.Store, extractor Extractor, embedder Embedder, opts Options) *Processor {
	if opts.ChunkLength <= 0 {
		opts.ChunkLength = DefaultChunkLength
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}

	return &Processor{
		store:          store,
		extractor:      extractor,
		embedder:       embedder,
		mirror:         opts.Mirror,
		chunkLength:    opts.ChunkLength,
		maxConcurrency: opts.MaxConcurrency,
	}
}

func (p *Processor) IngestPDF(ctx context.Context, name string, r io.ReaderAt, size int64) (*models.Document, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	text, err := ExtractText(r, size)
	if err != nil {
		metrics.DocumentsIngested.WithLabelValues("extraction_error").Inc()
		return nil, err
	}

	return p.IngestText(ctx, name, text)
}

func (p *Processor) IngestText(ctx context.Context, name, text string) (doc *models.Document, err error) {
	start := time.Now()
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}

	defer func() {
		status := "ok"
		switch {
		case errors.Is(err, errs.ErrDuplicateName):
			status = "duplicate"
		case err != nil:
			status = "error"
		}
		metrics.DocumentsIngested.WithLabelValues(status).Inc()
		metrics.IngestionDuration.Observe(time.Since(start).Seconds())
	}()

	logger.Info("Processing document", zap.String("name", name), zap.Int("text_length", len(text)))

	segments, err := SplitText(text, p.chunkLength)
	if err != nil {
		return nil, err
	}
	logger.Info("Document chunked", zap.String("name", name), zap.Int("chunks", len(segments)))

	var statements []string
	for _, facts := range p.extractor.ExtractAll(ctx, segments) {
		statements = append(statements, facts...)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	facts := p.embedFacts(ctx, statements)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ingestion cancelled: %w", err)
	}

	doc, err = p.store.CreateDocument(ctx, name, facts)
	if err != nil {
		return nil, fmt.Errorf("failed to store document %q: %w", name, err)
	}

	if p.mirror != nil {
		if err := p.mirror.Upsert(ctx, doc.Facts); err != nil {
			logger.Warn("Failed to mirror facts to vector index",
				zap.Int64("document_id", doc.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Document processed successfully",
		zap.Int64("document_id", doc.ID),
		zap.String("name", name),
		zap.Int("chunks", len(segments)),
		zap.Int("facts_extracted", len(statements)),
		zap.Int("facts_stored", doc.FactCount),
		zap.Duration("elapsed", time.Since(start)),
	)

	return doc, nil
}

// embedFacts embeds every statement concurrently, keeping input order.
// Statements whose embedding fails are skipped.
func (p *Processor) embedFacts(ctx context.Context, statements []string) []models.FactChunk {
	vectors := make([][]float32, len(statements))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)
	for i, statement := range statements {
		g.Go(func() error {
			v, err := p.embedder.Embed(gctx, statement)
			if err != nil {
				metrics.EmbeddingFailures.Inc()
				logger.Warn("Skipping fact without embedding",
					zap.Int("fact_index", i),
					zap.Error(err),
				)
				return nil
			}
			vectors[i] = v
			return nil
		})
	}
	_ = g.Wait()

	facts := make([]models.FactChunk, 0, len(statements))
	for i, v := range vectors {
		if v == nil {
			continue
		}
		facts = append(facts, models.FactChunk{Text: statements[i], Embedding: v})
	}
	return facts
}

// DeleteDocument removes a document and its facts. Deleting an unknown id
// succeeds without doing anything.
func (p *Processor) DeleteDocument(ctx context.Context, id int64) error {
	if err := p.store.DeleteDocument(ctx, id); err != nil {
		return err
	}

	if p.mirror != nil {
		if err := p.mirror.DeleteDocument(ctx, id); err != nil {
			logger.Warn("Failed to delete document vectors", zap.Int64("document_id", id), zap.Error(err))
		}
	}

	logger.Info("Document deleted", zap.Int64("document_id", id))
	return nil
}

func (p *Processor) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return p.store.ListDocuments(ctx)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errs.ErrInvalidDocumentName
	}
	return nil
}
