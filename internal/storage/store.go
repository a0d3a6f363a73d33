package storage

import (
	"context"

	"github.com/factrag/backend/internal/storage/models"
)

// Store persists documents with their fact chunks and answers
// nearest-neighbour queries over the fact embeddings.
type Store interface {
	// CreateDocument inserts the document and all facts in one transaction.
	// A name collision fails with errs.ErrDuplicateName and writes nothing.
	CreateDocument(ctx context.Context, name string, facts []models.FactChunk) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	// DeleteDocument removes the document and its facts. Unknown ids are a no-op.
	DeleteDocument(ctx context.Context, id int64) error
	// NearestFacts returns up to k facts by ascending L2 distance.
	NearestFacts(ctx context.Context, embedding []float32, k int) ([]models.ScoredFact, error)
	Ping(ctx context.Context) error
	Close() error
}
