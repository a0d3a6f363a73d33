package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

type documentRow struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (documentRow) TableName() string { return "documents" }

type factChunkRow struct {
	ID         int64           `gorm:"primaryKey"`
	DocumentID int64           `gorm:"not null;index"`
	Chunk      string          `gorm:"not null"`
	Embedding  pgvector.Vector `gorm:"not null"`
}

func (factChunkRow) TableName() string { return "document_information_chunks" }

type scoredRow struct {
	factChunkRow
	Distance float64
}

type documentSummary struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	FactCount int
}

type Options struct {
	DSN          string
	EmbeddingDim int
	HNSWIndex    bool
	MaxConns     int
}

// Client stores documents and facts in Postgres and searches them with the
// pgvector L2 operator.
type Client struct {
	db           *gorm.DB
	embeddingDim int
	hnswIndex    bool
}

func NewClient(opts Options) (*Client, error) {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if opts.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxConns)
		sqlDB.SetMaxIdleConns(opts.MaxConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info("Postgres client initialized", zap.Int("embedding_dim", opts.EmbeddingDim))

	return &Client{db: db, embeddingDim: opts.EmbeddingDim, hnswIndex: opts.HNSWIndex}, nil
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_information_chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL
		)`, c.embeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_information_chunks(document_id)`,
	}
	if c.hnswIndex {
		statements = append(statements,
			`CREATE INDEX IF NOT EXISTS idx_chunks_embedding_hnsw ON document_information_chunks USING hnsw (embedding vector_l2_ops)`)
	}

	db := c.db.WithContext(ctx)
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	logger.Info("Postgres schema initialized", zap.Bool("hnsw_index", c.hnswIndex))
	return nil
}

func (c *Client) CreateDocument(ctx context.Context, name string, facts []models.FactChunk) (*models.Document, error) {
	for i, f := range facts {
		if len(f.Embedding) != c.embeddingDim {
			return nil, fmt.Errorf("fact %d: %w: got %d, want %d", i, errs.ErrDimensionMismatch, len(f.Embedding), c.embeddingDim)
		}
	}

	doc := documentRow{Name: name, CreatedAt: time.Now().UTC()}
	rows := make([]factChunkRow, len(facts))

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %q", errs.ErrDuplicateName, name)
			}
			return fmt.Errorf("failed to insert document: %w", err)
		}

		if len(facts) == 0 {
			return nil
		}

		for i, f := range facts {
			rows[i] = factChunkRow{
				DocumentID: doc.ID,
				Chunk:      f.Text,
				Embedding:  pgvector.NewVector(f.Embedding),
			}
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to insert fact chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored := make([]models.FactChunk, len(rows))
	for i, r := range rows {
		stored[i] = models.FactChunk{
			ID:         r.ID,
			DocumentID: doc.ID,
			Text:       r.Chunk,
			Embedding:  facts[i].Embedding,
		}
	}

	logger.Debug("Document inserted",
		zap.Int64("document_id", doc.ID),
		zap.String("name", name),
		zap.Int("facts", len(stored)),
	)

	return &models.Document{
		ID:        doc.ID,
		Name:      doc.Name,
		FactCount: len(stored),
		CreatedAt: doc.CreatedAt,
		Facts:     stored,
	}, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var summaries []documentSummary
	err := c.db.WithContext(ctx).
		Table("documents AS d").
		Select("d.id, d.name, d.created_at, COUNT(c.id) AS fact_count").
		Joins("LEFT JOIN document_information_chunks c ON c.document_id = d.id").
		Group("d.id, d.name, d.created_at").
		Order("d.id").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]models.Document, len(summaries))
	for i, s := range summaries {
		docs[i] = models.Document{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt, FactCount: s.FactCount}
	}
	return docs, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	res := c.db.WithContext(ctx).Delete(&documentRow{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Debug("Delete of unknown document ignored", zap.Int64("document_id", id))
	}
	return nil
}

func (c *Client) NearestFacts(ctx context.Context, embedding []float32, k int) ([]models.ScoredFact, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) != c.embeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", errs.ErrDimensionMismatch, len(embedding), c.embeddingDim)
	}

	query := pgvector.NewVector(embedding)

	var rows []scoredRow
	err := c.db.WithContext(ctx).
		Model(&factChunkRow{}).
		Select("id, document_id, chunk, embedding, embedding <-> ? AS distance", query).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <-> ?", Vars: []interface{}{query}},
		}).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search fact chunks: %w", err)
	}

	results := make([]models.ScoredFact, len(rows))
	for i, r := range rows {
		results[i] = models.ScoredFact{
			FactChunk: models.FactChunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Text:       r.Chunk,
				Embedding:  r.Embedding.Slice(),
			},
			Distance: r.Distance,
		}
	}
	return results, nil
}
