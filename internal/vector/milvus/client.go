package milvus

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

const (
	fieldFactID     = "fact_id"
	fieldDocumentID = "document_id"
	fieldChunk      = "chunk"
	fieldEmbedding  = "embedding"

	maxChunkLength = 8192
)

// Client mirrors committed fact chunks into a Milvus collection. The relational
// store stays the source of truth; the mirror can be rebuilt from it.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return m.client.LoadCollection(ctx, m.collectionName, false)
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Fact chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldFactID,
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     fieldDocumentID,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldChunk,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": fmt.Sprintf("%d", maxChunkLength),
				},
			},
			{
				Name:     fieldEmbedding,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, m.collectionName, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func (m *Client) Upsert(ctx context.Context, facts []models.FactChunk) error {
	if len(facts) == 0 {
		return nil
	}

	ids := make([]int64, len(facts))
	docIDs := make([]int64, len(facts))
	chunks := make([]string, len(facts))
	embeddings := make([][]float32, len(facts))

	for i, f := range facts {
		ids[i] = f.ID
		docIDs[i] = f.DocumentID
		chunks[i] = truncate(f.Text, maxChunkLength)
		embeddings[i] = f.Embedding
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnInt64(fieldFactID, ids),
		entity.NewColumnInt64(fieldDocumentID, docIDs),
		entity.NewColumnVarChar(fieldChunk, chunks),
		entity.NewColumnFloatVector(fieldEmbedding, m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fact chunks: %w", err)
	}

	if err := m.client.Flush(ctx, m.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Fact chunks mirrored to vector index", zap.Int("count", len(facts)))
	return nil
}

func (m *Client) DeleteDocument(ctx context.Context, documentID int64) error {
	expr := fmt.Sprintf("%s == %d", fieldDocumentID, documentID)
	if err := m.client.Delete(ctx, m.collectionName, "", expr); err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	logger.Info("Document vectors deleted", zap.Int64("document_id", documentID))
	return nil
}

func (m *Client) NearestFacts(ctx context.Context, embedding []float32, k int) ([]models.ScoredFact, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		"",
		[]string{fieldFactID, fieldDocumentID, fieldChunk},
		[]entity.Vector{entity.FloatVector(embedding)},
		fieldEmbedding,
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]models.ScoredFact, 0, k)
	for _, sr := range searchResult {
		idCol := sr.Fields.GetColumn(fieldFactID)
		docCol := sr.Fields.GetColumn(fieldDocumentID)
		chunkCol := sr.Fields.GetColumn(fieldChunk)
		if idCol == nil || docCol == nil || chunkCol == nil {
			return nil, fmt.Errorf("search result is missing output fields")
		}

		for i := 0; i < sr.ResultCount; i++ {
			id, err := idCol.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read fact id: %w", err)
			}
			docID, err := docCol.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read document id: %w", err)
			}
			chunk, err := chunkCol.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("failed to read chunk: %w", err)
			}

			results = append(results, models.ScoredFact{
				FactChunk: models.FactChunk{ID: id, DocumentID: docID, Text: chunk},
				// Milvus reports squared L2.
				Distance: math.Sqrt(float64(sr.Scores[i])),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", k),
		zap.Int("results", len(results)),
	)

	return results, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
