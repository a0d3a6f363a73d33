package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

// Client is the embedded store used for local runs and tests. Nearest
// neighbour search is a linear scan over the stored vectors.
type Client struct {
	db           *sql.DB
	embeddingDim int
}

func NewClient(dbPath string, embeddingDim int) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db, embeddingDim: embeddingDim}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_information_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		chunk TEXT NOT NULL,
		embedding BLOB NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_information_chunks(document_id);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateDocument(ctx context.Context, name string, facts []models.FactChunk) (doc *models.Document, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO documents (name, created_at) VALUES (?, ?)`, name, now.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %q", errs.ErrDuplicateName, name)
		}
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}

	docID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read document id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_information_chunks (document_id, chunk, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	stored := make([]models.FactChunk, 0, len(facts))
	for i, fact := range facts {
		if len(fact.Embedding) != c.embeddingDim {
			return nil, fmt.Errorf("failed to insert chunk %d: %w: got %d, want %d",
				i, errs.ErrDimensionMismatch, len(fact.Embedding), c.embeddingDim)
		}

		res, err := stmt.ExecContext(ctx, docID, fact.Text, encodeVector(fact.Embedding))
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk id: %w", err)
		}

		fact.ID = chunkID
		fact.DocumentID = docID
		stored = append(stored, fact)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("Document inserted",
		zap.Int64("document_id", docID),
		zap.String("name", name),
		zap.Int("facts", len(stored)),
	)

	return &models.Document{
		ID:        docID,
		Name:      name,
		FactCount: len(stored),
		CreatedAt: time.Unix(now.Unix(), 0).UTC(),
		Facts:     stored,
	}, nil
}

func (c *Client) ListDocuments(ctx context.Context) ([]models.Document, error) {
	query := `
		SELECT d.id, d.name, d.created_at, COUNT(c.id)
		FROM documents d
		LEFT JOIN document_information_chunks c ON c.document_id = d.id
		GROUP BY d.id, d.name, d.created_at
		ORDER BY d.id
	`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Name, &createdAt, &d.FactCount); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, id int64) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		logger.Debug("Delete of unknown document ignored", zap.Int64("document_id", id))
	}
	return nil
}

// CountFacts returns the number of stored facts owned by the document.
func (c *Client) CountFacts(ctx context.Context, documentID int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_information_chunks WHERE document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count facts: %w", err)
	}
	return n, nil
}

func (c *Client) NearestFacts(ctx context.Context, embedding []float32, k int) ([]models.ScoredFact, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(embedding) != c.embeddingDim {
		return nil, fmt.Errorf("%w: got %d, want %d", errs.ErrDimensionMismatch, len(embedding), c.embeddingDim)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT id, document_id, chunk, embedding FROM document_information_chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredFact
	for rows.Next() {
		var f models.ScoredFact
		var blob []byte
		if err := rows.Scan(&f.ID, &f.DocumentID, &f.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		f.Embedding = decodeVector(blob)
		f.Distance = l2Distance(embedding, f.Embedding)
		scored = append(scored, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Distance == scored[j].Distance {
			return scored[i].ID < scored[j].ID
		}
		return scored[i].Distance < scored[j].Distance
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func l2Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) []float32 {
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
