package handlers

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

type DocumentService interface {
	IngestPDF(ctx context.Context, name string, r io.ReaderAt, size int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
}

type DocumentHandler struct {
	documents DocumentService
}

func NewDocumentHandler(documents DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
	}
}

type documentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	FactCount int       `json:"fact_count"`
	CreatedAt time.Time `json:"created_at"`
}

func toDocumentResponse(d models.Document) documentResponse {
	return documentResponse{ID: d.ID, Name: d.Name, FactCount: d.FactCount, CreatedAt: d.CreatedAt}
}

// UploadDocument ingests a multipart PDF upload. The document name defaults
// to the uploaded file name.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A PDF file is required",
		})
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		name = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	doc, err := h.documents.IngestPDF(c.UserContext(), name, file, fileHeader.Size)
	if err != nil {
		logger.Error("Failed to ingest document", zap.String("name", name), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(toDocumentResponse(*doc))
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.documents.ListDocuments(c.UserContext())
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return errorResponse(c, err)
	}

	out := make([]documentResponse, len(docs))
	for i, d := range docs {
		out[i] = toDocumentResponse(d)
	}

	return c.JSON(fiber.Map{
		"documents": out,
	})
}

// DeleteDocument removes a document and its facts. Unknown ids succeed.
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document id",
		})
	}

	if err := h.documents.DeleteDocument(c.UserContext(), id); err != nil {
		logger.Error("Failed to delete document", zap.Int64("document_id", id), zap.Error(err))
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
