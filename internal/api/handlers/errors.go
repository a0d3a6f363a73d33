package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/factrag/backend/internal/errs"
)

const noResponseMessage = "No response generated. Try again."

// StatusFor maps a domain error to the HTTP status and message shown to the
// client.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrDuplicateName):
		return fiber.StatusConflict, "A document with this name already exists"
	case errors.Is(err, errs.ErrExtraction):
		return fiber.StatusUnprocessableEntity, "The file could not be read as a PDF"
	case errors.Is(err, errs.ErrInvalidDocumentName):
		return fiber.StatusBadRequest, "Document name is required"
	case errors.Is(err, errs.ErrEmptyInput):
		return fiber.StatusBadRequest, "Message is required"
	case errors.Is(err, errs.ErrInvalidChunkLength):
		return fiber.StatusBadRequest, "Invalid chunk length"
	case errors.Is(err, errs.ErrNoResponse):
		return fiber.StatusBadGateway, noResponseMessage
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	status, msg := StatusFor(err)
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
