package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/pkg/logger"
)

type ChatService interface {
	Chat(ctx context.Context, session *query.Session, message string) (*query.ChatResult, error)
}

type ChatHandler struct {
	chat     ChatService
	sessions *query.SessionStore
}

func NewChatHandler(chat ChatService, sessions *query.SessionStore) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		sessions: sessions,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	session := h.sessions.GetOrCreate(req.SessionID)

	result, err := h.chat.Chat(c.UserContext(), session, req.Message)
	if err != nil {
		logger.Error("Failed to process chat turn", zap.String("session_id", session.ID), zap.Error(err))
		status, msg := StatusFor(err)
		return c.Status(status).JSON(fiber.Map{
			"error":      msg,
			"session_id": session.ID,
		})
	}

	return c.JSON(result)
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	session, ok := h.sessions.Get(c.Params("session_id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": session.ID,
		"messages":   session.Messages(),
	})
}
