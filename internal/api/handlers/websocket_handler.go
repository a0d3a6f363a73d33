package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/pkg/logger"
)

type WebSocketHandler struct {
	chat     ChatService
	sessions *query.SessionStore
}

func NewWebSocketHandler(chat ChatService, sessions *query.SessionStore) *WebSocketHandler {
	return &WebSocketHandler{
		chat:     chat,
		sessions: sessions,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// HandleConnection serves one conversation per connection. Closing the
// connection drops the session.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	session := h.sessions.GetOrCreate("")

	logger.Info("WebSocket connection established", zap.String("session_id", session.ID))

	defer func() {
		cancel()
		h.sessions.Delete(session.ID)
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("session_id", session.ID))
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "chat" {
			continue
		}

		if err := h.streamResponse(ctx, c, session, msg.Content); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamResponse(ctx context.Context, c *websocket.Conn, session *query.Session, message string) error {
	if err := h.send(c, "status", "Searching knowledge..."); err != nil {
		return err
	}

	result, err := h.chat.Chat(ctx, session, message)
	if err != nil {
		_, msg := StatusFor(err)
		return h.sendError(c, msg)
	}

	if err := c.WriteJSON(map[string]interface{}{
		"type":       "references",
		"references": result.References,
		"notice":     result.Notice,
	}); err != nil {
		return err
	}

	words := splitIntoWords(result.Reply)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"session_id": result.SessionID,
		"latency_ms": result.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

// splitIntoWords splits on spaces and keeps newlines as their own entries.
func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
