package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

const noReferencesNotice = "Knowledge lookup failed; answering without references."

type ChatResult struct {
	SessionID  string   `json:"session_id"`
	Reply      string   `json:"reply"`
	References []string `json:"references"`
	Notice     string   `json:"notice,omitempty"`
	LatencyMS  int      `json:"latency_ms"`
}

// Engine runs a chat turn: retrieve the nearest facts, then compose a reply
// grounded on them.
type Engine struct {
	retriever *Retriever
	composer  *Composer
}

func NewEngine(retriever *Retriever, composer *Composer) *Engine {
	return &Engine{retriever: retriever, composer: composer}
}

// Chat never fails on retrieval; a lookup failure leaves the turn with no
// references and a notice. The only error is errs.ErrNoResponse (or an
// invalid message).
func (e *Engine) Chat(ctx context.Context, session *Session, message string) (*ChatResult, error) {
	start := time.Now()
	message = strings.TrimSpace(message)
	if message == "" {
		metrics.ChatTurns.WithLabelValues("invalid").Inc()
		return nil, errs.ErrEmptyInput
	}

	logger.Info("Processing chat turn",
		zap.String("session_id", session.ID),
		zap.Int("message_length", len(message)),
	)

	references, notice := e.references(ctx, message)

	answer, err := e.composer.Compose(ctx, session, message, references)
	if err != nil {
		metrics.ChatTurns.WithLabelValues("no_response").Inc()
		return nil, err
	}

	latency := int(time.Since(start).Milliseconds())
	status := "ok"
	if notice != "" {
		status = "degraded"
	}
	metrics.ChatTurns.WithLabelValues(status).Inc()

	logger.Info("Chat turn completed",
		zap.String("session_id", session.ID),
		zap.Int("references", len(references)),
		zap.Int("latency_ms", latency),
	)

	return &ChatResult{
		SessionID:  session.ID,
		Reply:      answer.Content,
		References: references,
		Notice:     notice,
		LatencyMS:  latency,
	}, nil
}

func (e *Engine) references(ctx context.Context, message string) ([]string, string) {
	facts, err := e.retriever.Retrieve(ctx, message)
	if err != nil {
		reason := "store"
		if errors.Is(err, errs.ErrEmbedding) || errors.Is(err, errs.ErrEmptyInput) {
			reason = "embedding"
		}
		metrics.RetrievalFailures.WithLabelValues(reason).Inc()
		logger.Warn("Retrieval failed, continuing without references",
			zap.String("reason", reason),
			zap.Error(err),
		)
		return []string{}, noReferencesNotice
	}
	return models.FactTexts(facts), ""
}
