package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/llm"
	"github.com/factrag/backend/pkg/logger"
	"github.com/factrag/backend/pkg/retry"
)

const knowledgePlaceholder = "{{knowledge}}"

const responseSystemPrompt = "You are a chatbot who has some specific set of knowledge and you will be asked questions on that given the knowledge.\n\n" +
	"Don't make up information and don't answer until and unless you have knowledge to back it.\n\n" +
	"Knowledge you have:\n\n" +
	knowledgePlaceholder

const DefaultHistoryTurns = 5

type ComposerConfig struct {
	HistoryTurns int
	Attempts     int
	Backoff      time.Duration
}

// Composer writes grounded assistant replies into a session.
type Composer struct {
	generator    llm.Generator
	retry        retry.Config
	historyTurns int
}

func NewComposer(generator llm.Generator, cfg ComposerConfig) *Composer {
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	return &Composer{
		generator:    generator,
		retry:        retry.Fixed("chat_response", cfg.Attempts, cfg.Backoff, logger.GetLogger()),
		historyTurns: cfg.HistoryTurns,
	}
}

// Compose asks the model for a reply to message. On success the user message
// and the reply are appended to the session; on failure the session is left
// as it was and errs.ErrNoResponse is returned.
func (c *Composer) Compose(ctx context.Context, session *Session, message string, references []string) (ChatMessage, error) {
	prompt := buildPrompt(references, session.Recent(c.historyTurns), message)

	reply, err := retry.DoWithResult(ctx, c.retry, func() (string, error) {
		text, err := c.generator.Generate(ctx, llm.GenerateRequest{Prompt: prompt, Format: llm.FormatText})
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: empty completion", errs.ErrGeneration)
		}
		return text, nil
	})
	if err != nil {
		logger.Warn("Response generation gave up",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ChatMessage{}, errors.Join(errs.ErrNoResponse, ctxErr)
		}
		return ChatMessage{}, fmt.Errorf("%w: %v", errs.ErrNoResponse, err)
	}

	answer := ChatMessage{Role: RoleAssistant, Content: reply}
	session.Append(
		ChatMessage{Role: RoleUser, Content: message, References: references},
		answer,
	)
	return answer, nil
}

func buildPrompt(references []string, history []ChatMessage, message string) string {
	var sb strings.Builder
	sb.WriteString(strings.Replace(responseSystemPrompt, knowledgePlaceholder, formatKnowledge(references), 1))
	sb.WriteString("\n\n**Chat History:**\n")
	sb.WriteString(formatHistory(history))
	sb.WriteString("\n\n**User:** ")
	sb.WriteString(message)
	return sb.String()
}

// formatKnowledge numbers references from 1, one per line.
func formatKnowledge(references []string) string {
	lines := make([]string, len(references))
	for i, ref := range references {
		lines[i] = strconv.Itoa(i+1) + ". " + ref
	}
	return strings.Join(lines, "\n")
}

func formatHistory(history []ChatMessage) string {
	lines := make([]string, len(history))
	for i, msg := range history {
		lines[i] = roleLabel(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

func roleLabel(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
