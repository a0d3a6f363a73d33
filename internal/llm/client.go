package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/pkg/circuitbreaker"
	"github.com/factrag/backend/pkg/logger"
)

type Format int

const (
	FormatText Format = iota
	// FormatJSON asks the provider for a JSON-only response where supported.
	FormatJSON
)

type GenerateRequest struct {
	Prompt string
	Format Format
}

type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Provider is a concrete model backend such as Gemini or an OpenAI-compatible API.
type Provider interface {
	Generator
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
	Close() error
}

type ClientConfig struct {
	CallTimeout      time.Duration
	BreakerFailures  uint32
	BreakerResetTime time.Duration
}

// ErrRejected marks a prompt the model refused or answered with nothing.
// It never counts against a breaker.
var ErrRejected = errors.New("completion rejected")

// Client guards every provider call with a per-call timeout and a circuit
// breaker per operation. Retries are left to the callers.
type Client struct {
	provider    Provider
	generateCB  *circuitbreaker.CircuitBreaker
	embedCB     *circuitbreaker.CircuitBreaker
	callTimeout time.Duration
}

func NewClient(provider Provider, cfg ClientConfig) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("provider", provider.Name()),
		zap.Duration("call_timeout", cfg.CallTimeout),
	)

	return &Client{
		provider:    provider,
		generateCB:  newBreaker("llm-"+provider.Name()+"-generate", cfg),
		embedCB:     newBreaker("llm-"+provider.Name()+"-embed", cfg),
		callTimeout: cfg.CallTimeout,
	}
}

func newBreaker(name string, cfg ClientConfig) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          cfg.BreakerResetTime,
		FailureThreshold: cfg.BreakerFailures,
		SuccessThreshold: 1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, _ circuitbreaker.State, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})
}

func (c *Client) Close() error {
	return c.provider.Close()
}

func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var text string
	err := c.generateCB.Execute(ctx, func() error {
		out, err := c.provider.Generate(ctx, req)
		text = out
		return err
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("%w: empty completion", ErrRejected)
	}
	if err != nil {
		metrics.LLMCalls.WithLabelValues("generate", "error").Inc()
		return "", fmt.Errorf("%w: %w", errs.ErrGeneration, err)
	}

	metrics.LLMCalls.WithLabelValues("generate", "ok").Inc()
	logger.Debug("LLM completion generated", zap.Int("response_length", len(text)))
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var vector []float32
	err := c.embedCB.Execute(ctx, func() error {
		v, err := c.provider.Embed(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("embed", "error").Inc()
		return nil, fmt.Errorf("%w: %w", errs.ErrEmbedding, err)
	}

	metrics.LLMCalls.WithLabelValues("embed", "ok").Inc()
	return vector, nil
}
