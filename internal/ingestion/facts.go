package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/llm"
	"github.com/factrag/backend/internal/metrics"
	"github.com/factrag/backend/pkg/logger"
	"github.com/factrag/backend/pkg/retry"
)

const factPrompt = "You are an expert text analyzer who can take any text, analyze it, and create multiple facts from it. " +
	"OUTPUT SHOULD BE STRICTLY IN THIS JSON FORMAT:\n\n" +
	`{"facts": ["fact 1", "fact 2", "fact 3"]}` + "\n\n" +
	"The text you need to analyse is"

var fencedJSON = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

type factsEnvelope struct {
	Facts *[]string `json:"facts"`
}

// FactExtractor asks the model for the atomic facts in a text segment.
type FactExtractor struct {
	generator      llm.Generator
	retry          retry.Config
	maxConcurrency int
}

func NewFactExtractor(generator llm.Generator, attempts int, backoff time.Duration, maxConcurrency int) *FactExtractor {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &FactExtractor{
		generator:      generator,
		retry:          retry.Fixed("fact_extraction", attempts, backoff, logger.GetLogger()),
		maxConcurrency: maxConcurrency,
	}
}

// Extract never fails: a segment whose every attempt fails yields no facts.
func (f *FactExtractor) Extract(ctx context.Context, index int, segment string) []string {
	prompt := factPrompt + "\n\n" + segment

	facts, err := retry.DoWithResult(ctx, f.retry, func() ([]string, error) {
		resp, err := f.generator.Generate(ctx, llm.GenerateRequest{Prompt: prompt, Format: llm.FormatJSON})
		if err != nil {
			return nil, err
		}
		return parseFacts(resp)
	})
	if err != nil {
		metrics.FactExtractionFailures.Inc()
		logger.Warn("Fact extraction gave up on segment",
			zap.Int("chunk_index", index),
			zap.Int("segment_length", len(segment)),
			zap.Error(err),
		)
		return []string{}
	}

	metrics.FactsExtracted.Add(float64(len(facts)))
	logger.Debug("Facts extracted", zap.Int("chunk_index", index), zap.Int("facts", len(facts)))
	return facts
}

// ExtractAll runs Extract for every segment concurrently and returns the
// results in segment order.
func (f *FactExtractor) ExtractAll(ctx context.Context, segments []string) [][]string {
	results := make([][]string, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxConcurrency)
	for i, segment := range segments {
		g.Go(func() error {
			results[i] = f.Extract(gctx, i, segment)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// parseFacts reads the facts envelope from a fenced ```json block, or from
// the whole response when the model answered with bare JSON.
func parseFacts(response string) ([]string, error) {
	payload := strings.TrimSpace(response)
	if m := fencedJSON.FindStringSubmatch(response); m != nil {
		payload = m[1]
	}
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", errs.ErrParse)
	}

	var env factsEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	if env.Facts == nil {
		return nil, fmt.Errorf("%w: missing facts field", errs.ErrParse)
	}

	facts := make([]string, 0, len(*env.Facts))
	for _, fact := range *env.Facts {
		if fact = strings.TrimSpace(fact); fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts, nil
}
