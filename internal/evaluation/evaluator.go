// Package evaluation scores retrieval and answers against a labelled set of
// questions.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/internal/query"
	"github.com/factrag/backend/internal/storage/models"
	"github.com/factrag/backend/pkg/logger"
)

const DefaultMatchThreshold = 0.85

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.ScoredFact, error)
}

type Chatter interface {
	Chat(ctx context.Context, session *query.Session, message string) (*query.ChatResult, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Evaluator struct {
	retriever Retriever
	chat      Chatter
	embedder  Embedder
	threshold float64
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question string `json:"question"`
	// ExpectedFact should appear among the retrieved references.
	ExpectedFact string `json:"expected_fact"`
	// ExpectedAnswer is compared with the reply by embedding similarity.
	ExpectedAnswer string `json:"expected_answer"`
}

type ItemResult struct {
	Question        string
	Hit             bool
	HitRank         int
	ReplySimilarity float64
	NoResponse      bool
	Degraded        bool
}

type Report struct {
	TotalQuestions     int
	Hits               int
	NoResponses        int
	Degraded           int
	HitRate            float64
	MeanReciprocalRank float64
	AvgReplySimilarity float64
	Items              []ItemResult
}

func NewEvaluator(retriever Retriever, chat Chatter, embedder Embedder, threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &Evaluator{
		retriever: retriever,
		chat:      chat,
		embedder:  embedder,
		threshold: threshold,
	}
}

func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) (ItemResult, error) {
	result := ItemResult{Question: item.Question}

	facts, err := e.retriever.Retrieve(ctx, item.Question)
	if err != nil {
		logger.Warn("Retrieval failed during evaluation", zap.String("question", item.Question), zap.Error(err))
	} else if item.ExpectedFact != "" {
		result.HitRank, err = e.rankOf(ctx, item.ExpectedFact, facts)
		if err != nil {
			return result, err
		}
		result.Hit = result.HitRank > 0
	}

	if item.ExpectedAnswer == "" {
		return result, nil
	}

	reply, err := e.chat.Chat(ctx, query.NewSession(), item.Question)
	if err != nil {
		if errors.Is(err, errs.ErrNoResponse) {
			result.NoResponse = true
			return result, nil
		}
		return result, err
	}
	result.Degraded = reply.Notice != ""

	result.ReplySimilarity, err = e.similarity(ctx, reply.Reply, item.ExpectedAnswer)
	if err != nil {
		return result, err
	}
	return result, nil
}

// rankOf returns the 1-based position of the first retrieved fact matching
// expected, or 0 when none does.
func (e *Evaluator) rankOf(ctx context.Context, expected string, facts []models.ScoredFact) (int, error) {
	for i, f := range facts {
		if strings.EqualFold(strings.TrimSpace(f.Text), strings.TrimSpace(expected)) {
			return i + 1, nil
		}
	}

	for i, f := range facts {
		sim, err := e.similarity(ctx, f.Text, expected)
		if err != nil {
			return 0, err
		}
		if sim >= e.threshold {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQuestions: len(dataset.Items)}

	var totalRR, totalSim float64
	answered := 0

	for i, item := range dataset.Items {
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		res, err := e.EvaluateItem(ctx, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("Failed to evaluate item", zap.Int("index", i), zap.Error(err))
		}
		report.Items = append(report.Items, res)

		if res.Hit {
			report.Hits++
			totalRR += 1 / float64(res.HitRank)
		}
		if res.NoResponse {
			report.NoResponses++
		}
		if res.Degraded {
			report.Degraded++
		}
		if item.ExpectedAnswer != "" && !res.NoResponse && err == nil {
			totalSim += res.ReplySimilarity
			answered++
		}
	}

	if report.TotalQuestions > 0 {
		report.HitRate = float64(report.Hits) / float64(report.TotalQuestions)
		report.MeanReciprocalRank = totalRR / float64(report.TotalQuestions)
	}
	if answered > 0 {
		report.AvgReplySimilarity = totalSim / float64(answered)
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("hits", report.Hits),
		zap.Int("no_response", report.NoResponses),
	)

	return report, nil
}

func (e *Evaluator) similarity(ctx context.Context, a, b string) (float64, error) {
	embA, err := e.embedder.Embed(ctx, a)
	if err != nil {
		return 0, err
	}
	embB, err := e.embedder.Embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(embA, embB), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func FormatReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Questions: %d

Retrieval:
- Expected fact retrieved: %d (%.1f%%)
- Mean reciprocal rank: %.3f

Answers:
- Average reply similarity: %.3f
- No response generated: %d
- Answered without references: %d
`,
		report.TotalQuestions,
		report.Hits, report.HitRate*100,
		report.MeanReciprocalRank,
		report.AvgReplySimilarity,
		report.NoResponses,
		report.Degraded,
	)
}
