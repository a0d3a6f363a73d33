package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factrag/backend/internal/llm"
)

// segmentProvider fails generation for any segment containing "bad" and
// answers two facts otherwise.
type segmentProvider struct {
	badErr error
}

func (p *segmentProvider) Generate(_ context.Context, req llm.GenerateRequest) (string, error) {
	segment := strings.TrimPrefix(req.Prompt, factPrompt+"\n\n")
	if strings.Contains(segment, "bad") {
		return "", p.badErr
	}
	return "```json\n{\"facts\": [\"" + segment + " one\", \"" + segment + " two\"]}\n```", nil
}

func (p *segmentProvider) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, testDim)
	v[0] = float32(len(text))
	return v, nil
}

func (p *segmentProvider) Name() string { return "segments" }
func (p *segmentProvider) Close() error { return nil }

func newLLMProcessor(t *testing.T, provider llm.Provider) *Processor {
	t.Helper()
	client := llm.NewClient(provider, llm.ClientConfig{
		BreakerFailures:  10,
		BreakerResetTime: time.Hour,
	})
	extractor := NewFactExtractor(client, 5, time.Millisecond, 1)
	embedder := llm.NewEmbedder(client, llm.EmbedderConfig{Model: "test", Dimension: testDim})
	return NewProcessor(newTestStore(t), extractor, embedder, Options{ChunkLength: 10, MaxConcurrency: 1})
}

func TestIngestText_FailingSegmentsKeepHealthyFacts(t *testing.T) {
	tests := []struct {
		name   string
		badErr error
		text   string
	}{
		{
			name:   "service errors open only the generation breaker",
			badErr: errors.New("503 unavailable"),
			text:   "goodchunk1" + "badchunk01" + "badchunk02" + "badchunk03",
		},
		{
			name:   "refused segments never open the breaker",
			badErr: fmt.Errorf("%w: finish reason SAFETY", llm.ErrRejected),
			text:   "badchunk01" + "badchunk02" + "badchunk03" + "goodchunk1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newLLMProcessor(t, &segmentProvider{badErr: tt.badErr})

			doc, err := p.IngestText(context.Background(), "doc", tt.text)
			require.NoError(t, err)
			assert.Equal(t, 2, doc.FactCount)
		})
	}
}
