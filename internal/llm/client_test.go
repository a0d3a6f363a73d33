package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/pkg/circuitbreaker"
)

type stubProvider struct {
	text     string
	genErr   error
	vector   []float32
	embedErr error
	lastReq  GenerateRequest
	block    bool
}

func (s *stubProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	s.lastReq = req
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.genErr
}

func (s *stubProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return s.vector, s.embedErr
}

func (s *stubProvider) Name() string { return "stub" }
func (s *stubProvider) Close() error { return nil }

func TestClient_Generate(t *testing.T) {
	p := &stubProvider{text: `{"facts":[]}`}
	c := NewClient(p, ClientConfig{})

	out, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p", Format: FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, `{"facts":[]}`, out)
	assert.Equal(t, FormatJSON, p.lastReq.Format)
}

func TestClient_GenerateWrapsFailures(t *testing.T) {
	tests := []struct {
		name string
		p    *stubProvider
	}{
		{name: "provider error", p: &stubProvider{genErr: errors.New("503")}},
		{name: "blank completion", p: &stubProvider{text: "  \n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.p, ClientConfig{})
			_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
			assert.ErrorIs(t, err, errs.ErrGeneration)
		})
	}
}

func TestClient_GenerateTimesOut(t *testing.T) {
	c := NewClient(&stubProvider{block: true}, ClientConfig{CallTimeout: 10 * time.Millisecond})

	start := time.Now()
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.ErrorIs(t, err, errs.ErrGeneration)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := NewClient(&stubProvider{genErr: errors.New("down")}, ClientConfig{
		BreakerFailures:  2,
		BreakerResetTime: time.Hour,
	})

	for i := 0; i < 2; i++ {
		_, _ = c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	}

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.ErrorIs(t, err, errs.ErrGeneration)
	assert.Contains(t, err.Error(), circuitbreaker.ErrCircuitOpen.Error())
}

func TestClient_EmbedWrapsFailures(t *testing.T) {
	c := NewClient(&stubProvider{embedErr: errors.New("bad key")}, ClientConfig{})

	_, err := c.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, errs.ErrEmbedding)
}

func TestClient_RejectionsDoNotOpenBreaker(t *testing.T) {
	tests := []struct {
		name string
		p    *stubProvider
	}{
		{name: "refused prompt", p: &stubProvider{genErr: fmt.Errorf("%w: SAFETY", ErrRejected)}},
		{name: "blank completion", p: &stubProvider{text: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.p, ClientConfig{BreakerFailures: 2, BreakerResetTime: time.Hour})

			for i := 0; i < 5; i++ {
				_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
				require.ErrorIs(t, err, ErrRejected)
				require.ErrorIs(t, err, errs.ErrGeneration)
			}
			assert.Equal(t, circuitbreaker.StateClosed, c.generateCB.State())
		})
	}
}

func TestClient_GenerateFailuresLeaveEmbeddingOpen(t *testing.T) {
	p := &stubProvider{genErr: errors.New("down"), vector: []float32{1, 2}}
	c := NewClient(p, ClientConfig{BreakerFailures: 2, BreakerResetTime: time.Hour})

	for i := 0; i < 3; i++ {
		_, _ = c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	}
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	v, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
}
