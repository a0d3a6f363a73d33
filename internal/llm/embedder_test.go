package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factrag/backend/internal/errs"
	"github.com/factrag/backend/pkg/retry"
)

type mockBackend struct {
	mu     sync.Mutex
	calls  int
	vector []float32
	err    error
}

func (m *mockBackend) Embed(_ context.Context, _ string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.vector, m.err
}

type mapCache struct {
	entries map[string][]float32
	getErr  error
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]float32{}}
}

func (c *mapCache) GetEmbedding(_ context.Context, key string) ([]float32, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) SetEmbedding(_ context.Context, key string, embedding []float32, _ time.Duration) error {
	c.sets++
	c.entries[key] = embedding
	return nil
}

func TestEmbedder_Embed(t *testing.T) {
	backend := &mockBackend{vector: []float32{0.1, 0.2, 0.3}}
	e := NewEmbedder(backend, EmbedderConfig{Model: "m", Dimension: 3})

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.Equal(t, 1, backend.calls)
}

func TestEmbedder_RejectsBlankInput(t *testing.T) {
	backend := &mockBackend{vector: []float32{1}}
	e := NewEmbedder(backend, EmbedderConfig{Dimension: 1})

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := e.Embed(context.Background(), input)
		assert.ErrorIs(t, err, errs.ErrEmptyInput)
	}
	assert.Zero(t, backend.calls)
}

func TestEmbedder_FailureIsNotRetriedByDefault(t *testing.T) {
	backend := &mockBackend{err: errors.New("quota exceeded")}
	e := NewEmbedder(backend, EmbedderConfig{Dimension: 3})

	_, err := e.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, errs.ErrEmbedding)
	assert.Equal(t, 1, backend.calls)
}

func TestEmbedder_ConfiguredRetry(t *testing.T) {
	backend := &mockBackend{err: errors.New("unavailable")}
	e := NewEmbedder(backend, EmbedderConfig{
		Dimension: 3,
		Retry:     retry.Fixed("embedding", 3, time.Millisecond, nil),
	})

	_, err := e.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, errs.ErrEmbedding)
	assert.Equal(t, 3, backend.calls)
}

func TestEmbedder_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		vector  []float32
		wantErr error
	}{
		{name: "empty payload", vector: nil, wantErr: errs.ErrEmbedding},
		{name: "wrong dimension", vector: []float32{1, 2}, wantErr: errs.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEmbedder(&mockBackend{vector: tt.vector}, EmbedderConfig{Dimension: 3})

			v, err := e.Embed(context.Background(), "hello")
			assert.Nil(t, v)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, errs.ErrEmbedding)
		})
	}
}

func TestEmbedder_UsesCache(t *testing.T) {
	backend := &mockBackend{vector: []float32{1, 2, 3}}
	cache := newMapCache()
	e := NewEmbedder(backend, EmbedderConfig{Model: "m", Dimension: 3, Cache: cache})

	first, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestEmbedder_CacheErrorFallsBackToBackend(t *testing.T) {
	backend := &mockBackend{vector: []float32{1, 2, 3}}
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	e := NewEmbedder(backend, EmbedderConfig{Dimension: 3, Cache: cache})

	v, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, v)
	assert.Equal(t, 1, backend.calls)
}
