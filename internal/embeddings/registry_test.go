package embeddings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/expmem/internal/config"
)

type fakeProvider struct {
	model      string
	dim        int
	queryCalls atomic.Int32
	closed     atomic.Bool
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queryCalls.Add(1)
	v := make([]float32, f.dim)
	v[0] = float32(len(text))
	return v, nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Model() string  { return f.model }
func (f *fakeProvider) Close() error {
	f.closed.Store(true)
	return nil
}

func TestRegistry_OpenReusesProvider(t *testing.T) {
	var built int
	fake := &fakeProvider{model: MiniLM, dim: 384}
	reg := NewRegistry(config.EmbeddingsConfig{}, nil).
		WithFactory(BackendFastEmbed, func(context.Context, Selection) (Provider, error) {
			built++
			return fake, nil
		})

	sel := Selection{Backend: BackendFastEmbed, Model: MiniLM, Dimension: 384}
	p1, err := reg.Open(context.Background(), sel)
	require.NoError(t, err)
	p2, err := reg.Open(context.Background(), sel)
	require.NoError(t, err)

	assert.Equal(t, 1, built)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 384, p1.Dimension())

	require.NoError(t, reg.Close())
	assert.True(t, fake.closed.Load())
}

func TestRegistry_OpenFactoryError(t *testing.T) {
	boom := errors.New("model download failed")
	reg := NewRegistry(config.EmbeddingsConfig{}, nil).
		WithFactory(BackendOpenAI, func(context.Context, Selection) (Provider, error) {
			return nil, boom
		})

	_, err := reg.Open(context.Background(), Selection{Backend: BackendOpenAI, Model: OpenAISmall, Dimension: 1536})
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_OpenDimensionMismatch(t *testing.T) {
	fake := &fakeProvider{model: OpenAISmall, dim: 384}
	reg := NewRegistry(config.EmbeddingsConfig{}, nil).
		WithFactory(BackendOpenAI, func(context.Context, Selection) (Provider, error) {
			return fake, nil
		})

	_, err := reg.Open(context.Background(), Selection{Backend: BackendOpenAI, Model: OpenAISmall, Dimension: 1536})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, fake.closed.Load())
}

func TestRegistry_Selector(t *testing.T) {
	reg := NewRegistry(config.EmbeddingsConfig{Backend: "local", LocalModel: BGEBase}, nil)
	sc, err := reg.Selector()
	require.NoError(t, err)

	sel, err := Select(sc, 0)
	require.NoError(t, err)
	assert.Equal(t, BackendFastEmbed, sel.Backend)
	assert.Equal(t, 768, sel.Dimension)

	_, err = NewRegistry(config.EmbeddingsConfig{Backend: "bogus"}, nil).Selector()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCachedProvider_EmbedQuery(t *testing.T) {
	fake := &fakeProvider{model: MiniLM, dim: 8}
	cp, err := NewCachedProvider(fake, 1<<20)
	require.NoError(t, err)
	defer cp.Close()

	ctx := context.Background()
	v1, err := cp.EmbedQuery(ctx, "deploy rollback")
	require.NoError(t, err)
	cp.Wait()

	v2, err := cp.EmbedQuery(ctx, "deploy rollback")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), fake.queryCalls.Load())

	// Mutating a returned vector must not poison the cache.
	v2[0] = -1
	v3, err := cp.EmbedQuery(ctx, "deploy rollback")
	require.NoError(t, err)
	assert.Equal(t, v1[0], v3[0])

	_, err = cp.EmbedQuery(ctx, "something else")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.queryCalls.Load())
}

func TestCachedProvider_DocumentsPassThrough(t *testing.T) {
	fake := &fakeProvider{model: MiniLM, dim: 4}
	cp, err := NewCachedProvider(fake, 0)
	require.NoError(t, err)

	vecs, err := cp.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	require.NoError(t, cp.Close())
	assert.True(t, fake.closed.Load())
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "nope", APIKey: "k"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIProvider(OpenAIConfig{Model: OpenAISmall})
	assert.ErrorIs(t, err, ErrModelInit)
}
