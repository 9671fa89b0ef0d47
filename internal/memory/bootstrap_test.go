package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/expmem/internal/embeddings"
	"github.com/fyrsmithlabs/expmem/internal/memory/memorytest"
)

type fakeOpener struct {
	cfg     embeddings.SelectorConfig
	openErr error
	opened  []embeddings.Selection
}

func (o *fakeOpener) Selector() (embeddings.SelectorConfig, error) { return o.cfg, nil }

func (o *fakeOpener) Open(_ context.Context, sel embeddings.Selection) (embeddings.Provider, error) {
	o.opened = append(o.opened, sel)
	if o.openErr != nil {
		return nil, o.openErr
	}
	return memorytest.NewHashEmbedder(sel.Dimension), nil
}

func TestBootstrap_NewCollection(t *testing.T) {
	ctx := context.Background()
	store := memorytest.NewStore()
	opener := &fakeOpener{cfg: embeddings.SelectorConfig{Backend: "auto"}}

	b, err := Bootstrap(ctx, "mem", store, opener, nil)
	require.NoError(t, err)
	assert.Equal(t, embeddings.BackendFastEmbed, b.Selection.Backend)
	assert.Equal(t, 384, b.Selection.Dimension)
	assert.True(t, b.Collection.Created)
	assert.Equal(t, 384, b.Provider.Dimension())

	dim, err := store.CollectionDimension(ctx, "mem")
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
}

func TestBootstrap_FollowsExistingCollection(t *testing.T) {
	ctx := context.Background()
	store := memorytest.NewStore()
	_, err := store.EnsureCollection(ctx, "mem", 768)
	require.NoError(t, err)

	b, err := Bootstrap(ctx, "mem", store, &fakeOpener{cfg: embeddings.SelectorConfig{Backend: "auto"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, embeddings.BGEBase, b.Selection.Model)
	assert.False(t, b.Collection.Created)
	assert.False(t, b.Collection.Mismatch)
}

func TestBootstrap_ExplicitBackendMismatchIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memorytest.NewStore()
	_, err := store.EnsureCollection(ctx, "mem", 768)
	require.NoError(t, err)

	opener := &fakeOpener{cfg: embeddings.SelectorConfig{Backend: "fastembed", LocalModel: embeddings.MiniLM}}
	b, err := Bootstrap(ctx, "mem", store, opener, nil)
	require.NoError(t, err)
	assert.True(t, b.Collection.Mismatch)
	assert.Equal(t, 768, b.Collection.Dimension)
}

func TestBootstrap_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown model", func(t *testing.T) {
		opener := &fakeOpener{cfg: embeddings.SelectorConfig{Backend: "openai", OpenAIModel: "nope"}}
		_, err := Bootstrap(ctx, "mem", memorytest.NewStore(), opener, nil)
		assert.ErrorIs(t, err, embeddings.ErrInvalidConfig)
		assert.Empty(t, opener.opened)
	})

	t.Run("open fails", func(t *testing.T) {
		opener := &fakeOpener{openErr: embeddings.ErrModelInit}
		_, err := Bootstrap(ctx, "mem", memorytest.NewStore(), opener, nil)
		assert.ErrorIs(t, err, embeddings.ErrModelInit)
	})

	t.Run("store unreachable", func(t *testing.T) {
		store := memorytest.NewStore()
		store.FailOn("dimension", true)
		_, err := Bootstrap(ctx, "mem", store, &fakeOpener{}, nil)
		assert.True(t, errors.Is(err, memorytest.ErrInjected))
	})

	t.Run("ensure fails", func(t *testing.T) {
		store := memorytest.NewStore()
		store.FailOn("ensure", true)
		_, err := Bootstrap(ctx, "mem", store, &fakeOpener{}, nil)
		assert.Error(t, err)
	})
}
