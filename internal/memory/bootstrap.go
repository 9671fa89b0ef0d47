package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/embeddings"
	"github.com/fyrsmithlabs/expmem/internal/vectorstore"
)

// ProviderOpener resolves and opens an embedding provider.
type ProviderOpener interface {
	Selector() (embeddings.SelectorConfig, error)
	Open(ctx context.Context, sel embeddings.Selection) (embeddings.Provider, error)
}

// Bootstrapped is the resolved embedding backend and collection state.
type Bootstrapped struct {
	Selection  embeddings.Selection
	Provider   embeddings.Provider
	Collection vectorstore.CollectionStatus
}

// Bootstrap selects one embedding backend using the collection's existing
// size as a hint, opens it, and ensures the collection. Any failure here is
// a configuration error and must abort startup. A dimension mismatch on an
// existing collection is reported but not fatal.
func Bootstrap(ctx context.Context, collection string, store vectorstore.Store, opener ProviderOpener, logger *zap.Logger) (Bootstrapped, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hint, err := store.CollectionDimension(ctx, collection)
	if err != nil {
		return Bootstrapped{}, fmt.Errorf("reading collection dimension: %w", err)
	}
	selCfg, err := opener.Selector()
	if err != nil {
		return Bootstrapped{}, err
	}
	sel, err := embeddings.Select(selCfg, hint)
	if err != nil {
		return Bootstrapped{}, fmt.Errorf("selecting embedding backend: %w", err)
	}
	provider, err := opener.Open(ctx, sel)
	if err != nil {
		return Bootstrapped{}, fmt.Errorf("opening embedding backend: %w", err)
	}
	cs, err := store.EnsureCollection(ctx, collection, sel.Dimension)
	if err != nil {
		return Bootstrapped{}, fmt.Errorf("ensuring collection: %w", err)
	}

	logger.Info("memory bootstrapped",
		zap.String("embedding", sel.String()),
		zap.Int("store_hint", hint),
		zap.String("collection", collection),
		zap.Bool("created", cs.Created),
		zap.Bool("dimension_mismatch", cs.Mismatch))
	return Bootstrapped{Selection: sel, Provider: provider, Collection: cs}, nil
}
