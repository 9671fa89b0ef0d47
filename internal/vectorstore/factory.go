package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/expmem/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store named by cfg.Provider:
//   - "chromem" (default): embedded, no external service
//   - "qdrant": remote Qdrant over gRPC; unreachable servers fail startup
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:     config.ExpandHome(cfg.Chromem.Path),
			Compress: cfg.Chromem.Compress,
			InMemory: cfg.Chromem.InMemory,
		}, logger)
	case "qdrant":
		return NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			UseTLS:         cfg.Qdrant.UseTLS,
			APIKey:         cfg.Qdrant.APIKey.Value(),
			RequestTimeout: cfg.RequestTimeout,
			MaxMessageSize: cfg.Qdrant.MaxMessageSize,
			ScrollMaxPages: cfg.ScrollMaxPages,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
