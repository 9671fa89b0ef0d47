package embeddings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/expmem/internal/config"
)

// Factory builds a provider for a selection.
type Factory func(ctx context.Context, sel Selection) (Provider, error)

// Registry opens providers once per selection and reuses them.
type Registry struct {
	settings  config.EmbeddingsConfig
	logger    *zap.Logger
	factories map[Backend]Factory

	mu        sync.Mutex
	providers map[Selection]Provider
}

// NewRegistry returns a registry using the real backends.
func NewRegistry(settings config.EmbeddingsConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		settings:  settings,
		logger:    logger,
		providers: make(map[Selection]Provider),
	}
	r.factories = map[Backend]Factory{
		BackendOpenAI:    r.openOpenAI,
		BackendFastEmbed: r.openFastEmbed,
	}
	return r
}

// WithFactory replaces the constructor for a backend. Used by tests.
func (r *Registry) WithFactory(b Backend, f Factory) *Registry {
	r.factories[b] = f
	return r
}

// Selector returns the selector settings derived from configuration.
func (r *Registry) Selector() (SelectorConfig, error) {
	if _, err := ParseBackend(r.settings.Backend); err != nil {
		return SelectorConfig{}, err
	}
	return SelectorConfig{
		Backend:     r.settings.Backend,
		OpenAIModel: r.settings.OpenAIModel,
		LocalModel:  r.settings.LocalModel,
	}, nil
}

// Open returns the provider for sel, initializing it on first use.
func (r *Registry) Open(ctx context.Context, sel Selection) (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[sel]; ok {
		return p, nil
	}
	factory, ok := r.factories[sel.Backend]
	if !ok {
		return nil, fmt.Errorf("%w: no factory for backend %q", ErrInvalidConfig, sel.Backend)
	}

	start := time.Now()
	p, err := factory(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", sel, err)
	}
	if p.Dimension() != sel.Dimension {
		_ = p.Close()
		return nil, fmt.Errorf("%w: %s produced %d dimensions", ErrDimensionMismatch, sel, p.Dimension())
	}

	var wrapped Provider = instrumented{Provider: p}
	if r.settings.QueryCacheMB > 0 {
		cached, err := NewCachedProvider(wrapped, r.settings.QueryCacheMB<<20)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("%w: query cache: %v", ErrModelInit, err)
		}
		wrapped = cached
	}

	r.logger.Info("embedding provider ready",
		zap.String("backend", string(sel.Backend)),
		zap.String("model", sel.Model),
		zap.Int("dimension", sel.Dimension),
		zap.Duration("init_time", time.Since(start)))
	r.providers[sel] = wrapped
	return wrapped, nil
}

// Close releases every opened provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for sel, p := range r.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.providers, sel)
	}
	return firstErr
}

func (r *Registry) openOpenAI(_ context.Context, sel Selection) (Provider, error) {
	return NewOpenAIProvider(OpenAIConfig{
		Model:     sel.Model,
		BaseURL:   r.settings.OpenAIBaseURL,
		APIKey:    r.settings.OpenAIAPIKey.Value(),
		Timeout:   r.settings.Timeout,
		RateLimit: r.settings.RateLimit,
	})
}

func (r *Registry) openFastEmbed(_ context.Context, sel Selection) (Provider, error) {
	return NewFastEmbedProvider(FastEmbedConfig{
		Model:    sel.Model,
		CacheDir: config.ExpandHome(r.settings.CacheDir),
	})
}
