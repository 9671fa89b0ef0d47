package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures the hosted embeddings backend.
type OpenAIConfig struct {
	Model   string
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64
}

// OpenAIProvider embeds text through the OpenAI embeddings API.
type OpenAIProvider struct {
	embedder  lcembeddings.Embedder
	limiter   *rate.Limiter
	model     string
	dimension int
}

// NewOpenAIProvider builds a langchaingo embedder for the configured model.
// A missing API key fails here rather than on first use.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	dim, ok := openAIModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: unknown openai model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", ErrModelInit)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInit, err)
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInit, err)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &OpenAIProvider{
		embedder:  embedder,
		limiter:   limiter,
		model:     cfg.Model,
		dimension: dim,
	}, nil
}

func (p *OpenAIProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

// EmbedDocuments embeds a batch of texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	for _, v := range vecs {
		if err := p.checkLen(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// EmbedQuery embeds one query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if err := p.checkLen(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (p *OpenAIProvider) checkLen(v []float32) error {
	if len(v) != p.dimension {
		return fmt.Errorf("%w: %s returned %d, want %d", ErrDimensionMismatch, p.model, len(v), p.dimension)
	}
	return nil
}

// Dimension returns the model's output size.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// Model returns the model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Close is a no-op; the client is plain HTTP.
func (p *OpenAIProvider) Close() error { return nil }
