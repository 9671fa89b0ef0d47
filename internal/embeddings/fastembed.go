//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds configuration for the self-hosted backend.
type FastEmbedConfig struct {
	// Model is a preset name such as sentence-transformers/all-MiniLM-L6-v2.
	Model string
	// CacheDir holds downloaded ONNX model files.
	CacheDir string
	// MaxLength is the maximum input sequence length. Default 512.
	MaxLength int
}

// FastEmbedProvider runs an ONNX sentence-embedding model in-process.
type FastEmbedProvider struct {
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	mu        sync.RWMutex
}

// fastembedModel maps preset names onto fastembed model constants.
func fastembedModel(name string) (fastembed.EmbeddingModel, bool) {
	switch name {
	case MiniLM, "all-MiniLM-L6-v2", "fast-all-MiniLM-L6-v2":
		return fastembed.AllMiniLML6V2, true
	case BGESmall, "fast-bge-small-en-v1.5":
		return fastembed.BGESmallENV15, true
	case "BAAI/bge-small-en", "fast-bge-small-en":
		return fastembed.BGESmallEN, true
	case BGEBase, "fast-bge-base-en-v1.5":
		return fastembed.BGEBaseENV15, true
	case "BAAI/bge-base-en", "fast-bge-base-en":
		return fastembed.BGEBaseEN, true
	case BGESmallZ, "fast-bge-small-zh-v1.5":
		return fastembed.BGESmallZH, true
	}
	return "", false
}

// NewFastEmbedProvider loads the model, downloading it into CacheDir on
// first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	model, ok := fastembedModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported local model %q", ErrInvalidConfig, cfg.Model)
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}
	showProgress := false

	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelInit, err)
	}

	return &FastEmbedProvider{
		model:     flagEmbed,
		modelName: cfg.Model,
		dimension: localModels[cfg.Model],
	}, nil
}

// EmbedDocuments embeds passages in batches of 256.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	vecs, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vecs, nil
}

// EmbedQuery embeds one query with the model's query prefix.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// Dimension returns the model's output size.
func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Model returns the configured model name.
func (p *FastEmbedProvider) Model() string { return p.modelName }

// Close releases the ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}
