package embeddings

import (
	"fmt"
	"strings"
)

// Backend identifies an embedding implementation.
type Backend string

const (
	// BackendAuto picks a backend from the store's existing dimensionality.
	BackendAuto Backend = "auto"
	// BackendOpenAI is the hosted OpenAI embeddings API.
	BackendOpenAI Backend = "openai"
	// BackendFastEmbed is the self-hosted ONNX backend.
	BackendFastEmbed Backend = "fastembed"
)

// Model presets and their output sizes.
const (
	OpenAISmall = "text-embedding-3-small"
	OpenAILarge = "text-embedding-3-large"
	OpenAIAda   = "text-embedding-ada-002"

	MiniLM    = "sentence-transformers/all-MiniLM-L6-v2"
	BGESmall  = "BAAI/bge-small-en-v1.5"
	BGEBase   = "BAAI/bge-base-en-v1.5"
	BGESmallZ = "BAAI/bge-small-zh-v1.5"
)

var openAIModels = map[string]int{
	OpenAISmall: 1536,
	OpenAILarge: 3072,
	OpenAIAda:   1536,
}

var localModels = map[string]int{
	MiniLM:                   384,
	"all-MiniLM-L6-v2":       384,
	"fast-all-MiniLM-L6-v2":  384,
	BGESmall:                 384,
	"BAAI/bge-small-en":      384,
	"fast-bge-small-en-v1.5": 384,
	"fast-bge-small-en":      384,
	BGEBase:                  768,
	"BAAI/bge-base-en":       768,
	"fast-bge-base-en-v1.5":  768,
	"fast-bge-base-en":       768,
	BGESmallZ:                512,
	"fast-bge-small-zh-v1.5": 512,
}

// SelectorConfig carries the operator's backend preference and per-backend
// model names. Empty model names mean "pick a preset".
type SelectorConfig struct {
	Backend     string
	OpenAIModel string
	LocalModel  string
}

// Selection is the resolved backend, model, and vector size.
type Selection struct {
	Backend   Backend
	Model     string
	Dimension int
}

func (s Selection) String() string {
	return fmt.Sprintf("%s/%s(%d)", s.Backend, s.Model, s.Dimension)
}

// ParseBackend normalizes a backend name. "sbert" and "local" are accepted
// as aliases for the self-hosted backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return BackendAuto, nil
	case "openai":
		return BackendOpenAI, nil
	case "fastembed", "sbert", "local":
		return BackendFastEmbed, nil
	}
	return "", fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, name)
}

// Select resolves exactly one backend and model. storeDim is the size of
// the store's existing collection, or 0 when unknown.
//
// An explicit backend is always honored; storeDim then only chooses among
// that backend's presets when no model is named. In auto mode a storeDim
// matching a known model size picks that backend, otherwise the
// self-hosted backend is used. Unknown models are an error, never a
// silent fallback.
func Select(cfg SelectorConfig, storeDim int) (Selection, error) {
	backend, err := ParseBackend(cfg.Backend)
	if err != nil {
		return Selection{}, err
	}

	switch backend {
	case BackendOpenAI:
		return selectOpenAI(cfg.OpenAIModel, storeDim)
	case BackendFastEmbed:
		return selectLocal(cfg.LocalModel, storeDim)
	}

	// auto
	if _, ok := localModels[cfg.LocalModel]; cfg.LocalModel != "" && !ok {
		return Selection{}, fmt.Errorf("%w: unknown local model %q", ErrInvalidConfig, cfg.LocalModel)
	}
	if storeDim > 0 {
		if dim, ok := openAIModels[cfg.OpenAIModel]; ok && dim == storeDim {
			return Selection{Backend: BackendOpenAI, Model: cfg.OpenAIModel, Dimension: dim}, nil
		}
		if dim, ok := localModels[cfg.LocalModel]; ok && dim == storeDim {
			return Selection{Backend: BackendFastEmbed, Model: cfg.LocalModel, Dimension: dim}, nil
		}
		switch storeDim {
		case 1536:
			return Selection{Backend: BackendOpenAI, Model: OpenAISmall, Dimension: 1536}, nil
		case 3072:
			return Selection{Backend: BackendOpenAI, Model: OpenAILarge, Dimension: 3072}, nil
		case 768, 512, 384:
			return selectLocal("", storeDim)
		}
	}
	return selectLocal(cfg.LocalModel, 0)
}

func selectOpenAI(model string, storeDim int) (Selection, error) {
	switch model {
	case "":
		if storeDim == 3072 {
			model = OpenAILarge
		} else {
			model = OpenAISmall
		}
	case "large":
		model = OpenAILarge
	case "small":
		model = OpenAISmall
	}
	dim, ok := openAIModels[model]
	if !ok {
		return Selection{}, fmt.Errorf("%w: unknown openai model %q", ErrInvalidConfig, model)
	}
	return Selection{Backend: BackendOpenAI, Model: model, Dimension: dim}, nil
}

func selectLocal(model string, storeDim int) (Selection, error) {
	if model == "" {
		switch storeDim {
		case 768:
			model = BGEBase
		case 512:
			model = BGESmallZ
		case 384:
			model = MiniLM
		default:
			model = MiniLM
		}
	}
	dim, ok := localModels[model]
	if !ok {
		return Selection{}, fmt.Errorf("%w: unknown local model %q", ErrInvalidConfig, model)
	}
	return Selection{Backend: BackendFastEmbed, Model: model, Dimension: dim}, nil
}
