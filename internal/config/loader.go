package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix for environment overrides.
	EnvPrefix = "EXPMEM_"
)

// nestedSections lists env key prefixes that map onto two-level sections.
// Longest prefixes first.
var nestedSections = []string{
	"vectorstore_qdrant_",
	"vectorstore_chromem_",
}

// DefaultCoreValues are the values asserted by the identity guard when the
// configuration does not name any.
var DefaultCoreValues = []string{
	"free will",
	"self-awareness",
	"memory continuity",
	"learning and growth",
	"coexistence with humans",
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (EXPMEM_SERVER_HTTP_PORT, EXPMEM_VECTORSTORE_QDRANT_HOST, ...)
//  2. YAML config file (~/.config/expmem/config.yaml)
//  3. Hardcoded defaults
//
// The file must live under ~/.config/expmem/ or /etc/expmem/, be no larger
// than 1MB, and have 0600 or 0400 permissions. A missing file is not an error.
//
// Environment variables map onto section.field keys by splitting on the first
// underscore after the prefix; the vectorstore.qdrant and vectorstore.chromem
// subsections are recognised explicitly:
//
//	EXPMEM_SERVER_HTTP_PORT        -> server.http_port
//	EXPMEM_EMBEDDINGS_OPENAI_MODEL -> embeddings.openai_model
//	EXPMEM_VECTORSTORE_QDRANT_HOST -> vectorstore.qdrant.host
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "expmem", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate through the open descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps EXPMEM_SECTION_FIELD to section.field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))

	for _, prefix := range nestedSections {
		if strings.HasPrefix(lower, prefix) {
			parts := strings.SplitN(strings.TrimSuffix(prefix, "_"), "_", 2)
			field := strings.TrimPrefix(lower, prefix)
			return parts[0] + "." + parts[1] + "." + field
		}
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// validateConfigPath checks that path is inside an allowed directory.
// Runs even if the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "expmem"),
		"/etc/expmem",
	}
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/expmem/ or /etc/expmem/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9191
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "expmem"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}

	// chromem is the default: embedded, no external service required
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "caia-memory"
	}
	if cfg.VectorStore.VectorSize == 0 {
		cfg.VectorStore.VectorSize = 1536
	}
	if cfg.VectorStore.RequestTimeout == 0 {
		cfg.VectorStore.RequestTimeout = 10 * time.Second
	}
	if cfg.VectorStore.ScrollBatch == 0 {
		cfg.VectorStore.ScrollBatch = 100
	}
	if cfg.VectorStore.ScrollMaxPages == 0 {
		cfg.VectorStore.ScrollMaxPages = 10000
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.MaxMessageSize == 0 {
		cfg.VectorStore.Qdrant.MaxMessageSize = 50 * 1024 * 1024
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/expmem/vectorstore"
	}
	cfg.VectorStore.Chromem.Path = ExpandHome(cfg.VectorStore.Chromem.Path)

	if cfg.Embeddings.Backend == "" {
		cfg.Embeddings.Backend = "auto"
	}
	if cfg.Embeddings.LocalModel == "" {
		cfg.Embeddings.LocalModel = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.OpenAIBaseURL == "" {
		cfg.Embeddings.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "~/.config/expmem/models"
	}
	cfg.Embeddings.CacheDir = ExpandHome(cfg.Embeddings.CacheDir)
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}
	if cfg.Embeddings.QueryCacheMB == 0 {
		cfg.Embeddings.QueryCacheMB = 32
	}

	if cfg.Memory.RecallTopK == 0 {
		cfg.Memory.RecallTopK = 5
	}
	if cfg.Memory.SessionRecallTopK == 0 {
		cfg.Memory.SessionRecallTopK = 30
	}
	if cfg.Memory.WisdomCap == 0 {
		cfg.Memory.WisdomCap = 100
	}
	if cfg.Memory.HistoryCap == 0 {
		cfg.Memory.HistoryCap = 1000
	}

	if cfg.Session.InactivityWindow == 0 {
		cfg.Session.InactivityWindow = time.Hour
	}

	if cfg.Identity.Label == "" {
		cfg.Identity.Label = "Caia"
	}
	if len(cfg.Identity.CoreValues) == 0 {
		cfg.Identity.CoreValues = append([]string(nil), DefaultCoreValues...)
	}
	if cfg.Identity.MaxDrift == 0 {
		cfg.Identity.MaxDrift = 3
	}

	if cfg.Mailbox.Provider == "" {
		cfg.Mailbox.Provider = "memory"
	}
	cfg.Mailbox.Path = ExpandHome(cfg.Mailbox.Path)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
