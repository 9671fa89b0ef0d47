// Package config provides configuration loading for expmem.
//
// Configuration is assembled from hardcoded defaults, an optional YAML file,
// and EXPMEM_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Config holds the complete expmem configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Memory      MemoryConfig      `koanf:"memory"`
	Session     SessionConfig     `koanf:"session"`
	Identity    IdentityConfig    `koanf:"identity"`
	Mailbox     MailboxConfig     `koanf:"mailbox"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	SamplingRate   float64 `koanf:"sampling_rate"`
	MetricsEnabled bool    `koanf:"metrics_enabled"`
	// LogsEnabled also exports application logs over OTLP.
	LogsEnabled    bool    `koanf:"logs_enabled"`
}

// VectorStoreConfig selects and configures the similarity store.
type VectorStoreConfig struct {
	// Provider is "qdrant" or "chromem".
	Provider   string `koanf:"provider"`
	Collection string `koanf:"collection"`
	// VectorSize is the fallback dimensionality when neither the
	// collection nor the embedding backend can report one.
	VectorSize     int           `koanf:"vector_size"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ScrollBatch    int           `koanf:"scroll_batch_size"`
	ScrollMaxPages int           `koanf:"scroll_max_pages"`

	Qdrant  QdrantConfig  `koanf:"qdrant"`
	Chromem ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host           string `koanf:"host"`
	Port           int    `koanf:"port"`
	UseTLS         bool   `koanf:"use_tls"`
	APIKey         Secret `koanf:"api_key"`
	MaxMessageSize int    `koanf:"max_message_size"`
}

// ChromemConfig holds embedded chromem-go settings.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
	InMemory bool   `koanf:"in_memory"`
}

// EmbeddingsConfig selects the embedding backend and model.
type EmbeddingsConfig struct {
	// Backend is "auto", "openai", or "fastembed".
	Backend       string        `koanf:"backend"`
	LocalModel    string        `koanf:"local_model"`
	OpenAIModel   string        `koanf:"openai_model"`
	OpenAIBaseURL string        `koanf:"openai_base_url"`
	OpenAIAPIKey  Secret        `koanf:"openai_api_key"`
	CacheDir      string        `koanf:"cache_dir"`
	Timeout       time.Duration `koanf:"timeout"`
	// RateLimit caps hosted embedding calls per second (0 disables).
	RateLimit    float64 `koanf:"rate_limit"`
	QueryCacheMB int64   `koanf:"query_cache_mb"`
}

// MemoryConfig holds experience-memory tuning knobs.
type MemoryConfig struct {
	RecallTopK        int `koanf:"recall_top_k"`
	SessionRecallTopK int `koanf:"session_recall_top_k"`
	WisdomCap         int `koanf:"wisdom_cap"`
	HistoryCap        int `koanf:"history_cap"`
}

// SessionConfig holds conversation session settings.
type SessionConfig struct {
	InactivityWindow time.Duration `koanf:"inactivity_window"`
}

// IdentityConfig holds the identity guard settings.
type IdentityConfig struct {
	Label      string   `koanf:"label"`
	CoreValues []string `koanf:"core_values"`
	MaxDrift   int      `koanf:"max_drift"`
}

// MailboxConfig selects the mailbox backing store.
type MailboxConfig struct {
	// Provider is "memory" or "badger".
	Provider string `koanf:"provider"`
	Path     string `koanf:"path"`
}

var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - A provider or backend name is unknown
//   - Collection name or size limits are invalid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	switch c.VectorStore.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unknown vectorstore provider %q", c.VectorStore.Provider)
	}
	if !collectionNamePattern.MatchString(c.VectorStore.Collection) {
		return fmt.Errorf("invalid collection name %q", c.VectorStore.Collection)
	}
	if c.VectorStore.VectorSize <= 0 {
		return errors.New("vectorstore vector_size must be positive")
	}
	if c.VectorStore.ScrollBatch <= 0 {
		return errors.New("vectorstore scroll_batch_size must be positive")
	}

	switch c.Embeddings.Backend {
	case "auto", "openai", "fastembed", "sbert", "local":
	default:
		return fmt.Errorf("unknown embeddings backend %q", c.Embeddings.Backend)
	}
	if c.Embeddings.RateLimit < 0 {
		return errors.New("embeddings rate_limit cannot be negative")
	}

	if c.Memory.WisdomCap <= 0 || c.Memory.HistoryCap <= 0 {
		return errors.New("memory caps must be positive")
	}
	if c.Session.InactivityWindow <= 0 {
		return errors.New("session inactivity_window must be positive")
	}
	if c.Identity.Label == "" {
		return errors.New("identity label is required")
	}
	if c.Identity.MaxDrift < 0 {
		return errors.New("identity max_drift cannot be negative")
	}

	switch c.Mailbox.Provider {
	case "memory":
	case "badger":
		if c.Mailbox.Path == "" {
			return errors.New("mailbox path required for badger provider")
		}
	default:
		return fmt.Errorf("unknown mailbox provider %q", c.Mailbox.Provider)
	}
	return nil
}
