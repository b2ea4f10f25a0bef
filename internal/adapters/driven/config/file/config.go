package file

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root application configuration. Every constant the
// pipelines depend on lives here and can be overridden in the TOML
// file; defaults mirror a stock local setup (Ollama + Chroma).
type Config struct {
	Readwise  ReadwiseConfig  `toml:"readwise"`
	Embedding EmbeddingConfig `toml:"embedding"`
	LLM       LLMConfig       `toml:"llm"`
	Store     StoreConfig     `toml:"store"`
	Query     QueryConfig     `toml:"query"`
}

// ReadwiseConfig configures the export client.
type ReadwiseConfig struct {
	// BaseURL is the Readwise API base URL.
	BaseURL string `toml:"base_url"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `toml:"token_env"`

	// PageRetries is how often a failed page fetch is retried before
	// pagination stops with partial results.
	PageRetries int `toml:"page_retries"`
}

// EmbeddingConfig configures the embedding model service.
type EmbeddingConfig struct {
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	TimeoutSecs int    `toml:"timeout_secs"`
	Dimensions  int    `toml:"dimensions"`
}

// LLMConfig configures the language model service.
type LLMConfig struct {
	BaseURL     string `toml:"base_url"`
	Model       string `toml:"model"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// URL is the Chroma server URL.
	URL string `toml:"url"`

	// Collection is the collection name the highlights live in.
	Collection string `toml:"collection"`

	TimeoutSecs int `toml:"timeout_secs"`
}

// QueryConfig configures the query pipeline.
type QueryConfig struct {
	// TopK is the retrieval breadth.
	TopK int `toml:"top_k"`
}

// Default configuration values.
const (
	defaultTokenEnv   = "READWISE_API_KEY"
	defaultCollection = "readwise_highlights"
)

// DefaultPath returns the user-level config location,
// ~/.marginalia/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".marginalia", "config.toml"), nil
}

// Load reads the config from path. A missing file yields pure defaults;
// a partial file has defaults applied to whatever it leaves out.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := &Config{}
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults fills in every unset field.
func applyDefaults(cfg *Config) {
	if cfg.Readwise.BaseURL == "" {
		cfg.Readwise.BaseURL = "https://readwise.io/api/v2"
	}
	if cfg.Readwise.TokenEnv == "" {
		cfg.Readwise.TokenEnv = defaultTokenEnv
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.TimeoutSecs == 0 {
		cfg.Embedding.TimeoutSecs = 30
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "mistral"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.Store.URL == "" {
		cfg.Store.URL = "http://localhost:8000"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = defaultCollection
	}
	if cfg.Store.TimeoutSecs == 0 {
		cfg.Store.TimeoutSecs = 30
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
}
