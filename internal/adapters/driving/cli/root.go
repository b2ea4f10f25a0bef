// Package cli wires the cobra command tree: ingesting highlights,
// asking one-shot questions and running the interactive chat shell.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marginal-labs/marginalia-cli/internal/adapters/driven/config/file"
	embedollama "github.com/marginal-labs/marginalia-cli/internal/adapters/driven/embedding/ollama"
	llmollama "github.com/marginal-labs/marginalia-cli/internal/adapters/driven/llm/ollama"
	"github.com/marginal-labs/marginalia-cli/internal/adapters/driven/vector/chroma"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
	"github.com/marginal-labs/marginalia-cli/internal/core/services"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "marginalia",
	Short: "Ask questions about your Readwise highlights",
	Long: `Marginalia ingests your Readwise highlight export into a local
vector store and answers natural-language questions about it using a
local language model.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config.toml (default ~/.marginalia/config.toml)")
}

// loadConfig reads the TOML config from --config or the default path.
func loadConfig() (*file.Config, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = file.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
	}
	cfg, err := file.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger.Debug("Config loaded from %s", path)
	return cfg, nil
}

// newEmbedder builds the embedding adapter from config.
func newEmbedder(cfg *file.Config) *embedollama.EmbeddingService {
	return embedollama.NewEmbeddingService(embedollama.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSecs) * time.Second,
		Dimensions: cfg.Embedding.Dimensions,
	})
}

// newLLM builds the LLM adapter from config.
func newLLM(cfg *file.Config) *llmollama.LLMService {
	return llmollama.NewLLMService(llmollama.LLMConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
}

// newStore builds the vector store adapter from config.
func newStore(cfg *file.Config) *chroma.Store {
	return chroma.NewStore(chroma.Config{
		BaseURL:    cfg.Store.URL,
		Collection: cfg.Store.Collection,
		Timeout:    time.Duration(cfg.Store.TimeoutSecs) * time.Second,
	})
}

// newPipeline builds a lazily-initializing query pipeline. The
// factories ping their services so unreachable backends surface as
// setup errors instead of failing mid-query.
func newPipeline(cfg *file.Config) *services.QueryPipeline {
	return services.NewQueryPipeline(services.PipelineConfig{
		TopK: cfg.Query.TopK,
		NewEmbedder: func(ctx context.Context) (driven.EmbeddingService, error) {
			svc := newEmbedder(cfg)
			if err := svc.Ping(ctx); err != nil {
				return nil, err
			}
			return svc, nil
		},
		NewLLM: func(ctx context.Context) (driven.LLMService, error) {
			svc := newLLM(cfg)
			if err := svc.Ping(ctx); err != nil {
				return nil, err
			}
			return svc, nil
		},
		OpenStore: func(ctx context.Context) (driven.VectorStore, error) {
			store := newStore(cfg)
			if err := store.Open(ctx); err != nil {
				return nil, err
			}
			return store, nil
		},
	})
}
