package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marginal-labs/marginalia-cli/internal/connectors/readwise"
	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/services"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch highlights from Readwise and index them",
	Long: `Fetches the full highlight export from the Readwise API, normalises
it into canonical records, embeds the record bodies and upserts them
into the vector store. Re-running overwrites existing records in place.

The Readwise API token is read from the environment variable named in
the config (READWISE_API_KEY by default).`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Missing token is fatal here, before any network call. The query
	// path never needs it.
	token := os.Getenv(cfg.Readwise.TokenEnv)
	if token == "" {
		return fmt.Errorf("%w: set %s", domain.ErrMissingAPIToken, cfg.Readwise.TokenEnv)
	}

	client, err := readwise.New(readwise.Config{
		BaseURL:     cfg.Readwise.BaseURL,
		Token:       token,
		PageRetries: cfg.Readwise.PageRetries,
	})
	if err != nil {
		return err
	}

	store := newStore(cfg)
	defer store.Close()
	embedder := newEmbedder(cfg)
	defer embedder.Close()

	svc := services.NewIngestService(client, services.NewNormalizer(), embedder, store)

	summary, err := svc.Run(context.Background())
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if summary.Partial {
		cmd.Printf("Ingest finished with partial data: %d sources, %d records (fetch stopped early)\n",
			summary.Sources, summary.Records)
		return nil
	}
	cmd.Printf("Ingested %d sources into %d highlight records\n", summary.Sources, summary.Records)
	return nil
}
