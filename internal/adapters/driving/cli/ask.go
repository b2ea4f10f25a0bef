package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askShowEvidence bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about your highlights",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowEvidence, "evidence", false, "print the retrieved records behind the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pipeline := newPipeline(cfg)
	defer pipeline.Close()

	answer, err := pipeline.Ask(context.Background(), question)
	if err != nil {
		// Only setup failures reach here; execution failures are
		// already folded into the answer text.
		return fmt.Errorf("ask: %w", err)
	}

	cmd.Println(answer.Text)

	if askShowEvidence && len(answer.Evidence) > 0 {
		cmd.Println()
		cmd.Println("Evidence:")
		for i, ev := range answer.Evidence {
			cmd.Printf("  [%d] %s (%.4f)\n", i+1, ev.RecordID, ev.Score)
		}
	}
	return nil
}
