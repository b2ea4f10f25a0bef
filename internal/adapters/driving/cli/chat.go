package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marginal-labs/marginalia-cli/internal/adapters/driving/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question shell over your highlights",
	Long: `Chat starts an interactive shell. Each line you type is answered
from your ingested highlights; type "quit" or "exit" to leave.

The pipeline connects to Ollama and the vector store on the first
question, not at startup, so the shell opens even when the backends
are down and reports the failure when you ask.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		pipeline := newPipeline(cfg)
		defer pipeline.Close()

		model := tui.New(pipeline.Ask)
		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("chat shell: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
