package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/askpa/assistant/internal/shell"
)

var (
	apiURL  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "assistant-shell",
	Short: "Terminal client for the personal assistant",
	Long:  `Sign up or log in, add information about yourself and ask questions answered from it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := shell.NewClient(apiURL, timeout)
		p := tea.NewProgram(shell.New(cmd.Context(), client), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("shell exited: %w", err)
		}
		return nil
	},
}

func init() {
	defaultURL := os.Getenv("ASSISTANT_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8000"
	}
	rootCmd.Flags().StringVar(&apiURL, "api-url", defaultURL, "base URL of the assistant API")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-request timeout")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
