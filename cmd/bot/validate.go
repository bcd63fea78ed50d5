package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trellobot/internal/config"
)

// validateCmd validates a config file without connecting to anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a trellobot configuration file without starting the bridge.

Environment overrides (TRELLOBOT_TRELLO_TOKEN, ...) are applied first, so
the result matches what "run" would see.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	boards := fmt.Sprintf("%d", len(cfg.Trello.BoardList()))
	if len(cfg.Trello.BoardList()) == 0 {
		boards = "discovered at startup"
	}
	storage := "file"
	if cfg.Storage != nil && cfg.Storage.Driver != "" {
		storage = cfg.Storage.Driver
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Boards:    %s\n", boards)
	fmt.Fprintf(out, "  Frequency: %s\n", cfg.Trello.Interval())
	fmt.Fprintf(out, "  Chat:      %s -> %s\n", cfg.Chat.ChatDriver(), cfg.Chat.Channel)
	fmt.Fprintf(out, "  Storage:   %s\n", storage)
	fmt.Fprintf(out, "  Users:     %d mapped\n", len(cfg.Users))
	return nil
}
