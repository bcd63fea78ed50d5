// Package main is the entry point for the trellobot CLI.
//
// Usage:
//
//	bot -c config.json            # Run the bridge (same as "bot run")
//	bot validate -c config.yaml   # Validate configuration
//	bot version                   # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "./config.json"

// rootCmd runs the bridge when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Post Trello board activity to Telegram or Slack",
	Long: `trellobot polls the activity of one or more Trello boards and posts
every new action (cards created, moved, commented, ...) to a chat channel.

Quick start:
  1. Copy config.example.json to config.json and fill in the credentials
  2. Run: bot validate -c config.json
  3. Run: bot -c config.json`,
	SilenceUsage: true,
	RunE:         runBot,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "trellobot %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to config file (json or yaml)")
	rootCmd.AddCommand(versionCmd)
}
