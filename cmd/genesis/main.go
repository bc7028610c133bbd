// Package main provides the CLI entry point for the Genesis AI agent
// orchestration core.
//
// Genesis drives a reason-act loop against a pluggable LLM provider,
// detects action requests the model asks for in its own output, gates
// them on a per-user permission store, and dispatches them as sandboxed
// subprocess plugins.
//
// # Basic usage
//
// Start an interactive chat session:
//
//	genesis chat
//
// Send a single message and exit:
//
//	genesis chat --message "what's on my schedule today"
//
// Pack and install a plugin, or inspect scheduled tasks:
//
//	genesis plugin pack ./my-plugin -o my-plugin.gplug
//	genesis plugin install my-plugin.gplug
//	genesis schedule list
//
// # Environment variables
//
//   - GENESIS_CONFIG: path to the YAML config file (default: genesis.yaml)
//   - GENESIS_LOG_LEVEL: slog level for the default logger (default: info)
//   - the variable named by a provider's api_key_env config entry: that
//     provider's credential fallback, consulted when no per-user secret
//     file is present (spec §4.1 step 2)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ComputerAces/Genesis-AI-Agent/internal/logging"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	slog.SetDefault(logging.New(logging.Config{Level: envOr("GENESIS_LOG_LEVEL", "info"), Format: "text"}))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd builds the command tree, separated from main for testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "genesis",
		Short:        "Genesis - AI agent orchestration core",
		Long:         "Genesis drives a provider-agnostic reason-act loop over sandboxed plugin actions.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOr("GENESIS_CONFIG", "genesis.yaml"), "path to the config file")

	rootCmd.AddCommand(buildChatCmd())
	rootCmd.AddCommand(buildScheduleCmd())
	rootCmd.AddCommand(buildPluginCmd())
	return rootCmd
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
