// Package main implements the atreidesd daemon and its hook bridge.
//
// atreidesd is the session-orchestration core of a Claude Code add-on:
// it validates tool invocations, tracks workflow phases and error
// strikes, gates session termination on pending tasks, and preserves
// critical state across context compaction.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// daemonURL is the base URL the bridge and validate commands target.
	daemonURL string
	// version is set at build time via -ldflags.
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "atreidesd",
	Short: "Session orchestration daemon for Claude Code",
	Long: `atreidesd tracks per-session workflow state for a Claude Code add-on:
command validation, workflow phases, error escalation, task tracking,
and compaction-safe state preservation.

Run "atreidesd serve" as a long-lived daemon, and register
"atreidesd hook <event>" in Claude Code hook settings.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/atreides/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "server", "http://127.0.0.1:9270", "atreidesd server URL")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(validateCmd)
}
