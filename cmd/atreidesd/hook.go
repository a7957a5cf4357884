package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/atreides/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "One-shot hook bridge for Claude Code",
	Long: `Read one hook event from stdin, forward it to the daemon, and print
the decision JSON on stdout. Register in Claude Code settings, e.g.:

  {
    "hooks": {
      "PreToolUse": [{"hooks": [{"type": "command", "command": "atreidesd hook pre-tool-use"}]}]
    }
  }

The bridge always exits 0: an unreachable daemon allows the event
through rather than breaking the assistant.`,
	Args: cobra.ExactArgs(1),
	RunE: runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	hookType, err := hooks.ParseType(args[0])
	if err != nil {
		return err
	}

	bridge := hooks.NewBridge(daemonURL)
	// Transport failures fail open inside Run; only an unwritable
	// stdout surfaces here, and even then the exit code stays 0.
	if err := bridge.Run(cmd.Context(), hookType, os.Stdin, os.Stdout); err != nil {
		return nil
	}
	return nil
}
