package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/atreides/internal/config"
	"github.com/fyrsmithlabs/atreides/internal/policy"
)

var validateAsPath bool

var validateCmd = &cobra.Command{
	Use:   "validate <command...>",
	Short: "Check a command or path against the validation pipeline",
	Long: `Run the offline validation pipeline against a command string or file
path and print the decision as JSON. Useful for testing policy override
files before deploying them.

Examples:
  atreidesd validate "rm -rf /"
  atreidesd validate --path /etc/passwd
  atreidesd validate --config ./config.yaml "git push --force"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateAsPath, "path", false, "validate as a file path instead of a command")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	validator, err := policy.NewValidator(&cfg.Policy, nil)
	if err != nil {
		return err
	}

	input := strings.Join(args, " ")
	var result policy.Result
	if validateAsPath {
		result = validator.ValidatePath(input)
	} else {
		result = validator.ValidateCommand(input)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Action == policy.ActionDeny {
		return fmt.Errorf("denied: %s", result.Reason)
	}
	return nil
}
