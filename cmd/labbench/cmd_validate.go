package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"labbench/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <definition.yaml>",
		Short: "Check an experiment definition file",
		Long: `Compile an experiment definition file and report every problem found.

Structural problems (unknown fields, ambiguous predicates) and catalog
problems (steps or rules naming unknown equipment or chemicals) are both
reported.

Examples:
  labbench validate flame_test.yaml
  labbench validate --json flame_test.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			exp, err := config.LoadExperimentFile(args[0])
			if err != nil {
				if jsonOut {
					_ = writeJSON(cmd, map[string]any{"valid": false, "error": err.Error()})
				}
				return err
			}
			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"valid":      true,
					"experiment": experimentSummary{ID: exp.ID, Name: exp.Name, Steps: len(exp.Steps), Rules: len(exp.Rules)},
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d steps, %d rules)\n", exp.ID, len(exp.Steps), len(exp.Rules))
			return nil
		},
	}
}
