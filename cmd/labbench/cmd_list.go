package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type experimentSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Steps int    `json:"steps"`
	Rules int    `json:"rules"`
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}

			var out []experimentSummary
			for _, name := range rt.catalog.Names() {
				exp, _ := rt.catalog.Lookup(name)
				out = append(out, experimentSummary{ID: exp.ID, Name: exp.Name, Steps: len(exp.Steps), Rules: len(exp.Rules)})
			}
			if jsonOut {
				return writeJSON(cmd, map[string]any{"experiments": out})
			}
			for _, s := range out {
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %2d steps  %2d rules  %s\n", s.ID, s.Steps, s.Rules, s.Name)
			}
			return nil
		},
	}
}
