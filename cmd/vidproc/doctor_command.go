package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidproc/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, []string{result.Name, passFail(result.Passed), result.Detail})
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderTable([]string{"Check", "Result", "Detail"}, rows, nil))
			fmt.Fprintln(out)
			if failures := preflight.Failures(results); len(failures) > 0 {
				return errors.New(preflight.Summary(results))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func passFail(passed bool) string {
	if passed {
		return "ok"
	}
	return "FAIL"
}
