package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"milltrack/internal/notifications"
	"milltrack/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before recording data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := preflight.Run(cmd.Context(), cfg, notifications.NewService(cfg))

			rows := make([][]string, 0, len(results))
			for _, result := range results {
				rows = append(rows, []string{result.Name, string(result.Status), result.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Detail"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft}))

			if !preflight.Healthy(results) {
				return fmt.Errorf("environment checks failed")
			}
			return nil
		},
	}
}
