package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"milltrack/internal/processing"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show batch and waste totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				stats, err := app.registry.Stats(cmd.Context())
				if err != nil {
					return err
				}

				rows := [][]string{}
				for _, status := range processing.AllBatchStatuses() {
					rows = append(rows, []string{
						fmt.Sprintf("batches %s", status),
						fmt.Sprintf("%d", stats.Batches[status]),
					})
				}
				rows = append(rows,
					[]string{"waste items", fmt.Sprintf("%d", stats.OpenWasteItems)},
					[]string{"waste recorded", fmt.Sprintf("%.2f kg", stats.WasteQuantity)},
					[]string{"waste disposed", fmt.Sprintf("%.2f kg", stats.DisposedTotal)},
					[]string{"waste remaining", fmt.Sprintf("%.2f kg", stats.WasteQuantity-stats.DisposedTotal)},
				)
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Metric", "Value"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
