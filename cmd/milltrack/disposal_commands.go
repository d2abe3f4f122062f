package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"milltrack/internal/views"
)

func newDisposalCommand(ctx *commandContext) *cobra.Command {
	disposalCmd := &cobra.Command{
		Use:   "disposal",
		Short: "Record and inspect waste disposals",
	}

	disposalCmd.AddCommand(newDisposalRecordCommand(ctx))
	disposalCmd.AddCommand(newDisposalAssignCommand(ctx))
	disposalCmd.AddCommand(newDisposalListCommand(ctx))
	disposalCmd.AddCommand(newDisposalDeleteCommand(ctx))

	return disposalCmd
}

func newDisposalRecordCommand(ctx *commandContext) *cobra.Command {
	var wasteID int64
	var quantity float64
	var handlerID string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Dispose part or all of a waste item's remaining balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wasteID < 1 {
				return fmt.Errorf("--waste is required")
			}
			return ctx.withServices(func(app *appServices) error {
				disposal, err := app.disposals.RecordDisposal(cmd.Context(), wasteID, quantity, handlerID)
				if err != nil {
					return err
				}
				remaining, err := app.ledger.Remaining(cmd.Context(), wasteID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Recorded disposal %d: %.2f kg\n", disposal.ID, disposal.DisposedQuantity)
				fmt.Fprintf(out, "%.2f kg remaining on waste item %d\n", remaining, wasteID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&wasteID, "waste", 0, "Waste item being disposed")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "Disposed quantity in kg")
	cmd.Flags().StringVar(&handlerID, "handler", "", "Handler identity (may be assigned later)")
	return cmd
}

func newDisposalAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <disposal-id> <handler-id>",
		Short: "Assign a handler to a recorded disposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			disposalID, err := parseID(args[0], "disposal id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				if err := app.disposals.AssignHandler(cmd.Context(), disposalID, args[1]); err != nil {
					return err
				}
				name := app.disposals.HandlerDisplayName(cmd.Context(), args[1])
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned disposal %d to %s\n", disposalID, name)
				return nil
			})
		},
	}
}

func newDisposalListCommand(ctx *commandContext) *cobra.Command {
	var wasteID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List disposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				var wasteIDs []int64
				if wasteID > 0 {
					wasteIDs = append(wasteIDs, wasteID)
				}
				disposals, err := app.disposals.ListDisposals(cmd.Context(), wasteIDs...)
				if err != nil {
					return err
				}
				if len(disposals) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No disposals recorded")
					return nil
				}

				rows := make([][]string, 0, len(disposals))
				for _, row := range views.DisposalRows(cmd.Context(), app.directory, disposals) {
					rows = append(rows, []string{
						strconv.FormatInt(row.ID, 10),
						strconv.FormatInt(row.WasteID, 10),
						row.QuantityKg,
						row.Handler,
						row.DisposedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Waste", "Qty (kg)", "Handler", "Disposed"}, rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&wasteID, "waste", 0, "Restrict to one waste item")
	return cmd
}

func newDisposalDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <disposal-id>",
		Short: "Hide a disposal and restore its quantity to the waste item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			disposalID, err := parseID(args[0], "disposal id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				if err := app.disposals.DeleteDisposal(cmd.Context(), disposalID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted disposal %d\n", disposalID)
				return nil
			})
		},
	}
}
