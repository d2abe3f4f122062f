package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"milltrack/internal/views"
)

func newWasteCommand(ctx *commandContext) *cobra.Command {
	wasteCmd := &cobra.Command{
		Use:   "waste",
		Short: "Record and inspect waste generated by stages",
	}

	wasteCmd.AddCommand(newWasteRecordCommand(ctx))
	wasteCmd.AddCommand(newWasteListCommand(ctx))
	wasteCmd.AddCommand(newWasteRemainingCommand(ctx))
	wasteCmd.AddCommand(newWasteDeleteCommand(ctx))

	return wasteCmd
}

func newWasteRecordCommand(ctx *commandContext) *cobra.Command {
	var entryID int64
	var quantity float64
	var recordedBy string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Attribute waste to a completed stage entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if entryID < 1 {
				return fmt.Errorf("--entry is required")
			}
			return ctx.withServices(func(app *appServices) error {
				waste, err := app.ledger.RecordWaste(cmd.Context(), entryID, quantity, recordedBy)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded waste item %d: %.2f kg\n", waste.ID, waste.Quantity)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&entryID, "entry", 0, "Progress entry the waste came from")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "Waste quantity in kg")
	cmd.Flags().StringVar(&recordedBy, "by", "", "Operator recording the waste")
	return cmd
}

func newWasteListCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List waste items with their remaining balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				privileged := all || strings.TrimSpace(userID) == ""
				records, err := app.ledger.ListForUser(cmd.Context(), userID, privileged)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No waste recorded")
					return nil
				}

				rows := make([][]string, 0, len(records))
				for _, row := range views.WasteRows(records) {
					rows = append(rows, []string{
						strconv.FormatInt(row.ID, 10),
						row.Batch,
						row.InputLot,
						row.Stage,
						row.QuantityKg,
						row.RemainingKg,
						row.RecordedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Batch", "Lot", "Stage", "Qty (kg)", "Left (kg)", "Recorded"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Scope the listing to one user's producer")
	cmd.Flags().BoolVar(&all, "all", false, "Show every producer's waste")
	return cmd
}

func newWasteRemainingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remaining <waste-id>",
		Short: "Show the undisposed balance of a waste item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wasteID, err := parseID(args[0], "waste id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				remaining, err := app.ledger.Remaining(cmd.Context(), wasteID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.2f kg remaining\n", remaining)
				return nil
			})
		},
	}
}

func newWasteDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <waste-id>",
		Short: "Hide a waste item as an administrative correction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wasteID, err := parseID(args[0], "waste id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				if err := app.ledger.DeleteWaste(cmd.Context(), wasteID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted waste item %d\n", wasteID)
				return nil
			})
		},
	}
}
