package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"milltrack/internal/processing"
	"milltrack/internal/tracker"
	"milltrack/internal/views"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Manage processing batches",
	}

	batchCmd.AddCommand(newBatchCreateCommand(ctx))
	batchCmd.AddCommand(newBatchListCommand(ctx))
	batchCmd.AddCommand(newBatchShowCommand(ctx))
	batchCmd.AddCommand(newBatchAdvanceCommand(ctx))
	batchCmd.AddCommand(newBatchCancelCommand(ctx))
	batchCmd.AddCommand(newBatchDeleteCommand(ctx))

	return batchCmd
}

func newBatchCreateCommand(ctx *commandContext) *cobra.Command {
	var methodArg string
	var inputLot string
	var producerID string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a batch of an input lot through a method",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(methodArg) == "" {
				return fmt.Errorf("--method is required")
			}
			if strings.TrimSpace(inputLot) == "" {
				return fmt.Errorf("--lot is required")
			}
			return ctx.withServices(func(app *appServices) error {
				methodID, err := resolveMethod(cmd, app, methodArg)
				if err != nil {
					return err
				}
				batch, err := app.registry.CreateBatch(cmd.Context(), methodID, inputLot, producerID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created batch %d (%s) for lot %s\n", batch.ID, batch.Reference, batch.InputLot)
				if stage, ok := batch.StageAt(batch.CurrentStageOrder); ok {
					fmt.Fprintf(out, "First stage: %s\n", views.DisplayStageName(stage.Name))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&methodArg, "method", "m", "", "Method id or name")
	cmd.Flags().StringVarP(&inputLot, "lot", "l", "", "Input lot identifier")
	cmd.Flags().StringVarP(&producerID, "producer", "p", "", "Producer identity owning the batch")
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []processing.BatchStatus
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				status, ok := processing.ParseBatchStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q (valid: %v)", trimmed, processing.AllBatchStatuses())
				}
				statuses = append(statuses, status)
			}

			return ctx.withServices(func(app *appServices) error {
				batches, err := app.registry.ListBatches(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches found")
					return nil
				}

				rows := make([][]string, 0, len(batches))
				for _, row := range views.BatchRows(batches) {
					rows = append(rows, []string{
						strconv.FormatInt(row.ID, 10),
						row.Reference,
						row.Method,
						row.InputLot,
						row.Stage,
						row.Status,
						row.CreatedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Ref", "Method", "Lot", "Stage", "Status", "Created"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Filter by status (in_progress, completed, cancelled)")
	return cmd
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch with its stage history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				batch, err := app.registry.GetBatch(cmd.Context(), batchID)
				if err != nil {
					return err
				}
				entries, err := app.tracker.History(cmd.Context(), batchID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch %d (%s)\n", batch.ID, batch.Reference)
				fmt.Fprintf(out, "Method:   %s\n", batch.MethodName)
				fmt.Fprintf(out, "Lot:      %s\n", batch.InputLot)
				fmt.Fprintf(out, "Status:   %s\n", batch.Status)
				if batch.CancelReason != "" {
					fmt.Fprintf(out, "Reason:   %s\n", batch.CancelReason)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No stages recorded yet")
					return nil
				}

				rows := make([][]string, 0, len(entries))
				for _, row := range views.HistoryRows(batch, entries) {
					rows = append(rows, []string{
						strconv.Itoa(row.Order),
						row.Stage,
						row.InputKg,
						row.OutputKg,
						row.Status,
						row.RecordedAt,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Order", "Stage", "In (kg)", "Out (kg)", "Status", "Recorded"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newBatchAdvanceCommand(ctx *commandContext) *cobra.Command {
	var input float64
	var output float64
	var splitWaste float64
	var recordedBy string

	cmd := &cobra.Command{
		Use:   "advance <batch-id>",
		Short: "Record completion of the batch's current stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				batch, err := app.registry.GetBatch(cmd.Context(), batchID)
				if err != nil {
					return err
				}
				entry, err := app.tracker.RecordProgress(cmd.Context(), tracker.ProgressRequest{
					BatchID:        batchID,
					OrderIndex:     batch.CurrentStageOrder,
					InputQuantity:  input,
					OutputQuantity: output,
					SplitWaste:     splitWaste,
					RecordedBy:     recordedBy,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				stageName := "stage"
				if stage, ok := batch.StageAt(entry.OrderIndex); ok {
					stageName = views.DisplayStageName(stage.Name)
				}
				fmt.Fprintf(out, "Recorded %s: %.2f kg in, %.2f kg out\n", stageName, input, output)
				if splitWaste > 0 {
					fmt.Fprintf(out, "Split waste recorded: %.2f kg\n", splitWaste)
				}

				updated, err := app.registry.GetBatch(cmd.Context(), batchID)
				if err != nil {
					return err
				}
				switch {
				case updated.Status == processing.BatchCompleted:
					fmt.Fprintln(out, "Batch completed")
				default:
					if next, ok := updated.StageAt(updated.CurrentStageOrder); ok {
						fmt.Fprintf(out, "Next stage: %s\n", views.DisplayStageName(next.Name))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&input, "input", 0, "Input quantity in kg")
	cmd.Flags().Float64Var(&output, "output", 0, "Output quantity in kg")
	cmd.Flags().Float64Var(&splitWaste, "split-waste", 0, "Waste split off by this stage in kg")
	cmd.Flags().StringVar(&recordedBy, "by", "", "Operator recording the completion")
	return cmd
}

func newBatchCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <batch-id>",
		Short: "Cancel an in-progress batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				if err := app.registry.CancelBatch(cmd.Context(), batchID, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancelled batch %d\n", batchID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the batch is being cancelled")
	return cmd
}

func newBatchDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Hide a batch from listings (history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseID(args[0], "batch id")
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				if err := app.registry.DeleteBatch(cmd.Context(), batchID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted batch %d\n", batchID)
				return nil
			})
		},
	}
}

func parseID(arg, label string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s %q", label, arg)
	}
	return id, nil
}
