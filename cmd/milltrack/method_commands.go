package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"milltrack/internal/processing"
	"milltrack/internal/views"
)

func newMethodCommand(ctx *commandContext) *cobra.Command {
	methodCmd := &cobra.Command{
		Use:   "method",
		Short: "Manage processing methods and their stage sequences",
	}

	methodCmd.AddCommand(newMethodCreateCommand(ctx))
	methodCmd.AddCommand(newMethodListCommand(ctx))
	methodCmd.AddCommand(newMethodStagesCommand(ctx))
	methodCmd.AddCommand(newMethodAppendStageCommand(ctx))

	return methodCmd
}

func newMethodCreateCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var splitStages []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a method with its ordered stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(stages) == 0 {
				return fmt.Errorf("at least one --stage is required")
			}
			splitting := map[string]bool{}
			for _, name := range splitStages {
				splitting[strings.ToLower(strings.TrimSpace(name))] = true
			}

			seeds := make([]processing.StageSeed, 0, len(stages))
			for _, name := range stages {
				seeds = append(seeds, processing.StageSeed{
					Name:        strings.TrimSpace(name),
					AllowsSplit: splitting[strings.ToLower(strings.TrimSpace(name))],
				})
			}

			return ctx.withServices(func(app *appServices) error {
				method, err := app.catalog.CreateMethod(cmd.Context(), args[0], seeds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created method %q (id %d) with %d stages\n",
					method.Name, method.ID, len(seeds))
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&stages, "stage", nil, "Stage name, in execution order (repeatable)")
	cmd.Flags().StringArrayVar(&splitStages, "split-stage", nil, "Stage name that splits off waste material (repeatable)")
	return cmd
}

func newMethodListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				methods, err := app.catalog.ListMethods(cmd.Context())
				if err != nil {
					return err
				}
				if len(methods) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No methods registered")
					return nil
				}

				rows := make([][]string, 0, len(methods))
				for _, method := range methods {
					stages, err := app.catalog.OrderedStages(cmd.Context(), method.ID)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(stages))
					for _, stage := range stages {
						names = append(names, views.DisplayStageName(stage.Name))
					}
					rows = append(rows, []string{
						strconv.FormatInt(method.ID, 10),
						method.Name,
						strings.Join(names, " > "),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Stages"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newMethodStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages <method>",
		Short: "Show a method's ordered stage sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				methodID, err := resolveMethod(cmd, app, args[0])
				if err != nil {
					return err
				}
				stages, err := app.catalog.OrderedStages(cmd.Context(), methodID)
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(stages))
				for _, stage := range stages {
					rows = append(rows, []string{
						strconv.Itoa(stage.OrderIndex),
						views.DisplayStageName(stage.Name),
						yesNo(stage.AllowsSplit),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Order", "Stage", "Splits"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func newMethodAppendStageCommand(ctx *commandContext) *cobra.Command {
	var allowsSplit bool

	cmd := &cobra.Command{
		Use:   "append-stage <method> <stage-name>",
		Short: "Append a stage to the end of a method's sequence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				methodID, err := resolveMethod(cmd, app, args[0])
				if err != nil {
					return err
				}
				stage, err := app.catalog.AppendStage(cmd.Context(), methodID, args[1], allowsSplit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Appended stage %q at order %d\n", stage.Name, stage.OrderIndex)
				fmt.Fprintln(cmd.OutOrStdout(), "Existing batches keep their original stage sequence")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&allowsSplit, "split", false, "Stage splits off waste material")
	return cmd
}

// resolveMethod accepts a numeric method id or a method name.
func resolveMethod(cmd *cobra.Command, app *appServices, arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return id, nil
	}
	method, err := app.catalog.MethodByName(cmd.Context(), arg)
	if err != nil {
		return 0, err
	}
	if method == nil {
		return 0, fmt.Errorf("no method named %q", arg)
	}
	return method.ID, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
