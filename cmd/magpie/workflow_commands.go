package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/importer"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"workflows", "wf"},
		Short:   "Manage imported workflows",
	}
	workflowCmd.AddCommand(newWorkflowImportCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	workflowCmd.AddCommand(newWorkflowShowCommand(ctx))
	workflowCmd.AddCommand(newWorkflowDeleteCommand(ctx))
	return workflowCmd
}

func newWorkflowImportCommand(ctx *commandContext) *cobra.Command {
	var scan bool
	cmd := &cobra.Command{
		Use:   "import [file.json...]",
		Short: "Import API-format workflow exports",
		Long: "Import API-format workflow exports. The workflow id is derived from the file name,\n" +
			"so importing the same file again replaces the stored graph.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !scan {
				return errors.New("pass one or more files, or --scan to import paths.workflow_import_dir")
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				im := importer.New(cfg.Paths.WorkflowImportDir, store, cliLogger(cfg))
				out := cmd.OutOrStdout()
				if scan {
					if cfg.Paths.WorkflowImportDir == "" {
						return errors.New("paths.workflow_import_dir is not configured")
					}
					n, err := im.Scan(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Imported %d workflow(s) from %s\n", n, cfg.Paths.WorkflowImportDir)
				}
				for _, path := range args {
					wf, err := im.ImportFile(cmd.Context(), path)
					if err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					fmt.Fprintf(out, "Imported %s as %s (%d nodes)\n", path, wf.ID, len(wf.Graph))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&scan, "scan", false, "Import every file in paths.workflow_import_dir")
	return cmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				workflows, err := store.ListWorkflows(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, workflows)
				}
				if len(workflows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No workflows imported")
					return nil
				}
				rows := make([][]string, 0, len(workflows))
				for _, wf := range workflows {
					rows = append(rows, []string{
						wf.ID,
						wf.Name,
						strconv.Itoa(wf.NodeCount),
						wf.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Nodes", "Created"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output workflows as JSON")
	return cmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "List a workflow's nodes and inputs for mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				wf, err := store.GetWorkflow(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", wf.Name, wf.ID)
				if wf.Description != "" {
					fmt.Fprintln(out, wf.Description)
				}
				rows := make([][]string, 0, len(wf.Graph))
				for _, node := range wf.Graph.Summaries() {
					rows = append(rows, []string{node.ID, node.ClassType, node.Title, strings.Join(node.Inputs, ", ")})
				}
				fmt.Fprintln(out, renderTable([]string{"Node", "Class", "Title", "Inputs"}, rows, nil))
				return nil
			})
		},
	}
}

func newWorkflowDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a workflow and unbind pages that use it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				if err := store.DeleteWorkflow(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted workflow %s\n", args[0])
				return nil
			})
		},
	}
}
