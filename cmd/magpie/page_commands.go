package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/workflow"
)

func newPageCommand(ctx *commandContext) *cobra.Command {
	pageCmd := &cobra.Command{
		Use:     "page",
		Aliases: []string{"pages"},
		Short:   "Manage menu pages and their input mappings",
	}
	pageCmd.AddCommand(newPageListCommand(ctx))
	pageCmd.AddCommand(newPageShowCommand(ctx))
	pageCmd.AddCommand(newPageBindCommand(ctx))
	pageCmd.AddCommand(newPageMapCommand(ctx))
	return pageCmd
}

func newPageListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				pages, err := store.ListPages(cmd.Context())
				if err != nil {
					return err
				}
				if len(pages) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No pages configured")
					return nil
				}
				rows := make([][]string, 0, len(pages))
				for _, p := range pages {
					wf := p.WorkflowID
					if wf == "" {
						wf = "-"
					}
					rows = append(rows, []string{p.ID, p.Label, wf, yesNo(p.Enabled), mappedModules(p.InputMappings)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Label", "Workflow", "Enabled", "Mapped"}, rows, nil))
				return nil
			})
		},
	}
}

func mappedModules(m workflow.Mappings) string {
	names := make([]string, 0, len(m))
	for _, module := range workflow.Modules() {
		if !m[module].IsZero() {
			names = append(names, string(module))
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func newPageShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a page as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				page, err := store.GetPage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, page)
			})
		},
	}
}

func newPageBindCommand(ctx *commandContext) *cobra.Command {
	var label string
	var outputNode string
	cmd := &cobra.Command{
		Use:   "bind <page> <workflow>",
		Short: "Bind a workflow to a page, creating the page if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageID, workflowID := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				page, err := store.GetPage(cmd.Context(), pageID)
				switch {
				case errors.Is(err, catalog.ErrNotFound):
					page = catalog.Page{ID: pageID, Label: pageID, Enabled: true}
				case err != nil:
					return err
				}
				if label != "" {
					page.Label = label
				}
				if outputNode != "" {
					page.OutputNodeID = outputNode
				}
				if page.WorkflowID != workflowID {
					// Mappings for another graph would fail validation.
					page.InputMappings = workflow.Mappings{}
				}
				page.WorkflowID = workflowID
				page.Enabled = true
				if _, err := store.SavePage(cmd.Context(), page); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Page %s now runs workflow %s\n", pageID, workflowID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Menu label for the page")
	cmd.Flags().StringVar(&outputNode, "output-node", "", "Node whose images are the result")
	return cmd
}

func newPageMapCommand(ctx *commandContext) *cobra.Command {
	var aspect workflow.FieldMapping
	var clear bool
	cmd := &cobra.Command{
		Use:   "map <page> <module> [node field]",
		Short: "Map a page module onto a workflow node input",
		Long: "Map a page module onto a workflow node input. Modules: " + moduleList() + ".\n" +
			"aspectRatio uses --width-node/--width-field/--height-node/--height-field instead of node and field.",
		Args: cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := workflow.ParseModule(args[1])
			if err != nil {
				return err
			}
			var mapping workflow.FieldMapping
			switch {
			case clear:
			case module == workflow.ModuleAspectRatio:
				if aspect.WidthNodeID == "" && aspect.HeightNodeID == "" {
					return errors.New("aspectRatio needs --width-node or --height-node")
				}
				mapping = aspect
				// Width and height usually live on the same latent node.
				if mapping.WidthNodeID == "" {
					mapping.WidthNodeID = mapping.HeightNodeID
				}
				if mapping.HeightNodeID == "" {
					mapping.HeightNodeID = mapping.WidthNodeID
				}
			case len(args) == 4:
				mapping.NodeID, mapping.Field = args[2], args[3]
			case len(args) == 3 && module == workflow.ModuleTextOutput:
				mapping.NodeID = args[2]
			default:
				return fmt.Errorf("%s needs a node id and a field name", module)
			}

			return ctx.withStore(func(_ *config.Config, store *catalog.Store) error {
				page, err := store.GetPage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if page.InputMappings == nil {
					page.InputMappings = workflow.Mappings{}
				}
				if clear {
					delete(page.InputMappings, module)
				} else {
					page.InputMappings[module] = mapping
					enableModule(&page.Layout, module)
				}
				if _, err := store.SavePage(cmd.Context(), page); err != nil {
					return err
				}
				if clear {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s on page %s\n", module, page.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Mapped %s on page %s\n", module, page.ID)
				}
				return nil
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&aspect.WidthNodeID, "width-node", "", "Node receiving the width")
	flags.StringVar(&aspect.WidthField, "width-field", "width", "Width input name")
	flags.StringVar(&aspect.HeightNodeID, "height-node", "", "Node receiving the height")
	flags.StringVar(&aspect.HeightField, "height-field", "height", "Height input name")
	flags.BoolVar(&clear, "clear", false, "Remove the mapping")
	return cmd
}

// enableModule switches module on when the page has an explicit layout.
// Pages without a layout allow every mapped module.
func enableModule(layout *catalog.Layout, module workflow.Module) {
	if len(layout.Modules) == 0 {
		return
	}
	for i := range layout.Modules {
		if layout.Modules[i].ID == module {
			layout.Modules[i].Enabled = true
			return
		}
	}
	layout.Modules = append(layout.Modules, catalog.LayoutModule{ID: module, Enabled: true, Label: string(module)})
}

func moduleList() string {
	names := make([]string, 0, len(workflow.Modules()))
	for _, m := range workflow.Modules() {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}
