package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/catalog"
	"magpie/internal/config"
	"magpie/internal/generation"
	"magpie/internal/history"
	"magpie/internal/notifications"
	"magpie/internal/workflow"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var values workflow.Values
	var imagePath string
	var department string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "generate <page>",
		Short: "Run one generation on a page's bound workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := generation.Request{
				PageID:     strings.TrimSpace(args[0]),
				Department: strings.TrimSpace(department),
				Values:     values,
			}
			if imagePath != "" {
				file, err := os.Open(imagePath)
				if err != nil {
					return fmt.Errorf("open reference image: %w", err)
				}
				defer file.Close()
				req.Image = file
				req.ImageName = filepath.Base(imagePath)
			}

			return ctx.withRecorder(cmd.Context(), func(cfg *config.Config, store *catalog.Store, recorder history.Recorder) error {
				svc := generation.NewService(cfg, store, recorder, cliLogger(cfg),
					generation.WithNotifier(notifications.NewService(cfg)))
				result, err := svc.Generate(cmd.Context(), req)
				if err != nil {
					return fmt.Errorf("%w (hint: %s)", err, generation.Hint(err))
				}
				if jsonOut {
					return writeJSON(cmd, result)
				}
				printGeneration(cmd, result)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&values.Prompt, "prompt", "p", "", "Positive prompt")
	flags.StringVar(&values.NegativePrompt, "negative", "", "Negative prompt")
	flags.StringVar(&values.Model, "model", "", "Model value for the model module")
	flags.IntVar(&values.BatchSize, "batch", 0, "Batch size")
	flags.IntVar(&values.Width, "width", 0, "Image width")
	flags.IntVar(&values.Height, "height", 0, "Image height")
	flags.StringVar(&imagePath, "image", "", "Reference image to upload")
	flags.StringVar(&department, "department", "", "Department used for backend selection")
	flags.BoolVar(&jsonOut, "json", false, "Output the result as JSON")
	return cmd
}

func printGeneration(cmd *cobra.Command, result generation.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Prompt ID: %s\n", result.Job.PromptID)
	fmt.Fprintf(out, "Backend:   %s\n", result.Job.BackendURL)
	for i, url := range result.Outputs.ImageURLs {
		fmt.Fprintf(out, "Image %d:   %s\n", i+1, url)
	}
	if result.Outputs.Text != "" {
		fmt.Fprintf(out, "Text:      %s\n", result.Outputs.Text)
	}
}
