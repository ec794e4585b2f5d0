package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/gemini"
	"magpie/internal/imaging"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Describe an image with the hosted model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			client, err := gemini.NewClient(cmd.Context(), gemini.ConfigFrom(cfg), cliLogger(cfg))
			if err != nil {
				return err
			}
			analysis, err := client.AnalyzeImage(cmd.Context(), gemini.Image{
				Data:     data,
				MIMEType: http.DetectContentType(data),
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, analysis)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, analysis.Description)
			if len(analysis.Tags) > 0 {
				fmt.Fprintf(out, "Tags:   %s\n", strings.Join(analysis.Tags, ", "))
			}
			if len(analysis.MainColors) > 0 {
				fmt.Fprintf(out, "Colors: %s\n", strings.Join(analysis.MainColors, " "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output the analysis as JSON")
	return cmd
}

func newCompressCommand() *cobra.Command {
	var opts imaging.Options
	var format string
	cmd := &cobra.Command{
		Use:         "compress <in> <out>",
		Short:       "Resize and re-encode an image locally",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := args[0], args[1]
			if strings.TrimSpace(format) == "" {
				format = strings.TrimPrefix(filepath.Ext(out), ".")
			}
			var err error
			if opts.Format, err = imaging.ParseFormat(format); err != nil {
				return err
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			res, err := imaging.Process(bytes.NewReader(data), opts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d, %s -> %s (%.1f%% smaller)\n",
				out, res.Width, res.Height,
				imaging.FormatBytes(int64(len(data))), imaging.FormatBytes(int64(res.Size)),
				imaging.Savings(len(data), res.Size))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Float64Var(&opts.Quality, "quality", imaging.DefaultQuality, "JPEG quality from 0 to 1")
	flags.Float64Var(&opts.Scale, "scale", 1, "Scale factor for both dimensions")
	flags.IntVar(&opts.MaxWidth, "max-width", 0, "Clamp the output width (0 keeps the scaled width)")
	flags.StringVar(&format, "format", "", "Output format: jpeg or png (defaults to the output extension)")
	return cmd
}
