package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pixelnerd/internal/analysis"
)

var (
	analyzeDPI       int
	analyzeMaxColors int
	analyzeJSON      bool
)

// analyzeCmd measures an image without involving the model at all.
var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]",
	Short: "Extract the measured ground truth from an image",
	Long: `Runs the deterministic image analysis: dimensions, dominant colors,
sharpness, noise, transparency, and print readiness. This is exactly the
ground truth the validator holds the model to.

The image argument may be a file path, an http(s) URL, or a data URI.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxColors := analyzeMaxColors
		if maxColors <= 0 {
			maxColors = cfg.Limits.MaxDominantColors
		}
		img := analysis.NewAnalyzer().Analyze(cmd.Context(), args[0], analysis.Options{
			DPI:       analyzeDPI,
			MaxColors: maxColors,
		})

		if analyzeJSON {
			out, err := json.MarshalIndent(img, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Print(renderAnalysis(img))
		if img.Confidence == 0 {
			return fmt.Errorf("analysis failed for %q", args[0])
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeDPI, "dpi", 0, "known pixel density (0 = unknown, print math assumes 72)")
	analyzeCmd.Flags().IntVar(&analyzeMaxColors, "colors", 0, "how many dominant colors to extract (0 = config limit, max 9)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit raw JSON")
}
