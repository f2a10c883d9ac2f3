package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pixelnerd/internal/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	swatchStyle  = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().MarginTop(1)
)

func renderAnalysis(img types.ImageAnalysis) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Image facts") + "\n")

	if img.Confidence == 0 {
		b.WriteString(errorStyle.Render("analysis failed; no measurements available") + "\n")
		return b.String()
	}

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-14s", label)), value)
	}
	row("dimensions", fmt.Sprintf("%dx%d (%s)", img.Width, img.Height, img.AspectRatio))
	row("format", fmt.Sprintf("%s, %d-bit", img.Format, img.ColorDepth))
	row("file size", fmt.Sprintf("%d bytes", img.FileSize))
	row("transparency", fmt.Sprintf("%v", img.HasTransparency))
	row("unique colors", fmt.Sprintf("~%d", img.UniqueColors))
	row("sharpness", fmt.Sprintf("%.0f/100 (blurry: %v)", img.SharpnessScore, img.IsBlurry))
	row("noise", fmt.Sprintf("%.0f/100", img.NoiseLevel))
	if img.IsPrintReady {
		row("print", okStyle.Render(fmt.Sprintf("ready (%.1fx%.1f in at 300 DPI)",
			img.PrintableWidthInches, img.PrintableHeightInches)))
	} else {
		row("print", warnStyle.Render("not ready: "+strings.Join(img.PrintIssues, "; ")))
	}

	if len(img.DominantColors) > 0 {
		b.WriteString(sectionStyle.Render(titleStyle.Render("Dominant colors")) + "\n")
		for i, c := range img.DominantColors {
			sw := swatchStyle.Foreground(lipgloss.Color(c.Hex)).Render("███")
			fmt.Fprintf(&b, "  %d. %s %s  %.1f%%\n", i, sw, c.Hex, c.Percentage)
		}
	}
	return b.String()
}

func renderTurn(res types.TurnResult) string {
	var b strings.Builder

	if res.ErrorClass != types.ErrorClassNone {
		b.WriteString(errorStyle.Render("turn failed ("+string(res.ErrorClass)+")") + "\n")
		b.WriteString(res.Text + "\n")
		return b.String()
	}

	if res.Text != "" {
		b.WriteString(res.Text + "\n")
	}

	for _, oc := range res.ToolOutcomes {
		b.WriteString(sectionStyle.Render(titleStyle.Render(oc.Call.Name)) + "\n")
		if oc.Succeeded() {
			b.WriteString("  " + okStyle.Render("applied") + "\n")
			if oc.Output != nil && oc.Output.ImageRef != "" {
				fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render("result:"), oc.Output.ImageRef)
			}
		} else if !oc.Executed {
			b.WriteString("  " + errorStyle.Render("rejected") + "\n")
			for _, e := range oc.Validation.Errors {
				fmt.Fprintf(&b, "    %s\n", errorStyle.Render(e))
			}
		} else {
			b.WriteString("  " + errorStyle.Render("failed: "+oc.Err) + "\n")
		}
		for _, w := range oc.Validation.Warnings {
			fmt.Fprintf(&b, "    %s\n", warnStyle.Render("warning: "+w))
		}
	}

	fmt.Fprintf(&b, "\n%s %s, confidence %.0f\n",
		labelStyle.Render("summary:"), res.Summary(), res.Confidence)
	return b.String()
}
