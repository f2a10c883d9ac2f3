package orchestrator

import (
	"fmt"
	"strings"

	"pixelnerd/internal/types"
)

// recentMessageLimit caps how much conversation history the prompt carries.
const recentMessageLimit = 10

// buildSystemPrompt embeds the measured ground truth and recent history into
// the system context. The model is told the facts are measured, not guessed,
// and that parameters contradicting them will be rejected.
func buildSystemPrompt(img types.ImageAnalysis, cc *types.ConversationContext) string {
	var b strings.Builder

	b.WriteString("You are an image-editing assistant. You edit images by calling the provided tools.\n")
	b.WriteString("Every tool call is validated against measured facts about the image before it runs. ")
	b.WriteString("Parameters that contradict those facts (for example a color that is not in the image) are rejected. ")
	b.WriteString("Only propose edits grounded in the facts below.\n\n")

	if img.Confidence == 0 {
		b.WriteString("IMAGE FACTS: unavailable (analysis failed). Be conservative: prefer get_image_info ")
		b.WriteString("and avoid color-targeted edits you cannot ground.\n")
	} else {
		b.WriteString("IMAGE FACTS (measured):\n")
		fmt.Fprintf(&b, "- dimensions: %dx%d pixels (aspect %s), format %s, %d-bit color\n",
			img.Width, img.Height, img.AspectRatio, img.Format, img.ColorDepth)
		fmt.Fprintf(&b, "- transparency: %v\n", img.HasTransparency)
		if len(img.DominantColors) > 0 {
			b.WriteString("- dominant colors (by prominence):\n")
			for i, c := range img.DominantColors {
				fmt.Fprintf(&b, "    %d. %s (%.1f%%)\n", i, c.Hex, c.Percentage)
			}
		}
		fmt.Fprintf(&b, "- approximately %d unique colors\n", img.UniqueColors)
		fmt.Fprintf(&b, "- sharpness %.0f/100 (blurry: %v), noise %.0f/100\n",
			img.SharpnessScore, img.IsBlurry, img.NoiseLevel)
		if img.IsPrintReady {
			fmt.Fprintf(&b, "- print ready: yes (%.1fx%.1f inches at 300 DPI)\n",
				img.PrintableWidthInches, img.PrintableHeightInches)
		} else {
			fmt.Fprintf(&b, "- print ready: no (%s)\n", strings.Join(img.PrintIssues, "; "))
		}
	}

	if cc != nil && len(cc.Messages) > 0 {
		b.WriteString("\nRECENT CONVERSATION:\n")
		msgs := cc.Messages
		if len(msgs) > recentMessageLimit {
			msgs = msgs[len(msgs)-recentMessageLimit:]
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	b.WriteString("\nWhen referring to colors, use the dominant color list above. ")
	b.WriteString("Answer briefly in text and invoke tools for the actual edits.")
	return b.String()
}
