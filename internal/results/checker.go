// Package results verifies that a tool execution actually did what the tool
// claims to do, by inspecting the pixel delta between the before and after
// images. The check is class-based: a transparency tool must have produced
// transparency, an enhancement tool must have grown the image, an info tool
// must not have touched it at all.
package results

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"pixelnerd/internal/analysis"
	"pixelnerd/internal/logging"
	"pixelnerd/internal/tools"
	"pixelnerd/internal/types"
)

const (
	// noiseFloor is the per-channel delta below which a pixel counts as
	// unchanged. Re-encoding alone moves channels by a few steps.
	noiseFloor = 8

	// significantPercent is the changed-pixel share above which the change
	// counts as significant.
	significantPercent = 1.0
)

// Request names the execution to verify.
type Request struct {
	ToolName  string
	BeforeRef string // image the tool was given
	AfterRef  string // image the tool returned; empty for data-only outputs
}

// Checker loads image pairs and scores the delta.
type Checker struct {
	loader *analysis.Loader
}

// NewChecker returns a checker with its own image loader.
func NewChecker() *Checker {
	return &Checker{loader: analysis.NewLoader()}
}

// Validate scores whether the claimed operation plausibly occurred. It never
// returns an error: when the images cannot be inspected the execution gets
// the benefit of the doubt, with a warning saying verification was skipped.
func (c *Checker) Validate(ctx context.Context, req Request) types.ResultValidation {
	class := tools.ClassOf(req.ToolName)

	if class == tools.OpInfoOnly || class == tools.OpUnknown {
		return c.validateInfoOnly(ctx, req, class)
	}

	before, after, err := c.loadPair(ctx, req.BeforeRef, req.AfterRef)
	if err != nil {
		logging.Results("%s: verification skipped: %v", req.ToolName, err)
		return types.ResultValidation{
			Success:      true,
			QualityScore: 50,
			Warnings:     []string{"result could not be verified: " + err.Error()},
			Reasoning:    []string{fmt.Sprintf("loading image pair failed (%v); accepting the execution unverified", err)},
		}
	}

	d := diff(before, after)
	res := types.ResultValidation{
		Success:           true,
		PixelsChanged:     d.changed,
		PercentageChanged: d.percent,
		SignificantChange: d.percent >= significantPercent || d.dimsChanged,
		VisualDifference: types.VisualDifference{
			MaxDelta:         d.maxDelta,
			AvgDelta:         d.avgDelta,
			ColorShiftAmount: d.colorShift,
		},
	}
	res.Reasoning = append(res.Reasoning, fmt.Sprintf(
		"%s: %d pixels changed (%.1f%%), max delta %.0f, avg delta %.2f",
		req.ToolName, d.changed, d.percent, d.maxDelta, d.avgDelta))

	switch class {
	case tools.OpTransparencyChange:
		c.applyTransparencyPolicy(&res, d)
	case tools.OpColorChange:
		c.applyColorPolicy(&res, d)
	case tools.OpQualityEnhancement:
		c.applyEnhancementPolicy(&res, before, after, d)
	}

	res.QualityScore = qualityScore(res)
	logging.Results("%s verified: success=%v changed=%.1f%% quality=%.0f",
		req.ToolName, res.Success, res.PercentageChanged, res.QualityScore)
	return res
}

// validateInfoOnly enforces the read-only contract: the tool must not have
// produced a new image at all.
func (c *Checker) validateInfoOnly(ctx context.Context, req Request, class tools.OpClass) types.ResultValidation {
	res := types.ResultValidation{
		Success:      true,
		QualityScore: 100,
		Reasoning:    []string{fmt.Sprintf("%s is read-only; no pixel check required", req.ToolName)},
	}
	if req.AfterRef == "" || req.AfterRef == req.BeforeRef {
		return res
	}

	before, after, err := c.loadPair(ctx, req.BeforeRef, req.AfterRef)
	if err != nil {
		return res
	}
	if d := diff(before, after); d.changed > 0 || d.dimsChanged {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s is read-only but the image changed (%d pixels)", req.ToolName, d.changed))
		res.PixelsChanged = d.changed
		res.PercentageChanged = d.percent
		res.QualityScore = qualityScore(res)
	}
	return res
}

func (c *Checker) applyTransparencyPolicy(res *types.ResultValidation, d diffResult) {
	if d.alphaAfter <= d.alphaBefore {
		res.Success = false
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"transparency check: %d transparent pixels before, %d after; none gained", d.alphaBefore, d.alphaAfter))
		return
	}
	res.Reasoning = append(res.Reasoning, fmt.Sprintf(
		"transparency check: gained %d transparent pixels", d.alphaAfter-d.alphaBefore))
	if d.percent < 10 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"only %.1f%% of pixels changed; the removal may have missed most of the target", d.percent))
	}
}

func (c *Checker) applyColorPolicy(res *types.ResultValidation, d diffResult) {
	if d.dimsChanged {
		res.Reasoning = append(res.Reasoning, "dimensions changed; per-pixel comparison not applicable")
		return
	}
	if d.percent > 95 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%.1f%% of pixels changed; the edit may have affected far more than the target color", d.percent))
	}
	if d.changed == 0 {
		res.Warnings = append(res.Warnings, "no pixels changed; the edit may have had no effect")
	}
}

func (c *Checker) applyEnhancementPolicy(res *types.ResultValidation, before, after image.Image, d diffResult) {
	bw, bh := before.Bounds().Dx(), before.Bounds().Dy()
	aw, ah := after.Bounds().Dx(), after.Bounds().Dy()
	if aw <= bw || ah <= bh {
		res.Success = false
		res.Reasoning = append(res.Reasoning, fmt.Sprintf(
			"enhancement check: dimensions did not increase (%dx%d -> %dx%d)", bw, bh, aw, ah))
		return
	}
	res.Reasoning = append(res.Reasoning, fmt.Sprintf(
		"enhancement check: %dx%d -> %dx%d", bw, bh, aw, ah))

	sb, sa := analysis.Sharpness(before), analysis.Sharpness(after)
	if sa < sb {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"sharpness decreased from %.0f to %.0f; the upscale may have softened the image", sb, sa))
	}
}

func (c *Checker) loadPair(ctx context.Context, beforeRef, afterRef string) (image.Image, image.Image, error) {
	var before, after image.Image
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, _, _, err := c.loader.Load(gctx, beforeRef)
		before = img
		return err
	})
	g.Go(func() error {
		img, _, _, err := c.loader.Load(gctx, afterRef)
		after = img
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// ===== PIXEL DIFF =====

type diffResult struct {
	changed     int
	percent     float64
	maxDelta    float64
	avgDelta    float64
	colorShift  float64
	dimsChanged bool
	alphaBefore int // pixels with alpha < full opacity, before
	alphaAfter  int
}

// diff compares the two images component-wise over their shared area. A pixel
// counts as changed when any channel moves by more than the noise floor.
func diff(before, after image.Image) diffResult {
	bb, ab := before.Bounds(), after.Bounds()
	var d diffResult
	d.dimsChanged = bb.Dx() != ab.Dx() || bb.Dy() != ab.Dy()

	w := min(bb.Dx(), ab.Dx())
	h := min(bb.Dy(), ab.Dy())
	if w == 0 || h == 0 {
		return d
	}

	var sumDelta, changedDelta float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			br, bg, bbl, ba := rgba8(before, bb.Min.X+x, bb.Min.Y+y)
			ar, ag, abl, aa := rgba8(after, ab.Min.X+x, ab.Min.Y+y)

			if ba < 255 {
				d.alphaBefore++
			}
			if aa < 255 {
				d.alphaAfter++
			}

			dr := math.Abs(float64(br) - float64(ar))
			dg := math.Abs(float64(bg) - float64(ag))
			db := math.Abs(float64(bbl) - float64(abl))
			da := math.Abs(float64(ba) - float64(aa))
			pd := math.Max(math.Max(dr, dg), math.Max(db, da))

			sumDelta += pd
			if pd > d.maxDelta {
				d.maxDelta = pd
			}
			if pd > noiseFloor {
				d.changed++
				changedDelta += pd
			}
		}
	}

	total := w * h
	d.percent = float64(d.changed) / float64(total) * 100
	d.avgDelta = sumDelta / float64(total)
	if d.changed > 0 {
		d.colorShift = changedDelta / float64(d.changed)
	}
	return d
}

func rgba8(img image.Image, x, y int) (uint8, uint8, uint8, uint8) {
	r, g, b, a := img.At(x, y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)
}

// qualityScore bands the verdict: verified expected change scores high, an
// unverifiable or warned result scores mid, a failed check scores low.
func qualityScore(res types.ResultValidation) float64 {
	if !res.Success {
		return 10
	}
	score := 80.0
	if res.SignificantChange {
		score += 15
	}
	score -= 15 * float64(len(res.Warnings))
	return math.Max(0, math.Min(100, score))
}
