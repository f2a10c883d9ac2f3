// Package analysis extracts deterministic, verifiable facts from an image:
// dimensions, transparency, dominant colors, sharpness, noise, and print
// readiness. This is the ground truth every LLM-proposed parameter is checked
// against, so everything here must be measured, never guessed.
package analysis

import (
	"context"
	"image"
	"time"

	"pixelnerd/internal/logging"
	"pixelnerd/internal/types"
)

// Options carries caller-supplied metadata the pixel data cannot provide.
type Options struct {
	// DPI is the known pixel density; 0 means unknown (print math defaults
	// to 72). The stdlib decoders do not expose density metadata.
	DPI int
	// MaxColors caps k for dominant-color clustering (default 5, max 9).
	MaxColors int
}

// Analyzer produces ImageAnalysis values. Safe for concurrent use: every
// invocation works on its own sampled pixel buffer.
type Analyzer struct {
	loader *Loader
}

// NewAnalyzer returns an analyzer with its own image loader.
func NewAnalyzer() *Analyzer {
	return &Analyzer{loader: NewLoader()}
}

// Analyze extracts ground truth from the referenced image. It never returns
// an error: on any internal failure it returns the zero-confidence fallback
// object, whose numeric fields are all fallback zeros and must not be treated
// as measurements upstream.
func (a *Analyzer) Analyze(ctx context.Context, ref string, opts Options) types.ImageAnalysis {
	timer := logging.StartTimer(logging.CategoryAnalysis, "Analyze")
	defer timer.Stop()

	img, format, size, err := a.loader.Load(ctx, ref)
	if err != nil {
		logging.Get(logging.CategoryAnalysis).Warn("analysis failed for %q: %v", truncateRef(ref), err)
		return Fallback()
	}
	return a.analyzeImage(img, format, size, opts)
}

// AnalyzeBytes analyzes an in-memory image. Same never-throws contract.
func (a *Analyzer) AnalyzeBytes(data []byte, opts Options) types.ImageAnalysis {
	img, format, err := Decode(data)
	if err != nil {
		logging.Get(logging.CategoryAnalysis).Warn("analysis failed for %d-byte buffer: %v", len(data), err)
		return Fallback()
	}
	return a.analyzeImage(img, format, int64(len(data)), opts)
}

func (a *Analyzer) analyzeImage(img image.Image, format string, size int64, opts Options) types.ImageAnalysis {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return Fallback()
	}

	samples, rate := samplePixels(img)
	if len(samples) == 0 {
		return Fallback()
	}

	maxColors := opts.MaxColors
	if maxColors <= 0 {
		maxColors = 5
	}

	transparent := hasTransparency(samples)
	colorDepth := 24
	if transparent {
		colorDepth = 32
	}

	sharpness := sharpnessScore(img)
	noise := noiseLevel(img)
	ready, wIn, hIn, issues := printReadiness(w, h, opts.DPI, sharpness)

	analysis := types.ImageAnalysis{
		Width:           w,
		Height:          h,
		AspectRatio:     aspectRatio(w, h),
		DPI:             opts.DPI,
		FileSize:        size,
		Format:          format,
		HasTransparency: transparent,
		DominantColors:  dominantColors(samples, maxColors),
		ColorDepth:      colorDepth,
		UniqueColors:    uniqueColorEstimate(samples, rate, w*h),
		SharpnessScore:  sharpness,
		IsBlurry:        sharpness < blurryThreshold,
		NoiseLevel:      noise,
		IsPrintReady:    ready,
		PrintIssues:     issues,

		PrintableWidthInches:  wIn,
		PrintableHeightInches: hIn,

		AnalyzedAt: time.Now(),
		Confidence: 100,
	}

	logging.Analysis("analyzed %dx%d %s: %d dominant colors, sharpness=%.0f noise=%.0f transparent=%v",
		w, h, format, len(analysis.DominantColors), sharpness, noise, transparent)

	return analysis
}

// Fallback is the zero-confidence analysis returned on any failure.
// Confidence 0 implies every other numeric field is a fallback zero.
func Fallback() types.ImageAnalysis {
	return types.ImageAnalysis{
		AspectRatio: "0:0",
		AnalyzedAt:  time.Now(),
		Confidence:  0,
	}
}

// SampleHasColor checks whether target (within tolerance, simplified Delta E
// in LAB) appears among the sampled pixels. Used by the validator's direct
// pixel fallback when the dominant-color palette is inconclusive.
func (a *Analyzer) SampleHasColor(ctx context.Context, ref string, r, g, b uint8, maxDeltaE float64) bool {
	img, _, _, err := a.loader.Load(ctx, ref)
	if err != nil {
		return false
	}
	samples, _ := samplePixels(img)
	target := RGBToLab(r, g, b)
	for _, p := range samples {
		if p.A == 0 {
			continue
		}
		if DeltaE(RGBToLab(p.R, p.G, p.B), target) <= maxDeltaE {
			return true
		}
	}
	return false
}

func truncateRef(ref string) string {
	if len(ref) > 96 {
		return ref[:96] + "..."
	}
	return ref
}
