// Package validation checks LLM-proposed tool arguments against the measured
// image ground truth before anything is allowed to execute. Validation runs
// in two phases: a schema phase (types, ranges, enums) and a semantic phase
// (does the argument make sense for THIS image). Schema failures and
// grounding failures are both fatal to the call; heuristic mismatches only
// cost confidence.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"pixelnerd/internal/analysis"
	"pixelnerd/internal/logging"
	"pixelnerd/internal/tools"
	"pixelnerd/internal/types"
)

const (
	// hallucinationDeltaE is the maximum simplified Delta E at which a
	// requested color is considered present among the dominant colors.
	hallucinationDeltaE = 25.0

	// defaultMaxUpscalePixels caps the output area of upscale_image.
	defaultMaxUpscalePixels = 67108864 // 8192 x 8192

	// warningDeduction is the proportional confidence cost per warning.
	warningDeduction = 0.15

	noisyImage = 40.0 // NoiseLevel above this counts as noisy
	cleanImage = 10.0 // NoiseLevel below this counts as clean
)

// ColorSampler is the fallback ground-truth probe used when a requested color
// is not among the dominant colors: sample the actual pixels.
type ColorSampler interface {
	SampleHasColor(ctx context.Context, ref string, r, g, b uint8, maxDeltaE float64) bool
}

// Validator checks proposed tool calls against image ground truth.
type Validator struct {
	sampler          ColorSampler
	maxUpscalePixels int
}

// NewValidator builds a validator. A nil sampler disables the direct-pixel
// fallback; dominant colors alone then decide color grounding.
func NewValidator(sampler ColorSampler) *Validator {
	return &Validator{sampler: sampler, maxUpscalePixels: defaultMaxUpscalePixels}
}

// SetMaxUpscalePixels overrides the upscale output-area cap. Non-positive
// values are ignored.
func (v *Validator) SetMaxUpscalePixels(n int) {
	if n > 0 {
		v.maxUpscalePixels = n
	}
}

// checkState accumulates the verdict while the phases run.
type checkState struct {
	warnings  []string
	errors    []string
	reasoning []string
}

func (s *checkState) warn(format string, args ...interface{}) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

func (s *checkState) fail(format string, args ...interface{}) {
	s.errors = append(s.errors, fmt.Sprintf(format, args...))
}

func (s *checkState) trace(format string, args ...interface{}) {
	s.reasoning = append(s.reasoning, fmt.Sprintf(format, args...))
}

func (s *checkState) result() types.ValidationResult {
	res := types.ValidationResult{
		IsValid:    len(s.errors) == 0,
		Warnings:   s.warnings,
		Errors:     s.errors,
		Reasoning:  s.reasoning,
		Confidence: 100,
	}
	if !res.IsValid {
		res.Confidence = 0
		return res
	}
	for range s.warnings {
		res.Confidence *= 1 - warningDeduction
	}
	res.Confidence = math.Round(res.Confidence)
	return res
}

// Validate runs both phases against the proposed call. imageRef is the image
// the call would operate on, used only for the direct-pixel color fallback.
// history holds past similar successful executions retrieved from the store;
// pass nil when none are available.
func (v *Validator) Validate(ctx context.Context, call types.ToolCall, img types.ImageAnalysis, imageRef string, history []types.ToolExecution) types.ValidationResult {
	st := &checkState{}

	spec, ok := tools.Spec(call.Name)
	if !ok {
		st.trace("schema: tool name lookup: %q is not a known tool", call.Name)
		st.fail("unknown tool %q", call.Name)
		return st.result()
	}
	st.trace("schema: tool name lookup: %s recognized (class %s)", spec.Name, spec.Class)

	v.schemaPhase(st, spec, call.Input)
	if len(st.errors) > 0 {
		logging.Validation("%s rejected in schema phase: %v", call.Name, st.errors)
		return st.result()
	}
	st.trace("schema: all parameters well-formed")

	v.semanticPhase(ctx, st, spec, call.Input, img, imageRef, history)

	res := st.result()
	logging.Validation("%s validated: valid=%v confidence=%.0f warnings=%d",
		call.Name, res.IsValid, res.Confidence, len(res.Warnings))
	return res
}

// ===== SCHEMA PHASE =====

func (v *Validator) schemaPhase(st *checkState, spec tools.ToolSpec, params map[string]interface{}) {
	for _, p := range spec.Params {
		raw, present := params[p.Name]
		if !present {
			if p.Required {
				st.trace("schema: %s: missing", p.Name)
				st.fail("missing required parameter %q", p.Name)
			}
			continue
		}
		switch p.Type {
		case tools.ParamString:
			s, ok := raw.(string)
			if !ok {
				st.trace("schema: %s: wrong type %T", p.Name, raw)
				st.fail("parameter %q must be a string, got %T", p.Name, raw)
				continue
			}
			if len(p.Enum) > 0 && !contains(p.Enum, s) {
				st.trace("schema: %s: %q not in enum", p.Name, s)
				st.fail("parameter %q must be one of %v, got %q", p.Name, p.Enum, s)
				continue
			}
			if p.HexColor {
				if _, _, _, err := analysis.ParseHexColor(s); err != nil {
					st.trace("schema: %s: not a hex color", p.Name)
					st.fail("parameter %q must be a hex color like #rrggbb, got %q", p.Name, s)
					continue
				}
			}
			st.trace("schema: %s: ok", p.Name)
		case tools.ParamNumber, tools.ParamInteger:
			n, ok := asNumber(raw)
			if !ok {
				st.trace("schema: %s: wrong type %T", p.Name, raw)
				st.fail("parameter %q must be a number, got %T", p.Name, raw)
				continue
			}
			if p.Type == tools.ParamInteger && n != math.Trunc(n) {
				st.trace("schema: %s: not an integer", p.Name)
				st.fail("parameter %q must be an integer, got %v", p.Name, raw)
				continue
			}
			if p.Min != nil && n < *p.Min {
				st.trace("schema: %s: below minimum", p.Name)
				st.fail("parameter %q is below the minimum %v (got %v)", p.Name, *p.Min, n)
				continue
			}
			if p.Max != nil && n > *p.Max {
				st.trace("schema: %s: above maximum", p.Name)
				st.fail("parameter %q is above the maximum %v (got %v)", p.Name, *p.Max, n)
				continue
			}
			st.trace("schema: %s: ok", p.Name)
		case tools.ParamBoolean:
			if _, ok := raw.(bool); !ok {
				st.trace("schema: %s: wrong type %T", p.Name, raw)
				st.fail("parameter %q must be a boolean, got %T", p.Name, raw)
				continue
			}
			st.trace("schema: %s: ok", p.Name)
		}
	}

	for name := range params {
		if _, ok := spec.Param(name); !ok {
			st.trace("schema: %s: not in the tool's schema", name)
			st.warn("parameter %q is not recognized by %s and will be ignored", name, spec.Name)
		}
	}
}

// ===== SEMANTIC PHASE =====

func (v *Validator) semanticPhase(ctx context.Context, st *checkState, spec tools.ToolSpec, params map[string]interface{}, img types.ImageAnalysis, imageRef string, history []types.ToolExecution) {
	if img.Confidence == 0 {
		st.trace("semantic: image analysis unavailable, grounding checks skipped")
		st.warn("image analysis failed; parameters could not be checked against the actual image")
		return
	}

	switch spec.Name {
	case "remove_color", "replace_color":
		v.checkColorExists(ctx, st, params, "target_color", img, imageRef)
		v.checkTolerance(st, params, img, history)
	case "recolor_dominant":
		v.checkDominantIndex(st, params, img)
	case "upscale_image":
		v.checkUpscale(st, params, img)
	case "crop_region":
		v.checkCrop(st, params, img)
	case "blend_texture":
		st.trace("semantic: blend_texture has no ground-truth checks")
	case "remove_background":
		st.trace("semantic: remove_background has no parameter checks")
	case "extract_palette", "get_image_info":
		st.trace("semantic: %s is read-only, nothing to ground", spec.Name)
	}

	if spec.Class == tools.OpTransparencyChange && img.Format == "jpeg" {
		st.trace("semantic: format check: jpeg cannot carry alpha")
		st.warn("source format %q does not support transparency; the result must be re-encoded", img.Format)
	} else if spec.Class == tools.OpTransparencyChange {
		st.trace("semantic: format check: %s supports alpha", img.Format)
	}
}

// checkColorExists verifies the requested color is actually in the image.
// Dominant colors answer first; a direct pixel sample is the fallback for
// colors too minor to make the dominant list.
func (v *Validator) checkColorExists(ctx context.Context, st *checkState, params map[string]interface{}, field string, img types.ImageAnalysis, imageRef string) {
	hex, _ := params[field].(string)
	r, g, b, err := analysis.ParseHexColor(hex)
	if err != nil {
		return // schema phase already vouched for the format
	}

	want := analysis.RGBToLab(r, g, b)
	best := math.MaxFloat64
	for _, dc := range img.DominantColors {
		d := analysis.DeltaE(want, analysis.RGBToLab(dc.R, dc.G, dc.B))
		if d < best {
			best = d
		}
	}
	if best <= hallucinationDeltaE {
		st.trace("semantic: %s %s matched a dominant color (deltaE %.1f)", field, hex, best)
		return
	}

	if v.sampler != nil && imageRef != "" {
		if v.sampler.SampleHasColor(ctx, imageRef, r, g, b, hallucinationDeltaE) {
			st.trace("semantic: %s %s not dominant but found by pixel sampling", field, hex)
			st.warn("color %s is present but rare; the edit may affect very few pixels", hex)
			return
		}
	}

	st.trace("semantic: %s %s not found in image (closest dominant deltaE %.1f)", field, hex, best)
	st.fail("hallucinated color: %s does not appear in the image", hex)
}

// checkTolerance cross-checks the proposed tolerance against measured noise
// and against the tolerances that worked on similar images before.
func (v *Validator) checkTolerance(st *checkState, params map[string]interface{}, img types.ImageAnalysis, history []types.ToolExecution) {
	tol, ok := asNumber(params["tolerance"])
	if !ok {
		return
	}

	switch {
	case img.NoiseLevel >= noisyImage && tol < 15:
		st.trace("semantic: tolerance %.0f vs noise %.0f: too tight", tol, img.NoiseLevel)
		st.warn("tolerance %.0f is tight for a noisy image (noise level %.0f); matching may miss pixels", tol, img.NoiseLevel)
	case img.NoiseLevel <= cleanImage && tol > 60:
		st.trace("semantic: tolerance %.0f vs noise %.0f: too loose", tol, img.NoiseLevel)
		st.warn("tolerance %.0f is loose for a clean image (noise level %.0f); matching may bleed into other colors", tol, img.NoiseLevel)
	default:
		st.trace("semantic: tolerance %.0f reasonable for noise level %.0f", tol, img.NoiseLevel)
	}

	v.checkHistoryBias(st, "tolerance", tol, history)
}

// checkHistoryBias compares a proposed numeric parameter against the mean of
// past successful values for similar images. Far-off proposals earn a warning;
// the reasoning always names how much history was consulted.
func (v *Validator) checkHistoryBias(st *checkState, field string, proposed float64, history []types.ToolExecution) {
	if len(history) == 0 {
		return
	}
	var sum float64
	var n int
	for _, h := range history {
		if val, ok := asNumber(h.Parameters[field]); ok {
			sum += val
			n++
		}
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	st.trace("semantic: consulted %d past successful executions (store), historical mean %s %.1f", n, field, mean)
	if math.Abs(proposed-mean) > 25 {
		st.warn("%s %.0f is far from the value that worked on similar images before (%.0f, from %d past executions)", field, proposed, mean, n)
	}
}

func (v *Validator) checkDominantIndex(st *checkState, params map[string]interface{}, img types.ImageAnalysis) {
	idx, ok := asNumber(params["original_index"])
	if !ok {
		return
	}
	n := len(img.DominantColors)
	if int(idx) >= n {
		st.trace("semantic: original_index %d out of bounds (image has %d dominant colors)", int(idx), n)
		st.fail("original_index %d is out of bounds: the image has only %d dominant colors", int(idx), n)
		return
	}
	st.trace("semantic: original_index %d targets %s", int(idx), img.DominantColors[int(idx)].Hex)
}

func (v *Validator) checkUpscale(st *checkState, params map[string]interface{}, img types.ImageAnalysis) {
	scale, ok := asNumber(params["scale_factor"])
	if !ok {
		return
	}
	outArea := float64(img.Width) * scale * float64(img.Height) * scale
	if outArea > float64(v.maxUpscalePixels) {
		st.trace("semantic: upscale output area %.0f exceeds cap", outArea)
		st.fail("scale_factor %v would produce %.0f pixels, above the maximum output area of %d", scale, outArea, v.maxUpscalePixels)
		return
	}
	st.trace("semantic: upscale output area %.0f within cap", outArea)

	if img.IsBlurry {
		st.warn("the image is already blurry (sharpness %.0f); upscaling will magnify the blur", img.SharpnessScore)
	}
	if img.NoiseLevel >= noisyImage {
		st.warn("the image is noisy (level %.0f); upscaling will magnify the noise", img.NoiseLevel)
	}
	if scale >= 4 && img.Width*img.Height < 256*256 {
		st.warn("scale factor %v is aggressive for a %dx%d source", scale, img.Width, img.Height)
	}
}

func (v *Validator) checkCrop(st *checkState, params map[string]interface{}, img types.ImageAnalysis) {
	x, _ := asNumber(params["x"])
	y, _ := asNumber(params["y"])
	w, _ := asNumber(params["width"])
	h, _ := asNumber(params["height"])

	if int(x) >= img.Width || int(y) >= img.Height {
		st.trace("semantic: crop origin (%d,%d) outside %dx%d image", int(x), int(y), img.Width, img.Height)
		st.fail("crop origin (%d, %d) lies outside the %dx%d image", int(x), int(y), img.Width, img.Height)
		return
	}
	if int(x)+int(w) > img.Width || int(y)+int(h) > img.Height {
		st.trace("semantic: crop rect extends past %dx%d image", img.Width, img.Height)
		st.fail("crop region (%d, %d, %dx%d) extends past the %dx%d image bounds", int(x), int(y), int(w), int(h), img.Width, img.Height)
		return
	}
	st.trace("semantic: crop rect (%d,%d %dx%d) within bounds", int(x), int(y), int(w), int(h))
}

// ===== HELPERS =====

// asNumber normalizes the numeric types that JSON decoding and LLM SDKs
// produce into a float64.
func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
