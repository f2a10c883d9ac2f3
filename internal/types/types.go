// Package types provides shared type definitions used across pixelNERD packages.
// This package exists to break import cycles between analysis, validation,
// orchestrator and store. Types here are foundational data structures with no
// complex dependencies.
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// IMAGE ANALYSIS
// =============================================================================

// DominantColor is one cluster from the dominant-color extraction.
type DominantColor struct {
	R          uint8   `json:"r"`
	G          uint8   `json:"g"`
	B          uint8   `json:"b"`
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"` // share of sampled pixels, 0-100
}

// ImageAnalysis is the deterministic ground truth extracted from an image.
// It is produced fresh per Analyze call and never mutated afterwards.
//
// Invariant: Confidence == 0 means analysis failed and every other numeric
// field is a fallback zero. Consumers must never treat fallback values as
// real measurements.
type ImageAnalysis struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	AspectRatio string `json:"aspect_ratio"` // reduced integer ratio, "0:0" only on fallback
	DPI         int    `json:"dpi"`          // 0 = unknown; consumers default to 72
	FileSize    int64  `json:"file_size"`
	Format      string `json:"format"` // "png", "jpeg", "gif", "" on fallback

	HasTransparency bool            `json:"has_transparency"`
	DominantColors  []DominantColor `json:"dominant_colors"` // insertion order = prominence order
	ColorDepth      int             `json:"color_depth"`     // 24 or 32
	UniqueColors    int             `json:"unique_colors"`   // approximate, from quantized sampling

	IsBlurry       bool    `json:"is_blurry"`
	SharpnessScore float64 `json:"sharpness_score"` // 0-100
	NoiseLevel     float64 `json:"noise_level"`     // 0-100

	IsPrintReady          bool     `json:"is_print_ready"`
	PrintIssues           []string `json:"print_issues,omitempty"` // failing clauses, surfaced to the user
	PrintableWidthInches  float64  `json:"printable_width_inches"` // at 300 DPI
	PrintableHeightInches float64  `json:"printable_height_inches"`

	AnalyzedAt time.Time `json:"analyzed_at"`
	Confidence float64   `json:"confidence"` // 0-100, 0 on analysis failure
}

// EffectiveDPI returns the DPI to use for print calculations, defaulting
// unknown density to 72 (screen resolution).
func (a ImageAnalysis) EffectiveDPI() int {
	if a.DPI <= 0 {
		return 72
	}
	return a.DPI
}

// SpecsSnapshot is the subset of an ImageAnalysis persisted with a
// ToolExecution for similarity matching.
type SpecsSnapshot struct {
	Width           int             `json:"width"`
	Height          int             `json:"height"`
	HasTransparency bool            `json:"has_transparency"`
	Format          string          `json:"format"`
	DominantColors  []DominantColor `json:"dominant_colors,omitempty"`
}

// Snapshot extracts the similarity-relevant subset of the analysis.
func (a ImageAnalysis) Snapshot() SpecsSnapshot {
	return SpecsSnapshot{
		Width:           a.Width,
		Height:          a.Height,
		HasTransparency: a.HasTransparency,
		Format:          a.Format,
		DominantColors:  a.DominantColors,
	}
}

// =============================================================================
// TOOL CALLS
// =============================================================================

// ToolDefinition describes a tool that the LLM can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// ToolCall represents a tool invocation requested by the LLM.
// It is never persisted until it has passed validation.
type ToolCall struct {
	ID    string                 `json:"id"`    // Unique ID for this tool use
	Name  string                 `json:"name"`  // Tool name to invoke
	Input map[string]interface{} `json:"input"` // Tool arguments as proposed by the LLM
}

// ToolOutput is what the external tool executor returns: either a new image
// reference (mutating tools) or a structured data payload (info tools).
type ToolOutput struct {
	ImageRef string                 `json:"image_ref,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMToolResponse contains both text response and tool calls from the LLM.
type LLMToolResponse struct {
	Text       string        `json:"text"`        // Text response (may be empty if only tool calls)
	ToolCalls  []ToolCall    `json:"tool_calls"`  // Tool invocations requested by the LLM
	StopReason string        `json:"stop_reason"` // "end_turn", "tool_use", etc.
	Usage      UsageMetadata `json:"usage"`
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationResult is the verdict of the parameter validator for one tool call.
// Created fresh per validation call; never mutated after return.
type ValidationResult struct {
	IsValid    bool     `json:"is_valid"`
	Confidence float64  `json:"confidence"` // 0-100; forced to 0 when any fatal error exists
	Warnings   []string `json:"warnings"`   // non-fatal
	Errors     []string `json:"errors"`     // fatal; non-empty iff IsValid is false
	Reasoning  []string `json:"reasoning"`  // ordered trace of checks performed
}

// ResultMetrics captures what a tool execution actually did to the image.
type ResultMetrics struct {
	PixelsChanged     int     `json:"pixels_changed"`
	PercentageChanged float64 `json:"percentage_changed"`
	ExecutionTimeMs   int64   `json:"execution_time_ms"`
	QualityScore      float64 `json:"quality_score"`
}

// ToolExecution is the persisted record of a successful, high-confidence tool
// run. The store admits it only when Success is true and Confidence >= 70;
// anything below that would poison the learning signal.
type ToolExecution struct {
	ID             string                 `json:"id"`
	ConversationID string                 `json:"conversation_id"`
	ToolName       string                 `json:"tool_name"`
	Parameters     map[string]interface{} `json:"parameters"`
	Success        bool                   `json:"success"`
	Confidence     float64                `json:"confidence"`
	Metrics        ResultMetrics          `json:"metrics"`
	ImageSpecs     SpecsSnapshot          `json:"image_specs"`
	Timestamp      time.Time              `json:"timestamp"`
}

// VisualDifference quantifies the pixel-level delta between two images.
type VisualDifference struct {
	MaxDelta         float64 `json:"max_delta"`          // largest per-channel difference seen
	AvgDelta         float64 `json:"avg_delta"`          // mean per-channel difference over all pixels
	ColorShiftAmount float64 `json:"color_shift_amount"` // mean shift on changed pixels only
}

// ResultValidation scores whether a claimed operation plausibly occurred.
// Ephemeral, one per tool-execution check.
type ResultValidation struct {
	Success           bool             `json:"success"`
	PixelsChanged     int              `json:"pixels_changed"`
	PercentageChanged float64          `json:"percentage_changed"`
	QualityScore      float64          `json:"quality_score"` // 0-100
	SignificantChange bool             `json:"significant_change"`
	VisualDifference  VisualDifference `json:"visual_difference"`
	Warnings          []string         `json:"warnings"`
	Reasoning         []string         `json:"reasoning"`
}

// =============================================================================
// CONVERSATION
// =============================================================================

// ChatMessage is one turn fragment in a conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ConversationContext is the persisted state of one conversation.
type ConversationContext struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []ChatMessage  `json:"messages"`
	LastAnalysis   *ImageAnalysis `json:"last_analysis,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdatedAt  time.Time      `json:"last_updated_at"`
}

// =============================================================================
// TURNS
// =============================================================================

// TurnRequest is one user turn handed to the orchestrator.
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	ImageRef       string `json:"image_ref"` // file path, URL, or data URI
}

// ErrorClass buckets turn-aborting failures so the caller can decide on retry.
type ErrorClass string

const (
	ErrorClassNone          ErrorClass = ""
	ErrorClassRateLimit     ErrorClass = "rate_limit"
	ErrorClassTimeout       ErrorClass = "timeout"
	ErrorClassConfiguration ErrorClass = "configuration"
	ErrorClassUnknown       ErrorClass = "unknown"
)

// ToolOutcome reports one proposed tool call: its validation verdict, whether
// it ran, what it produced, and the post-hoc result check if one was done.
type ToolOutcome struct {
	Call        ToolCall          `json:"call"`
	Validation  ValidationResult  `json:"validation"`
	Executed    bool              `json:"executed"`
	ElapsedMs   int64             `json:"elapsed_ms,omitempty"` // wall time spent in the executor
	Output      *ToolOutput       `json:"output,omitempty"`
	ResultCheck *ResultValidation `json:"result_check,omitempty"`
	Err         string            `json:"error,omitempty"` // human-readable failure reason
}

// Succeeded reports whether this outcome represents a completed, verified call.
func (o ToolOutcome) Succeeded() bool {
	if !o.Executed || o.Err != "" {
		return false
	}
	if o.ResultCheck != nil && !o.ResultCheck.Success {
		return false
	}
	return true
}

// TurnResult is the orchestrator's answer for one turn. The turn is a partial
// success whenever the model responded: individual tool failures are carried
// in ToolOutcomes rather than aborting the turn.
type TurnResult struct {
	TurnID       string         `json:"turn_id"`
	Text         string         `json:"text"`
	ToolOutcomes []ToolOutcome  `json:"tool_outcomes"`
	Confidence   float64        `json:"confidence"` // min over analysis + executed validations
	Analysis     *ImageAnalysis `json:"analysis,omitempty"`
	ErrorClass   ErrorClass     `json:"error_class,omitempty"`
}

// Summary renders a short per-tool report, e.g. "2 of 3 requested edits applied".
func (r TurnResult) Summary() string {
	if len(r.ToolOutcomes) == 0 {
		return "no tool calls"
	}
	ok := 0
	for _, o := range r.ToolOutcomes {
		if o.Succeeded() {
			ok++
		}
	}
	return fmt.Sprintf("%d of %d requested edits applied", ok, len(r.ToolOutcomes))
}
