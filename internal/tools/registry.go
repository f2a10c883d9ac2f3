// Package tools defines the closed enumeration of image-editing tools the LLM
// may invoke: their parameter schemas, their expected operation classes, and
// the executor collaborator that actually runs them.
package tools

import (
	"pixelnerd/internal/types"
)

// OpClass is the operation class a tool's result is validated against.
type OpClass string

const (
	OpTransparencyChange OpClass = "transparency_change"
	OpColorChange        OpClass = "color_change"
	OpQualityEnhancement OpClass = "quality_enhancement"
	OpInfoOnly           OpClass = "info_only"
	OpUnknown            OpClass = "unknown"
)

// Mutating reports whether tools of this class are expected to produce a new
// image (as opposed to returning a data payload).
func (c OpClass) Mutating() bool {
	switch c {
	case OpTransparencyChange, OpColorChange, OpQualityEnhancement:
		return true
	}
	return false
}

// ParamType is the JSON type a parameter value must carry.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// ParamSpec declares one parameter of a tool.
type ParamSpec struct {
	Name        string
	Type        ParamType
	Required    bool
	Description string

	// Enum restricts string values to this set when non-empty.
	Enum []string
	// Min/Max bound numeric values when set.
	Min *float64
	Max *float64
	// HexColor marks string params that must parse as "#rrggbb".
	HexColor bool
}

// ToolSpec declares one tool in the closed enumeration.
type ToolSpec struct {
	Name        string
	Description string
	Class       OpClass
	Params      []ParamSpec
}

// Param looks up a parameter spec by name.
func (t ToolSpec) Param(name string) (ParamSpec, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}

func f(v float64) *float64 { return &v }

// registry is the closed tool enumeration. Order is the order tools are
// advertised to the LLM.
var registry = []ToolSpec{
	{
		Name:        "remove_color",
		Description: "Make every pixel matching the target color transparent, within the given tolerance.",
		Class:       OpTransparencyChange,
		Params: []ParamSpec{
			{Name: "target_color", Type: ParamString, Required: true, HexColor: true, Description: "Hex color to knock out, e.g. #3366ff"},
			{Name: "tolerance", Type: ParamNumber, Required: true, Min: f(0), Max: f(100), Description: "Match tolerance, 0-100"},
		},
	},
	{
		Name:        "remove_background",
		Description: "Remove the image background using the hosted segmentation service.",
		Class:       OpTransparencyChange,
		Params:      nil,
	},
	{
		Name:        "replace_color",
		Description: "Recolor every pixel matching the target color, within the given tolerance.",
		Class:       OpColorChange,
		Params: []ParamSpec{
			{Name: "target_color", Type: ParamString, Required: true, HexColor: true, Description: "Hex color to replace"},
			{Name: "replacement_color", Type: ParamString, Required: true, HexColor: true, Description: "Hex color to paint instead"},
			{Name: "tolerance", Type: ParamNumber, Required: true, Min: f(0), Max: f(100), Description: "Match tolerance, 0-100"},
		},
	},
	{
		Name:        "recolor_dominant",
		Description: "Recolor the Nth dominant color of the image (0-based prominence index).",
		Class:       OpColorChange,
		Params: []ParamSpec{
			{Name: "original_index", Type: ParamInteger, Required: true, Min: f(0), Max: f(8), Description: "Index into the dominant color list"},
			{Name: "new_color", Type: ParamString, Required: true, HexColor: true, Description: "Replacement hex color"},
		},
	},
	{
		Name:        "upscale_image",
		Description: "Upscale the image by an integer factor using the hosted enhancement service.",
		Class:       OpQualityEnhancement,
		Params: []ParamSpec{
			{Name: "scale_factor", Type: ParamNumber, Required: true, Min: f(1), Max: f(10), Description: "Linear scale factor"},
		},
	},
	{
		Name:        "crop_region",
		Description: "Crop the image to the given rectangle.",
		Class:       OpColorChange,
		Params: []ParamSpec{
			{Name: "x", Type: ParamInteger, Required: true, Min: f(0), Description: "Left edge, pixels"},
			{Name: "y", Type: ParamInteger, Required: true, Min: f(0), Description: "Top edge, pixels"},
			{Name: "width", Type: ParamInteger, Required: true, Min: f(1), Description: "Crop width, pixels"},
			{Name: "height", Type: ParamInteger, Required: true, Min: f(1), Description: "Crop height, pixels"},
		},
	},
	{
		Name:        "blend_texture",
		Description: "Blend a texture image over the current image.",
		Class:       OpColorChange,
		Params: []ParamSpec{
			{Name: "texture_url", Type: ParamString, Required: true, Description: "URL of the texture image"},
			{Name: "opacity", Type: ParamNumber, Required: true, Min: f(0), Max: f(1), Description: "Blend opacity, 0-1"},
			{Name: "blend_mode", Type: ParamString, Required: false, Enum: []string{"multiply", "overlay", "soft_light"}, Description: "Blend mode (default multiply)"},
		},
	},
	{
		Name:        "extract_palette",
		Description: "Extract the dominant color palette without modifying the image.",
		Class:       OpInfoOnly,
		Params: []ParamSpec{
			{Name: "color_count", Type: ParamInteger, Required: false, Min: f(1), Max: f(9), Description: "Palette size (default 5)"},
		},
	},
	{
		Name:        "get_image_info",
		Description: "Report the measured image facts without modifying the image.",
		Class:       OpInfoOnly,
		Params:      nil,
	},
}

// Spec returns the tool spec for name, or false for tools outside the closed
// enumeration (the LLM may propose arbitrary names; the validator rejects them).
func Spec(name string) (ToolSpec, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSpec{}, false
}

// ClassOf maps a tool name to its operation class, OpUnknown for strangers.
func ClassOf(name string) OpClass {
	if t, ok := Spec(name); ok {
		return t.Class
	}
	return OpUnknown
}

// Names lists the closed enumeration in advertised order.
func Names() []string {
	out := make([]string, len(registry))
	for i, t := range registry {
		out[i] = t.Name
	}
	return out
}

// Definitions renders the registry as LLM tool definitions (JSON Schema).
func Definitions() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, len(registry))
	for i, t := range registry {
		props := make(map[string]interface{}, len(t.Params))
		var required []string
		for _, p := range t.Params {
			prop := map[string]interface{}{
				"type":        string(p.Type),
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			if p.Min != nil {
				prop["minimum"] = *p.Min
			}
			if p.Max != nil {
				prop["maximum"] = *p.Max
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schema := map[string]interface{}{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		defs[i] = types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return defs
}
