package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixelnerd/internal/types"
)

func TestSpecLookup(t *testing.T) {
	for _, name := range Names() {
		if _, ok := Spec(name); !ok {
			t.Errorf("registered tool %q not found by Spec", name)
		}
	}
	if _, ok := Spec("imagine_new_pixels"); ok {
		t.Error("unknown tool resolved")
	}
	if ClassOf("imagine_new_pixels") != OpUnknown {
		t.Error("unknown tool should class as OpUnknown")
	}
}

func TestClassMapping(t *testing.T) {
	tests := []struct {
		tool string
		want OpClass
	}{
		{"remove_color", OpTransparencyChange},
		{"remove_background", OpTransparencyChange},
		{"replace_color", OpColorChange},
		{"recolor_dominant", OpColorChange},
		{"upscale_image", OpQualityEnhancement},
		{"crop_region", OpColorChange},
		{"blend_texture", OpColorChange},
		{"extract_palette", OpInfoOnly},
		{"get_image_info", OpInfoOnly},
	}
	for _, tt := range tests {
		if got := ClassOf(tt.tool); got != tt.want {
			t.Errorf("ClassOf(%s) = %s, want %s", tt.tool, got, tt.want)
		}
	}
	if OpInfoOnly.Mutating() {
		t.Error("info tools must not count as mutating")
	}
	if !OpTransparencyChange.Mutating() {
		t.Error("transparency tools must count as mutating")
	}
}

func TestDefinitionsSchema(t *testing.T) {
	defs := Definitions()
	if len(defs) != len(Names()) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(Names()))
	}

	byName := map[string]types.ToolDefinition{}
	for _, d := range defs {
		byName[d.Name] = d
	}

	rc := byName["remove_color"]
	props, ok := rc.InputSchema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("remove_color schema has no properties: %v", rc.InputSchema)
	}
	tol, ok := props["tolerance"].(map[string]interface{})
	if !ok {
		t.Fatal("tolerance property missing")
	}
	if tol["minimum"] != 0.0 || tol["maximum"] != 100.0 {
		t.Errorf("tolerance bounds = %v..%v", tol["minimum"], tol["maximum"])
	}
	req, _ := rc.InputSchema["required"].([]string)
	if len(req) != 2 {
		t.Errorf("remove_color required = %v", req)
	}

	bt := byName["blend_texture"]
	btProps := bt.InputSchema["properties"].(map[string]interface{})
	mode := btProps["blend_mode"].(map[string]interface{})
	enum, _ := mode["enum"].([]string)
	if len(enum) != 3 {
		t.Errorf("blend_mode enum = %v", enum)
	}

	// The whole set must survive JSON encoding for the LLM request body.
	if _, err := json.Marshal(defs); err != nil {
		t.Fatalf("definitions not JSON-encodable: %v", err)
	}
}

func TestHTTPExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tools/remove_color":
			var req executeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatal(err)
			}
			if req.ImageRef != "input.png" {
				t.Errorf("image ref = %q", req.ImageRef)
			}
			json.NewEncoder(w).Encode(executeResponse{ImageRef: "output.png"})
		case "/tools/get_image_info":
			json.NewEncoder(w).Encode(executeResponse{Data: map[string]interface{}{"width": 800.0}})
		case "/tools/upscale_image":
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(executeResponse{Error: "upstream enhancement service down"})
		}
	}))
	defer srv.Close()

	e := NewHTTPExecutor(srv.URL, 5*time.Second)
	ctx := context.Background()

	out, err := e.Execute(ctx, types.ToolCall{Name: "remove_color", Input: map[string]interface{}{
		"target_color": "#3366ff", "tolerance": 30.0,
	}}, "input.png")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.ImageRef != "output.png" {
		t.Errorf("image ref = %q", out.ImageRef)
	}

	out, err = e.Execute(ctx, types.ToolCall{Name: "get_image_info"}, "input.png")
	if err != nil {
		t.Fatalf("Execute info: %v", err)
	}
	if out.Data["width"] != 800.0 {
		t.Errorf("data = %v", out.Data)
	}

	if _, err := e.Execute(ctx, types.ToolCall{Name: "upscale_image", Input: map[string]interface{}{
		"scale_factor": 2.0,
	}}, "input.png"); err == nil {
		t.Fatal("server error must surface")
	}

	if _, err := e.Execute(ctx, types.ToolCall{Name: "not_a_tool"}, "input.png"); err == nil {
		t.Fatal("unknown tool must be refused before any request")
	}
}
