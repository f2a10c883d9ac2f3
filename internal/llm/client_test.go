package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pixelnerd/internal/config"
	"pixelnerd/internal/types"
)

func testToolDefs() []types.ToolDefinition {
	return []types.ToolDefinition{{
		Name:        "remove_color",
		Description: "Make pixels of a color transparent.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"target_color": map[string]interface{}{"type": "string"},
				"tolerance":    map[string]interface{}{"type": "number"},
			},
			"required": []string{"target_color", "tolerance"},
		},
	}}
}

func TestAnthropicCompleteWithTools(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": "Removing the blue background now."},
				{"type": "tool_use", "id": "toolu_1", "name": "remove_color",
					"input": map[string]interface{}{"target_color": "#3366ff", "tolerance": 30}},
			},
			"stop_reason": "tool_use",
			"usage":       map[string]int{"input_tokens": 120, "output_tokens": 45},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey: "test-key", BaseURL: srv.URL, Model: "test-model", Timeout: 5 * time.Second,
	})
	resp, err := c.CompleteWithTools(context.Background(), "system", "remove the background",
		testToolDefs())
	if err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}

	if gotReq.System != "system" {
		t.Errorf("system prompt = %q", gotReq.System)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Name != "remove_color" {
		t.Errorf("tools not forwarded: %+v", gotReq.Tools)
	}
	if resp.Text != "Removing the blue background now." {
		t.Errorf("text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "toolu_1" || tc.Name != "remove_color" || tc.Input["target_color"] != "#3366ff" {
		t.Errorf("tool call = %+v", tc)
	}
	if resp.Usage.TotalTokens != 165 {
		t.Errorf("total tokens = %d, want 165", resp.Usage.TotalTokens)
	}
}

func TestAnthropicAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second,
	})
	_, err := c.Complete(context.Background(), "hi")
	if err == nil {
		t.Fatal("want error on 429")
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	c := NewAnthropicClient("")
	if _, err := c.Complete(context.Background(), "hi"); err == nil {
		t.Fatal("want error without an API key")
	}
}

func TestOpenAICompleteWithTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]interface{}{
						"role":    "assistant",
						"content": "On it.",
						"tool_calls": []map[string]interface{}{
							{"id": "call_1", "type": "function", "function": map[string]interface{}{
								"name": "remove_color", "arguments": `{"target_color":"#3366ff","tolerance":30}`,
							}},
							{"id": "call_2", "type": "function", "function": map[string]interface{}{
								"name": "upscale_image", "arguments": `{not json`,
							}},
						},
					},
					"finish_reason": "tool_calls",
				},
			},
			"usage": map[string]int{"prompt_tokens": 80, "completion_tokens": 20, "total_tokens": 100},
		})
	}))
	defer srv.Close()

	c := NewOpenAIClientWithConfig(OpenAIConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second,
	})
	resp, err := c.CompleteWithTools(context.Background(), "sys", "user", testToolDefs())
	if err != nil {
		t.Fatalf("CompleteWithTools: %v", err)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].Input["tolerance"] != float64(30) {
		t.Errorf("parsed input = %+v", resp.ToolCalls[0].Input)
	}
	// Malformed arguments become an empty input, not a transport error; the
	// schema validator rejects the call downstream.
	if len(resp.ToolCalls[1].Input) != 0 {
		t.Errorf("malformed arguments should yield empty input, got %+v", resp.ToolCalls[1].Input)
	}
}

func TestFactoryProviders(t *testing.T) {
	cfg := &config.Config{}
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = "k"
	if _, err := NewClient(context.Background(), cfg); err != nil {
		t.Errorf("anthropic: %v", err)
	}

	cfg.LLM.Provider = "openai"
	if _, err := NewClient(context.Background(), cfg); err != nil {
		t.Errorf("openai: %v", err)
	}

	cfg.LLM.Provider = "something-else"
	if _, err := NewClient(context.Background(), cfg); err == nil {
		t.Error("unknown provider must error")
	}
}
