package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pixelnerd/internal/logging"
	"pixelnerd/internal/types"
)

const defaultExecutorTimeout = 120 * time.Second

// HTTPExecutor runs tool calls against the hosted image service. Each call is
// a single POST to {baseURL}/tools/{name} with the image reference and the
// validated arguments; the service replies with a new image reference or a
// data payload.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPExecutor builds an executor for the image service at baseURL.
// A zero timeout falls back to the default.
func NewHTTPExecutor(baseURL string, timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = defaultExecutorTimeout
	}
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	ImageRef string                 `json:"image_ref"`
	Input    map[string]interface{} `json:"input"`
}

type executeResponse struct {
	ImageRef string                 `json:"image_ref,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Execute implements types.ToolExecutor.
func (e *HTTPExecutor) Execute(ctx context.Context, call types.ToolCall, imageRef string) (*types.ToolOutput, error) {
	spec, ok := Spec(call.Name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", call.Name)
	}

	body, err := json.Marshal(executeRequest{ImageRef: imageRef, Input: call.Input})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s request: %w", call.Name, err)
	}

	url := e.baseURL + "/tools/" + call.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", call.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.Tools("executing %s (class=%s)", call.Name, spec.Class)
	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", call.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", call.Name, err)
	}

	if resp.StatusCode != http.StatusOK {
		var er executeResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			return nil, fmt.Errorf("%s failed (HTTP %d): %s", call.Name, resp.StatusCode, er.Error)
		}
		return nil, fmt.Errorf("%s failed (HTTP %d)", call.Name, resp.StatusCode)
	}

	var out executeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", call.Name, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("%s failed: %s", call.Name, out.Error)
	}
	if spec.Class.Mutating() && out.ImageRef == "" {
		return nil, fmt.Errorf("%s returned no image reference", call.Name)
	}

	logging.Tools("%s completed in %v", call.Name, time.Since(start).Round(time.Millisecond))
	return &types.ToolOutput{ImageRef: out.ImageRef, Data: out.Data}, nil
}
