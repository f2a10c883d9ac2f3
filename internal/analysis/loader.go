package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	// Decoders for the accepted input formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"pixelnerd/internal/logging"
)

// maxImageBytes bounds how much image data we will pull from any source.
const maxImageBytes = 64 << 20 // 64 MiB

// Loader fetches and decodes images from any of the supported source forms:
// a local file path, an http(s) URL, or an embedded data URI. All three go
// through the same decode path so callers never care where the bytes came from.
type Loader struct {
	httpClient *http.Client
}

// NewLoader returns a loader with a bounded HTTP client.
func NewLoader() *Loader {
	return &Loader{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Load resolves ref and decodes it into an image.
// Returns the decoded image, the format name, and the byte size.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, string, int64, error) {
	data, err := l.Fetch(ctx, ref)
	if err != nil {
		return nil, "", 0, err
	}
	img, format, err := Decode(data)
	if err != nil {
		return nil, "", int64(len(data)), err
	}
	return img, format, int64(len(data)), nil
}

// Fetch resolves ref into raw bytes without decoding.
func (l *Loader) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "":
		return nil, fmt.Errorf("empty image reference")
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetchURL(ctx, ref)
	default:
		return readFile(ref)
	}
}

// Decode decodes raw image bytes using the registered stdlib decoders.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

func (l *Loader) fetchURL(ctx context.Context, url string) ([]byte, error) {
	timer := logging.StartTimer(logging.CategoryAnalysis, "Loader.fetchURL")
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d for %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	return data, nil
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if info.Size() > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// decodeDataURI handles "data:image/png;base64,...." references.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI: no comma separator")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.Contains(meta, "base64") {
		return nil, fmt.Errorf("unsupported data URI encoding (only base64)")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI payload: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	return data, nil
}
