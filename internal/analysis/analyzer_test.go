package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeTestPNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, encodePNG(t, img), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func twoColorImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetNRGBA(x, y, color.NRGBA{R: 0x33, G: 0x66, B: 0xff, A: 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 255})
			}
		}
	}
	return img
}

func TestDeltaEIdentity(t *testing.T) {
	colors := [][3]uint8{{0, 0, 0}, {255, 255, 255}, {0x33, 0x66, 0xff}, {128, 64, 200}}
	for _, c := range colors {
		lab := RGBToLab(c[0], c[1], c[2])
		if d := DeltaE(lab, lab); d != 0 {
			t.Errorf("DeltaE(lab, lab) = %v for %v, want 0", d, c)
		}
	}
}

func TestLabRoundTrip(t *testing.T) {
	for r := 0; r <= 255; r += 51 {
		for g := 0; g <= 255; g += 51 {
			for b := 0; b <= 255; b += 51 {
				lab := RGBToLab(uint8(r), uint8(g), uint8(b))
				rr, gg, bb := LabToRGB(lab)
				if abs8(rr, uint8(r)) > 2 || abs8(gg, uint8(g)) > 2 || abs8(bb, uint8(b)) > 2 {
					t.Errorf("round trip (%d,%d,%d) -> (%d,%d,%d)", r, g, b, rr, gg, bb)
				}
			}
		}
	}
}

func abs8(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		return -d
	}
	return d
}

func TestParseHexColor(t *testing.T) {
	r, g, b, err := ParseHexColor("#3366ff")
	if err != nil || r != 0x33 || g != 0x66 || b != 0xff {
		t.Errorf("ParseHexColor(#3366ff) = %d,%d,%d, %v", r, g, b, err)
	}
	for _, bad := range []string{"", "3366ff", "#33f", "#zzzzzz", "#3366ff00"} {
		if _, _, _, err := ParseHexColor(bad); err == nil {
			t.Errorf("ParseHexColor(%q) should fail", bad)
		}
	}
	if got := HexColor(0x33, 0x66, 0xff); got != "#3366ff" {
		t.Errorf("HexColor = %q", got)
	}
}

func TestAnalyzeFallback(t *testing.T) {
	a := NewAnalyzer()
	img := a.Analyze(context.Background(), "/does/not/exist.png", Options{})

	if img.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", img.Confidence)
	}
	// Confidence 0 implies every other numeric field is a fallback zero.
	if img.Width != 0 || img.Height != 0 || img.SharpnessScore != 0 {
		t.Errorf("fallback carries measurements: %+v", img)
	}
	if img.AspectRatio != "0:0" {
		t.Errorf("aspect ratio = %q, want 0:0", img.AspectRatio)
	}
}

func TestAnalyzeTwoColorImage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "two.png", twoColorImage(200, 100))

	a := NewAnalyzer()
	img := a.Analyze(context.Background(), path, Options{})

	if img.Confidence != 100 {
		t.Fatalf("confidence = %v, want 100", img.Confidence)
	}
	if img.Width != 200 || img.Height != 100 {
		t.Errorf("dimensions = %dx%d", img.Width, img.Height)
	}
	if img.AspectRatio != "2:1" {
		t.Errorf("aspect ratio = %q, want 2:1", img.AspectRatio)
	}
	if img.Format != "png" {
		t.Errorf("format = %q", img.Format)
	}
	if img.HasTransparency {
		t.Error("fully opaque image flagged transparent")
	}
	if img.ColorDepth != 24 {
		t.Errorf("color depth = %d, want 24", img.ColorDepth)
	}

	// Both halves must surface as dominant colors, most prominent first.
	hexes := map[string]float64{}
	for _, c := range img.DominantColors {
		hexes[c.Hex] = c.Percentage
	}
	if _, ok := hexes["#3366ff"]; !ok {
		t.Errorf("dominant colors %v missing #3366ff", hexes)
	}
	if _, ok := hexes["#ffffff"]; !ok {
		t.Errorf("dominant colors %v missing #ffffff", hexes)
	}
	var sum float64
	for _, p := range hexes {
		sum += p
	}
	if sum < 95 || sum > 105 {
		t.Errorf("percentages sum to %.1f, want about 100", sum)
	}
}

func TestAnalyzeTransparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			a := uint8(255)
			if x < 8 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 200, B: 30, A: a})
		}
	}

	got := NewAnalyzer().AnalyzeBytes(encodePNG(t, img), Options{})
	if !got.HasTransparency {
		t.Error("transparent region not detected")
	}
	if got.ColorDepth != 32 {
		t.Errorf("color depth = %d, want 32", got.ColorDepth)
	}
}

func TestAnalyzeDataURI(t *testing.T) {
	data := encodePNG(t, twoColorImage(16, 16))
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	img := NewAnalyzer().Analyze(context.Background(), uri, Options{})
	if img.Confidence != 100 || img.Width != 16 {
		t.Errorf("data URI analysis = confidence %v, width %d", img.Confidence, img.Width)
	}
}

func TestAspectRatioReduction(t *testing.T) {
	tests := []struct {
		w, h int
		want string
	}{
		{1920, 1080, "16:9"},
		{800, 600, "4:3"},
		{100, 100, "1:1"},
		{640, 480, "4:3"},
		{7, 5, "7:5"},
	}
	for _, tt := range tests {
		if got := aspectRatio(tt.w, tt.h); got != tt.want {
			t.Errorf("aspectRatio(%d, %d) = %q, want %q", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestPrintReadiness(t *testing.T) {
	// High DPI, large, sharp: ready, no issues.
	ready, wIn, hIn, issues := printReadiness(3000, 3000, 300, 80)
	if !ready || len(issues) != 0 {
		t.Errorf("ready = %v, issues = %v", ready, issues)
	}
	if math.Abs(wIn-10) > 0.01 || math.Abs(hIn-10) > 0.01 {
		t.Errorf("printable size = %.1fx%.1f inches, want 10x10", wIn, hIn)
	}

	// Unknown DPI defaults to 72, which fails the 300 DPI clause.
	ready, _, _, issues = printReadiness(3000, 3000, 0, 80)
	if ready || len(issues) == 0 {
		t.Errorf("default DPI should fail: ready=%v issues=%v", ready, issues)
	}

	// Soft image fails the sharpness clause even at print DPI.
	ready, _, _, issues = printReadiness(3000, 3000, 300, 20)
	if ready {
		t.Error("blurry image flagged print ready")
	}
	found := false
	for _, is := range issues {
		if len(is) > 0 {
			found = true
		}
	}
	if !found {
		t.Error("failing clause not recorded")
	}
}

func TestSampleHasColor(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "solid.png", twoColorImage(40, 40))
	a := NewAnalyzer()

	if !a.SampleHasColor(context.Background(), path, 0x33, 0x66, 0xff, 10) {
		t.Error("present color not found")
	}
	if a.SampleHasColor(context.Background(), path, 0xaa, 0x00, 0xaa, 10) {
		t.Error("absent color reported present")
	}
	if a.SampleHasColor(context.Background(), "/does/not/exist.png", 1, 2, 3, 10) {
		t.Error("unloadable image must report false")
	}
}

func TestUniqueColorEstimateBounds(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "two.png", twoColorImage(64, 64))

	img := NewAnalyzer().Analyze(context.Background(), path, Options{})
	if img.UniqueColors < 1 || img.UniqueColors > 64*64 {
		t.Errorf("unique colors = %d, want within [1, %d]", img.UniqueColors, 64*64)
	}
}
