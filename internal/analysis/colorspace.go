package analysis

import (
	"fmt"
	"math"
)

// Lab is a color in CIE L*a*b* space (D65 reference white).
type Lab struct {
	L float64
	A float64
	B float64
}

// RGBToLab converts an sRGB color to CIE L*a*b* via linearized XYZ.
func RGBToLab(r, g, b uint8) Lab {
	// sRGB -> linear RGB
	rl := srgbToLinear(float64(r) / 255.0)
	gl := srgbToLinear(float64(g) / 255.0)
	bl := srgbToLinear(float64(b) / 255.0)

	// linear RGB -> XYZ (sRGB matrix, D65)
	x := rl*0.4124564 + gl*0.3575761 + bl*0.1804375
	y := rl*0.2126729 + gl*0.7151522 + bl*0.0721750
	z := rl*0.0193339 + gl*0.1191920 + bl*0.9503041

	// XYZ -> Lab, normalized to D65 white point
	fx := labF(x / 0.95047)
	fy := labF(y / 1.00000)
	fz := labF(z / 1.08883)

	return Lab{
		L: 116.0*fy - 16.0,
		A: 500.0 * (fx - fy),
		B: 200.0 * (fy - fz),
	}
}

// LabToRGB converts back to sRGB, clamping out-of-gamut channels.
func LabToRGB(lab Lab) (uint8, uint8, uint8) {
	fy := (lab.L + 16.0) / 116.0
	fx := fy + lab.A/500.0
	fz := fy - lab.B/200.0

	x := 0.95047 * labFInv(fx)
	y := 1.00000 * labFInv(fy)
	z := 1.08883 * labFInv(fz)

	rl := x*3.2404542 + y*-1.5371385 + z*-0.4985314
	gl := x*-0.9692660 + y*1.8760108 + z*0.0415560
	bl := x*0.0556434 + y*-0.2040259 + z*1.0572252

	return linearToSRGB(rl), linearToSRGB(gl), linearToSRGB(bl)
}

// DeltaE returns the distance between two Lab colors.
//
// This is the plain Euclidean distance in LAB space, not the full CIE Delta E
// 2000 weighting. The simplification is deliberate: every confidence threshold
// in the validator was tuned against this metric, so "fixing" it to CIEDE2000
// would silently shift all of them.
func DeltaE(a, b Lab) float64 {
	dl := a.L - b.L
	da := a.A - b.A
	db := a.B - b.B
	return math.Sqrt(dl*dl + da*da + db*db)
}

func srgbToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func linearToSRGB(c float64) uint8 {
	var v float64
	if c <= 0.0031308 {
		v = c * 12.92
	} else {
		v = 1.055*math.Pow(c, 1.0/2.4) - 0.055
	}
	v = math.Round(v * 255.0)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func labF(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta*delta*delta {
		return math.Cbrt(t)
	}
	return t/(3.0*delta*delta) + 4.0/29.0
}

func labFInv(t float64) float64 {
	const delta = 6.0 / 29.0
	if t > delta {
		return t * t * t
	}
	return 3.0 * delta * delta * (t - 4.0/29.0)
}

// ParseHexColor parses "#rrggbb" or "rrggbb" into channels.
func ParseHexColor(s string) (uint8, uint8, uint8, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q: want 6 hex digits", s)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return r, g, b, nil
}

// HexColor renders channels as "#rrggbb".
func HexColor(r, g, b uint8) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
