package analysis

import "fmt"

// Print-readiness thresholds: 300 DPI output, at least 2 inches on each axis,
// and a sharpness floor. These are a conjunction: one failing clause makes
// the image non-print-ready, and each failing clause is surfaced so the user
// is told why.
const (
	printDPI             = 300
	printMinInches       = 2.0
	printSharpnessFloor  = 40.0
	printDefaultDPI      = 72
)

// printReadiness evaluates the print-ready conjunction and returns the
// verdict, the printable dimensions at 300 DPI, and the failing clauses.
func printReadiness(width, height, dpi int, sharpness float64) (ready bool, wInches, hInches float64, issues []string) {
	effective := dpi
	if effective <= 0 {
		effective = printDefaultDPI
	}

	wInches = float64(width) / printDPI
	hInches = float64(height) / printDPI

	if effective < printDPI {
		issues = append(issues, fmt.Sprintf("effective DPI %d is below the %d required for print", effective, printDPI))
	}
	if wInches < printMinInches || hInches < printMinInches {
		issues = append(issues, fmt.Sprintf("printable size %.1fx%.1f inches at %d DPI is below the %.0f inch minimum", wInches, hInches, printDPI, printMinInches))
	}
	if sharpness < printSharpnessFloor {
		issues = append(issues, fmt.Sprintf("sharpness %.0f is below the %.0f floor for print", sharpness, printSharpnessFloor))
	}

	return len(issues) == 0, wInches, hInches, issues
}

// gcd for aspect-ratio reduction.
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// aspectRatio renders the reduced integer ratio, "0:0" only for degenerate
// dimensions (the fallback object).
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "0:0"
	}
	d := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/d, height/d)
}
