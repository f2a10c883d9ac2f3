package analysis

import (
	"image"
	"math"
	"math/rand"
)

// Sharpness thresholds. IsBlurry trips below blurryThreshold; print readiness
// applies its own >= 40 clause independently.
const (
	blurryThreshold = 30.0
	// laplacianScale maps Laplacian variance onto the 0-100 score band.
	laplacianScale = 10.0
)

// Sharpness exposes the focus measure for before/after comparison of
// enhancement results.
func Sharpness(img image.Image) float64 {
	return sharpnessScore(img)
}

// sharpnessScore measures focus via the variance of a discrete Laplacian over
// the central 10-90% region of each axis (edges excluded to avoid border
// artifacts). Returns a 0-100 score.
func sharpnessScore(img image.Image) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 4 || h < 4 {
		return 0
	}

	region := image.Rect(
		bounds.Min.X+w/10, bounds.Min.Y+h/10,
		bounds.Min.X+w*9/10, bounds.Min.Y+h*9/10,
	)
	gray := grayscaleRegion(img, region)
	if len(gray) < 3 || len(gray[0]) < 3 {
		return 0
	}

	var sum, sumSq float64
	var n int
	for y := 1; y < len(gray)-1; y++ {
		for x := 1; x < len(gray[y])-1; x++ {
			// 4-neighbor discrete Laplacian.
			lap := 4*gray[y][x] - gray[y-1][x] - gray[y+1][x] - gray[y][x-1] - gray[y][x+1]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	if variance < 0 {
		variance = 0
	}

	score := variance / laplacianScale
	if score > 100 {
		score = 100
	}
	return score
}

// Noise estimation parameters.
const (
	noisePatches   = 16
	noisePatchSize = 8
	// noiseScale maps mean patch variance onto the 0-100 band.
	noiseScale = 5.0
)

// noiseLevel estimates sensor/compression noise by averaging the luminance
// variance of small random patches. The RNG is seeded from the image
// dimensions so repeated analyses of the same image agree.
func noiseLevel(img image.Image) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < noisePatchSize || h < noisePatchSize {
		return 0
	}

	rng := rand.New(rand.NewSource(int64(w)<<20 | int64(h)))

	var totalVar float64
	for i := 0; i < noisePatches; i++ {
		px := bounds.Min.X + rng.Intn(w-noisePatchSize+1)
		py := bounds.Min.Y + rng.Intn(h-noisePatchSize+1)
		patch := grayscaleRegion(img, image.Rect(px, py, px+noisePatchSize, py+noisePatchSize))

		var sum, sumSq float64
		var n int
		for _, row := range patch {
			for _, v := range row {
				sum += v
				sumSq += v * v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		v := sumSq/float64(n) - mean*mean
		if v > 0 {
			totalVar += v
		}
	}

	level := (totalVar / noisePatches) / noiseScale
	return math.Min(100, level)
}
