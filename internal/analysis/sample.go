package analysis

import (
	"image"
)

// Pixel is one sampled RGBA value. Samples are copied out of the decoded
// image into an owned buffer so the clustering and sharpness passes are pure
// functions with no shared mutable pixel state.
type Pixel struct {
	R, G, B, A uint8
}

// targetSampleCount is the rough number of pixels the sparse sample aims for.
const targetSampleCount = 10000

// samplePixels walks the image on a square stride and copies out RGBA values.
// Returns the samples and the sampling rate (sampled / total), which the
// unique-color estimate uses to extrapolate.
func samplePixels(img image.Image) ([]Pixel, float64) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, 0
	}

	total := w * h
	stride := 1
	for (w/stride)*(h/stride) > targetSampleCount {
		stride++
	}

	samples := make([]Pixel, 0, (w/stride+1)*(h/stride+1))
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
		for x := bounds.Min.X; x < bounds.Max.X; x += stride {
			r, g, b, a := img.At(x, y).RGBA()
			samples = append(samples, Pixel{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: uint8(a >> 8),
			})
		}
	}

	return samples, float64(len(samples)) / float64(total)
}

// luminance returns the perceptual luminance of a pixel on a 0-255 scale.
func luminance(p Pixel) float64 {
	return 0.299*float64(p.R) + 0.587*float64(p.G) + 0.114*float64(p.B)
}

// grayscaleRegion extracts a luminance grid for the given sub-rectangle of
// the image. Used by the Laplacian sharpness pass, which wants a contiguous
// region rather than a sparse sample.
func grayscaleRegion(img image.Image, r image.Rectangle) [][]float64 {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	grid := make([][]float64, r.Dy())
	for y := 0; y < r.Dy(); y++ {
		row := make([]float64, r.Dx())
		for x := 0; x < r.Dx(); x++ {
			pr, pg, pb, _ := img.At(r.Min.X+x, r.Min.Y+y).RGBA()
			row[x] = 0.299*float64(pr>>8) + 0.587*float64(pg>>8) + 0.114*float64(pb>>8)
		}
		grid[y] = row
	}
	return grid
}
