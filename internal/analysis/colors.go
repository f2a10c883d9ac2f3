package analysis

import (
	"sort"

	"pixelnerd/internal/types"
)

// kmeansRounds is the fixed iteration count for dominant-color clustering.
// This is a heuristic, not an exact solver: a handful of rounds over a sparse
// sample lands close enough for grounding checks, and keeps analysis fast.
const kmeansRounds = 8

// dominantColors clusters the sampled pixels into at most k colors, sorted
// descending by cluster population. Fully transparent pixels are skipped so
// the palette reflects visible content.
func dominantColors(samples []Pixel, k int) []types.DominantColor {
	if k <= 0 {
		k = 5
	}
	if k > 9 {
		k = 9
	}

	opaque := make([]Pixel, 0, len(samples))
	for _, p := range samples {
		if p.A > 0 {
			opaque = append(opaque, p)
		}
	}
	if len(opaque) == 0 {
		return nil
	}
	if k > len(opaque) {
		k = len(opaque)
	}

	// Seed centroids spread evenly across the sample. Deterministic seeding
	// keeps repeated analyses of the same image stable.
	type centroid struct{ r, g, b float64 }
	centroids := make([]centroid, k)
	for i := 0; i < k; i++ {
		p := opaque[i*len(opaque)/k]
		centroids[i] = centroid{float64(p.R), float64(p.G), float64(p.B)}
	}

	assign := make([]int, len(opaque))
	counts := make([]int, k)

	for round := 0; round < kmeansRounds; round++ {
		// Assignment step.
		for i, p := range opaque {
			best, bestDist := 0, 1e18
			for c, cen := range centroids {
				dr := float64(p.R) - cen.r
				dg := float64(p.G) - cen.g
				db := float64(p.B) - cen.b
				d := dr*dr + dg*dg + db*db
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			assign[i] = best
		}

		// Update step.
		sums := make([]struct {
			r, g, b float64
			n       int
		}, k)
		for i, p := range opaque {
			c := assign[i]
			sums[c].r += float64(p.R)
			sums[c].g += float64(p.G)
			sums[c].b += float64(p.B)
			sums[c].n++
		}
		for c := range centroids {
			if sums[c].n == 0 {
				continue // empty cluster keeps its old centroid
			}
			n := float64(sums[c].n)
			centroids[c] = centroid{sums[c].r / n, sums[c].g / n, sums[c].b / n}
			counts[c] = sums[c].n
		}
	}

	type cluster struct {
		r, g, b uint8
		count   int
	}
	clusters := make([]cluster, 0, k)
	for c, cen := range centroids {
		if counts[c] == 0 {
			continue
		}
		clusters = append(clusters, cluster{
			r:     uint8(cen.r + 0.5),
			g:     uint8(cen.g + 0.5),
			b:     uint8(cen.b + 0.5),
			count: counts[c],
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].count > clusters[j].count })

	out := make([]types.DominantColor, len(clusters))
	for i, c := range clusters {
		out[i] = types.DominantColor{
			R:          c.r,
			G:          c.g,
			B:          c.b,
			Hex:        HexColor(c.r, c.g, c.b),
			Percentage: 100.0 * float64(c.count) / float64(len(opaque)),
		}
	}
	return out
}

// uniqueColorEstimate counts distinct quantized color triples in the sample
// and extrapolates by the inverse sampling rate. Quantization (16 levels per
// channel) keeps near-duplicate colors from inflating the count.
func uniqueColorEstimate(samples []Pixel, samplingRate float64, totalPixels int) int {
	if len(samples) == 0 || samplingRate <= 0 {
		return 0
	}
	seen := make(map[uint32]struct{}, len(samples))
	for _, p := range samples {
		key := uint32(p.R>>4)<<8 | uint32(p.G>>4)<<4 | uint32(p.B>>4)
		seen[key] = struct{}{}
	}
	estimate := int(float64(len(seen)) / samplingRate)
	if estimate > totalPixels {
		estimate = totalPixels
	}
	if estimate < len(seen) {
		estimate = len(seen)
	}
	return estimate
}

// hasTransparency reports whether any sampled pixel is not fully opaque.
func hasTransparency(samples []Pixel) bool {
	for _, p := range samples {
		if p.A < 255 {
			return true
		}
	}
	return false
}
