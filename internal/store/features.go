package store

import (
	"encoding/binary"
	"math"

	"pixelnerd/internal/analysis"
	"pixelnerd/internal/types"
)

// featureDims is the fixed length of every similarity vector.
// Layout: [dimension class, aspect ratio, transparency, 3 x LAB color].
const featureDims = 12

// topColorSlots is how many dominant colors contribute LAB components.
const topColorSlots = 3

// FeatureVector flattens the similarity-relevant image facts into a fixed
// vector. Components are scaled to comparable magnitudes so no single one
// dominates the cosine. Equal components contribute zero distance, which is
// what makes identical dimensions plus transparency rank at least as close as
// any differing pair.
func FeatureVector(s types.SpecsSnapshot) []float32 {
	v := make([]float32, 0, featureDims)

	// Dimension class: log2 of the pixel area, so 512x512 vs 1024x1024 is
	// one step, not a million.
	area := float64(s.Width) * float64(s.Height)
	var dimClass float32
	if area > 0 {
		dimClass = float32(math.Log2(area))
	}
	v = append(v, dimClass)

	var aspect float32
	if s.Height > 0 {
		aspect = float32(s.Width) / float32(s.Height) * 10
	}
	v = append(v, aspect)

	if s.HasTransparency {
		v = append(v, 10)
	} else {
		v = append(v, 0)
	}

	for i := 0; i < topColorSlots; i++ {
		if i < len(s.DominantColors) {
			c := s.DominantColors[i]
			lab := analysis.RGBToLab(c.R, c.G, c.B)
			v = append(v, float32(lab.L/10), float32(lab.A/10), float32(lab.B/10))
		} else {
			v = append(v, 0, 0, 0)
		}
	}

	return v
}

// encodeVector packs a vector as little-endian float32 bytes for BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity returns the cosine of the angle between a and b, 0 when
// either is a zero vector or the lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
