// Package generate runs one frame through the model and turns the candidate
// predictions into a persisted mask.
package generate

import (
	"image"

	"github.com/chewxy/math32"
)

// Select picks the best candidate mask. Each model score is adjusted by a
// penalty proportional to the area difference between the candidate and the
// guide mask, weighted by guideStrength and normalized by the candidate's
// pixel count. With no guide the raw model scores decide. Returns -1 for an
// empty candidate list. Pure and deterministic: equal inputs always pick the
// same index, ties go to the earlier candidate.
func Select(masks []*image.Gray, scores []float32, guide *image.Gray, guideStrength float32) int {
	best := float32(math32.Inf(-1))
	bestIdx := -1
	var guideArea float32
	if guide != nil {
		guideArea = litArea(guide)
	}
	for i, mask := range masks {
		s := scores[i]
		if guide != nil {
			b := mask.Bounds()
			total := float32(b.Dx() * b.Dy())
			s -= math32.Abs(guideArea-litArea(mask)) / total * guideStrength
		}
		if s > best {
			best = s
			bestIdx = i
		}
	}
	return bestIdx
}

// litArea counts a mask's foreground pixels.
func litArea(mask *image.Gray) float32 {
	var n int
	for _, v := range mask.Pix {
		if v > 127 {
			n++
		}
	}
	return float32(n)
}
