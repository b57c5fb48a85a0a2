// Package engine owns the segmentation model. It exposes a single inference
// call (image + prompts -> ranked candidate masks) behind a capacity-1
// tier-keyed cache, so at most one set of weights is resident at a time.
package engine

import (
	"context"
	"image"

	"rotoforge/pkg/types"
)

// LogitsSize is the side length of the low-res mask prior the model consumes
// and produces.
const LogitsSize = 256

// Prediction is one model call's ranked candidate set. Candidates are
// parallel across the three slices.
type Prediction struct {
	// Masks are full-resolution binary masks (0 or 255).
	Masks []*image.Gray
	// Scores are the model's own confidence per candidate.
	Scores []float32
	// Logits are LogitsSize x LogitsSize low-res heightmaps per candidate,
	// suitable for feeding back as PromptSet.Prior.
	Logits [][]float32
}

// Predictor runs one segmentation model. Implementations must release any
// per-call scratch memory before returning: interactive tracking sessions
// make thousands of calls against one loaded model.
type Predictor interface {
	Predict(ctx context.Context, img image.Image, prompts types.PromptSet) (Prediction, error)
	Close() error
}
