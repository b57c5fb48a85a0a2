package generate

import (
	"context"
	"image"
	"os"

	"github.com/anthonynsimon/bild/blur"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"rotoforge/internal/engine"
	"rotoforge/internal/prompt"
	"rotoforge/internal/store"
	"rotoforge/pkg/types"
)

// PredictFunc runs the model for one image. Satisfied by the engine gateway;
// tests substitute a fake.
type PredictFunc func(ctx context.Context, tier types.Tier, img image.Image, prompts types.PromptSet) (engine.Prediction, error)

// Frame bundles one frame's inference inputs in full-frame coordinates.
type Frame struct {
	Image   *image.RGBA
	Guide   *image.Gray
	Prompts types.PromptSet
}

// Output is one generated mask plus the state a tracker carries forward.
type Output struct {
	// Full is the feathered mask at the source frame's full resolution;
	// regions outside the crop window are exactly zero.
	Full *image.Gray
	// Raw is the winning candidate in crop space, before feathering.
	Raw *image.Gray
	// Logits is the winner's low-res map, the next frame's prior.
	Logits []float32
	// OriginX/OriginY locate Raw within the full frame.
	OriginX, OriginY int
	// Window is the crop window used, nil when uncropped.
	Window *types.Box
}

// Generator turns prompts and a source frame into a persisted mask.
type Generator struct {
	Predict PredictFunc
	Log     zerolog.Logger
}

// Generate runs the crop, predict, select and feather steps for one frame.
func (g *Generator) Generate(ctx context.Context, tier types.Tier, in Frame, guideStrength, featherRadius float32) (Output, error) {
	crop := prompt.Crop(in.Image, in.Guide, in.Prompts)
	pred, err := g.Predict(ctx, tier, crop.Image, crop.Prompts)
	if err != nil {
		return Output{}, err
	}
	idx := Select(pred.Masks, pred.Scores, crop.Guide, guideStrength)
	if idx < 0 {
		return Output{}, engine.ErrInference("model returned no candidate masks")
	}
	raw := pred.Masks[idx]

	mask := feather(raw, featherRadius)
	if crop.Window != nil {
		b := in.Image.Bounds()
		full := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		mb := mask.Bounds()
		target := image.Rect(crop.OriginX, crop.OriginY, crop.OriginX+mb.Dx(), crop.OriginY+mb.Dy())
		draw.Draw(full, target, mask, mb.Min, draw.Src)
		mask = full
	}

	return Output{
		Full:    mask,
		Raw:     raw,
		Logits:  pred.Logits[idx],
		OriginX: crop.OriginX,
		OriginY: crop.OriginY,
		Window:  crop.Window,
	}, nil
}

// Static generates one standalone mask and persists it as the sole frame of
// the layer's sequence directory. A previous multi-frame sequence at the same
// path is cleared first, so regenerating is an idempotent overwrite.
func (g *Generator) Static(ctx context.Context, st *store.Store, key string, frame int, in Frame, s types.GenerationSettings) (string, error) {
	out, err := g.Generate(ctx, s.Tier, in, s.GuideStrength, s.FeatherRadius)
	if err != nil {
		return "", err
	}
	dir := st.SequenceDir(key)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	path, err := store.WriteFrame(dir, frame, out.Full)
	if err != nil {
		return "", err
	}
	if err := st.RefreshRaster(key); err != nil {
		return "", err
	}
	g.Log.Info().Str("key", key).Int("frame", frame).Str("path", path).Msg("generated static mask")
	return path, nil
}

// feather applies a box blur of the given radius; a non-positive radius is
// a no-op.
func feather(mask *image.Gray, radius float32) *image.Gray {
	if radius <= 0 {
		return mask
	}
	blurred := blur.Box(mask, float64(radius))
	b := blurred.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), blurred, b.Min, draw.Src)
	return out
}
