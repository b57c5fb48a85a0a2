package raster

import (
	"image"

	"github.com/chewxy/math32"

	"rotoforge/pkg/types"
)

// Composite renders every visible layer of the project and folds them into
// one grayscale raster, bottom to top, applying each layer's blend mode,
// alpha and invert flag. Alpha pre-multiplies the layer except under REPLACE,
// where it weights the mix with the accumulator instead.
func Composite(project *types.ProjectState, w, h int, sub Substitute) *image.Gray {
	acc := make([]float32, w*h)
	for i := range project.Layers {
		layer := &project.Layers[i]
		if layer.Hidden {
			continue
		}
		src := Layer(layer, w, h, sub)
		blendInto(acc, src, layer)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range acc {
		out.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}
	return out
}

func blendInto(acc []float32, src *image.Gray, layer *types.LayerState) {
	mode := layer.Blend
	if mode == "" {
		mode = types.BlendAdd
	}
	for i := range acc {
		l := float32(src.Pix[i]) / 255
		if mode != types.BlendReplace {
			l *= layer.Alpha
		}
		if layer.Invert {
			l = 1 - l
		}
		a := acc[i]
		switch mode {
		case types.BlendAdd:
			a = clamp01(a + l)
		case types.BlendSubtract:
			a = clamp01(a - l)
		case types.BlendLighten:
			a = math32.Max(a, l)
		case types.BlendDarken:
			a = math32.Min(a, l)
		case types.BlendMultiply:
			a *= l
		case types.BlendReplace:
			a = l*layer.Alpha + a*(1-layer.Alpha)
		case types.BlendDifference:
			a = math32.Abs(a - l)
		case types.BlendMergeAdd:
			a = 1 - (1-a)*(1-l)
		case types.BlendMergeSubtract:
			a = clamp01(1 - (1-a)*(1-l) - l)
		}
		acc[i] = a
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
