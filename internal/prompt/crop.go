package prompt

import (
	"image"

	"github.com/chewxy/math32"
	"golang.org/x/image/draw"

	"rotoforge/pkg/types"
)

// cropMargin is the fraction of full-frame width/height added around the
// prompt box on each side before cropping.
const cropMargin = 0.05

// LogitsSize matches the model's low-res prior resolution.
const LogitsSize = 256

// CropResult carries one frame's inference inputs after optional cropping.
type CropResult struct {
	// Image is the (possibly cropped) RGB frame handed to the model.
	Image *image.RGBA
	// Guide is the guide mask in the same coordinate space as Image, nil
	// when no guide exists.
	Guide *image.Gray
	// Window is the crop window in full-frame pixel coordinates; nil when
	// no cropping happened.
	Window *types.Box
	// OriginX/OriginY are Window's integer top-left corner, the paste-back
	// offset for the cropped result.
	OriginX, OriginY int
	// Prompts are shifted into crop-local coordinates when Window != nil.
	Prompts types.PromptSet
}

// Crop restricts inference to a padded window around the prompt box. Without
// a box the frame passes through untouched and no prior is synthesized. With
// a box but without a carried prior, a fake low-res prior is synthesized from
// the cropped guide mask so tracking continuity survives a full-res handoff.
func Crop(frame image.Image, guide *image.Gray, prompts types.PromptSet) CropResult {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()

	if prompts.Box == nil {
		return CropResult{
			Image: toRGBA(frame),
			Guide: guide,
			Prompts: types.PromptSet{
				Points: prompts.Points,
				Labels: prompts.Labels,
			},
		}
	}

	mw := float32(w) * cropMargin
	mh := float32(h) * cropMargin
	window := types.Box{
		X0: prompts.Box.X0 - mw,
		Y0: prompts.Box.Y0 - mh,
		X1: prompts.Box.X1 + mw,
		Y1: prompts.Box.Y1 + mh,
	}

	x0, y0, _, _ := windowBounds(window)
	out := CropResult{
		Image:   cropRGBA(frame, window),
		Window:  &window,
		OriginX: x0,
		OriginY: y0,
	}
	if guide != nil {
		out.Guide = cropGray(guide, window)
	}

	out.Prompts.Points = ToLocal(prompts.Points, window)
	out.Prompts.Labels = prompts.Labels
	// The original box expressed in crop-local coordinates: the margins
	// become the new origin offsets.
	out.Prompts.Box = &types.Box{
		X0: mw,
		Y0: mh,
		X1: prompts.Box.Width() + mw,
		Y1: prompts.Box.Height() + mh,
	}
	if prompts.Prior != nil {
		out.Prompts.Prior = prompts.Prior
	} else if out.Guide != nil {
		out.Prompts.Prior = FakeLogits(out.Guide)
	}
	return out
}

// ToLocal shifts points into box-local coordinates.
func ToLocal(points []types.Point, box types.Box) []types.Point {
	if points == nil {
		return nil
	}
	out := make([]types.Point, len(points))
	for i, p := range points {
		out[i] = types.Point{X: p.X - box.X0, Y: p.Y - box.Y0}
	}
	return out
}

// ToFull shifts box-local points back into full-frame coordinates.
// ToFull(ToLocal(p, b), b) == p.
func ToFull(points []types.Point, box types.Box) []types.Point {
	if points == nil {
		return nil
	}
	out := make([]types.Point, len(points))
	for i, p := range points {
		out[i] = types.Point{X: p.X + box.X0, Y: p.Y + box.Y0}
	}
	return out
}

// FakeLogits synthesizes a LogitsSize x LogitsSize prior from a guide mask:
// the mask is cropped to a square of its long side (anchored at the origin,
// short side zero-padded) and resized down. Values are 0 or 1; this
// substitutes for a true model-native low-res prior.
func FakeLogits(guide *image.Gray) []float32 {
	if guide == nil {
		return nil
	}
	b := guide.Bounds()
	side := b.Dx()
	if b.Dy() > side {
		side = b.Dy()
	}
	square := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(square, b.Sub(b.Min), guide, b.Min, draw.Src)

	low := image.NewGray(image.Rect(0, 0, LogitsSize, LogitsSize))
	draw.ApproxBiLinear.Scale(low, low.Bounds(), square, square.Bounds(), draw.Src, nil)

	out := make([]float32, LogitsSize*LogitsSize)
	for i, v := range low.Pix {
		if v > 0 {
			out[i] = 1
		}
	}
	return out
}

// cropRGBA extracts a window from the frame, zero-padding any region outside
// the source bounds.
func cropRGBA(src image.Image, window types.Box) *image.RGBA {
	x0, y0, x1, y1 := windowBounds(window)
	dst := image.NewRGBA(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return dst
}

func cropGray(src *image.Gray, window types.Box) *image.Gray {
	x0, y0, x1, y1 := windowBounds(window)
	dst := image.NewGray(image.Rect(0, 0, x1-x0, y1-y0))
	draw.Draw(dst, dst.Bounds(), src, image.Pt(x0, y0), draw.Src)
	return dst
}

func windowBounds(window types.Box) (x0, y0, x1, y1 int) {
	x0 = int(math32.Floor(window.X0))
	y0 = int(math32.Floor(window.Y0))
	x1 = int(math32.Ceil(window.X1))
	y1 = int(math32.Ceil(window.Y1))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
