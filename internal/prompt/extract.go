// Package prompt turns host spline layers into model-ready prompts and owns
// the coordinate transforms between full-frame and cropped space.
package prompt

import (
	"github.com/chewxy/math32"

	"rotoforge/pkg/types"
)

// PixelScale returns the normalized->pixel mapping for a raster of (w, h):
// coordinates are stored host-normalized against the long side, with the
// short dimension centered.
func PixelScale(w, h int) (scale, dx, dy float32) {
	scale = math32.Max(float32(w), float32(h))
	if w > h {
		dy = (float32(h) - float32(w)) * 0.5
	} else {
		dx = (float32(h) - float32(w)) * -0.5
	}
	return scale, dx, dy
}

// ExtractPoints collects prompt points from a layer's open splines. Every
// control point of a non-closed (or single-point) spline becomes a prompt;
// the spline's fill flag decides foreground (1) versus background (0).
// Returns (nil, nil) when the layer has no open splines.
func ExtractPoints(layer *types.LayerState, w, h int) ([]types.Point, []uint8) {
	scale, dx, dy := PixelScale(w, h)

	var points []types.Point
	var labels []uint8
	for _, spline := range layer.Splines {
		if len(spline.Points) == 0 {
			continue
		}
		if spline.Closed && len(spline.Points) > 1 {
			continue
		}
		label := uint8(0)
		if spline.Fill {
			label = 1
		}
		for _, co := range spline.Points {
			points = append(points, types.Point{
				X: co[0]*scale + dx,
				Y: co[1]*scale + dy,
			})
			labels = append(labels, label)
		}
	}
	return points, labels
}
