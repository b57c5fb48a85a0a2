package prompt

import (
	"image"

	"rotoforge/pkg/types"
)

// BoundingBox returns the smallest box containing all non-zero pixels of the
// mask, or nil for a completely empty mask. A single lit pixel at (x, y)
// yields the pixel's own extent, never a degenerate zero-area box.
// Coordinates are in the mask's own coordinate space, so a sub-image reports
// positions relative to its parent.
func BoundingBox(mask *image.Gray) *types.Box {
	if mask == nil {
		return nil
	}
	b := mask.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := mask.PixOffset(b.Min.X, y)
		row := mask.Pix[off : off+b.Dx()]
		for dx, v := range row {
			if v == 0 {
				continue
			}
			x := b.Min.X + dx
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return nil
	}
	return &types.Box{
		X0: float32(minX),
		Y0: float32(minY),
		X1: float32(maxX + 1),
		Y1: float32(maxY + 1),
	}
}

// PointsBox returns the bounding box of a point set, or nil for no points.
func PointsBox(points []types.Point) *types.Box {
	if len(points) == 0 {
		return nil
	}
	box := types.Box{X0: points[0].X, Y0: points[0].Y, X1: points[0].X, Y1: points[0].Y}
	for _, p := range points[1:] {
		if p.X < box.X0 {
			box.X0 = p.X
		}
		if p.X > box.X1 {
			box.X1 = p.X
		}
		if p.Y < box.Y0 {
			box.Y0 = p.Y
		}
		if p.Y > box.Y1 {
			box.Y1 = p.Y
		}
	}
	return &box
}
