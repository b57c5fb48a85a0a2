// Package raster renders mask layers to grayscale images and composites
// them with the host's layer blend modes.
package raster

import (
	"image"
	"sort"

	"github.com/chewxy/math32"
	"golang.org/x/image/draw"

	"rotoforge/internal/prompt"
	"rotoforge/pkg/types"
)

// Substitute resolves a previously generated raster for an AI-managed layer,
// bypassing spline rendering. Returns false when no persisted raster exists
// for the layer (or the layer is not AI-managed).
type Substitute func(layerName string) (*image.Gray, bool)

// Layer renders one layer's closed splines to a (w, h) grayscale raster.
// Closed spline interiors are filled with 255; open splines are prompt
// carriers and contribute no coverage. A non-nil sub is consulted first and
// its raster, scaled to the target resolution if needed, replaces rendering.
func Layer(layer *types.LayerState, w, h int, sub Substitute) *image.Gray {
	if sub != nil {
		if persisted, ok := sub(layer.Name); ok {
			return fitTo(persisted, w, h)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	scale, dx, dy := prompt.PixelScale(w, h)
	for _, spline := range layer.Splines {
		if !spline.Closed || len(spline.Points) < 3 {
			continue
		}
		poly := make([]types.Point, len(spline.Points))
		for i, co := range spline.Points {
			poly[i] = types.Point{X: co[0]*scale + dx, Y: co[1]*scale + dy}
		}
		fillPolygon(dst, poly)
	}
	return dst
}

// fillPolygon fills the polygon's interior with 255 using an even-odd
// scanline sweep sampled at pixel centers.
func fillPolygon(dst *image.Gray, poly []types.Point) {
	b := dst.Bounds()
	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly[1:] {
		minY = math32.Min(minY, p.Y)
		maxY = math32.Max(maxY, p.Y)
	}
	y0 := maxInt(b.Min.Y, int(math32.Floor(minY)))
	y1 := minInt(b.Max.Y-1, int(math32.Ceil(maxY)))

	xs := make([]float32, 0, len(poly))
	for y := y0; y <= y1; y++ {
		cy := float32(y) + 0.5
		xs = xs[:0]
		j := len(poly) - 1
		for i := range poly {
			a, c := poly[i], poly[j]
			j = i
			if (a.Y <= cy) == (c.Y <= cy) {
				continue
			}
			xs = append(xs, a.X+(cy-a.Y)/(c.Y-a.Y)*(c.X-a.X))
		}
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		for k := 0; k+1 < len(xs); k += 2 {
			// Pixel x is covered when its center lies inside the span.
			sx := maxInt(b.Min.X, int(math32.Ceil(xs[k]-0.5)))
			ex := minInt(b.Max.X, int(math32.Ceil(xs[k+1]-0.5)))
			row := dst.Pix[(y-b.Min.Y)*dst.Stride:]
			for x := sx; x < ex; x++ {
				row[x-b.Min.X] = 255
			}
		}
	}
}

// fitTo rescales src to (w, h) when its dimensions differ.
func fitTo(src *image.Gray, w, h int) *image.Gray {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
