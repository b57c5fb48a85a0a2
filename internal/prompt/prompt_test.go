package prompt

import (
	"image"
	"image/color"
	"testing"

	"github.com/chewxy/math32"

	"rotoforge/pkg/types"
)

func grayWithPixels(w, h int, pts ...image.Point) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for _, p := range pts {
		g.SetGray(p.X, p.Y, color.Gray{Y: 255})
	}
	return g
}

func TestExtractPointsOpenSplines(t *testing.T) {
	layer := &types.LayerState{
		Splines: []types.SplineState{
			{Closed: true, Points: [][2]float32{{0.1, 0.1}, {0.2, 0.1}, {0.2, 0.2}, {0.1, 0.2}}},
			{Closed: false, Fill: true, Points: [][2]float32{{0.5, 0.5}}},
			{Closed: false, Fill: false, Points: [][2]float32{{0.25, 0.75}, {0.3, 0.8}}},
		},
	}
	points, labels := ExtractPoints(layer, 100, 100)
	if len(points) != 3 || len(labels) != 3 {
		t.Fatalf("expected 3 prompt points, got %d/%d", len(points), len(labels))
	}
	if labels[0] != 1 || labels[1] != 0 || labels[2] != 0 {
		t.Fatalf("unexpected labels: %v", labels)
	}
	if points[0].X != 50 || points[0].Y != 50 {
		t.Fatalf("unexpected scaled point: %+v", points[0])
	}
}

func TestExtractPointsNoOpenSplines(t *testing.T) {
	layer := &types.LayerState{
		Splines: []types.SplineState{
			{Closed: true, Points: [][2]float32{{0, 0}, {1, 0}, {1, 1}}},
		},
	}
	points, labels := ExtractPoints(layer, 64, 64)
	if points != nil || labels != nil {
		t.Fatalf("expected nil prompts for closed-only layer, got %v %v", points, labels)
	}
}

func TestExtractPointsCentersShortDimension(t *testing.T) {
	// 200x100 raster: scale = 200, y is centered by (100-200)*0.5 = -50.
	layer := &types.LayerState{
		Splines: []types.SplineState{
			{Fill: true, Points: [][2]float32{{0.5, 0.5}}},
		},
	}
	points, _ := ExtractPoints(layer, 200, 100)
	if points[0].X != 100 || points[0].Y != 50 {
		t.Fatalf("unexpected centered point: %+v", points[0])
	}
}

func TestBoundingBoxEmptyMask(t *testing.T) {
	if box := BoundingBox(grayWithPixels(16, 16)); box != nil {
		t.Fatalf("expected no box for all-zero mask, got %+v", box)
	}
}

func TestBoundingBoxSinglePixel(t *testing.T) {
	box := BoundingBox(grayWithPixels(16, 16, image.Pt(5, 9)))
	if box == nil {
		t.Fatalf("expected a box for a single lit pixel")
	}
	if box.X0 != 5 || box.Y0 != 9 || box.X1 != 6 || box.Y1 != 10 {
		t.Fatalf("unexpected box: %+v", box)
	}
}

func TestBoundingBoxSubImage(t *testing.T) {
	full := grayWithPixels(20, 20, image.Pt(12, 15))
	sub := full.SubImage(image.Rect(10, 10, 20, 20)).(*image.Gray)
	box := BoundingBox(sub)
	if box == nil {
		t.Fatalf("expected a box for a lit pixel inside the sub-image")
	}
	if box.X0 != 12 || box.Y0 != 15 || box.X1 != 13 || box.Y1 != 16 {
		t.Fatalf("unexpected box for sub-image: %+v", box)
	}
}

func TestBoundingBoxExtent(t *testing.T) {
	box := BoundingBox(grayWithPixels(32, 32, image.Pt(3, 4), image.Pt(20, 15)))
	if box.X0 != 3 || box.Y0 != 4 || box.X1 != 21 || box.Y1 != 16 {
		t.Fatalf("unexpected box: %+v", box)
	}
}

func TestCoordinateRoundTrip(t *testing.T) {
	points := []types.Point{{X: 12.5, Y: 3.25}, {X: 0, Y: 0}, {X: 99.9, Y: 54.1}}
	box := types.Box{X0: 7.3, Y0: 2.9, X1: 80, Y1: 60}
	back := ToFull(ToLocal(points, box), box)
	for i := range points {
		if math32.Abs(back[i].X-points[i].X) > 1e-3 || math32.Abs(back[i].Y-points[i].Y) > 1e-3 {
			t.Fatalf("round trip drifted at %d: %+v vs %+v", i, back[i], points[i])
		}
	}
}

func TestCropNoBoxPassesThrough(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 40, 30))
	guide := grayWithPixels(40, 30, image.Pt(10, 10))
	res := Crop(frame, guide, types.PromptSet{Points: []types.Point{{X: 1, Y: 2}}})
	if res.Window != nil {
		t.Fatalf("expected no crop window without a box")
	}
	if res.Prompts.Prior != nil {
		t.Fatalf("expected no synthesized prior without a box")
	}
	if res.Image.Bounds().Dx() != 40 || res.Image.Bounds().Dy() != 30 {
		t.Fatalf("frame resized unexpectedly: %v", res.Image.Bounds())
	}
}

func TestCropShiftsPromptsAndSynthesizesPrior(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	guide := grayWithPixels(100, 100, image.Pt(50, 50))
	box := &types.Box{X0: 40, Y0: 40, X1: 60, Y1: 60}
	res := Crop(frame, guide, types.PromptSet{
		Points: []types.Point{{X: 50, Y: 50}},
		Labels: []uint8{1},
		Box:    box,
	})
	if res.Window == nil {
		t.Fatalf("expected a crop window")
	}
	// Margin is 5% of 100 = 5px on each side.
	if res.Window.X0 != 35 || res.Window.Y0 != 35 || res.Window.X1 != 65 || res.Window.Y1 != 65 {
		t.Fatalf("unexpected window: %+v", res.Window)
	}
	if res.OriginX != 35 || res.OriginY != 35 {
		t.Fatalf("unexpected origin: %d,%d", res.OriginX, res.OriginY)
	}
	if res.Prompts.Points[0].X != 15 || res.Prompts.Points[0].Y != 15 {
		t.Fatalf("point not shifted to crop space: %+v", res.Prompts.Points[0])
	}
	if res.Prompts.Box.X0 != 5 || res.Prompts.Box.Y0 != 5 || res.Prompts.Box.X1 != 25 || res.Prompts.Box.Y1 != 25 {
		t.Fatalf("unexpected local box: %+v", res.Prompts.Box)
	}
	if len(res.Prompts.Prior) != LogitsSize*LogitsSize {
		t.Fatalf("expected synthesized prior, got len %d", len(res.Prompts.Prior))
	}
}

func TestCropKeepsCarriedPrior(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 100, 100))
	guide := grayWithPixels(100, 100, image.Pt(50, 50))
	carried := make([]float32, LogitsSize*LogitsSize)
	carried[0] = 42
	res := Crop(frame, guide, types.PromptSet{
		Box:   &types.Box{X0: 40, Y0: 40, X1: 60, Y1: 60},
		Prior: carried,
	})
	if res.Prompts.Prior[0] != 42 {
		t.Fatalf("carried prior replaced by synthesized one")
	}
}

func TestFakeLogitsSize(t *testing.T) {
	guide := grayWithPixels(120, 80, image.Pt(10, 10))
	logits := FakeLogits(guide)
	if len(logits) != LogitsSize*LogitsSize {
		t.Fatalf("expected %d values, got %d", LogitsSize*LogitsSize, len(logits))
	}
	var sum float32
	for _, v := range logits {
		sum += v
	}
	if sum == 0 {
		t.Fatalf("expected some lit prior cells")
	}
}
