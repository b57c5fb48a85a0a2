package raster

import (
	"image"
	"testing"

	"rotoforge/pkg/types"
)

func squareLayer(name string, blend types.BlendMode, alpha float32) types.LayerState {
	return types.LayerState{
		Name:  name,
		Blend: blend,
		Alpha: alpha,
		Splines: []types.SplineState{
			{Closed: true, Points: [][2]float32{
				{0.25, 0.25}, {0.75, 0.25}, {0.75, 0.75}, {0.25, 0.75},
			}},
		},
	}
}

func TestLayerFillsClosedSplineInterior(t *testing.T) {
	layer := squareLayer("square", types.BlendAdd, 1)
	g := Layer(&layer, 100, 100, nil)
	if got := g.GrayAt(50, 50).Y; got != 255 {
		t.Fatalf("interior pixel = %d, want 255", got)
	}
	if got := g.GrayAt(10, 10).Y; got != 0 {
		t.Fatalf("exterior pixel = %d, want 0", got)
	}
	if got := g.GrayAt(50, 5).Y; got != 0 {
		t.Fatalf("pixel above square = %d, want 0", got)
	}
}

func TestLayerIgnoresOpenSplines(t *testing.T) {
	layer := types.LayerState{
		Name: "points",
		Splines: []types.SplineState{
			{Closed: false, Points: [][2]float32{{0.1, 0.1}, {0.9, 0.9}, {0.5, 0.1}}},
		},
	}
	g := Layer(&layer, 64, 64, nil)
	for _, v := range g.Pix {
		if v != 0 {
			t.Fatalf("open spline produced coverage")
		}
	}
}

func TestLayerUsesSubstitute(t *testing.T) {
	persisted := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range persisted.Pix {
		persisted.Pix[i] = 200
	}
	layer := squareLayer("baked", types.BlendAdd, 1)
	sub := func(name string) (*image.Gray, bool) {
		if name != "baked" {
			t.Fatalf("substitute asked for %q", name)
		}
		return persisted, true
	}
	g := Layer(&layer, 32, 32, sub)
	if g.Pix[0] != 200 {
		t.Fatalf("substitute raster not used")
	}
}

func TestLayerSubstituteRescales(t *testing.T) {
	persisted := image.NewGray(image.Rect(0, 0, 16, 16))
	layer := squareLayer("baked", types.BlendAdd, 1)
	g := Layer(&layer, 64, 64, func(string) (*image.Gray, bool) { return persisted, true })
	if g.Bounds().Dx() != 64 || g.Bounds().Dy() != 64 {
		t.Fatalf("substitute not rescaled: %v", g.Bounds())
	}
}

func TestCompositeSubtract(t *testing.T) {
	project := types.ProjectState{
		Name: "p",
		Layers: []types.LayerState{
			squareLayer("base", types.BlendAdd, 1),
			{
				Name: "hole", Blend: types.BlendSubtract, Alpha: 1,
				Splines: []types.SplineState{
					{Closed: true, Points: [][2]float32{
						{0.4, 0.4}, {0.6, 0.4}, {0.6, 0.6}, {0.4, 0.6},
					}},
				},
			},
		},
	}
	g := Composite(&project, 100, 100, nil)
	if got := g.GrayAt(50, 50).Y; got != 0 {
		t.Fatalf("subtracted pixel = %d, want 0", got)
	}
	if got := g.GrayAt(30, 30).Y; got != 255 {
		t.Fatalf("remaining pixel = %d, want 255", got)
	}
}

func TestCompositeSkipsHiddenLayers(t *testing.T) {
	layer := squareLayer("square", types.BlendAdd, 1)
	layer.Hidden = true
	project := types.ProjectState{Name: "p", Layers: []types.LayerState{layer}}
	g := Composite(&project, 50, 50, nil)
	for _, v := range g.Pix {
		if v != 0 {
			t.Fatalf("hidden layer contributed coverage")
		}
	}
}

func TestCompositeReplaceMixesByAlpha(t *testing.T) {
	project := types.ProjectState{
		Name: "p",
		Layers: []types.LayerState{
			squareLayer("base", types.BlendAdd, 1),
			squareLayer("half", types.BlendReplace, 0.5),
		},
	}
	g := Composite(&project, 100, 100, nil)
	// Inside the square both layers are 1.0, so the mix stays at full white.
	if got := g.GrayAt(50, 50).Y; got != 255 {
		t.Fatalf("interior = %d, want 255", got)
	}
	// Outside, REPLACE mixes 0 over 0.
	if got := g.GrayAt(5, 5).Y; got != 0 {
		t.Fatalf("exterior = %d, want 0", got)
	}
}

func TestCompositeInvert(t *testing.T) {
	layer := squareLayer("inv", types.BlendAdd, 1)
	layer.Invert = true
	project := types.ProjectState{Name: "p", Layers: []types.LayerState{layer}}
	g := Composite(&project, 100, 100, nil)
	if got := g.GrayAt(50, 50).Y; got != 0 {
		t.Fatalf("inverted interior = %d, want 0", got)
	}
	if got := g.GrayAt(5, 5).Y; got != 255 {
		t.Fatalf("inverted exterior = %d, want 255", got)
	}
}

func TestCompositeMergeAddIsScreen(t *testing.T) {
	project := types.ProjectState{
		Name: "p",
		Layers: []types.LayerState{
			squareLayer("a", types.BlendAdd, 0.5),
			squareLayer("b", types.BlendMergeAdd, 0.5),
		},
	}
	g := Composite(&project, 100, 100, nil)
	// 1 - (1-0.5)*(1-0.5) = 0.75.
	got := g.GrayAt(50, 50).Y
	if got < 190 || got > 193 {
		t.Fatalf("screen blend = %d, want ~191", got)
	}
}
