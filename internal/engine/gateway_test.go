package engine

import (
	"context"
	"image"
	"testing"

	"github.com/rs/zerolog"

	"rotoforge/pkg/types"
)

// fakePredictor records calls and returns a fixed single-candidate result.
type fakePredictor struct {
	tier    types.Tier
	calls   int
	closed  bool
	onClose func()
}

func (f *fakePredictor) Predict(ctx context.Context, img image.Image, prompts types.PromptSet) (Prediction, error) {
	f.calls++
	b := img.Bounds()
	return Prediction{
		Masks:  []*image.Gray{image.NewGray(b)},
		Scores: []float32{0.9},
		Logits: [][]float32{make([]float32, LogitsSize*LogitsSize)},
	}, nil
}

func (f *fakePredictor) Close() error {
	f.closed = true
	if f.onClose != nil {
		f.onClose()
	}
	return nil
}

func testRegistry() []types.ModelWeights {
	return []types.ModelWeights{
		{Tier: types.TierLight, EncoderPath: "light_e", DecoderPath: "light_d"},
		{Tier: types.TierHuge, EncoderPath: "huge_e", DecoderPath: "huge_d"},
	}
}

func newTestGateway(t *testing.T) (*Gateway, *[]*fakePredictor) {
	t.Helper()
	var made []*fakePredictor
	g := NewGateway(testRegistry(), func(w types.ModelWeights) (Predictor, error) {
		p := &fakePredictor{tier: w.Tier}
		made = append(made, p)
		return p, nil
	}, zerolog.Nop())
	return g, &made
}

func TestGatewayLoadsOnce(t *testing.T) {
	g, made := newTestGateway(t)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 3; i++ {
		if _, err := g.Predict(context.Background(), types.TierLight, img, types.PromptSet{}); err != nil {
			t.Fatalf("predict: %v", err)
		}
	}
	if len(*made) != 1 {
		t.Fatalf("expected a single load for repeated same-tier calls, got %d", len(*made))
	}
	if (*made)[0].calls != 3 {
		t.Fatalf("expected 3 calls, got %d", (*made)[0].calls)
	}
	if g.LoadedTier() != types.TierLight {
		t.Fatalf("loaded tier = %q", g.LoadedTier())
	}
}

func TestGatewayTierSwitchEvicts(t *testing.T) {
	g, made := newTestGateway(t)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if _, err := g.Predict(context.Background(), types.TierLight, img, types.PromptSet{}); err != nil {
		t.Fatalf("predict light: %v", err)
	}
	if _, err := g.Predict(context.Background(), types.TierHuge, img, types.PromptSet{}); err != nil {
		t.Fatalf("predict huge: %v", err)
	}
	if len(*made) != 2 {
		t.Fatalf("expected 2 loads, got %d", len(*made))
	}
	if !(*made)[0].closed {
		t.Fatalf("expected first predictor closed on tier switch")
	}
	if g.LoadedTier() != types.TierHuge {
		t.Fatalf("loaded tier = %q", g.LoadedTier())
	}
	if g.Loads() != 2 {
		t.Fatalf("loads = %d", g.Loads())
	}
}

func TestGatewayUnknownTier(t *testing.T) {
	g, _ := newTestGateway(t)
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	_, err := g.Predict(context.Background(), types.TierBase, img, types.PromptSet{})
	if err == nil || !IsModelLoad(err) {
		t.Fatalf("expected model load error for missing tier, got %v", err)
	}
}

func TestGatewayFree(t *testing.T) {
	g, made := newTestGateway(t)
	if err := g.Warm(types.TierLight); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if err := g.Free(); err != nil {
		t.Fatalf("free: %v", err)
	}
	if !(*made)[0].closed {
		t.Fatalf("expected predictor closed on free")
	}
	if g.LoadedTier() != "" {
		t.Fatalf("expected cold cache after free")
	}
	// Free on a cold cache is a no-op.
	if err := g.Free(); err != nil {
		t.Fatalf("second free: %v", err)
	}
}
