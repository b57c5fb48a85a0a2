package engine

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/internal/registry"
	"rotoforge/pkg/types"
)

// Factory loads a Predictor for a weight pair. Swappable so tests can inject
// a fake backend.
type Factory func(types.ModelWeights) (Predictor, error)

// Gateway owns the single loaded predictor. The cache has capacity one:
// requesting a different tier evicts the current predictor and loads the new
// one. All inference calls are serialized through the gateway mutex; real
// parallel callers would otherwise share one set of ONNX sessions.
type Gateway struct {
	mu       sync.Mutex
	reg      []types.ModelWeights
	factory  Factory
	log      zerolog.Logger
	tier     types.Tier
	pred     Predictor
	loads    uint64
	lastUsed time.Time
}

// NewGateway builds a gateway over a scanned weight registry.
func NewGateway(reg []types.ModelWeights, factory Factory, log zerolog.Logger) *Gateway {
	return &Gateway{reg: reg, factory: factory, log: log}
}

// ensure loads the predictor for the requested tier, evicting any other
// loaded tier first. Caller must hold g.mu.
func (g *Gateway) ensure(tier types.Tier) error {
	if g.pred != nil && g.tier == tier {
		return nil
	}
	if g.pred != nil {
		g.log.Info().Str("tier", string(g.tier)).Msg("evicting loaded predictor")
		if err := g.pred.Close(); err != nil {
			g.log.Warn().Err(err).Msg("predictor close during eviction")
		}
		g.pred = nil
		g.tier = ""
	}
	w, ok := registry.Lookup(g.reg, tier)
	if !ok {
		return ErrModelLoad("no weight pair for tier " + string(tier))
	}
	start := time.Now()
	pred, err := g.factory(w)
	if err != nil {
		return err
	}
	g.pred = pred
	g.tier = tier
	g.loads++
	g.log.Info().Str("tier", string(tier)).Dur("took", time.Since(start)).Msg("predictor loaded")
	return nil
}

// Predict runs one inference call on the given tier, loading weights first if
// needed. A tracking session captures its tier at start, so the tier seen
// here is stable for the session's lifetime.
func (g *Gateway) Predict(ctx context.Context, tier types.Tier, img image.Image, prompts types.PromptSet) (Prediction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensure(tier); err != nil {
		return Prediction{}, err
	}
	g.lastUsed = time.Now()
	return g.pred.Predict(ctx, img, prompts)
}

// Warm loads the tier's weights without running inference, so configuration
// errors surface before a session starts.
func (g *Gateway) Warm(tier types.Tier) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ensure(tier)
}

// Free evicts the loaded predictor and releases its device memory.
func (g *Gateway) Free() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pred == nil {
		return nil
	}
	err := g.pred.Close()
	g.pred = nil
	g.tier = ""
	g.log.Info().Msg("predictor cache freed")
	return err
}

// LoadedTier returns the resident tier, or "" when the cache is cold.
func (g *Gateway) LoadedTier() types.Tier {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pred == nil {
		return ""
	}
	return g.tier
}

// Weights returns the scanned registry for status reporting.
func (g *Gateway) Weights() []types.ModelWeights {
	out := make([]types.ModelWeights, len(g.reg))
	copy(out, g.reg)
	return out
}

// Loads returns the number of weight loads performed since startup.
func (g *Gateway) Loads() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loads
}
