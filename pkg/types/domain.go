package types

// Tier selects one of the four model quality/speed presets.
type Tier string

const (
	TierLight Tier = "light" // vit_tiny: very fast, decent quality
	TierBase  Tier = "base"  // vit_b: fast, lowest quality
	TierLarge Tier = "large" // vit_l: slow, medium quality
	TierHuge  Tier = "huge"  // vit_h: very slow, best quality
)

// Tiers lists all presets in ascending quality order.
func Tiers() []Tier { return []Tier{TierLight, TierBase, TierLarge, TierHuge} }

// ValidTier reports whether t names a known preset.
func ValidTier(t Tier) bool {
	switch t {
	case TierLight, TierBase, TierLarge, TierHuge:
		return true
	}
	return false
}

// ModelWeights describes a discoverable weight pair on disk for one tier.
type ModelWeights struct {
	// Tier this weight pair serves.
	// example: light
	Tier Tier `json:"tier" example:"light"`
	// Absolute path to the image encoder ONNX file.
	EncoderPath string `json:"encoder_path"`
	// Absolute path to the prompt encoder / mask decoder ONNX file.
	DecoderPath string `json:"decoder_path"`
	// Combined file size in bytes, used for status display.
	SizeBytes int64 `json:"size_bytes"`
}

// Point is a prompt point in pixel space.
type Point struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Box is an axis-aligned bounding box (x0,y0)-(x1,y1) in pixel space.
type Box struct {
	X0 float32 `json:"x0"`
	Y0 float32 `json:"y0"`
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float32 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b Box) Height() float32 { return b.Y1 - b.Y0 }

// Expand grows the box by r pixels on every side.
func (b Box) Expand(r float32) Box {
	return Box{X0: b.X0 - r, Y0: b.Y0 - r, X1: b.X1 + r, Y1: b.Y1 + r}
}

// Offset shifts the box by (dx, dy).
func (b Box) Offset(dx, dy float32) Box {
	return Box{X0: b.X0 + dx, Y0: b.Y0 + dy, X1: b.X1 + dx, Y1: b.Y1 + dy}
}

// PromptSet is the full prompt payload for one model call. All fields are
// optional; a nil slice or pointer means "no such prompt".
type PromptSet struct {
	Points []Point
	// Labels parallel Points: 1 = foreground, 0 = background.
	Labels []uint8
	Box    *Box
	// Prior is a 256x256 low-res heightmap carried from a previous
	// prediction (or synthesized from a guide mask).
	Prior []float32
}

// GenerationSettings are the per-layer knobs controlling mask generation.
// One entry exists per mask layer, matched to it by name.
type GenerationSettings struct {
	// Layer this entry belongs to.
	Layer string `json:"layer"`
	// Whether this layer is AI-managed at all.
	IsRFLayer bool `json:"is_rflayer"`
	// Model quality preset.
	Tier Tier `json:"tier" example:"light"`
	// Weight of the guide-mask area similarity in candidate scoring.
	GuideStrength float32 `json:"guide_strength"`
	// Box blur radius applied to the winning mask, in pixels.
	FeatherRadius float32 `json:"feather_radius"`
	// Automatic tracking: reuse the previous frame's mask as prompt.
	// When false the layer's splines are re-read every tracked frame.
	Tracking bool `json:"tracking"`
	// Pixels added to the carried bounding box each tracked frame.
	SearchRadius float32 `json:"search_radius"`
}

// DefaultSettings returns the settings a freshly added layer starts with.
func DefaultSettings(layer string) GenerationSettings {
	return GenerationSettings{
		Layer:         layer,
		Tier:          TierLight,
		GuideStrength: 10,
		Tracking:      true,
		SearchRadius:  10,
	}
}

// SplineState is one spline of a mask layer, host-normalized to [0,1]^2.
type SplineState struct {
	// Closed splines bound a filled region; open ones carry prompt points.
	Closed bool `json:"closed"`
	// Fill marks open-spline points as foreground prompts.
	Fill   bool         `json:"fill"`
	Points [][2]float32 `json:"points"`
}

// BlendMode names a layer compositing operator.
type BlendMode string

const (
	BlendAdd           BlendMode = "ADD"
	BlendSubtract      BlendMode = "SUBTRACT"
	BlendLighten       BlendMode = "LIGHTEN"
	BlendDarken        BlendMode = "DARKEN"
	BlendMultiply      BlendMode = "MUL"
	BlendReplace       BlendMode = "REPLACE"
	BlendDifference    BlendMode = "DIFFERENCE"
	BlendMergeAdd      BlendMode = "MERGE_ADD"
	BlendMergeSubtract BlendMode = "MERGE_SUBTRACT"
)

// LayerState is the observed state of one host mask layer.
type LayerState struct {
	Name    string        `json:"name"`
	Blend   BlendMode     `json:"blend"`
	Alpha   float32       `json:"alpha"`
	Invert  bool          `json:"invert"`
	Hidden  bool          `json:"hidden"`
	Splines []SplineState `json:"splines"`
}

// ProjectState is the observed state of one host mask project.
type ProjectState struct {
	Name       string       `json:"name"`
	FrameStart int          `json:"frame_start"`
	FrameEnd   int          `json:"frame_end"`
	Layers     []LayerState `json:"layers"`
}

// Layer returns the named layer, or nil.
func (p *ProjectState) Layer(name string) *LayerState {
	for i := range p.Layers {
		if p.Layers[i].Name == name {
			return &p.Layers[i]
		}
	}
	return nil
}

// DocumentState is a full snapshot of the host document's mask graph as
// pushed by the editor integration. The service observes it; it never owns it.
type DocumentState struct {
	Projects     []ProjectState `json:"projects"`
	CurrentFrame int            `json:"current_frame"`
}

// Project returns the named project, or nil.
func (d *DocumentState) Project(name string) *ProjectState {
	for i := range d.Projects {
		if d.Projects[i].Name == name {
			return &d.Projects[i]
		}
	}
	return nil
}
