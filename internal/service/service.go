// Package service is the operator layer: each exported method backs one
// user-visible action and ties the document, engine, generator, tracker and
// store together.
package service

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/internal/engine"
	"rotoforge/internal/generate"
	"rotoforge/internal/host"
	"rotoforge/internal/overlay"
	"rotoforge/internal/prompt"
	"rotoforge/internal/raster"
	"rotoforge/internal/store"
	"rotoforge/internal/track"
	"rotoforge/pkg/types"
)

// Engine is the model surface the service needs. Satisfied by the engine
// gateway; tests substitute a fake.
type Engine interface {
	Predict(ctx context.Context, tier types.Tier, img image.Image, prompts types.PromptSet) (engine.Prediction, error)
	Free() error
	LoadedTier() types.Tier
	Weights() []types.ModelWeights
}

// Service implements the operator surface.
type Service struct {
	doc     *host.Document
	st      *store.Store
	eng     Engine
	gen     *generate.Generator
	tracker *track.Tracker
	preview *overlay.Preview
	log     zerolog.Logger
	started time.Time
}

func New(doc *host.Document, st *store.Store, eng Engine, tracker *track.Tracker, preview *overlay.Preview, log zerolog.Logger) *Service {
	return &Service{
		doc:     doc,
		st:      st,
		eng:     eng,
		gen:     &generate.Generator{Predict: eng.Predict, Log: log},
		tracker: tracker,
		preview: preview,
		log:     log,
		started: time.Now(),
	}
}

// Generate produces a single static mask for the layer at the current frame.
func (s *Service) Generate(ctx context.Context, req types.GenerateRequest) (types.OperationResponse, error) {
	layer, ok := s.doc.Layer(req.Project, req.Layer)
	if !ok {
		return types.OperationResponse{}, store.ErrNotFound(store.LayerKey(req.Project, req.Layer))
	}
	settings, err := s.st.Settings().Get(ctx, req.Project, req.Layer)
	if err != nil {
		return types.OperationResponse{}, err
	}

	frame := s.doc.CurrentFrame()
	img, err := host.LoadFrame(req.Source, frame)
	if err != nil {
		return types.OperationResponse{}, err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	guide := raster.Layer(&layer, w, h, nil)
	points, labels := prompt.ExtractPoints(&layer, w, h)
	in := generate.Frame{
		Image: img,
		Guide: guide,
		Prompts: types.PromptSet{
			Points: points,
			Labels: labels,
			Box:    prompt.BoundingBox(guide),
		},
	}

	key := store.LayerKey(req.Project, req.Layer)
	if _, err := s.gen.Static(ctx, s.st, key, frame, in, settings); err != nil {
		return types.OperationResponse{}, err
	}
	return types.OperationResponse{
		Path:    key,
		Message: fmt.Sprintf("generated mask for frame %d", frame),
	}, nil
}

// TrackStart begins a tracking session from the current frame.
func (s *Service) TrackStart(req types.TrackRequest) (types.OperationResponse, error) {
	if err := s.tracker.Start(req); err != nil {
		return types.OperationResponse{}, err
	}
	key := store.LayerKey(req.Project, req.Layer)
	return types.OperationResponse{Path: key, Message: "tracking started"}, nil
}

// TrackCancel requests a cooperative stop of the running session.
func (s *Service) TrackCancel() (types.OperationResponse, error) {
	if err := s.tracker.Cancel(); err != nil {
		return types.OperationResponse{}, err
	}
	return types.OperationResponse{Message: "tracking cancelled"}, nil
}

// Bake composites every visible layer of the project over its frame range
// and persists the result as the project's combined sequence. RF-managed
// layers contribute their persisted per-frame masks instead of re-rendered
// splines.
func (s *Service) Bake(ctx context.Context, req types.BakeRequest) (types.OperationResponse, error) {
	project, ok := s.doc.Project(req.Project)
	if !ok {
		return types.OperationResponse{}, store.ErrNotFound(req.Project)
	}
	w, h := s.bakeResolution(req)

	rf := make(map[string]bool, len(project.Layers))
	if entries, err := s.st.Settings().List(ctx, req.Project); err == nil {
		for _, e := range entries {
			rf[e.Layer] = e.IsRFLayer
		}
	}

	key := store.CombinedKey(req.Project)
	dir := s.st.SequenceDir(key)
	for frame := project.FrameStart; frame <= project.FrameEnd; frame++ {
		if err := ctx.Err(); err != nil {
			return types.OperationResponse{}, err
		}
		sub := s.frameSubstitute(req.Project, frame, rf)
		combined := raster.Composite(&project, w, h, sub)
		if _, err := store.WriteFrame(dir, frame, combined); err != nil {
			return types.OperationResponse{}, err
		}
	}
	if err := s.st.RefreshRaster(key); err != nil {
		return types.OperationResponse{}, err
	}
	return types.OperationResponse{
		Path:    key,
		Message: fmt.Sprintf("baked frames %d-%d", project.FrameStart, project.FrameEnd),
	}, nil
}

// frameSubstitute resolves an RF-managed layer's persisted mask for one
// frame of a bake.
func (s *Service) frameSubstitute(project string, frame int, rf map[string]bool) raster.Substitute {
	return func(layerName string) (*image.Gray, bool) {
		if !rf[layerName] {
			return nil, false
		}
		dir := s.st.SequenceDir(store.LayerKey(project, layerName))
		img, err := store.LoadFrame(filepath.Join(dir, store.FrameName(frame)))
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.Warn().Err(err).Str("layer", layerName).Int("frame", frame).Msg("failed to read persisted mask frame")
			}
			return nil, false
		}
		return img, true
	}
}

// bakeResolution picks the output resolution: the request's, else the last
// generated mask's, else 1920x1080.
func (s *Service) bakeResolution(req types.BakeRequest) (int, int) {
	if req.Width > 0 && req.Height > 0 {
		return req.Width, req.Height
	}
	for _, key := range s.st.RasterKeys() {
		if r := s.st.Raster(key); r != nil && r.Image != nil {
			b := r.Image.Bounds()
			return b.Dx(), b.Dy()
		}
	}
	return 1920, 1080
}

// FreeCache unloads the predictor, releasing accelerator memory.
func (s *Service) FreeCache() (types.OperationResponse, error) {
	if err := s.eng.Free(); err != nil {
		return types.OperationResponse{}, err
	}
	return types.OperationResponse{Message: "model cache freed"}, nil
}

// Status reports the daemon's current state.
func (s *Service) Status() types.StatusResponse {
	return types.StatusResponse{
		LoadedTier:     string(s.eng.LoadedTier()),
		Weights:        s.eng.Weights(),
		Session:        s.tracker.Status(),
		Masks:          s.st.RasterKeys(),
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
}

// Preview returns the live tracking preview, if any.
func (s *Service) Preview() (*image.Gray, int, bool) {
	return s.preview.Latest()
}

// Mask returns the loaded raster for a store key.
func (s *Service) Mask(key string) (*image.Gray, error) {
	r := s.st.Raster(key)
	if r == nil || r.Image == nil {
		return nil, store.ErrNotFound(key)
	}
	return r.Image, nil
}

// DocumentWillLoad suspends sync while the editor replaces its document.
func (s *Service) DocumentWillLoad() {
	s.st.BeginLoad()
}

// DocumentLoaded installs a freshly loaded document snapshot.
func (s *Service) DocumentLoaded(ctx context.Context, doc types.DocumentState) error {
	s.doc.Replace(doc)
	return s.st.DocumentLoaded(ctx, &doc)
}

// DocumentChanged installs an updated snapshot and reconciles the store
// against it.
func (s *Service) DocumentChanged(ctx context.Context, doc types.DocumentState) error {
	s.doc.Replace(doc)
	return s.st.Reconcile(ctx, &doc)
}

// Ready reports whether the service can accept work.
func (s *Service) Ready() bool {
	return !s.tracker.Running()
}
