// Package track runs autoregressive mask tracking: each tracked frame's
// winning mask becomes the next frame's guide and search box.
package track

import (
	"context"
	"image"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/internal/generate"
	"rotoforge/internal/host"
	"rotoforge/internal/overlay"
	"rotoforge/internal/prompt"
	"rotoforge/internal/raster"
	"rotoforge/internal/store"
	"rotoforge/pkg/types"
)

// Tracker states as reported through the status surface.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateFinished  = "finished"
	StateCancelled = "cancelled"
)

const defaultTick = 100 * time.Millisecond

// Tracker owns the single tracking session and its tick loop.
type Tracker struct {
	doc     *host.Document
	st      *store.Store
	gen     *generate.Generator
	preview *overlay.Preview
	pub     EventPublisher
	log     zerolog.Logger
	tick    time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	status  types.SessionStatus
}

// session is the parameter set of one tracking run. The identity fields are
// fixed at start; settings are refreshed from the store every tick.
type session struct {
	project, layer, key, source string
	backwards                   bool
	startFrame, endFrame, step  int
	settings                    types.GenerationSettings
}

func New(doc *host.Document, st *store.Store, gen *generate.Generator, preview *overlay.Preview, pub EventPublisher, log zerolog.Logger, tick time.Duration) *Tracker {
	if pub == nil {
		pub = noopPublisher{}
	}
	if tick <= 0 {
		tick = defaultTick
	}
	return &Tracker{
		doc:     doc,
		st:      st,
		gen:     gen,
		preview: preview,
		pub:     pub,
		log:     log,
		tick:    tick,
		status:  types.SessionStatus{State: StateIdle},
	}
}

// Start begins tracking from the current frame toward the project's frame
// boundary. Only one session runs at a time; a second start is rejected
// without disturbing the running one.
func (t *Tracker) Start(req types.TrackRequest) error {
	project, ok := t.doc.Project(req.Project)
	if !ok {
		return store.ErrNotFound(req.Project)
	}
	if _, ok := t.doc.Layer(req.Project, req.Layer); !ok {
		return store.ErrNotFound(store.LayerKey(req.Project, req.Layer))
	}
	settings, err := t.st.Settings().Get(context.Background(), req.Project, req.Layer)
	if err != nil {
		return err
	}

	s := session{
		project:    req.Project,
		layer:      req.Layer,
		key:        store.LayerKey(req.Project, req.Layer),
		source:     req.SourcePattern,
		backwards:  req.Backwards,
		startFrame: t.doc.CurrentFrame(),
		settings:   settings,
	}
	if req.Backwards {
		s.endFrame, s.step = project.FrameStart, -1
	} else {
		s.endFrame, s.step = project.FrameEnd, 1
	}

	t.mu.Lock()
	if t.running {
		key := t.status.Path
		t.mu.Unlock()
		return ErrSessionActive(key)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.cancel = cancel
	t.status = types.SessionStatus{
		State:     StateRunning,
		Path:      s.key,
		Frame:     s.startFrame,
		Backwards: s.backwards,
	}
	t.mu.Unlock()

	t.pub.Publish(Event{Name: "session_started", Key: s.key, Fields: map[string]any{
		"frame":     s.startFrame,
		"backwards": s.backwards,
	}})
	t.log.Info().Str("key", s.key).Int("frame", s.startFrame).Bool("backwards", s.backwards).Msg("tracking started")
	go t.run(ctx, s)
	return nil
}

// Cancel requests a cooperative stop of the running session. The session
// winds down between ticks; already written frames stay on disk, so a later
// Start resumes from wherever the playhead sits.
func (t *Tracker) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return ErrNoSession()
	}
	t.cancel()
	return nil
}

// Running reports whether a session is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Status returns a copy of the current session status.
func (t *Tracker) Status() types.SessionStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Tracker) run(ctx context.Context, s session) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	var (
		guide  *image.Gray
		points []types.Point
		labels []uint8
		box    *types.Box
	)
	frame := s.startFrame

	for {
		select {
		case <-ctx.Done():
			t.finish(s, StateCancelled)
			return
		case <-ticker.C:
		}

		// Settings are re-read every tick so guide strength, feather,
		// search radius and the tracking toggle can be tuned mid-session.
		// The tier stays as captured at start; the session owns the
		// loaded predictor for its whole run.
		if fresh, err := t.st.Settings().Get(ctx, s.project, s.layer); err == nil {
			fresh.Tier = s.settings.Tier
			s.settings = fresh
		}

		img, err := host.LoadFrame(s.source, frame)
		if err != nil {
			t.fail(s, err)
			return
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()

		// With automatic tracking off, prompts are re-read from the live
		// splines every frame so the user can adjust them mid-run. The
		// first frame always derives from splines.
		if guide == nil || !s.settings.Tracking {
			layer, ok := t.doc.Layer(s.project, s.layer)
			if !ok {
				t.fail(s, store.ErrNotFound(s.key))
				return
			}
			guide = raster.Layer(&layer, w, h, nil)
			points, labels = prompt.ExtractPoints(&layer, w, h)
			box = prompt.BoundingBox(guide)
		}

		in := generate.Frame{
			Image:   img,
			Guide:   guide,
			Prompts: types.PromptSet{Points: points, Labels: labels, Box: box},
		}
		out, err := t.gen.Generate(ctx, s.settings.Tier, in, s.settings.GuideStrength, s.settings.FeatherRadius)
		if err != nil {
			if ctx.Err() != nil {
				t.finish(s, StateCancelled)
				return
			}
			t.fail(s, err)
			return
		}
		if _, err := store.WriteFrame(t.st.SequenceDir(s.key), frame, out.Full); err != nil {
			t.fail(s, err)
			return
		}

		t.preview.Publish(frame, out.Raw)
		t.doc.SetCurrentFrame(frame)
		t.mu.Lock()
		t.status.Frame = frame
		t.mu.Unlock()
		t.pub.Publish(Event{Name: "frame_tracked", Key: s.key, Fields: map[string]any{"frame": frame}})

		// Carry this frame's result into the next: the raw mask becomes
		// the guide, its bounding box grows by the search radius and is
		// shifted back into full-frame coordinates.
		guide = out.Raw
		if bb := prompt.BoundingBox(out.Raw); bb != nil {
			nb := bb.Expand(s.settings.SearchRadius).Offset(float32(out.OriginX), float32(out.OriginY))
			box = &nb
		} else {
			box = nil
		}
		points, labels = nil, nil

		if frame == s.endFrame {
			t.finish(s, StateFinished)
			return
		}
		frame += s.step
	}
}

// finish winds a session down: the preview is cleared, the store's loaded
// raster is refreshed from the written sequence, and the final state is
// published.
func (t *Tracker) finish(s session, state string) {
	t.preview.Clear()
	if err := t.st.RefreshRaster(s.key); err != nil && !store.IsNotFound(err) && !os.IsNotExist(err) {
		t.log.Warn().Err(err).Str("key", s.key).Msg("failed to refresh mask after tracking")
	}

	t.mu.Lock()
	t.running = false
	t.status.State = state
	t.mu.Unlock()

	t.pub.Publish(Event{Name: "session_ended", Key: s.key, Fields: map[string]any{"state": state}})
	t.log.Info().Str("key", s.key).Str("state", state).Msg("tracking ended")
}

func (t *Tracker) fail(s session, err error) {
	t.log.Error().Err(err).Str("key", s.key).Msg("tracking aborted")
	t.pub.Publish(Event{Name: "session_error", Key: s.key, Fields: map[string]any{"error": err.Error()}})
	t.finish(s, StateCancelled)
}
