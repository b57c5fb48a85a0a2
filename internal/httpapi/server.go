package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rotoforge/internal/engine"
	"rotoforge/internal/store"
	"rotoforge/internal/track"
	"rotoforge/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (types.OperationResponse, error)
	TrackStart(req types.TrackRequest) (types.OperationResponse, error)
	TrackCancel() (types.OperationResponse, error)
	Bake(ctx context.Context, req types.BakeRequest) (types.OperationResponse, error)
	FreeCache() (types.OperationResponse, error)
	Status() types.StatusResponse
	Preview() (*image.Gray, int, bool)
	Mask(key string) (*image.Gray, error)
	DocumentWillLoad()
	DocumentLoaded(ctx context.Context, doc types.DocumentState) error
	DocumentChanged(ctx context.Context, doc types.DocumentState) error
	Ready() bool
}

func NewMux(svc Service, events *Broker) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req types.GenerateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Project) == "" || strings.TrimSpace(req.Layer) == "" {
			writeJSONError(w, http.StatusBadRequest, "project and layer are required")
			return
		}
		if strings.TrimSpace(req.Source) == "" {
			writeJSONError(w, http.StatusBadRequest, "source is required")
			return
		}
		ctx, cancel := operationContext(r)
		defer cancel()
		start := time.Now()
		resp, err := svc.Generate(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeMappedError(w, r, err, "generate", start)
			return
		}
		masksGeneratedTotal.Inc()
		logOperation(r, "generate", start)
		writeJSON(w, resp)
	})

	r.Post("/track/start", func(w http.ResponseWriter, r *http.Request) {
		var req types.TrackRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Project) == "" || strings.TrimSpace(req.Layer) == "" {
			writeJSONError(w, http.StatusBadRequest, "project and layer are required")
			return
		}
		if strings.TrimSpace(req.SourcePattern) == "" {
			writeJSONError(w, http.StatusBadRequest, "source_pattern is required")
			return
		}
		resp, err := svc.TrackStart(req)
		if err != nil {
			writeMappedError(w, r, err, "track start", time.Now())
			return
		}
		writeJSON(w, resp)
	})

	r.Post("/track/cancel", func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.TrackCancel()
		if err != nil {
			writeMappedError(w, r, err, "track cancel", time.Now())
			return
		}
		writeJSON(w, resp)
	})

	r.Post("/bake", func(w http.ResponseWriter, r *http.Request) {
		var req types.BakeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Project) == "" {
			writeJSONError(w, http.StatusBadRequest, "project is required")
			return
		}
		ctx, cancel := operationContext(r)
		defer cancel()
		start := time.Now()
		resp, err := svc.Bake(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeMappedError(w, r, err, "bake", start)
			return
		}
		logOperation(r, "bake", start)
		writeJSON(w, resp)
	})

	r.Post("/cache/free", func(w http.ResponseWriter, r *http.Request) {
		resp, err := svc.FreeCache()
		if err != nil {
			writeMappedError(w, r, err, "free cache", time.Now())
			return
		}
		writeJSON(w, resp)
	})

	r.Post("/document/will-load", func(w http.ResponseWriter, r *http.Request) {
		svc.DocumentWillLoad()
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/document/loaded", func(w http.ResponseWriter, r *http.Request) {
		var doc types.DocumentState
		if !decodeJSON(w, r, &doc) {
			return
		}
		if err := svc.DocumentLoaded(r.Context(), doc); err != nil {
			writeMappedError(w, r, err, "document loaded", time.Now())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/document/changed", func(w http.ResponseWriter, r *http.Request) {
		var doc types.DocumentState
		if !decodeJSON(w, r, &doc) {
			return
		}
		if err := svc.DocumentChanged(r.Context(), doc); err != nil {
			writeMappedError(w, r, err, "document changed", time.Now())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/preview", func(w http.ResponseWriter, r *http.Request) {
		img, frame, ok := svc.Preview()
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no live preview")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Preview-Frame", fmt.Sprintf("%d", frame))
		_ = png.Encode(w, img)
	})

	r.Get("/masks/*", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		img, err := svc.Mask(key)
		if err != nil {
			writeMappedError(w, r, err, "mask", time.Now())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, img)
	})

	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		if events == nil {
			writeJSONError(w, http.StatusNotFound, "event stream disabled")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ch, cancel := events.Subscribe()
		defer cancel()
		ctx, done := joinContexts(serverBaseCtx, r.Context())
		defer done()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-ch:
				payload, err := json.Marshal(map[string]any{"key": e.Key, "fields": e.Fields})
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, payload)
				flusher.Flush()
			}
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("busy"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// decodeJSON enforces content type and body size, decoding into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

// operationContext joins the request context with the server base context
// and the optional generation timeout.
func operationContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if generateTimeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, time.Duration(generateTimeout)*time.Second)
		return tctx, func() { tcancel(); cancel() }
	}
	return ctx, cancel
}

// writeMappedError maps well-known domain errors to HTTP status codes.
func writeMappedError(w http.ResponseWriter, r *http.Request, err error, op string, start time.Time) {
	status := http.StatusInternalServerError
	switch {
	case store.IsNotFound(err):
		status = http.StatusNotFound
	case track.IsSessionActive(err), track.IsNoSession(err), store.IsSyncConflict(err):
		status = http.StatusConflict
	case engine.IsModelLoad(err):
		status = http.StatusServiceUnavailable
	default:
		if he, ok := err.(HTTPError); ok {
			status = he.StatusCode()
		}
	}
	writeJSONError(w, status, err.Error())
	if requestLogLevel(r) >= LevelError && zlog != nil {
		z := zlog.Error().Str("op", op).Int("status", status).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Err(err).Msg("operation failed")
	}
}

func logOperation(r *http.Request, op string, start time.Time) {
	if requestLogLevel(r) < LevelInfo || zlog == nil {
		return
	}
	z := zlog.Info().Str("op", op).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	z.Msg("operation complete")
}
