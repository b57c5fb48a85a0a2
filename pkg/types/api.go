package types

// GenerateRequest asks for a single static mask for one layer.
type GenerateRequest struct {
	// Project (host mask datablock) name.
	// example: Mask
	Project string `json:"project" example:"Mask"`
	// Layer name within the project.
	// example: MaskLayer
	Layer string `json:"layer" example:"MaskLayer"`
	// Path to the source footage frame to segment.
	Source string `json:"source"`
}

// TrackRequest starts an autoregressive tracking session.
type TrackRequest struct {
	Project string `json:"project"`
	Layer   string `json:"layer"`
	// Source footage as a printf-style frame pattern, e.g. "shot/%04d.png".
	SourcePattern string `json:"source_pattern"`
	// Track toward frame_start instead of frame_end.
	Backwards bool `json:"backwards,omitempty"`
}

// BakeRequest rasterizes all layers of a project to a combined sequence.
type BakeRequest struct {
	Project string `json:"project"`
	// Optional: width/height of the output rasters. Defaults to the
	// resolution of the last generated mask, else 1920x1080.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// OperationResponse reports the outcome of a one-shot operator.
type OperationResponse struct {
	// Result mask path relative to the store root.
	// example: Mask/MaskLayers/MaskLayer
	Path string `json:"path,omitempty" example:"Mask/MaskLayers/MaskLayer"`
	// Human-readable completion message.
	Message string `json:"message"`
}

// SessionStatus describes the tracker for /status.
type SessionStatus struct {
	// Tracker state: idle, running, finished, cancelled.
	// example: running
	State string `json:"state" example:"running"`
	// Mask path being written, when running.
	Path string `json:"path,omitempty"`
	// Frame processed most recently.
	Frame int `json:"frame,omitempty"`
	// Tracking direction when running.
	Backwards bool `json:"backwards,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded predictor tier, empty when the cache is cold.
	// example: light
	LoadedTier string `json:"loaded_tier,omitempty" example:"light"`
	// Weight pairs discovered in the weights directory.
	Weights []ModelWeights `json:"weights"`
	// Tracker session state.
	Session SessionStatus `json:"session"`
	// Mask paths currently present in the store index.
	Masks []string `json:"masks"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
