package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// WorkDir is the store root: mask sequences, settings db, version marker.
	WorkDir string `json:"work_dir" yaml:"work_dir" toml:"work_dir"`
	// WeightsDir is scanned for per-tier encoder/decoder ONNX pairs.
	WeightsDir string `json:"weights_dir" yaml:"weights_dir" toml:"weights_dir"`
	// OnnxRuntimeLib is the path to the onnxruntime shared library.
	OnnxRuntimeLib string `json:"onnxruntime_lib" yaml:"onnxruntime_lib" toml:"onnxruntime_lib"`
	UseCUDA        bool   `json:"use_cuda" yaml:"use_cuda" toml:"use_cuda"`
	NumThreads     int    `json:"num_threads" yaml:"num_threads" toml:"num_threads"`
	// DefaultTier is used when a layer's settings do not name one.
	DefaultTier string `json:"default_tier" yaml:"default_tier" toml:"default_tier"`
	// TickIntervalMS is the tracker frame pacing in milliseconds.
	TickIntervalMS int    `json:"tick_interval_ms" yaml:"tick_interval_ms" toml:"tick_interval_ms"`
	LogLevel       string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// CORSOrigins enables CORS for the given origins when non-empty.
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// GenerateTimeoutSec bounds a single generate or bake request. Zero
	// disables the extra timeout.
	GenerateTimeoutSec int64 `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`
}

// TickInterval returns the tracker pacing as a duration, defaulting to 100ms.
func (c Config) TickInterval() time.Duration {
	if c.TickIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
