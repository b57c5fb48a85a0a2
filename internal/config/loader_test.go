package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nwork_dir: /tmp/rf\nweights_dir: /w\ndefault_tier: large\ntick_interval_ms: 50\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.WorkDir != "/tmp/rf" || cfg.WeightsDir != "/w" || cfg.DefaultTier != "large" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.TickInterval() != 50*time.Millisecond {
		t.Fatalf("unexpected tick interval: %v", cfg.TickInterval())
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","work_dir":"/m","weights_dir":"/w","use_cuda":true,"num_threads":4}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.WorkDir != "/m" || !cfg.UseCUDA || cfg.NumThreads != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nwork_dir=\"/x\"\nonnxruntime_lib=\"/lib/onnxruntime.so\"\nlog_level=\"debug\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.WorkDir != "/x" || cfg.OnnxRuntimeLib != "/lib/onnxruntime.so" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "addr: :8080\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestTickIntervalDefault(t *testing.T) {
	var cfg Config
	if cfg.TickInterval() != 100*time.Millisecond {
		t.Fatalf("expected 100ms default, got %v", cfg.TickInterval())
	}
}
