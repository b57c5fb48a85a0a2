package registry

import (
	"os"
	"path/filepath"
	"testing"

	"rotoforge/pkg/types"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("w"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}

func TestScanDirPairsOnly(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "light_encoder.onnx")
	touch(t, dir, "light_decoder.onnx")
	touch(t, dir, "large_encoder.onnx") // missing decoder: incomplete pair
	touch(t, dir, "readme.txt")

	reg, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(reg) != 1 {
		t.Fatalf("expected 1 complete pair, got %d", len(reg))
	}
	if reg[0].Tier != types.TierLight {
		t.Fatalf("expected light tier, got %s", reg[0].Tier)
	}
	if reg[0].SizeBytes != 2 {
		t.Fatalf("expected combined size 2, got %d", reg[0].SizeBytes)
	}
}

func TestScanDirEmpty(t *testing.T) {
	reg, err := ScanDir(t.TempDir())
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(reg) != 0 {
		t.Fatalf("expected no pairs, got %d", len(reg))
	}
}

func TestLookup(t *testing.T) {
	reg := []types.ModelWeights{{Tier: types.TierBase}, {Tier: types.TierHuge}}
	if _, ok := Lookup(reg, types.TierHuge); !ok {
		t.Fatalf("expected huge tier present")
	}
	if _, ok := Lookup(reg, types.TierLight); ok {
		t.Fatalf("did not expect light tier")
	}
}
