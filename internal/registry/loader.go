// Package registry discovers SAM-HQ weight pairs on disk. Each quality tier
// is served by two ONNX files: "<tier>_encoder.onnx" and "<tier>_decoder.onnx".
package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"rotoforge/internal/common/fsutil"
	"rotoforge/pkg/types"
)

// ScanDir scans a directory for per-tier weight pairs. Tiers with only one
// half of the pair present are skipped; a complete pair is required to load.
func ScanDir(dir string) ([]types.ModelWeights, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	var out []types.ModelWeights
	for _, tier := range types.Tiers() {
		enc := filepath.Join(abs, string(tier)+"_encoder.onnx")
		dec := filepath.Join(abs, string(tier)+"_decoder.onnx")
		encInfo, err := os.Stat(enc)
		if err != nil {
			continue
		}
		decInfo, err := os.Stat(dec)
		if err != nil {
			continue
		}
		out = append(out, types.ModelWeights{
			Tier:        tier,
			EncoderPath: enc,
			DecoderPath: dec,
			SizeBytes:   encInfo.Size() + decInfo.Size(),
		})
	}
	return out, nil
}

// Lookup returns the weight pair for a tier from a scanned registry.
func Lookup(reg []types.ModelWeights, tier types.Tier) (types.ModelWeights, bool) {
	for _, w := range reg {
		if w.Tier == tier {
			return w, true
		}
	}
	return types.ModelWeights{}, false
}
