// Package fetch downloads and verifies SAM-HQ weight pairs so the daemon can
// find them with a registry scan.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/pkg/types"
)

// Source names where a tier's weight pair can be downloaded from. Empty
// checksum fields skip verification for that half.
type Source struct {
	Tier          types.Tier
	EncoderURL    string
	DecoderURL    string
	EncoderSHA256 string
	DecoderSHA256 string
}

const defaultBaseURL = "https://huggingface.co/rotoforge/sam-hq-onnx/resolve/main"

// DefaultSources lists the published weight pairs for every tier.
func DefaultSources() []Source {
	out := make([]Source, 0, len(types.Tiers()))
	for _, tier := range types.Tiers() {
		out = append(out, Source{
			Tier:       tier,
			EncoderURL: fmt.Sprintf("%s/%s_encoder.onnx", defaultBaseURL, tier),
			DecoderURL: fmt.Sprintf("%s/%s_decoder.onnx", defaultBaseURL, tier),
		})
	}
	return out
}

// Lookup returns the source for a tier.
func Lookup(sources []Source, tier types.Tier) (Source, bool) {
	for _, s := range sources {
		if s.Tier == tier {
			return s, true
		}
	}
	return Source{}, false
}

// Fetcher downloads weight files over HTTP.
type Fetcher struct {
	Client *http.Client
	Log    zerolog.Logger
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return &http.Client{Timeout: 30 * time.Minute}
}

// FetchTier downloads both halves of a tier's weight pair into dir, using the
// registry's file naming. Files already present are left alone.
func (f *Fetcher) FetchTier(ctx context.Context, dir string, src Source) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	halves := []struct {
		url, name, sum string
	}{
		{src.EncoderURL, string(src.Tier) + "_encoder.onnx", src.EncoderSHA256},
		{src.DecoderURL, string(src.Tier) + "_decoder.onnx", src.DecoderSHA256},
	}
	for _, h := range halves {
		dest := filepath.Join(dir, h.name)
		if _, err := os.Stat(dest); err == nil {
			f.Log.Info().Str("file", h.name).Msg("already present, skipping")
			continue
		}
		if err := f.download(ctx, h.url, dest); err != nil {
			return err
		}
		if h.sum != "" {
			if err := VerifySHA256(dest, h.sum); err != nil {
				os.Remove(dest)
				return err
			}
		}
	}
	return nil
}

// download writes the response body to a temp file next to dest and renames
// it into place, so an interrupted fetch never leaves a half-written weight
// file where the registry scan would pick it up.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	f.Log.Info().Str("url", url).Msg("downloading")
	start := time.Now()
	resp, err := f.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f.Log.Info().Str("file", filepath.Base(dest)).Int64("bytes", n).Dur("took", time.Since(start)).Msg("downloaded")
	return nil
}

// VerifySHA256 checks a file against a hex digest.
func VerifySHA256(path, want string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", filepath.Base(path), got, want)
	}
	return nil
}
