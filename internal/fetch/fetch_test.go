package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rotoforge/pkg/types"
)

func TestFetchTierDownloadsBothHalves(t *testing.T) {
	payload := []byte("weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	sum := sha256.Sum256(payload)
	src := Source{
		Tier:          types.TierLight,
		EncoderURL:    srv.URL + "/light_encoder.onnx",
		DecoderURL:    srv.URL + "/light_decoder.onnx",
		EncoderSHA256: hex.EncodeToString(sum[:]),
		DecoderSHA256: hex.EncodeToString(sum[:]),
	}
	f := &Fetcher{Client: srv.Client(), Log: zerolog.Nop()}
	if err := f.FetchTier(context.Background(), dir, src); err != nil {
		t.Fatalf("FetchTier: %v", err)
	}
	for _, name := range []string{"light_encoder.onnx", "light_decoder.onnx"} {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if string(b) != string(payload) {
			t.Fatalf("%s content = %q", name, b)
		}
	}
}

func TestFetchTierSkipsExisting(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("new"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base_encoder.onnx"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := Source{
		Tier:       types.TierBase,
		EncoderURL: srv.URL + "/base_encoder.onnx",
		DecoderURL: srv.URL + "/base_decoder.onnx",
	}
	f := &Fetcher{Client: srv.Client(), Log: zerolog.Nop()}
	if err := f.FetchTier(context.Background(), dir, src); err != nil {
		t.Fatalf("FetchTier: %v", err)
	}
	if hits != 1 {
		t.Fatalf("hits = %d, want 1 (encoder should be skipped)", hits)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "base_encoder.onnx"))
	if string(b) != "old" {
		t.Fatalf("existing file overwritten: %q", b)
	}
}

func TestFetchTierChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("corrupted"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := Source{
		Tier:          types.TierLight,
		EncoderURL:    srv.URL + "/light_encoder.onnx",
		DecoderURL:    srv.URL + "/light_decoder.onnx",
		EncoderSHA256: "deadbeef",
	}
	f := &Fetcher{Client: srv.Client(), Log: zerolog.Nop()}
	if err := f.FetchTier(context.Background(), dir, src); err == nil {
		t.Fatal("expected checksum error")
	}
	if _, err := os.Stat(filepath.Join(dir, "light_encoder.onnx")); !os.IsNotExist(err) {
		t.Fatal("corrupt download should be removed")
	}
}

func TestFetchTierAbortsOnCancelledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("partial"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	dir := t.TempDir()
	src := Source{
		Tier:       types.TierLight,
		EncoderURL: srv.URL + "/light_encoder.onnx",
		DecoderURL: srv.URL + "/light_decoder.onnx",
	}
	f := &Fetcher{Client: srv.Client(), Log: zerolog.Nop()}
	if err := f.FetchTier(ctx, dir, src); err == nil {
		t.Fatal("expected cancellation error")
	}
	if _, err := os.Stat(filepath.Join(dir, "light_encoder.onnx")); !os.IsNotExist(err) {
		t.Fatal("aborted download must not leave a weight file behind")
	}
}

func TestVerifySHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.onnx")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256([]byte("abc"))
	if err := VerifySHA256(path, hex.EncodeToString(sum[:])); err != nil {
		t.Fatalf("VerifySHA256: %v", err)
	}
	if err := VerifySHA256(path, "00"); err == nil {
		t.Fatal("expected mismatch error")
	}
}
