package store

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

// SourceKind distinguishes a lone mask frame from a numbered sequence.
type SourceKind string

const (
	SourceFile     SourceKind = "FILE"
	SourceSequence SourceKind = "SEQUENCE"
)

// FrameName formats a frame number as a sequence filename. Zero padding
// keeps lexicographic directory order equal to frame order.
func FrameName(frame int) string {
	return fmt.Sprintf("%06d.png", frame)
}

// WriteFrame encodes one mask frame into the sequence directory, creating
// the directory if needed, and returns the written path.
func WriteFrame(dir string, frame int, img *image.Gray) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FrameName(frame))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// RepresentativeFrame returns the path of the lexicographically first frame
// file in dir, the frame a sequence is identified by when loading.
func RepresentativeFrame(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	return "", ErrNotFound(dir)
}

// LoadFrame decodes one frame file into a grayscale image.
func LoadFrame(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if g, ok := img.(*image.Gray); ok {
		return g, nil
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g, nil
}
