package host

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"golang.org/x/image/draw"
)

// FramePath resolves a source pattern to one frame's file path. Patterns
// containing a format verb (e.g. "shots/sh010.%06d.png") are expanded with
// the frame number; plain paths name a single still image for every frame.
func FramePath(pattern string, frame int) string {
	if strings.Contains(pattern, "%") {
		return fmt.Sprintf(pattern, frame)
	}
	return pattern
}

// LoadFrame decodes one source frame into RGBA.
func LoadFrame(pattern string, frame int) (*image.RGBA, error) {
	path := FramePath(pattern, frame)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
