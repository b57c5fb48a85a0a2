// Package overlay holds the live tracking preview: the most recent raw mask
// frame, swapped in per tick and cleared when the session ends.
package overlay

import (
	"image"
	"sync"
)

// Preview is the single live-preview slot.
type Preview struct {
	mu    sync.RWMutex
	img   *image.Gray
	frame int
}

func New() *Preview {
	return &Preview{}
}

// Publish replaces the preview with the mask produced for frame.
func (p *Preview) Publish(frame int, img *image.Gray) {
	p.mu.Lock()
	p.img = img
	p.frame = frame
	p.mu.Unlock()
}

// Latest returns the current preview mask and its frame, or false when no
// preview is live.
func (p *Preview) Latest() (*image.Gray, int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.img == nil {
		return nil, 0, false
	}
	return p.img, p.frame, true
}

// Clear drops the preview.
func (p *Preview) Clear() {
	p.mu.Lock()
	p.img = nil
	p.frame = 0
	p.mu.Unlock()
}
