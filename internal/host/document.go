// Package host is the boundary to the editor integration: it holds the most
// recent document snapshot pushed by the editor and resolves source frames.
// The service observes this state; it never owns or mutates the editor's
// mask graph.
package host

import (
	"sync"

	"rotoforge/pkg/types"
)

// Document is the concurrency-safe holder of the editor's last pushed
// document snapshot.
type Document struct {
	mu  sync.RWMutex
	doc types.DocumentState
}

func NewDocument() *Document {
	return &Document{}
}

// Replace swaps in a full snapshot.
func (d *Document) Replace(doc types.DocumentState) {
	d.mu.Lock()
	d.doc = doc
	d.mu.Unlock()
}

// Snapshot returns the current snapshot by value.
func (d *Document) Snapshot() types.DocumentState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc
}

// Project returns a copy of the named project.
func (d *Document) Project(name string) (types.ProjectState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p := d.doc.Project(name)
	if p == nil {
		return types.ProjectState{}, false
	}
	return *p, true
}

// Layer returns a copy of the named layer within a project.
func (d *Document) Layer(project, layer string) (types.LayerState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p := d.doc.Project(project)
	if p == nil {
		return types.LayerState{}, false
	}
	l := p.Layer(layer)
	if l == nil {
		return types.LayerState{}, false
	}
	return *l, true
}

// CurrentFrame returns the editor's playhead frame.
func (d *Document) CurrentFrame() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.CurrentFrame
}

// SetCurrentFrame moves the playhead, mirroring editor-driven scrubbing.
func (d *Document) SetCurrentFrame(frame int) {
	d.mu.Lock()
	d.doc.CurrentFrame = frame
	d.mu.Unlock()
}
