package store

import (
	"image"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Raster is one loaded mask image, mirroring a host-side image datablock.
// Key doubles as the host image name and the sequence's relative path.
type Raster struct {
	Key   string
	Kind  SourceKind
	Path  string
	Image *image.Gray
}

// Store owns the on-disk mask sequences under root, the in-memory raster
// index, and the settings side table, and reconciles them against host
// document snapshots.
type Store struct {
	root     string
	settings *SettingsRepo
	log      zerolog.Logger

	mu      sync.Mutex
	rasters map[string]*Raster
	// prevProjects is the project name set at the last snapshot, the
	// baseline reconciliation diffs against.
	prevProjects map[string]bool
	// suppress gates reconciliation off while a document load replaces
	// the whole graph at once.
	suppress bool
}

// New creates a store rooted at dir (the extension's data directory).
func New(dir string, settings *SettingsRepo, log zerolog.Logger) *Store {
	return &Store{
		root:         dir,
		settings:     settings,
		log:          log,
		rasters:      make(map[string]*Raster),
		prevProjects: make(map[string]bool),
	}
}

// Root returns the store's data directory.
func (s *Store) Root() string { return s.root }

// Settings exposes the settings side table.
func (s *Store) Settings() *SettingsRepo { return s.settings }

// Raster returns the loaded raster for key, or nil.
func (s *Store) Raster(key string) *Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rasters[key]
}

// PutRaster installs (or replaces) a raster in the index.
func (s *Store) PutRaster(r *Raster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rasters[r.Key] = r
}

// RasterKeys returns the sorted keys of all loaded rasters.
func (s *Store) RasterKeys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.rasters))
	for k := range s.rasters {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// RasterCount returns the number of loaded rasters.
func (s *Store) RasterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rasters)
}

// RefreshRaster reloads key's representative frame from disk, marking the
// raster a sequence. Called after generation appends or rewrites frames.
func (s *Store) RefreshRaster(key string) error {
	dir := s.SequenceDir(key)
	path, err := RepresentativeFrame(dir)
	if err != nil {
		return err
	}
	img, err := LoadFrame(path)
	if err != nil {
		return err
	}
	s.PutRaster(&Raster{Key: key, Kind: SourceSequence, Path: path, Image: img})
	return nil
}

// loadSequence loads key's sequence into the index if its directory exists
// on disk and the key is not already loaded.
func (s *Store) loadSequence(key string) {
	s.mu.Lock()
	_, loaded := s.rasters[key]
	s.mu.Unlock()
	if loaded {
		return
	}
	if _, err := RepresentativeFrame(s.SequenceDir(key)); err != nil {
		return
	}
	if err := s.RefreshRaster(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to load mask sequence")
	}
}

// rekeyRasters renames every loaded raster whose key starts with oldPrefix,
// re-resolving each one's representative frame at the new location.
func (s *Store) rekeyRasters(oldPrefix, newPrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, r := range s.rasters {
		if !strings.HasPrefix(key, oldPrefix) {
			continue
		}
		newKey := rekeyPrefix(key, oldPrefix, newPrefix)
		delete(s.rasters, key)
		r.Key = newKey
		if path, err := RepresentativeFrame(filepath.Join(s.root, sequencesDirName, filepath.FromSlash(newKey))); err == nil {
			r.Path = path
		}
		s.rasters[newKey] = r
	}
}

// dropRasters removes every loaded raster whose key starts with prefix.
// On-disk data is left in place for recovery.
func (s *Store) dropRasters(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.rasters {
		if strings.HasPrefix(key, prefix) {
			delete(s.rasters, key)
		}
	}
}
