// Package store persists generated mask rasters as on-disk image sequences
// and keeps them, the per-layer generation settings and the host's mask
// graph reconciled with each other.
package store

import (
	"path/filepath"
	"strings"
)

// sequencesDirName is the subdirectory of the work dir holding all mask
// sequences, keyed by LayerKey/CombinedKey relative paths.
const sequencesDirName = "masksequences"

// LayerKey derives the storage key of a layer's mask sequence. The key
// doubles as the host-side image name and the on-disk relative path.
func LayerKey(project, layer string) string {
	return project + "/MaskLayers/" + layer
}

// CombinedKey derives the storage key of a project's baked combined mask.
func CombinedKey(project string) string {
	return project + "/Combined"
}

// ProjectPrefix is the key prefix shared by everything belonging to one
// project, used for rename and delete sweeps.
func ProjectPrefix(project string) string {
	return project + "/"
}

// SequenceDir resolves a storage key to its absolute on-disk directory.
func (s *Store) SequenceDir(key string) string {
	return filepath.Join(s.root, sequencesDirName, filepath.FromSlash(key))
}

// rekeyPrefix swaps oldPrefix for newPrefix at the start of key.
func rekeyPrefix(key, oldPrefix, newPrefix string) string {
	return newPrefix + strings.TrimPrefix(key, oldPrefix)
}
