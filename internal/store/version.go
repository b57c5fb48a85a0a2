package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"rotoforge/internal/common/fsutil"
)

const (
	versionHeader  = "RotoForge AI versioning"
	currentVersion = "1.1.0"
	// legacyDirName is the pre-1.1.0 sequence directory, a sibling of the
	// data directory rather than inside it.
	legacyDirName = "RotoForge masksequences"
)

// MigrateLayout brings a pre-existing data directory up to the current
// on-disk layout. A directory without a version marker is treated as 1.0.0:
// its legacy sibling sequence folder is moved under root, out of the live
// sequence tree, and the marker is written. Idempotent.
func MigrateLayout(root string, log zerolog.Logger) error {
	loaded := readVersion(root)
	log.Info().Str("current", currentVersion).Str("project", loaded).Msg("data layout version")
	if loaded == currentVersion {
		return nil
	}

	if loaded == "1.0.0" {
		legacy := filepath.Join(filepath.Dir(root), legacyDirName)
		if fsutil.PathExists(legacy) {
			dest := filepath.Join(root, "outdated_masksequences")
			if err := fsutil.MoveDir(legacy, dest); err != nil {
				return err
			}
			log.Info().Str("from", legacy).Str("to", dest).Msg("relocated legacy mask sequences")
		}
	}
	return WriteVersion(root)
}

// WriteVersion stamps root with the current layout version marker.
func WriteVersion(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	content := versionHeader + "\n" + currentVersion + "\n"
	return os.WriteFile(filepath.Join(root, "version.txt"), []byte(content), 0o644)
}

// readVersion parses the marker's second line; a missing or malformed
// marker means the directory predates versioning.
func readVersion(root string) string {
	data, err := os.ReadFile(filepath.Join(root, "version.txt"))
	if err != nil {
		return "1.0.0"
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[1]) == "" {
		return "1.0.0"
	}
	return strings.TrimSpace(lines[1])
}
