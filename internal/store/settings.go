package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"rotoforge/pkg/types"
)

// The host's layer struct cannot carry extra fields, so generation settings
// live in this side table, matched to layers by (project, layer) name and
// kept in the layer's stacking order via position.
const settingsSchema = `
CREATE TABLE IF NOT EXISTS layer_settings (
	project        TEXT    NOT NULL,
	layer          TEXT    NOT NULL,
	position       INTEGER NOT NULL,
	is_rflayer     INTEGER NOT NULL DEFAULT 0,
	tier           TEXT    NOT NULL,
	guide_strength REAL    NOT NULL,
	feather_radius REAL    NOT NULL,
	tracking       INTEGER NOT NULL,
	search_radius  REAL    NOT NULL,
	PRIMARY KEY (project, layer)
);`

// SettingsRepo is the SQLite-backed side table of per-layer generation
// settings.
type SettingsRepo struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSettings opens (or creates) the settings database at dbPath.
func OpenSettings(dbPath string, log zerolog.Logger) (*SettingsRepo, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping settings db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(settingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply settings schema: %w", err)
	}
	return &SettingsRepo{db: db, log: log}, nil
}

// Close closes the underlying database.
func (r *SettingsRepo) Close() error { return r.db.Close() }

// Ensure inserts a default entry for the layer at the end of the project's
// order if none exists yet. Existing entries are untouched.
func (r *SettingsRepo) Ensure(ctx context.Context, project, layer string) error {
	def := types.DefaultSettings(layer)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO layer_settings
			(project, layer, position, is_rflayer, tier, guide_strength, feather_radius, tracking, search_radius)
		SELECT ?, ?, COALESCE(MAX(position), -1) + 1, 0, ?, ?, ?, ?, ?
		FROM layer_settings WHERE project = ?
		ON CONFLICT (project, layer) DO NOTHING
	`, project, layer, string(def.Tier), def.GuideStrength, def.FeatherRadius,
		boolToInt(def.Tracking), def.SearchRadius, project)
	return err
}

// Get returns the settings entry for one layer.
func (r *SettingsRepo) Get(ctx context.Context, project, layer string) (types.GenerationSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT layer, is_rflayer, tier, guide_strength, feather_radius, tracking, search_radius
		FROM layer_settings WHERE project = ? AND layer = ?
	`, project, layer)
	s, err := scanSettings(row.Scan)
	if err == sql.ErrNoRows {
		return s, ErrNotFound(LayerKey(project, layer))
	}
	return s, err
}

// List returns the project's settings entries in stacking order.
func (r *SettingsRepo) List(ctx context.Context, project string) ([]types.GenerationSettings, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT layer, is_rflayer, tier, guide_strength, feather_radius, tracking, search_radius
		FROM layer_settings WHERE project = ? ORDER BY position
	`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.GenerationSettings
	for rows.Next() {
		s, err := scanSettings(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Put replaces the stored values of an existing entry. The entry's position
// is unchanged.
func (r *SettingsRepo) Put(ctx context.Context, project string, s types.GenerationSettings) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE layer_settings
		SET is_rflayer = ?, tier = ?, guide_strength = ?, feather_radius = ?, tracking = ?, search_radius = ?
		WHERE project = ? AND layer = ?
	`, boolToInt(s.IsRFLayer), string(s.Tier), s.GuideStrength, s.FeatherRadius,
		boolToInt(s.Tracking), s.SearchRadius, project, s.Layer)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound(LayerKey(project, s.Layer))
	}
	return nil
}

// Rename changes an entry's layer name, keeping its values and position.
func (r *SettingsRepo) Rename(ctx context.Context, project, oldLayer, newLayer string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE layer_settings SET layer = ? WHERE project = ? AND layer = ?
	`, newLayer, project, oldLayer)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound(LayerKey(project, oldLayer))
	}
	return nil
}

// RenameProject moves every entry of a project to a new project name.
func (r *SettingsRepo) RenameProject(ctx context.Context, oldProject, newProject string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE layer_settings SET project = ? WHERE project = ?
	`, newProject, oldProject)
	return err
}

// Delete removes one entry and closes the position gap it leaves.
func (r *SettingsRepo) Delete(ctx context.Context, project, layer string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var pos int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM layer_settings WHERE project = ? AND layer = ?
	`, project, layer).Scan(&pos)
	if err == sql.ErrNoRows {
		return ErrNotFound(LayerKey(project, layer))
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM layer_settings WHERE project = ? AND layer = ?
	`, project, layer); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE layer_settings SET position = position - 1 WHERE project = ? AND position > ?
	`, project, pos); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteProject removes every entry of a project.
func (r *SettingsRepo) DeleteProject(ctx context.Context, project string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM layer_settings WHERE project = ?
	`, project)
	return err
}

// Move relocates the entry at position from to position to, shifting the
// entries in between, mirroring a layer reorder in the host.
func (r *SettingsRepo) Move(ctx context.Context, project string, from, to int) error {
	if from == to {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var layer string
	err = tx.QueryRowContext(ctx, `
		SELECT layer FROM layer_settings WHERE project = ? AND position = ?
	`, project, from).Scan(&layer)
	if err == sql.ErrNoRows {
		return ErrNotFound(fmt.Sprintf("%s position %d", project, from))
	}
	if err != nil {
		return err
	}

	if from < to {
		_, err = tx.ExecContext(ctx, `
			UPDATE layer_settings SET position = position - 1
			WHERE project = ? AND position > ? AND position <= ?
		`, project, from, to)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE layer_settings SET position = position + 1
			WHERE project = ? AND position >= ? AND position < ?
		`, project, to, from)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE layer_settings SET position = ? WHERE project = ? AND layer = ?
	`, to, project, layer); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the total number of entries across all projects.
func (r *SettingsRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layer_settings`).Scan(&n)
	return n, err
}

func scanSettings(scan func(dest ...any) error) (types.GenerationSettings, error) {
	var s types.GenerationSettings
	var rf, tracking int
	var tier string
	err := scan(&s.Layer, &rf, &tier, &s.GuideStrength, &s.FeatherRadius, &tracking, &s.SearchRadius)
	if err != nil {
		return s, err
	}
	s.IsRFLayer = rf == 1
	s.Tier = types.Tier(tier)
	s.Tracking = tracking == 1
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
