package store

import (
	"context"
	"fmt"

	"rotoforge/internal/common/fsutil"
	"rotoforge/pkg/types"
)

// BeginLoad suspends reconciliation. The host fires this before replacing
// the whole document; the wholesale swap must not be misread as renames.
func (s *Store) BeginLoad() {
	s.mu.Lock()
	s.suppress = true
	s.mu.Unlock()
}

// DocumentLoaded re-arms reconciliation against the freshly loaded document,
// loads every layer's persisted sequence, and backfills missing settings
// entries with defaults.
func (s *Store) DocumentLoaded(ctx context.Context, doc *types.DocumentState) error {
	s.mu.Lock()
	s.suppress = false
	s.prevProjects = make(map[string]bool, len(doc.Projects))
	for _, p := range doc.Projects {
		s.prevProjects[p.Name] = true
	}
	s.mu.Unlock()

	for _, project := range doc.Projects {
		for _, layer := range project.Layers {
			s.loadSequence(LayerKey(project.Name, layer.Name))
			if err := s.settings.Ensure(ctx, project.Name, layer.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reconcile diffs a document snapshot against the store's last known state
// and replays at most one structural change: a project rename, addition or
// removal, or a layer move, rename, addition or removal. More than one
// simultaneous change is reported as a conflict and left unapplied.
func (s *Store) Reconcile(ctx context.Context, doc *types.DocumentState) error {
	s.mu.Lock()
	if s.suppress {
		s.mu.Unlock()
		return nil
	}
	post := make(map[string]bool, len(doc.Projects))
	for _, p := range doc.Projects {
		post[p.Name] = true
	}
	var added, removed []string
	for name := range post {
		if !s.prevProjects[name] {
			added = append(added, name)
		}
	}
	for name := range s.prevProjects {
		if !post[name] {
			removed = append(removed, name)
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		s.prevProjects = post
		s.mu.Unlock()
		switch {
		case len(added) == 1 && len(removed) == 1:
			return s.renameProject(ctx, removed[0], added[0])
		case len(added) == 1 && len(removed) == 0:
			s.log.Info().Str("project", added[0]).Msg("added mask project")
			return nil
		case len(added) == 0 && len(removed) == 1:
			s.log.Info().Str("project", removed[0]).Msg("removed mask project")
			s.dropRasters(ProjectPrefix(removed[0]))
			return s.settings.DeleteProject(ctx, removed[0])
		default:
			err := ErrSyncConflict(fmt.Sprintf("%d projects added, %d removed in one update", len(added), len(removed)))
			s.log.Warn().Err(err).Msg("skipping reconciliation")
			return err
		}
	}
	s.mu.Unlock()

	for i := range doc.Projects {
		project := &doc.Projects[i]
		entries, err := s.settings.List(ctx, project.Name)
		if err != nil {
			return err
		}
		pre := make([]string, len(entries))
		for j, e := range entries {
			pre[j] = e.Layer
		}
		postLayers := make([]string, len(project.Layers))
		for j := range project.Layers {
			postLayers[j] = project.Layers[j].Name
		}
		if equalStrings(pre, postLayers) {
			continue
		}
		return s.reconcileLayers(ctx, project.Name, pre, postLayers)
	}
	return nil
}

func (s *Store) reconcileLayers(ctx context.Context, project string, pre, post []string) error {
	if sameSet(pre, post) {
		// Same names in a different order: find the single displacement
		// that explains the permutation.
		for i, name := range pre {
			ni := indexOf(post, name)
			if ni == i {
				continue
			}
			if equalStrings(simulateMove(pre, i, ni), post) {
				s.log.Info().Str("project", project).Str("layer", name).
					Int("from", i).Int("to", ni).Msg("moved mask layer")
				return s.settings.Move(ctx, project, i, ni)
			}
		}
		err := ErrSyncConflict("layer reorder is not a single displacement")
		s.log.Warn().Err(err).Str("project", project).Msg("skipping reconciliation")
		return err
	}

	var added, removed []string
	for _, name := range post {
		if indexOf(pre, name) < 0 {
			added = append(added, name)
		}
	}
	for _, name := range pre {
		if indexOf(post, name) < 0 {
			removed = append(removed, name)
		}
	}

	switch {
	case len(added) == 1 && len(removed) == 1:
		return s.renameLayer(ctx, project, removed[0], added[0])
	case len(added) == 1 && len(removed) == 0:
		s.log.Info().Str("project", project).Str("layer", added[0]).Msg("added mask layer")
		return s.settings.Ensure(ctx, project, added[0])
	case len(added) == 0 && len(removed) == 1:
		s.log.Info().Str("project", project).Str("layer", removed[0]).Msg("removed mask layer")
		return s.settings.Delete(ctx, project, removed[0])
	}
	err := ErrSyncConflict(fmt.Sprintf("%d layers added, %d removed in one update", len(added), len(removed)))
	s.log.Warn().Err(err).Str("project", project).Msg("skipping reconciliation")
	return err
}

// renameProject relocates the project's sequence tree, rekeys its loaded
// rasters and moves its settings entries, all under the new name.
func (s *Store) renameProject(ctx context.Context, oldName, newName string) error {
	s.log.Info().Str("from", oldName).Str("to", newName).Msg("renamed mask project")
	oldDir := s.SequenceDir(oldName)
	if fsutil.PathExists(oldDir) {
		if err := fsutil.MoveDir(oldDir, s.SequenceDir(newName)); err != nil {
			return err
		}
	}
	s.rekeyRasters(ProjectPrefix(oldName), ProjectPrefix(newName))
	return s.settings.RenameProject(ctx, oldName, newName)
}

// renameLayer relocates one layer's sequence directory, rekeys its loaded
// raster and renames its settings entry, preserving the stored values.
func (s *Store) renameLayer(ctx context.Context, project, oldName, newName string) error {
	s.log.Info().Str("project", project).Str("from", oldName).Str("to", newName).Msg("renamed mask layer")
	oldKey := LayerKey(project, oldName)
	newKey := LayerKey(project, newName)
	oldDir := s.SequenceDir(oldKey)
	if fsutil.PathExists(oldDir) {
		if err := fsutil.MoveDir(oldDir, s.SequenceDir(newKey)); err != nil {
			return err
		}
	}
	s.rekeyRasters(oldKey, newKey)
	return s.settings.Rename(ctx, project, oldName, newName)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	for _, v := range b {
		if !seen[v] {
			return false
		}
	}
	return true
}

func indexOf(list []string, v string) int {
	for i, e := range list {
		if e == v {
			return i
		}
	}
	return -1
}

func simulateMove(list []string, from, to int) []string {
	rest := make([]string, 0, len(list)-1)
	rest = append(rest, list[:from]...)
	rest = append(rest, list[from+1:]...)
	out := make([]string, 0, len(list))
	out = append(out, rest[:to]...)
	out = append(out, list[from])
	out = append(out, rest[to:]...)
	return out
}
