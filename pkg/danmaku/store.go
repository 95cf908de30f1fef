package danmaku

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store is the on-disk danmaku artifact tree rooted at Root, with separate
// path templates for TV and movie episodes.
type Store struct {
	Root          string
	TVTemplate    string
	MovieTemplate string
}

// NewStore returns a Store; empty templates fall back to the spec's
// defaults.
func NewStore(root, tvTemplate, movieTemplate string) *Store {
	if tvTemplate == "" {
		tvTemplate = DefaultTVTemplate
	}
	if movieTemplate == "" {
		movieTemplate = DefaultMovieTemplate
	}
	return &Store{Root: root, TVTemplate: tvTemplate, MovieTemplate: movieTemplate}
}

// SaveParams describes one call to Save.
type SaveParams struct {
	// ExistingPath is the episode's current danmaku_file_path, or "" if it
	// has never been written.
	ExistingPath  string
	ExistingCount int
	Vars          PathVars
	IsMovie       bool
	Provider      string
	Comments      []Comment
}

// SaveResult is returned by Save.
type SaveResult struct {
	Path    string
	Count   int
	Written bool
}

// usesDefaultTemplate reports whether s's template for isMovie is still the
// spec's stock default, which determines the safety bound used when
// sweeping empty directories on delete.
func (s *Store) usesDefaultTemplate(isMovie bool) bool {
	if isMovie {
		return s.MovieTemplate == DefaultMovieTemplate
	}
	return s.TVTemplate == DefaultTVTemplate
}

func (s *Store) template(isMovie bool) string {
	if isMovie {
		return s.MovieTemplate
	}
	return s.TVTemplate
}

// Save implements the smart-refresh write contract: a brand-new episode is
// always written; an existing one is only overwritten when the new comment
// count is strictly greater; an empty comment list never touches the file.
func (s *Store) Save(p SaveParams) (SaveResult, error) {
	newCount := len(p.Comments)
	if newCount == 0 {
		return SaveResult{Path: p.ExistingPath, Count: 0, Written: false}, nil
	}

	path := p.ExistingPath
	if path == "" {
		rel := RenderPath(s.template(p.IsMovie), p.Vars)
		path = filepath.Join(s.Root, filepath.FromSlash(rel))
	} else if newCount <= p.ExistingCount {
		return SaveResult{Path: path, Count: p.ExistingCount, Written: false}, nil
	}

	data, err := Marshal(p.Vars.EpisodeID, p.Provider, p.Comments)
	if err != nil {
		return SaveResult{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return SaveResult{}, err
	}
	if err := atomicWrite(path, data); err != nil {
		return SaveResult{}, err
	}

	return SaveResult{Path: path, Count: newCount, Written: true}, nil
}

// atomicWrite writes data to a temp file alongside path and renames it into
// place, so a reader never observes a partially-written file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// DeleteEpisode removes path and sweeps any now-empty parent directories,
// bounded per the delete contract: up to Root for a default-template path,
// or three levels above the file for a custom-template path.
func (s *Store) DeleteEpisode(path string, isMovie bool) error {
	return s.deletePaths([]string{path}, isMovie)
}

// BulkDelete removes every path in paths, then performs one directory
// cleanup pass per affected directory, deepest first.
func (s *Store) BulkDelete(paths []string, isMovie bool) error {
	return s.deletePaths(paths, isMovie)
}

func (s *Store) deletePaths(paths []string, isMovie bool) error {
	dirs := make(map[string]struct{})
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		dirs[filepath.Dir(path)] = struct{}{}
	}

	ordered := make([]string, 0, len(dirs))
	for d := range dirs {
		ordered = append(ordered, d)
	}
	// Deepest first so a child directory is evaluated (and possibly
	// removed) before its parent is considered.
	sort.Slice(ordered, func(i, j int) bool {
		return strings.Count(ordered[i], string(filepath.Separator)) > strings.Count(ordered[j], string(filepath.Separator))
	})

	bound := s.Root
	defaultTemplate := s.usesDefaultTemplate(isMovie)

	for _, dir := range ordered {
		limit := bound
		if !defaultTemplate {
			limit = ancestorLevelsAbove(dir, 3)
		}
		sweepEmptyDirs(dir, limit)
	}
	return nil
}

// ancestorLevelsAbove returns the directory n levels above dir, used as the
// safety-bound floor for custom-template cleanup sweeps.
func ancestorLevelsAbove(dir string, n int) string {
	limit := dir
	for i := 0; i < n; i++ {
		parent := filepath.Dir(limit)
		if parent == limit {
			break
		}
		limit = parent
	}
	return limit
}

// sweepEmptyDirs deletes dir and walks upward deleting empty ancestors,
// stopping at (not including) limit.
func sweepEmptyDirs(dir, limit string) {
	for dir != limit && dir != "." && dir != string(filepath.Separator) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
