package titlerecognition

import "sync"

// Manager holds the currently active recognition-words rule set and
// applies it to raw provider titles/seasons before they land in storage.
// Rules are reloaded wholesale from the UI-editable document via Reload,
// guarded by a mutex since reloads race with in-flight import tasks.
type Manager struct {
	mu    sync.RWMutex
	rules []Rule
}

func NewManager() *Manager {
	return &Manager{}
}

// Reload replaces the active rule set from the raw recognition-words
// document content.
func (m *Manager) Reload(content string) error {
	rules, err := ParseRules(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rules = rules
	m.mu.Unlock()
	return nil
}

// Normalized is the result of running a raw (title, season) through the
// active rule set for a given provider source.
type Normalized struct {
	Title  string
	Season int
}

// Normalize applies the blocklist/replace rules, then the episode-anchor
// offset rules, then the per-provider season-offset rules, in that order —
// the storage-post-processing step generic_import runs before anything is
// written to the database.
func (m *Manager) Normalize(title string, season int, source string) (Normalized, error) {
	m.mu.RLock()
	rules := m.rules
	m.mu.RUnlock()

	title = ApplyBlocklistAndReplace(rules, title)
	title, err := ApplyEpisodeOffset(rules, title)
	if err != nil {
		return Normalized{}, err
	}
	season, err = ApplySeasonOffset(rules, source, season)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{Title: title, Season: season}, nil
}
