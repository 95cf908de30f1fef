// Package metasource defines the metadata-catalogue source interface
// (TMDb, TVDB, Bangumi, Douban, …) that the search pipeline and metadata
// fill-in step query, independently of pkg/scraper's danmaku providers.
package metasource

import "context"

// Details is what a metadata source returns for one matched work.
type Details struct {
	ForeignID   string
	Title       string
	Year        int
	Season      int
	ImageURL    string
	EpisodeGroupID string
}

// Candidate is one search hit.
type Candidate struct {
	ForeignID string
	Title     string
	Year      int
}

// Source is the required surface every metadata catalogue implements.
type Source interface {
	Name() string
	Search(ctx context.Context, title string, year int) ([]Candidate, error)
	GetDetails(ctx context.Context, foreignID string) (Details, error)
}

// Registry is a name-keyed Source lookup, mirroring pkg/scraper's
// registry shape.
type Registry struct {
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

func (r *Registry) Register(s Source) {
	r.sources[s.Name()] = s
}

func (r *Registry) Get(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

func (r *Registry) All() []Source {
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s)
	}
	return out
}
