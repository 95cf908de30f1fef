package tasks

import (
	"context"
	"sync"

	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/storage"
)

// fakeStorage is a minimal in-memory storage.Storage used by this
// package's tests. The teacher's mockgen-generated mock
// (pkg/storage/mocks) targets the old schema and is slated for
// regeneration in the final trim pass; a hand-written fake is simpler
// than hand-editing generated code and is the same pattern the teacher
// itself falls back to in pkg/manager's scheduler tests for
// storage.Storage collaborators that don't need full gomock expectation
// matching.
type fakeStorage struct {
	mu     sync.Mutex
	tasks  map[string]storage.Task
	anime  map[int64]storage.Anime
	source map[int64]storage.AnimeSource
	ep     map[int64]storage.Episode
	nextID int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		tasks:  make(map[string]storage.Task),
		anime:  make(map[int64]storage.Anime),
		source: make(map[int64]storage.AnimeSource),
		ep:     make(map[int64]storage.Episode),
	}
}

func (f *fakeStorage) Init(ctx context.Context) error { return nil }
func (f *fakeStorage) Close() error                   { return nil }

func (f *fakeStorage) CreateAnime(ctx context.Context, a storage.Anime) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a.ID = f.nextID
	f.anime[a.ID] = a
	return a.ID, nil
}
func (f *fakeStorage) GetAnime(ctx context.Context, id int64) (storage.Anime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.anime[id], nil
}
func (f *fakeStorage) FindAnime(ctx context.Context, title string, season, year int) (storage.Anime, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.anime {
		if a.Title == title && a.Season == season && a.Year == year {
			return a, true, nil
		}
	}
	return storage.Anime{}, false, nil
}
func (f *fakeStorage) UpdateAnime(ctx context.Context, a storage.Anime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anime[a.ID] = a
	return nil
}
func (f *fakeStorage) DeleteAnime(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.anime, id)
	return nil
}
func (f *fakeStorage) ListAnime(ctx context.Context) ([]storage.Anime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.Anime, 0, len(f.anime))
	for _, a := range f.anime {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStorage) CreateAnimeSource(ctx context.Context, s storage.AnimeSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	f.source[s.ID] = s
	return s.ID, nil
}
func (f *fakeStorage) GetAnimeSource(ctx context.Context, id int64) (storage.AnimeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source[id], nil
}
func (f *fakeStorage) FindAnimeSourceByProvider(ctx context.Context, provider, mediaID string) (storage.AnimeSource, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.source {
		if s.ProviderName == provider && s.MediaID == mediaID {
			return s, true, nil
		}
	}
	return storage.AnimeSource{}, false, nil
}
func (f *fakeStorage) ListAnimeSources(ctx context.Context, animeID int64) ([]storage.AnimeSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.AnimeSource
	for _, s := range f.source {
		if s.AnimeID == animeID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStorage) UpdateAnimeSource(ctx context.Context, s storage.AnimeSource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source[s.ID] = s
	return nil
}
func (f *fakeStorage) SetFavoritedSource(ctx context.Context, animeID, sourceID int64) error {
	return nil
}
func (f *fakeStorage) DeleteAnimeSource(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.source, id)
	return nil
}
func (f *fakeStorage) NextSourceOrder(ctx context.Context, animeID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, s := range f.source {
		if s.AnimeID == animeID && s.SourceOrder > max {
			max = s.SourceOrder
		}
	}
	return max + 1, nil
}

func (f *fakeStorage) CreateEpisode(ctx context.Context, e storage.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ep[e.ID] = e
	return nil
}
func (f *fakeStorage) GetEpisode(ctx context.Context, id int64) (storage.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ep[id], nil
}
func (f *fakeStorage) FindEpisode(ctx context.Context, sourceID int64, index int) (storage.Episode, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.ep {
		if e.SourceID == sourceID && e.EpisodeIndex == index {
			return e, true, nil
		}
	}
	return storage.Episode{}, false, nil
}
func (f *fakeStorage) ListEpisodes(ctx context.Context, sourceID int64) ([]storage.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Episode
	for _, e := range f.ep {
		if e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out, nil
}
func (f *fakeStorage) UpdateEpisode(ctx context.Context, e storage.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ep[e.ID] = e
	return nil
}
func (f *fakeStorage) DeleteEpisode(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ep, id)
	return nil
}

func (f *fakeStorage) GetAnimeMetadata(ctx context.Context, animeID int64) (storage.AnimeMetadata, bool, error) {
	return storage.AnimeMetadata{}, false, nil
}
func (f *fakeStorage) UpsertAnimeMetadata(ctx context.Context, m storage.AnimeMetadata) error {
	return nil
}
func (f *fakeStorage) GetAnimeAliases(ctx context.Context, animeID int64) (storage.AnimeAliases, bool, error) {
	return storage.AnimeAliases{}, false, nil
}
func (f *fakeStorage) UpsertAnimeAliases(ctx context.Context, a storage.AnimeAliases) error {
	return nil
}

func (f *fakeStorage) FindTmdbEpisodeMapping(ctx context.Context, tmdbTVID, groupID string, season, episode int) (storage.TmdbEpisodeMapping, bool, error) {
	return storage.TmdbEpisodeMapping{}, false, nil
}
func (f *fakeStorage) UpsertTmdbEpisodeMapping(ctx context.Context, m storage.TmdbEpisodeMapping) error {
	return nil
}

func (f *fakeStorage) CreateTask(ctx context.Context, t storage.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.TaskID] = t
	return nil
}
func (f *fakeStorage) GetTask(ctx context.Context, taskID string) (storage.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	return t, ok, nil
}
func (f *fakeStorage) UpdateTask(ctx context.Context, t storage.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[t.TaskID] = t
	return nil
}
func (f *fakeStorage) FindActiveTaskByUniqueKey(ctx context.Context, uniqueKey string) (storage.Task, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.UniqueKey == uniqueKey && (t.Status == storage.TaskStatusPending || t.Status == storage.TaskStatusRunning || t.Status == storage.TaskStatusPaused) {
			return t, true, nil
		}
	}
	return storage.Task{}, false, nil
}
func (f *fakeStorage) ListTasksByStatus(ctx context.Context, status storage.TaskStatus) ([]storage.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Task
	for _, t := range f.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStorage) ListRecoverableTasks(ctx context.Context, types []string) ([]storage.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	var out []storage.Task
	for _, t := range f.tasks {
		if t.Status == storage.TaskStatusPending && set[t.TaskType] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStorage) GetRateLimitState(ctx context.Context, key string) (ratelimit.State, bool, error) {
	return ratelimit.State{}, false, nil
}
func (f *fakeStorage) SaveRateLimitState(ctx context.Context, state ratelimit.State) error {
	return nil
}

func (f *fakeStorage) GetConfig(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeStorage) SetConfig(ctx context.Context, key, value string) error { return nil }
func (f *fakeStorage) AllConfig(ctx context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}
