package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/metasource"
	metafixture "github.com/hikari-danmu/server/pkg/metasource/fixture"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	scraperfixture "github.com/hikari-danmu/server/pkg/scraper/fixture"
	"github.com/hikari-danmu/server/pkg/search"
	"github.com/hikari-danmu/server/pkg/storage"
	"github.com/hikari-danmu/server/pkg/tasks"
	"github.com/hikari-danmu/server/pkg/titlerecognition"
)

// fakeStorage is a minimal in-memory storage.Storage, mirroring
// pkg/tasks's own test double — this package needs the same collaborator
// shape but can't import an unexported _test.go type across packages.
type fakeStorage struct {
	mu     sync.Mutex
	tasks  map[string]storage.Task
	anime  map[int64]storage.Anime
	source map[int64]storage.AnimeSource
	nextID int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		tasks:  make(map[string]storage.Task),
		anime:  make(map[int64]storage.Anime),
		source: make(map[int64]storage.AnimeSource),
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
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.source {
		if s.AnimeID == animeID {
			s.IsFavorited = id == sourceID
			f.source[id] = s
		}
	}
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

func (f *fakeStorage) CreateEpisode(ctx context.Context, e storage.Episode) error { return nil }
func (f *fakeStorage) GetEpisode(ctx context.Context, id int64) (storage.Episode, error) {
	return storage.Episode{}, nil
}
func (f *fakeStorage) FindEpisode(ctx context.Context, sourceID int64, index int) (storage.Episode, bool, error) {
	return storage.Episode{}, false, nil
}
func (f *fakeStorage) ListEpisodes(ctx context.Context, sourceID int64) ([]storage.Episode, error) {
	return nil, nil
}
func (f *fakeStorage) UpdateEpisode(ctx context.Context, e storage.Episode) error { return nil }
func (f *fakeStorage) DeleteEpisode(ctx context.Context, id int64) error          { return nil }

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
	return nil, nil
}
func (f *fakeStorage) ListRecoverableTasks(ctx context.Context, types []string) ([]storage.Task, error) {
	return nil, nil
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

// buildDispatcher wires a Dispatcher and its collaborators without
// starting the task manager's worker supervision tree — callers that need
// tasks to actually run call mgr.Start themselves (see newTestDispatcher);
// callers that only exercise Submit's dedup bookkeeping can leave it
// unstarted so a submitted task deterministically stays queued.
func buildDispatcher(t *testing.T) (*Dispatcher, *fakeStorage, *tasks.Manager) {
	t.Helper()
	store := newFakeStorage()

	scrapers := scraper.NewRegistry()
	scrapers.Register(&scraperfixture.Scraper{
		ProviderName: "bilibili",
		Results: []scraper.SearchResult{
			{MediaID: "100", Title: "葬送的芙莉莲", Year: 2023, Season: 1, Type: "tv_series"},
		},
		Episodes: map[string][]scraper.EpisodeInfo{
			"100": {{ProviderEpisodeID: "100-1", Index: 1, Title: "第一集"}},
		},
		Comments: map[string][]danmaku.Comment{},
	})
	metaSources := metasource.NewRegistry()
	metaSources.Register(&metafixture.Source{SourceName: "tmdb"})

	pipeline := search.New(scrapers, metaSources, ratelimit.Disabled{}, nil, nil)

	svc := &tasks.Services{
		Storage:  store,
		Scrapers: scrapers,
		Limiter:  ratelimit.Disabled{},
		Titles:   titlerecognition.NewManager(),
		Danmaku:  danmaku.NewStore(t.TempDir(), "${animeId}/${episodeId}.xml", "${title}/${episodeId}.xml"),
	}
	mgr := tasks.New(store, zap.NewNop())
	svc.Manager = mgr

	convert := &NameConverter{Enabled: false}
	return NewDispatcher(store, pipeline, mgr, svc, convert, zap.NewNop()), store, mgr
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeStorage) {
	t.Helper()
	d, store, mgr := buildDispatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Start(ctx)

	return d, store
}

// awaitTaskStatus polls store for taskID to reach one of the given
// terminal statuses, failing the test if it doesn't within the deadline.
func awaitTaskStatus(t *testing.T, store *fakeStorage, taskID string, want ...storage.TaskStatus) storage.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		task, ok, err := store.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			for _, w := range want {
				if task.Status == w {
					return task
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s did not reach %v within deadline, last: %+v", taskID, want, task)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatchFavoritedSourceFastPath(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	animeID, err := store.CreateAnime(ctx, storage.Anime{Title: "葬送的芙莉莲", Season: 1, Year: 2023})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateAnimeSource(ctx, storage.AnimeSource{AnimeID: animeID, ProviderName: "bilibili", MediaID: "100", SourceOrder: 1, IsFavorited: true}); err != nil {
		t.Fatal(err)
	}

	taskID, err := d.Submit(ctx, Params{
		AnimeTitle:          "葬送的芙莉莲",
		MediaType:           "tv_series",
		Season:              1,
		Year:                2023,
		CurrentEpisodeIndex: 1,
		WebhookSource:       "emby",
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected a non-empty task id")
	}

	task := awaitTaskStatus(t, store, taskID, storage.TaskStatusCompleted, storage.TaskStatusFailed)
	if task.Status != storage.TaskStatusCompleted {
		t.Fatalf("expected dispatch task to complete, got status %q, description %q", task.Status, task.Description)
	}
}

func TestDispatchSearchFallbackPath(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	taskID, err := d.Submit(ctx, Params{
		AnimeTitle:          "葬送的芙莉莲",
		MediaType:           "tv_series",
		Season:              1,
		Year:                2023,
		CurrentEpisodeIndex: 1,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected a non-empty task id")
	}

	task := awaitTaskStatus(t, store, taskID, storage.TaskStatusCompleted, storage.TaskStatusFailed)
	if task.Status != storage.TaskStatusCompleted {
		t.Fatalf("expected dispatch task to complete, got status %q, description %q", task.Status, task.Description)
	}
}

func TestDispatchNoMatchEventuallyFails(t *testing.T) {
	d, store := newTestDispatcher(t)
	ctx := context.Background()

	taskID, err := d.Submit(ctx, Params{
		AnimeTitle: "完全不存在的作品名字",
		MediaType:  "tv_series",
		Season:     1,
	})
	if err != nil {
		t.Fatalf("Submit failed for an unmatched title: %v", err)
	}
	if taskID == "" {
		t.Fatal("expected a non-empty task id even though the search will fail")
	}

	task := awaitTaskStatus(t, store, taskID, storage.TaskStatusCompleted, storage.TaskStatusFailed)
	if task.Status != storage.TaskStatusFailed {
		t.Fatalf("expected dispatch task to fail for an unmatched title, got status %q", task.Status)
	}
	if task.Description == "" {
		t.Fatal("expected a failure description")
	}
}

// TestSubmitDuplicateEventCoalescesViaUniqueKey exercises Submit's dedup
// directly: a second event for the same (title, season) while the first
// is still active is swallowed as success rather than double-submitted.
// The manager is deliberately left unstarted so the first task stays
// pending — no race with a worker draining it mid-test.
func TestSubmitDuplicateEventCoalescesViaUniqueKey(t *testing.T) {
	d, store, _ := buildDispatcher(t)
	ctx := context.Background()

	animeID, err := store.CreateAnime(ctx, storage.Anime{Title: "葬送的芙莉莲", Season: 1, Year: 2023})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateAnimeSource(ctx, storage.AnimeSource{AnimeID: animeID, ProviderName: "bilibili", MediaID: "100", SourceOrder: 1, IsFavorited: true}); err != nil {
		t.Fatal(err)
	}

	p := Params{AnimeTitle: "葬送的芙莉莲", MediaType: "tv_series", Season: 1, Year: 2023, CurrentEpisodeIndex: 1}

	first, err := d.Submit(ctx, p)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first == "" {
		t.Fatal("expected first submit to return a task id")
	}

	second, err := d.Submit(ctx, p)
	if err != nil {
		t.Fatalf("second submit should not error on an in-flight duplicate: %v", err)
	}
	if second != "" {
		t.Fatalf("expected second submit to be swallowed as a conflict, got task id %q", second)
	}
}

func TestNameConverterSkipsCJKTitles(t *testing.T) {
	c := &NameConverter{Enabled: true, SourcePriority: []string{"tmdb"}, MetaSources: metasource.NewRegistry()}
	got, err := c.Convert(context.Background(), "葬送的芙莉莲")
	if err != nil {
		t.Fatal(err)
	}
	if got != "葬送的芙莉莲" {
		t.Fatalf("expected CJK title to pass through unchanged, got %q", got)
	}
}

func TestNameConverterDisabledPassesThrough(t *testing.T) {
	c := &NameConverter{Enabled: false}
	got, err := c.Convert(context.Background(), "Frieren: Beyond Journey's End")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Frieren: Beyond Journey's End" {
		t.Fatalf("expected disabled converter to pass through unchanged, got %q", got)
	}
}

func TestNameConverterQueriesSourcesInPriorityOrder(t *testing.T) {
	metaSources := metasource.NewRegistry()
	metaSources.Register(&metafixture.Source{
		SourceName: "empty",
		Candidates: nil,
	})
	metaSources.Register(&metafixture.Source{
		SourceName: "tmdb",
		Candidates: []metasource.Candidate{{ForeignID: "1", Title: "葬送的芙莉莲", Year: 2023}},
	})
	c := &NameConverter{Enabled: true, SourcePriority: []string{"empty", "tmdb"}, MetaSources: metaSources}

	got, err := c.Convert(context.Background(), "Frieren: Beyond Journey's End")
	if err != nil {
		t.Fatal(err)
	}
	if got != "葬送的芙莉莲" {
		t.Fatalf("expected conversion via tmdb fallback, got %q", got)
	}
}
