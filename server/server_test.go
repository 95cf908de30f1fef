package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/configstore"
	"github.com/hikari-danmu/server/pkg/danmaku"
	"github.com/hikari-danmu/server/pkg/metasource"
	"github.com/hikari-danmu/server/pkg/ratelimit"
	"github.com/hikari-danmu/server/pkg/scraper"
	scraperfixture "github.com/hikari-danmu/server/pkg/scraper/fixture"
	"github.com/hikari-danmu/server/pkg/search"
	"github.com/hikari-danmu/server/pkg/storage"
	"github.com/hikari-danmu/server/pkg/tasks"
	"github.com/hikari-danmu/server/pkg/titlerecognition"
	"github.com/hikari-danmu/server/pkg/webhook"
)

// fakeStorage is a minimal in-memory storage.Storage, mirroring the same
// double used in pkg/webhook and pkg/tasks — each package needs its own
// copy since the type is unexported.
type fakeStorage struct {
	mu     sync.Mutex
	tasks  map[string]storage.Task
	anime  map[int64]storage.Anime
	source map[int64]storage.AnimeSource
	config map[string]string
	nextID int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		tasks:  make(map[string]storage.Task),
		anime:  make(map[int64]storage.Anime),
		source: make(map[int64]storage.AnimeSource),
		config: make(map[string]string),
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
	return f.anime[id], nil
}
func (f *fakeStorage) FindAnime(ctx context.Context, title string, season, year int) (storage.Anime, bool, error) {
	for _, a := range f.anime {
		if a.Title == title && a.Season == season && a.Year == year {
			return a, true, nil
		}
	}
	return storage.Anime{}, false, nil
}
func (f *fakeStorage) UpdateAnime(ctx context.Context, a storage.Anime) error {
	f.anime[a.ID] = a
	return nil
}
func (f *fakeStorage) DeleteAnime(ctx context.Context, id int64) error {
	delete(f.anime, id)
	return nil
}
func (f *fakeStorage) ListAnime(ctx context.Context) ([]storage.Anime, error) {
	var out []storage.Anime
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
	return f.source[id], nil
}
func (f *fakeStorage) FindAnimeSourceByProvider(ctx context.Context, provider, mediaID string) (storage.AnimeSource, bool, error) {
	for _, s := range f.source {
		if s.ProviderName == provider && s.MediaID == mediaID {
			return s, true, nil
		}
	}
	return storage.AnimeSource{}, false, nil
}
func (f *fakeStorage) ListAnimeSources(ctx context.Context, animeID int64) ([]storage.AnimeSource, error) {
	var out []storage.AnimeSource
	for _, s := range f.source {
		if s.AnimeID == animeID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStorage) UpdateAnimeSource(ctx context.Context, s storage.AnimeSource) error {
	f.source[s.ID] = s
	return nil
}
func (f *fakeStorage) SetFavoritedSource(ctx context.Context, animeID, sourceID int64) error {
	for id, s := range f.source {
		if s.AnimeID == animeID {
			s.IsFavorited = id == sourceID
			f.source[id] = s
		}
	}
	return nil
}
func (f *fakeStorage) DeleteAnimeSource(ctx context.Context, id int64) error {
	delete(f.source, id)
	return nil
}
func (f *fakeStorage) NextSourceOrder(ctx context.Context, animeID int64) (int, error) {
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
func (f *fakeStorage) DeleteEpisode(ctx context.Context, id int64) error         { return nil }

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
	return nil, nil
}

func (f *fakeStorage) GetRateLimitState(ctx context.Context, key string) (ratelimit.State, bool, error) {
	return ratelimit.State{}, false, nil
}
func (f *fakeStorage) SaveRateLimitState(ctx context.Context, state ratelimit.State) error {
	return nil
}

func (f *fakeStorage) GetConfig(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.config[key]
	return v, ok, nil
}
func (f *fakeStorage) SetConfig(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.config[key] = value
	return nil
}
func (f *fakeStorage) AllConfig(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.config))
	for k, v := range f.config {
		out[k] = v
	}
	return out, nil
}

func newTestServer(t *testing.T) (Server, *fakeStorage) {
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

	pipeline := search.New(scrapers, metaSources, ratelimit.Disabled{}, nil, nil)

	mgr := tasks.New(store, zap.NewNop())
	svc := &tasks.Services{
		Storage:  store,
		Scrapers: scrapers,
		Limiter:  ratelimit.Disabled{},
		Titles:   titlerecognition.NewManager(),
		Danmaku:  danmaku.NewStore(t.TempDir(), "${animeId}/${episodeId}.xml", "${title}/${episodeId}.xml"),
		Manager:  mgr,
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go mgr.Start(ctx)

	convert := &webhook.NameConverter{Enabled: false}
	dispatcher := webhook.NewDispatcher(store, pipeline, mgr, svc, convert, zap.NewNop())
	cfg := configstore.New(store)

	return New(zap.NewNop().Sugar(), dispatcher, mgr, store, cfg, 0), store
}

func TestServer_Healthz(t *testing.T) {
	s := Server{baseLogger: zap.NewNop().Sugar()}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	s.Healthz().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp GenericResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Response != "ok" {
		t.Fatalf("response = %v, want ok", resp.Response)
	}
}

func TestServer_WebhookDispatchesAndReturnsTaskID(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"anime_title":"葬送的芙莉莲","media_type":"tv_series","season":1,"year":2023,"current_episode_index":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/emby", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"source": "emby"})
	rr := httptest.NewRecorder()

	s.Webhook().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rr.Code, rr.Body.String())
	}
	var resp GenericResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
}

// TestServer_WebhookNoMatchEventuallyFails exercises the async dispatch
// path: a webhook event with no matching source is still accepted (202) —
// the search itself runs as a background fallback-queue task — but that
// task later settles into status failed with webhook.ErrNoMatch's message.
func TestServer_WebhookNoMatchEventuallyFails(t *testing.T) {
	s, store := newTestServer(t)

	body := `{"anime_title":"完全不存在的作品名字","media_type":"tv_series","season":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/emby", bytes.NewBufferString(body))
	req = mux.SetURLVars(req, map[string]string{"source": "emby"})
	rr := httptest.NewRecorder()

	s.Webhook().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", rr.Code, rr.Body.String())
	}
	var resp GenericResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	taskID := extractTaskID(t, resp)

	deadline := time.Now().Add(2 * time.Second)
	for {
		task, ok, err := store.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatal(err)
		}
		if ok && task.Status == storage.TaskStatusFailed {
			if task.Description == "" {
				t.Fatal("expected a failure description mentioning no match")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s did not reach failed within deadline, last status: %+v", taskID, task)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func extractTaskID(t *testing.T, resp GenericResponse) string {
	t.Helper()
	m, ok := resp.Response.(map[string]any)
	if !ok {
		t.Fatalf("response is not a map: %#v", resp.Response)
	}
	id, _ := m["task_id"].(string)
	if id == "" {
		t.Fatalf("response has no task_id: %#v", m)
	}
	return id
}

func TestServer_GetTaskNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "missing"})
	rr := httptest.NewRecorder()

	s.GetTask().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServer_GetTaskFound(t *testing.T) {
	s, store := newTestServer(t)

	if err := store.CreateTask(context.Background(), storage.Task{TaskID: "t1", TaskType: "generic_import", Status: storage.TaskStatusPending}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/t1", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "t1"})
	rr := httptest.NewRecorder()

	s.GetTask().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rr.Code, rr.Body.String())
	}
}

func TestServer_ListTasksByStatus(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	if err := store.CreateTask(ctx, storage.Task{TaskID: "t1", TaskType: "generic_import", Status: storage.TaskStatusPending}); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateTask(ctx, storage.Task{TaskID: "t2", TaskType: "generic_import", Status: storage.TaskStatusRunning}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=pending", nil)
	rr := httptest.NewRecorder()

	s.ListTasks().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rr.Code, rr.Body.String())
	}

	var resp GenericResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
}

func TestServer_TaskControlEndpointsMissingTask(t *testing.T) {
	s, _ := newTestServer(t)

	for _, h := range []http.HandlerFunc{s.PauseTask(), s.ResumeTask(), s.AbortTask()} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/missing/x", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "missing"})
		rr := httptest.NewRecorder()

		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
	}
}

func TestServer_CancelPendingTask(t *testing.T) {
	s, store := newTestServer(t)

	if err := store.CreateTask(context.Background(), storage.Task{TaskID: "t1", TaskType: "generic_import", Status: storage.TaskStatusPending}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/t1/cancel", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "t1"})
	rr := httptest.NewRecorder()

	s.CancelTask().ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict && rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 or 409", rr.Code)
	}
}

func TestServer_ConfigGetSetRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)

	setBody := `{"value":"300"}`
	setReq := httptest.NewRequest(http.MethodPut, "/api/v1/config/searchTTLSeconds", bytes.NewBufferString(setBody))
	setReq = mux.SetURLVars(setReq, map[string]string{"key": "searchTTLSeconds"})
	setRR := httptest.NewRecorder()
	s.SetConfigKey().ServeHTTP(setRR, setReq)
	if setRR.Code != http.StatusOK {
		t.Fatalf("set status = %d, want 200, body: %s", setRR.Code, setRR.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/config/searchTTLSeconds", nil)
	getReq = mux.SetURLVars(getReq, map[string]string{"key": "searchTTLSeconds"})
	getRR := httptest.NewRecorder()
	s.GetConfigKey().ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200, body: %s", getRR.Code, getRR.Body.String())
	}

	var resp GenericResponse
	if err := json.Unmarshal(getRR.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
}

func TestServer_GetConfigKeyNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config/missingKey", nil)
	req = mux.SetURLVars(req, map[string]string{"key": "missingKey"})
	rr := httptest.NewRecorder()

	s.GetConfigKey().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestServer_GetAllConfig(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rr := httptest.NewRecorder()

	s.GetAllConfig().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rr.Code, rr.Body.String())
	}
}
