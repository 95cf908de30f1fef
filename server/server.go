package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hikari-danmu/server/pkg/configstore"
	"github.com/hikari-danmu/server/pkg/logger"
	"github.com/hikari-danmu/server/pkg/pagination"
	"github.com/hikari-danmu/server/pkg/storage"
	"github.com/hikari-danmu/server/pkg/tasks"
	"github.com/hikari-danmu/server/pkg/webhook"
)

// validate is shared across handlers the way the teacher's go.mod already
// pulls in go-playground/validator as a direct dependency — unused by the
// teacher's own handlers, given a home here validating decoded bodies.
var validate = validator.New()

type GenericResponse struct {
	Error    string `json:"error,omitempty"`
	Response any    `json:"response"`
}

// Server houses the HTTP surface needed to drive the core: webhook
// ingress, task control, the dynamic config store, and metrics. The
// dandanplay-compatible comment/search/match surface consumed by media
// players is explicitly out of scope (spec.md §1's "HTTP surface
// implementation" non-goal) — this is the control/webhook side only.
type Server struct {
	baseLogger *zap.SugaredLogger
	dispatcher *webhook.Dispatcher
	tasks      *tasks.Manager
	storage    storage.Storage
	config     *configstore.ConfigStore
	port       int
}

// New creates a new Server.
func New(baseLogger *zap.SugaredLogger, dispatcher *webhook.Dispatcher, taskManager *tasks.Manager, store storage.Storage, cfg *configstore.ConfigStore, port int) Server {
	return Server{
		baseLogger: baseLogger,
		dispatcher: dispatcher,
		tasks:      taskManager,
		storage:    store,
		config:     cfg,
		port:       port,
	}
}

func writeErrorResponse(w http.ResponseWriter, status int, err error) error {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return writeResponse(w, status, GenericResponse{Error: errMsg})
}

func writeResponse(w http.ResponseWriter, status int, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	w.Header().Set("content-type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}

	_, err = w.Write(b)
	return err
}

// Serve starts the http server and blocks until an interrupt signal is
// received.
func (s *Server) Serve() error {
	rtr := mux.NewRouter()
	rtr.Use(s.LogMiddleware())
	rtr.HandleFunc("/healthz", s.Healthz()).Methods(http.MethodGet)
	rtr.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := rtr.PathPrefix("/api").Subrouter()
	v1 := api.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/webhook/{source}", s.Webhook()).Methods(http.MethodPost)

	v1.HandleFunc("/tasks", s.ListTasks()).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}", s.GetTask()).Methods(http.MethodGet)
	v1.HandleFunc("/tasks/{id}/pause", s.PauseTask()).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{id}/resume", s.ResumeTask()).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{id}/cancel", s.CancelTask()).Methods(http.MethodPost)
	v1.HandleFunc("/tasks/{id}/abort", s.AbortTask()).Methods(http.MethodPost)

	v1.HandleFunc("/config", s.GetAllConfig()).Methods(http.MethodGet)
	v1.HandleFunc("/config/{key}", s.GetConfigKey()).Methods(http.MethodGet)
	v1.HandleFunc("/config/{key}", s.SetConfigKey()).Methods(http.MethodPut)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.ExposedHeaders([]string{"Content-Length"}),
		handlers.AllowCredentials(),
		handlers.MaxAge(3600),
	)(rtr)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      corsHandler,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.baseLogger.Infow("serving...", "port", s.port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.baseLogger.Error(err.Error())
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	return srv.Shutdown(ctx)
}

// Healthz is an endpoint that can be used for probes
func (s Server) Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, http.StatusOK, GenericResponse{Response: "ok"})
	}
}

// Webhook ingress. {source} is the path-routed webhook_source tag
// (emby/jellyfin/plex/media_server/custom), per spec.md §6's webhook
// payload shape.
func (s Server) Webhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromCtx(r.Context())
		vars := mux.Vars(r)

		var body struct {
			AnimeTitle          string `json:"anime_title" validate:"required"`
			MediaType           string `json:"media_type" validate:"required,oneof=tv_series movie"`
			Season              int    `json:"season"`
			CurrentEpisodeIndex int    `json:"current_episode_index"`
			SearchKeyword       string `json:"search_keyword"`
			DoubanID            string `json:"douban_id"`
			TmdbID              string `json:"tmdb_id"`
			ImdbID              string `json:"imdb_id"`
			TvdbID              string `json:"tvdb_id"`
			BangumiID           string `json:"bangumi_id"`
			Year                int    `json:"year"`
			SelectedEpisodes    []int  `json:"selected_episodes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			log.Debug("invalid webhook body", zap.Error(err))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(body); err != nil {
			log.Debug("webhook body failed validation", zap.Error(err))
			writeErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		externalIDs := map[string]string{}
		for k, v := range map[string]string{
			"douban": body.DoubanID, "tmdb": body.TmdbID,
			"imdb": body.ImdbID, "tvdb": body.TvdbID, "bangumi": body.BangumiID,
		} {
			if v != "" {
				externalIDs[k] = v
			}
		}

		params := webhook.Params{
			AnimeTitle:          body.AnimeTitle,
			MediaType:           body.MediaType,
			Season:              body.Season,
			CurrentEpisodeIndex: body.CurrentEpisodeIndex,
			SearchKeyword:       body.SearchKeyword,
			ExternalIDs:         externalIDs,
			WebhookSource:       vars["source"],
			Year:                body.Year,
			SelectedEpisodes:    body.SelectedEpisodes,
		}

		taskID, err := s.dispatcher.Submit(r.Context(), params)
		if err != nil {
			log.Error("webhook dispatch submission failed", zap.Error(err))
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}

		writeResponse(w, http.StatusAccepted, GenericResponse{Response: map[string]string{"task_id": taskID}})
	}
}

// ListTasks lists tasks by status, paginated. status defaults to "pending".
func (s Server) ListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := storage.TaskStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = storage.TaskStatusPending
		}

		params, err := ParsePaginationParams(r)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		all, err := s.storage.ListTasksByStatus(r.Context(), status)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}

		offset, limit := params.CalculateOffsetLimit()
		page := all
		if limit > 0 {
			if offset > len(all) {
				offset = len(all)
			}
			end := offset + limit
			if end > len(all) {
				end = len(all)
			}
			page = all[offset:end]
		}

		writeResponse(w, http.StatusOK, GenericResponse{Response: map[string]any{
			"tasks": page,
			"meta":  params.BuildMeta(len(all)),
		}})
	}
}

// GetTask fetches one task by id.
func (s Server) GetTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		task, ok, err := s.storage.GetTask(r.Context(), id)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeErrorResponse(w, http.StatusNotFound, storage.ErrNotFound)
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: task})
	}
}

// PauseTask pauses a running task's progress gate.
func (s Server) PauseTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.tasks.Pause(id) {
			writeErrorResponse(w, http.StatusNotFound, fmt.Errorf("no running task %q to pause", id))
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: "paused"})
	}
}

// ResumeTask resumes a paused task.
func (s Server) ResumeTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.tasks.Resume(r.Context(), id) {
			writeErrorResponse(w, http.StatusNotFound, fmt.Errorf("no paused or gated task %q to resume", id))
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: "resumed"})
	}
}

// CancelTask cancels a pending (not yet started) task.
func (s Server) CancelTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.tasks.CancelPending(id) {
			writeErrorResponse(w, http.StatusConflict, fmt.Errorf("task %q is already running or finished", id))
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: "cancelled"})
	}
}

// AbortTask aborts a running task's context.
func (s Server) AbortTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if !s.tasks.Abort(id) {
			writeErrorResponse(w, http.StatusNotFound, fmt.Errorf("no running task %q to abort", id))
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: "aborted"})
	}
}

// GetAllConfig returns the full dynamic settings snapshot.
func (s Server) GetAllConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := s.config.Load(r.Context())
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: settings})
	}
}

// GetConfigKey returns one raw config key's value.
func (s Server) GetConfigKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := mux.Vars(r)["key"]
		value, ok, err := s.config.Get(r.Context(), key)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			writeErrorResponse(w, http.StatusNotFound, fmt.Errorf("config key %q not set", key))
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: map[string]string{"key": key, "value": value}})
	}
}

// SetConfigKey sets one raw config key's value.
func (s Server) SetConfigKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromCtx(r.Context())
		key := mux.Vars(r)["key"]

		var body struct {
			Value string `json:"value" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			log.Debug("invalid config body", zap.Error(err))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(body); err != nil {
			log.Debug("config body failed validation", zap.Error(err))
			writeErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		if err := s.config.Set(r.Context(), key, body.Value); err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err)
			return
		}
		writeResponse(w, http.StatusOK, GenericResponse{Response: map[string]string{"key": key, "value": body.Value}})
	}
}
