// Package handlers provides the HTTP API for running and archiving debates.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/satoruisaka/TwistedDebate/internal/analyzer"
	"github.com/satoruisaka/TwistedDebate/internal/config"
	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/export"
	"github.com/satoruisaka/TwistedDebate/internal/format"
	"github.com/satoruisaka/TwistedDebate/internal/session"
	"github.com/satoruisaka/TwistedDebate/internal/storage"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cfg     *config.Config
	gen     session.Generator
	models  ModelLister
	storage storage.Storage

	mu     sync.Mutex
	active *activeRun
}

// ModelLister reports the models available on the backing Ollama
// server. Nil means model listing is disabled.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
	Healthy(ctx context.Context) bool
}

// activeRun is the single in-flight debate the server drives.
type activeRun struct {
	session *session.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// finished reports whether the run's driving goroutine has exited.
// Only a finished run may be replaced; checking the session status
// instead would race with the goroutine that flips it to in-progress.
func (a *activeRun) finished() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// New creates a new Handler.
func New(cfg *config.Config, gen session.Generator, models ModelLister, store storage.Storage) *Handler {
	return &Handler{
		cfg:     cfg,
		gen:     gen,
		models:  models,
		storage: store,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)
		r.Get("/models", h.handleModels)
		r.Get("/formats", h.handleFormats)
		r.Get("/modes", h.handleModes)
		r.Get("/tones", h.handleTones)

		r.Post("/debates", h.handleCreateDebate)
		r.Get("/debates/current", h.handleCurrentDebate)
		r.Get("/debates/current/stream", h.handleDebateStream)
		r.Post("/debates/current/input", h.handleSubmitInput)
		r.Post("/debates/current/export", h.handleExportDebate)
		r.Delete("/debates/current", h.handleCancelDebate)

		r.Get("/archive", h.handleListArchive)
		r.Get("/archive/{id}", h.handleGetArchived)
		r.Delete("/archive/{id}", h.handleDeleteArchived)
	})

	fs := http.StripPrefix("/outputs/", http.FileServer(http.Dir(h.cfg.Outputs.Dir)))
	r.Get("/outputs/*", fs.ServeHTTP)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := false
	if h.models != nil {
		healthy = h.models.Healthy(r.Context())
	}
	h.json(w, map[string]interface{}{
		"status": "ok",
		"ollama": healthy,
	})
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		h.json(w, []string{})
		return
	}
	models, err := h.models.ListModels(r.Context())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.json(w, models)
}

func (h *Handler) handleFormats(w http.ResponseWriter, r *http.Request) {
	h.json(w, format.Catalog())
}

func (h *Handler) handleModes(w http.ResponseWriter, r *http.Request) {
	type modeInfo struct {
		ID          core.DistortionMode `json:"id"`
		Description string              `json:"description"`
	}
	modes := make([]modeInfo, 0)
	for _, m := range core.Modes() {
		modes = append(modes, modeInfo{ID: m, Description: core.ModeDescriptions[m]})
	}
	h.json(w, modes)
}

func (h *Handler) handleTones(w http.ResponseWriter, r *http.Request) {
	type toneInfo struct {
		ID          core.Tone `json:"id"`
		Description string    `json:"description"`
	}
	tones := make([]toneInfo, 0)
	for _, t := range core.Tones() {
		tones = append(tones, toneInfo{ID: t, Description: core.ToneDescriptions[t]})
	}
	h.json(w, tones)
}

type createDebateRequest struct {
	Topic         string             `json:"topic"`
	Format        string             `json:"format"`
	Participants  []core.Participant `json:"participants"`
	MaxIterations int                `json:"max_iterations"`
	Gain          int                `json:"gain"`
}

func (h *Handler) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	var req createDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Format == "" {
		req.Format = h.cfg.Defaults.Format
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = h.cfg.Defaults.MaxIterations
	}
	if req.Gain == 0 {
		req.Gain = h.cfg.Defaults.Gain
	}
	for i := range req.Participants {
		if req.Participants[i].Actor == "" {
			req.Participants[i].Actor = h.cfg.Ollama.DefaultModel
		}
	}

	an := analyzer.New(h.gen, h.cfg.Ollama.MetricsModel)
	sess, err := session.New(session.Config{
		Topic:         req.Topic,
		Format:        format.ID(req.Format),
		Participants:  req.Participants,
		MaxIterations: req.MaxIterations,
		Gain:          req.Gain,
	}, h.gen, an, session.Callbacks{})
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	if h.active != nil && !h.active.finished() {
		h.mu.Unlock()
		h.jsonError(w, "a debate is already in progress", http.StatusConflict)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &activeRun{session: sess, cancel: cancel, done: make(chan struct{})}
	h.active = run
	h.mu.Unlock()

	go func() {
		defer close(run.done)
		defer cancel()
		if err := sess.Run(ctx); err != nil {
			slog.Warn("debate abandoned", "id", sess.Snapshot().ID, "error", err)
			return
		}
		h.archive(sess)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess.Snapshot())
}

// archive persists a finished run. Failures are logged, not surfaced;
// the transcript is still available from the live session.
func (h *Handler) archive(sess *session.Session) {
	if h.storage == nil {
		return
	}
	run := sess.Snapshot()
	if err := h.storage.SaveRun(&run, sess.Messages(), sess.Metrics()); err != nil {
		slog.Error("failed to archive debate", "id", run.ID, "error", err)
	}
}

func (h *Handler) currentSession() *session.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return nil
	}
	return h.active.session
}

func (h *Handler) handleCurrentDebate(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession()
	if sess == nil {
		h.jsonError(w, "no active debate", http.StatusNotFound)
		return
	}

	resp := map[string]interface{}{
		"run":      sess.Snapshot(),
		"messages": sess.Messages(),
		"metrics":  sess.Metrics(),
	}
	if role, iteration, ok := sess.AwaitingInput(); ok {
		resp["awaiting_input"] = map[string]interface{}{
			"role":      role,
			"iteration": iteration,
		}
	}
	h.json(w, resp)
}

func (h *Handler) handleSubmitInput(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession()
	if sess == nil {
		h.jsonError(w, "no active debate", http.StatusNotFound)
		return
	}

	var req struct {
		Role      string `json:"role"`
		Iteration int    `json:"iteration"`
		Content   string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := sess.SubmitInput(req.Role, req.Iteration, req.Content); err != nil {
		h.jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleCancelDebate(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	active := h.active
	h.active = nil
	h.mu.Unlock()

	if active == nil {
		h.jsonError(w, "no active debate", http.StatusNotFound)
		return
	}

	active.cancel()
	<-active.done
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExportDebate(w http.ResponseWriter, r *http.Request) {
	sess := h.currentSession()
	if sess == nil {
		h.jsonError(w, "no active debate", http.StatusNotFound)
		return
	}

	var req struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Format == "" {
		req.Format = string(export.FormatMarkdown)
	}

	run := sess.Snapshot()
	rec, err := export.WriteRecord(h.cfg.Outputs.Dir, export.Format(req.Format), &run, sess.Messages(), sess.Metrics())
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.json(w, rec)
}

func (h *Handler) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.jsonError(w, "archive disabled", http.StatusNotFound)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 20
	}

	runs, err := h.storage.ListRuns(limit, offset)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*core.RunSummary{}
	}
	h.json(w, runs)
}

func (h *Handler) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.jsonError(w, "archive disabled", http.StatusNotFound)
		return
	}

	id := chi.URLParam(r, "id")
	run, metrics, err := h.storage.GetRun(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		h.jsonError(w, "run not found", http.StatusNotFound)
		return
	}

	messages, err := h.storage.GetMessages(id)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.json(w, map[string]interface{}{
		"run":      run,
		"messages": messages,
		"metrics":  metrics,
	})
}

func (h *Handler) handleDeleteArchived(w http.ResponseWriter, r *http.Request) {
	if h.storage == nil {
		h.jsonError(w, "archive disabled", http.StatusNotFound)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.storage.DeleteRun(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
