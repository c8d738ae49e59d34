package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/db"
	"github.com/Kocoro-lab/toolscout/internal/research"
)

// Run modes recorded with each run.
const (
	ModeSync     = "sync"
	ModeAsync    = "async"
	ModeTemporal = "temporal"
)

const maxRequestBody = 1 << 20

// RunService executes and looks up in-process runs.
type RunService interface {
	Settings(overrides *research.Settings) (research.Settings, error)
	Run(ctx context.Context, runID, query string, overrides *research.Settings, mode string) (*research.ResearchState, error)
	Start(runID, query string, overrides *research.Settings, mode string) error
	Get(ctx context.Context, runID string) (*research.ResearchState, error)
}

// WorkflowStarter submits a run to the durable workflow backend.
type WorkflowStarter interface {
	Start(ctx context.Context, runID, query string, settings research.Settings) (string, error)
}

// RunLister lists persisted runs, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]db.RunSummary, error)
}

// ResearchHandler serves the /v1/research endpoints.
type ResearchHandler struct {
	runs    RunService
	starter WorkflowStarter
	lister  RunLister
	newID   func() string
	logger  *zap.Logger
}

// Option configures a ResearchHandler.
type Option func(*ResearchHandler)

// WithWorkflowStarter routes non-waiting submissions to a workflow backend.
func WithWorkflowStarter(s WorkflowStarter) Option {
	return func(h *ResearchHandler) { h.starter = s }
}

// WithRunLister enables GET /v1/research.
func WithRunLister(l RunLister) Option {
	return func(h *ResearchHandler) { h.lister = l }
}

func NewResearchHandler(runs RunService, newID func() string, logger *zap.Logger, opts ...Option) *ResearchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ResearchHandler{runs: runs, newID: newID, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the research routes on the provided mux.
func (h *ResearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/research", h.handleSubmit)
	mux.HandleFunc("GET /v1/research", h.handleList)
	mux.HandleFunc("GET /v1/research/{id}", h.handleGet)
}

type submitRequest struct {
	Query    string             `json:"query"`
	Wait     bool               `json:"wait"`
	Settings *research.Settings `json:"settings,omitempty"`
}

type runResponse struct {
	RunID     string                  `json:"run_id"`
	Status    research.Status         `json:"status"`
	Mode      string                  `json:"mode,omitempty"`
	StreamURL string                  `json:"stream_url,omitempty"`
	State     *research.ResearchState `json:"state,omitempty"`
	Summary   *research.Summary       `json:"summary,omitempty"`
}

func stateResponse(s *research.ResearchState, mode string) runResponse {
	sum := research.Summarize(s)
	return runResponse{RunID: s.RunID, Status: s.Status, Mode: mode, State: s, Summary: &sum}
}

// handleSubmit starts a run.
// POST /v1/research {"query": "...", "wait": false, "settings": {...}}
func (h *ResearchHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, research.ErrEmptyQuery.Error())
		return
	}
	settings, err := h.runs.Settings(req.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := h.newID()
	logger := h.logger.With(zap.String("run_id", runID))

	if req.Wait {
		state, err := h.runs.Run(r.Context(), runID, req.Query, req.Settings, ModeSync)
		if state == nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			logger.Info("Synchronous run failed", zap.String("reason", state.FailureReason))
		}
		writeJSON(w, http.StatusOK, stateResponse(state, ModeSync))
		return
	}

	mode := ModeAsync
	if h.starter != nil {
		mode = ModeTemporal
		if _, err := h.starter.Start(r.Context(), runID, req.Query, settings); err != nil {
			logger.Error("Failed to start workflow", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "failed to start run")
			return
		}
	} else if err := h.runs.Start(runID, req.Query, req.Settings, ModeAsync); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("Run accepted", zap.String("mode", mode))

	writeJSON(w, http.StatusAccepted, runResponse{
		RunID:     runID,
		Status:    research.StatusInProgress,
		Mode:      mode,
		StreamURL: "/stream/sse?run_id=" + runID,
	})
}

// handleGet returns the latest state of a run.
// GET /v1/research/{id}
func (h *ResearchHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := h.runs.Get(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		h.logger.Error("Failed to load run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse(state, ""))
}

// handleList returns recent persisted runs.
// GET /v1/research?limit=N
func (h *ResearchHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		writeError(w, http.StatusNotImplemented, "run listing requires a database")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.lister.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
