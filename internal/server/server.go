// Package server exposes the coaching core over HTTP: session lifecycle,
// move submission, streaming move events over WebSocket, batch analysis,
// and a readiness probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ai-chess-training/LLM-ChessCoach/internal/analyze"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/session"
	"github.com/ai-chess-training/LLM-ChessCoach/internal/store"
	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

// EngineProbe reports pool health independent of session state.
type EngineProbe interface {
	Healthy(ctx context.Context) error
	PoolSize() int
}

type Handler struct {
	sessions *session.Manager
	analyzer *analyze.Analyzer
	reports  store.Reports
	probe    EngineProbe
	logger   *zap.Logger
}

func NewRouter(sessions *session.Manager, analyzer *analyze.Analyzer, reports store.Reports, probe EngineProbe, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		sessions: sessions,
		analyzer: analyzer,
		reports:  reports,
		probe:    probe,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("POST /v1/sessions", h.openSession)
	mux.HandleFunc("GET /v1/sessions/{id}", h.snapshot)
	mux.HandleFunc("POST /v1/sessions/{id}/moves", h.submitMove)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", h.streamMove)
	mux.HandleFunc("POST /v1/analysis", h.analyzeGame)
	mux.HandleFunc("GET /v1/analysis/{run_id}", h.getRun)

	return RequestID(AccessLog(logger, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := coachdto.HealthResponse{PoolSize: h.probe.PoolSize()}
	if err := h.probe.Healthy(r.Context()); err != nil {
		resp.Detail = err.Error()
		writeJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.EngineReady = true
	writeJSON(w, resp)
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var req coachdto.OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.sessions.Open(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, resp)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Snapshot(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (h *Handler) submitMove(w http.ResponseWriter, r *http.Request) {
	var req coachdto.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.sessions.SubmitMove(r.Context(), r.PathValue("id"), req.Move)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) analyzeGame(w http.ResponseWriter, r *http.Request) {
	var req coachdto.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		http.Error(w, "analysis archive not configured", http.StatusNotFound)
		return
	}
	run, err := h.reports.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		h.logger.Error("archive lookup failed", zap.Error(err))
		http.Error(w, "archive lookup failed", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, coachdto.BatchResponse{RunID: run.RunID, Summary: &run.Summary})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var derr coachdto.DomainError
	if !errors.As(err, &derr) {
		h.logger.Error("request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, statusForCode(derr.Code), map[string]any{
		"code":      derr.Code,
		"message":   derr.Message,
		"retryable": derr.Retryable,
	})
}

func statusForCode(code string) int {
	switch code {
	case "session_not_found":
		return http.StatusNotFound
	case "session_finished":
		return http.StatusConflict
	case "engine_overloaded":
		return http.StatusServiceUnavailable
	case "bad_request", "invalid_game":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
