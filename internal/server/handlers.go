package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/a2s/internal/models"
	"github.com/desertthunder/a2s/internal/shared"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TrackTaskRequest registers a task submitted elsewhere.
type TrackTaskRequest struct {
	TaskID   string `json:"task_id"`
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Model    string `json:"model"`
}

// TrackBatchRequest registers a batch submitted elsewhere.
type TrackBatchRequest struct {
	BatchID    string `json:"batch_id"`
	TotalFiles int    `json:"total_files"`
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResponse(w, map[string]string{"error": msg}, status)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.coord.Snapshot(), http.StatusOK)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.CheckAPI(r.Context()); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	state := s.coord.Snapshot()
	jsonResponse(w, map[string]any{"healthy": state.APIHealthy, "health": state.Health, "models": state.Models}, http.StatusOK)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notes := s.coord.Notifications().Active()
	if notes == nil {
		notes = []models.Notification{}
	}
	jsonResponse(w, notes, http.StatusOK)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if !s.coord.Notifications().Dismiss(chi.URLParam(r, "id")) {
		jsonError(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackTask(w http.ResponseWriter, r *http.Request) {
	var req TrackTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		jsonError(w, "task_id is required", http.StatusBadRequest)
		return
	}

	if !s.coord.TrackTask(req.TaskID, req.FileID, req.Filename, req.Model) {
		jsonError(w, "task is already tracked or finished", http.StatusConflict)
		return
	}
	jsonResponse(w, req, http.StatusCreated)
}

func (s *Server) handleTrackBatch(w http.ResponseWriter, r *http.Request) {
	var req TrackBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BatchID == "" || req.TotalFiles < 0 {
		jsonError(w, "batch_id is required and total_files must not be negative", http.StatusBadRequest)
		return
	}

	batch := models.Batch{BatchID: req.BatchID, TotalFiles: req.TotalFiles, OverallStatus: models.BatchProcessing}
	if !s.coord.TrackBatch(batch) {
		jsonError(w, "batch is already tracked or finished", http.StatusConflict)
		return
	}
	jsonResponse(w, req, http.StatusCreated)
}

type batchAction func(t *tasks.BatchTracker, id string) error

var (
	batchPause   batchAction = (*tasks.BatchTracker).Pause
	batchResume  batchAction = (*tasks.BatchTracker).Resume
	batchRefresh batchAction = (*tasks.BatchTracker).Refresh
)

func (s *Server) handleBatchControl(action batchAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		batches := s.coord.Batches()

		if err := action(batches, id); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				jsonError(w, err.Error(), http.StatusNotFound)
				return
			}
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		p, err := batches.Get(id)
		if err != nil {
			jsonError(w, err.Error(), http.StatusNotFound)
			return
		}

		control := tasks.BatchControl{BatchID: id, Paused: p.Paused(), Finished: p.Finished()}
		if err := p.LastError(); err != nil {
			control.LastError = err.Error()
		}
		jsonResponse(w, control, http.StatusOK)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade to websocket", "err", err)
		return
	}

	state := s.coord.Snapshot()
	initial, err := json.Marshal(Message{Type: "state", State: &state})
	if err != nil {
		s.logger.Error("failed to encode state", "err", err)
		conn.Close()
		return
	}

	s.hub.attach(conn, initial)
}
