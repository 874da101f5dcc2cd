package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"profit_go/internal/domain"
	"profit_go/internal/infra"
	"profit_go/internal/service"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func machineID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	return uint(id), err
}

// handleLatestSnapshots returns every machine's snapshot from the newest
// run bucket.
// GET /api/snapshots/latest
func (s *Server) handleLatestSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.LatestSnapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleMachineSnapshots returns one machine's snapshot history, newest
// first.
// GET /api/machines/{id}/snapshots?limit=N
func (s *Server) handleMachineSnapshots(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	limit := 48
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}

	snaps, err := s.store.SnapshotsForMachine(id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleMachineDiff compares a machine's newest snapshot with the one
// closest to 24 hours back.
// GET /api/machines/{id}/diff
func (s *Server) handleMachineDiff(w http.ResponseWriter, r *http.Request) {
	id, err := machineID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid machine id")
		return
	}

	diff, err := s.diffs.DiffForMachine(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotEnoughSnapshots) {
			writeError(w, http.StatusNotFound, "machine needs at least two snapshots")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

type startRunRequest struct {
	MachineIDs []uint     `json:"machine_ids,omitempty"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
}

// handleStartRun kicks off a snapshot run in the background. Returns 409
// while another run is still in flight.
// POST /api/runs
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if s.pipeline.Running() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}

	go func() {
		summary, err := s.pipeline.Run(context.Background(), service.RunOptions{
			MachineIDs: req.MachineIDs,
			ComputedAt: req.ComputedAt,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrRunInProgress) {
				s.logger.Error("triggered run failed", "error", err)
			}
			return
		}
		s.hub.Broadcast(Message{Type: "summary", Data: summary})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleLastRun returns the most recent run's summary.
// GET /api/runs/last
func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	summary := s.pipeline.LastSummary()
	if summary == nil {
		writeError(w, http.StatusNotFound, "no run has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMetrics exposes the process-wide pipeline counters.
// GET /api/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infra.GlobalMetrics.Snapshot())
}
