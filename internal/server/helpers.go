package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cwbudde/beamlayout/internal/layout"
)

// inlineLayoutPath marks jobs whose layout came in the request body.
const inlineLayoutPath = "inline"

// loadJobLayout returns the state a job request describes: the inline
// document if present, otherwise the file at LayoutPath.
func loadJobLayout(req createJobRequest) (*layout.State, error) {
	if req.Layout != nil {
		if err := req.Layout.Validate(); err != nil {
			return nil, err
		}
		return req.Layout.State(), nil
	}
	if req.LayoutPath == "" {
		return nil, errors.New("layout or layoutPath is required")
	}
	return layout.Load(req.LayoutPath)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// jobFromRequest looks up the {id} route parameter and writes a 404 when
// the job is unknown.
func (s *Server) jobFromRequest(w http.ResponseWriter, r *http.Request) (*Job, bool) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}

// layoutFromRequest returns the job's layout with its best poses applied.
func (s *Server) layoutFromRequest(w http.ResponseWriter, r *http.Request) (*layout.State, bool) {
	job, ok := s.jobFromRequest(w, r)
	if !ok {
		return nil, false
	}
	state, ok := s.jobManager.CurrentLayout(job.ID)
	if !ok {
		http.Error(w, "No layout yet", http.StatusNotFound)
		return nil, false
	}
	return state, true
}
