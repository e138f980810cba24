package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/render"
	"github.com/cwbudde/beamlayout/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager      *JobManager
	checkpointStore store.Store
	traceDir        string
	addr            string
	server          *http.Server

	// baseCtx parents every worker so Shutdown can stop them.
	baseCtx    context.Context
	stopJobs   context.CancelFunc
	workers    sync.WaitGroup
	previewMax float64
}

// NewServer creates a new HTTP server. checkpointStore may be nil to
// disable checkpoints.
func NewServer(addr string, checkpointStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager:      NewJobManager(),
		checkpointStore: checkpointStore,
		addr:            addr,
		baseCtx:         ctx,
		stopJobs:        cancel,
		previewMax:      8,
	}
}

// EnableTrace makes workers append snapshot traces under dir.
func (s *Server) EnableTrace(dir string) {
	s.traceDir = dir
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJobStatus)
				r.Get("/status", s.handleGetJobStatus)
				r.Get("/stream", s.handleJobStream)
				r.Get("/snapshots", s.handleListSnapshots)
				r.Get("/snapshots/{index}", s.handleGetSnapshot)
				r.Get("/layout", s.handleGetLayout)
				r.Get("/preview.png", s.handleGetPreview)
				r.Get("/graph.svg", s.handleGetGraph)
				r.Post("/pause", s.handleControl(s.jobManager.Pause))
				r.Post("/resume", s.handleControl(s.jobManager.Resume))
				r.Post("/cancel", s.handleControl(s.jobManager.Cancel))
			})
		})

		r.Get("/checkpoints", s.handleListCheckpoints)
		r.Delete("/checkpoints/{id}", s.handleDeleteCheckpoint)
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs, waits for their workers to save a final
// checkpoint and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.stopJobs()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Workers did not stop in time", "error", ctx.Err())
		return ctx.Err()
	}
	return err
}

// createJobRequest is the body of POST /api/v1/jobs. The layout comes
// either inline or from LayoutPath on the server's filesystem.
type createJobRequest struct {
	JobConfig
	Layout     *layout.Document `json:"layout,omitempty"`
	ResumeFrom string           `json:"resumeFrom,omitempty"`
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	state, err := loadJobLayout(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	config := req.JobConfig
	if config.LayoutPath == "" {
		config.LayoutPath = inlineLayoutPath
	}
	if config.Weights == (cost.Weights{}) {
		config.Weights = cost.DefaultWeights()
	}
	if config.Seed == 0 {
		config.Seed = time.Now().UnixNano()
	}
	config.Components = len(state.Components)
	config.Beams = state.Beams.Len()

	var resume *store.Checkpoint
	if req.ResumeFrom != "" {
		if s.checkpointStore == nil {
			http.Error(w, "Checkpoints are disabled", http.StatusBadRequest)
			return
		}
		resume, err = s.checkpointStore.LoadCheckpoint(req.ResumeFrom)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := resume.IsCompatible(config); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
	}

	job := s.jobManager.CreateJob(config, state)

	// Start worker in background
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		runJob(s.baseCtx, s.jobManager, s.checkpointStore, s.traceDir, job.ID, resume)
	}()

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// jobStatus is the response of GET /api/v1/jobs/{id}/status
type jobStatus struct {
	*Job
	Elapsed            float64 `json:"elapsed"`
	IterationsPerSec   float64 `json:"iterationsPerSecond"`
	ImprovementPercent float64 `json:"improvementPercent"`
}

// handleGetJobStatus handles GET /api/v1/jobs/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromRequest(w, r)
	if !ok {
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	status := jobStatus{Job: job, Elapsed: elapsed.Seconds()}
	if elapsed > 0 {
		status.IterationsPerSec = float64(job.Iterations) / elapsed.Seconds()
	}
	status.ImprovementPercent = eventFromJob(job).ImprovementPercent
	writeJSON(w, http.StatusOK, status)
}

// handleListSnapshots handles GET /api/v1/jobs/{id}/snapshots. Only
// iteration and cost are listed; fetch a single snapshot for its poses.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromRequest(w, r)
	if !ok {
		return
	}
	snaps, _ := s.jobManager.Snapshots(job.ID)

	type item struct {
		Index     int     `json:"index"`
		Iteration int     `json:"iteration"`
		Cost      float64 `json:"cost"`
	}
	items := make([]item, len(snaps))
	for i, snap := range snaps {
		items[i] = item{Index: i, Iteration: snap.Iteration, Cost: snap.Cost}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleGetSnapshot handles GET /api/v1/jobs/{id}/snapshots/{index}.
// The index "best" selects the lowest-cost snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobFromRequest(w, r)
	if !ok {
		return
	}
	snaps, _ := s.jobManager.Snapshots(job.ID)

	param := chi.URLParam(r, "index")
	if param == "best" {
		if len(snaps) == 0 {
			http.Error(w, "No snapshots yet", http.StatusNotFound)
			return
		}
		best := snaps[0]
		for _, snap := range snaps[1:] {
			if snap.Cost < best.Cost {
				best = snap
			}
		}
		writeJSON(w, http.StatusOK, best)
		return
	}

	index, err := strconv.Atoi(param)
	if err != nil {
		http.Error(w, "Invalid snapshot index", http.StatusBadRequest)
		return
	}
	if index < 0 || index >= len(snaps) {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snaps[index])
}

// handleGetLayout handles GET /api/v1/jobs/{id}/layout: the layout document
// with the best poses found so far.
func (s *Server) handleGetLayout(w http.ResponseWriter, r *http.Request) {
	state, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, layout.DocumentFrom(state))
}

// handleGetPreview handles GET /api/v1/jobs/{id}/preview.png?scale=2
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	state, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}

	scale := 1.0
	if q := r.URL.Query().Get("scale"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil || v <= 0 || v > s.previewMax {
			http.Error(w, fmt.Sprintf("scale must be in (0, %g]", s.previewMax), http.StatusBadRequest)
			return
		}
		scale = v
	}

	img := render.Preview(state, scale)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleGetGraph handles GET /api/v1/jobs/{id}/graph.svg
func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	state, ok := s.layoutFromRequest(w, r)
	if !ok {
		return
	}
	svg, err := render.RenderSVG(r.Context(), render.ToDOT(state))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render graph: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(svg)
}

// handleControl wraps a pause/resume/cancel action.
func (s *Server) handleControl(action func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := s.jobFromRequest(w, r)
		if !ok {
			return
		}
		if err := action(job.ID); err != nil {
			status := http.StatusConflict
			if !errors.Is(err, ErrJobFinished) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": "accepted"})
	}
}

// handleListCheckpoints handles GET /api/v1/checkpoints
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		writeJSON(w, http.StatusOK, []store.CheckpointInfo{})
		return
	}
	infos, err := s.checkpointStore.ListCheckpoints()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleDeleteCheckpoint handles DELETE /api/v1/checkpoints/{id}
func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		http.Error(w, "Checkpoints are disabled", http.StatusNotFound)
		return
	}
	err := s.checkpointStore.DeleteCheckpoint(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
