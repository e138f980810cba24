package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/store"
)

// doRequest sends a request through the server's router.
func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// createTestJob posts an inline-layout job and returns it.
func createTestJob(t *testing.T, s *Server, config JobConfig) *Job {
	t.Helper()
	req := createJobRequest{JobConfig: config, Layout: layout.DocumentFrom(testLayout())}
	req.LayoutPath = ""
	w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return &job
}

func TestServer_CreateJob(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := createTestJob(t, s, testConfig())

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.Config.LayoutPath != inlineLayoutPath {
		t.Errorf("Inline jobs should use %q, got %q", inlineLayoutPath, job.Config.LayoutPath)
	}
	if job.Config.Components != 3 || job.Config.Beams != 2 {
		t.Errorf("Expected 3 components and 2 beams, got %d/%d", job.Config.Components, job.Config.Beams)
	}

	done := waitForState(t, s.jobManager, job.ID, StateCompleted)
	if done.BestCost > done.InitialCost {
		t.Errorf("Best cost %f worse than initial %f", done.BestCost, done.InitialCost)
	}
}

func TestServer_CreateJobFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := layout.Save(path, testLayout()); err != nil {
		t.Fatal(err)
	}

	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	config := testConfig()
	config.LayoutPath = path
	config.Weights = cost.Weights{}
	w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", createJobRequest{JobConfig: config})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var job Job
	json.NewDecoder(w.Body).Decode(&job)
	if job.Config.LayoutPath != path {
		t.Errorf("LayoutPath = %q, want %q", job.Config.LayoutPath, path)
	}
	if job.Config.Weights != testConfig().Weights {
		t.Error("Zero weights should be replaced by the defaults")
	}
	if job.Config.Seed == 0 {
		t.Error("A seed should be chosen")
	}
	waitForState(t, s.jobManager, job.ID, StateCompleted)
}

func TestServer_CreateJobInvalid(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad json", "{", http.StatusBadRequest},
		{"no layout", `{"seed": 1}`, http.StatusBadRequest},
		{"missing file", `{"layoutPath": "does/not/exist.yaml"}`, http.StatusBadRequest},
		{"bad workspace", `{"layout": {"workspace": {"min": {"X": 0, "Y": 0}, "max": {"X": 0, "Y": 0}}, "components": []}}`, http.StatusBadRequest},
		{"resume without store", `{"layout": {"workspace": {"min": {"X": 0, "Y": 0}, "max": {"X": 10, "Y": 10}}, "components": []}, "resumeFrom": "x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	s.jobManager.CreateJob(testConfig(), testLayout())
	s.jobManager.CreateJob(testConfig(), testLayout())

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var jobs []*Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := s.jobManager.CreateJob(testConfig(), testLayout())
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Iterations = 50
		j.InitialCost = 200
		j.BestCost = 150
	})

	for _, path := range []string{"/api/v1/jobs/" + job.ID, "/api/v1/jobs/" + job.ID + "/status"} {
		w := doRequest(t, s, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, w.Code)
		}

		var status map[string]any
		if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if status["id"] != job.ID {
			t.Errorf("Expected id %s, got %v", job.ID, status["id"])
		}
		if status["state"] != string(StateRunning) {
			t.Errorf("Expected state running, got %v", status["state"])
		}
		if status["improvementPercent"] != 25.0 {
			t.Errorf("Expected 25%% improvement, got %v", status["improvementPercent"])
		}
		if _, ok := status["iterationsPerSecond"]; !ok {
			t.Error("Status should report iterationsPerSecond")
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	for _, path := range []string{
		"/api/v1/jobs/nonexistent",
		"/api/v1/jobs/nonexistent/snapshots",
		"/api/v1/jobs/nonexistent/layout",
		"/api/v1/jobs/nonexistent/preview.png",
		"/api/v1/jobs/nonexistent/stream",
	} {
		w := doRequest(t, s, http.MethodGet, path, nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected status 404, got %d", path, w.Code)
		}
	}
}

func TestServer_Snapshots(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := createTestJob(t, s, testConfig())
	done := waitForState(t, s.jobManager, job.ID, StateCompleted)

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/snapshots", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var items []struct {
		Index     int     `json:"index"`
		Iteration int     `json:"iteration"`
		Cost      float64 `json:"cost"`
	}
	json.NewDecoder(w.Body).Decode(&items)
	if len(items) == 0 || items[0].Iteration != 0 {
		t.Fatalf("Expected snapshots starting at iteration 0, got %v", items)
	}

	w = doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/snapshots/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var snap opt.Snapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Iteration != items[1].Iteration || len(snap.Positions) != 3 {
		t.Errorf("Snapshot 1 mismatch: iteration %d, %d positions", snap.Iteration, len(snap.Positions))
	}

	w = doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/snapshots/best", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var best opt.Snapshot
	json.NewDecoder(w.Body).Decode(&best)
	for _, item := range items {
		if item.Cost < best.Cost {
			t.Errorf("Best snapshot cost %f is above snapshot %d (%f)", best.Cost, item.Index, item.Cost)
		}
	}
	if best.Cost < done.BestCost-1e-9 {
		t.Errorf("No snapshot can beat the best cost %f, got %f", done.BestCost, best.Cost)
	}

	for path, status := range map[string]int{
		"/snapshots/abc":   http.StatusBadRequest,
		"/snapshots/-1":    http.StatusNotFound,
		"/snapshots/99999": http.StatusNotFound,
	} {
		w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+path, nil)
		if w.Code != status {
			t.Errorf("%s: expected status %d, got %d", path, status, w.Code)
		}
	}
}

func TestServer_GetLayout(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := createTestJob(t, s, testConfig())
	done := waitForState(t, s.jobManager, job.ID, StateCompleted)

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/layout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	doc, err := layout.Decode(w.Body.Bytes(), "json")
	if err != nil {
		t.Fatalf("Layout response should decode: %v", err)
	}
	state := doc.State()
	for id, pos := range done.BestPositions {
		if state.Components[id].Position != pos {
			t.Errorf("%s: layout position %v, best %v", id, state.Components[id].Position, pos)
		}
	}
	if state.Components["src"].Position != testLayout().Components["src"].Position {
		t.Error("Fixed source must not move")
	}
}

func TestServer_GetPreview(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := s.jobManager.CreateJob(testConfig(), testLayout())

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/preview.png?scale=0.5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected Content-Type image/png, got %s", ct)
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("Expected 200x200 preview, got %dx%d", b.Dx(), b.Dy())
	}

	for _, q := range []string{"0", "-1", "abc", "100"} {
		w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/preview.png?scale="+q, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("scale=%s: expected status 400, got %d", q, w.Code)
		}
	}
}

func TestServer_GetGraph(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := s.jobManager.CreateJob(testConfig(), testLayout())

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/graph.svg", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Expected Content-Type image/svg+xml, got %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<svg") || !strings.Contains(body, "m1") {
		t.Error("Graph should be an SVG naming the components")
	}
}

func TestServer_PauseResumeCancel(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(":8080", fs)
	defer s.Shutdown(context.Background())

	config := longConfig()
	config.CheckpointInterval = 60
	job := createTestJob(t, s, config)
	waitForState(t, s.jobManager, job.ID, StateRunning)

	base := "/api/v1/jobs/" + job.ID
	if w := doRequest(t, s, http.MethodPost, base+"/pause", nil); w.Code != http.StatusAccepted {
		t.Fatalf("pause: expected status 202, got %d", w.Code)
	}
	waitForState(t, s.jobManager, job.ID, StatePaused)

	if w := doRequest(t, s, http.MethodPost, base+"/resume", nil); w.Code != http.StatusAccepted {
		t.Fatalf("resume: expected status 202, got %d", w.Code)
	}
	waitForState(t, s.jobManager, job.ID, StateRunning)

	if w := doRequest(t, s, http.MethodPost, base+"/cancel", nil); w.Code != http.StatusAccepted {
		t.Fatalf("cancel: expected status 202, got %d", w.Code)
	}
	waitForState(t, s.jobManager, job.ID, StateCancelled)

	if w := doRequest(t, s, http.MethodPost, base+"/pause", nil); w.Code != http.StatusConflict {
		t.Errorf("pause after cancel: expected status 409, got %d", w.Code)
	}
	if w := doRequest(t, s, http.MethodPost, "/api/v1/jobs/nonexistent/cancel", nil); w.Code != http.StatusNotFound {
		t.Errorf("cancel unknown job: expected status 404, got %d", w.Code)
	}

	// the cancelled job leaves a final checkpoint behind
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := fs.LoadCheckpoint(job.ID); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Cancelled job should save a checkpoint")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_Checkpoints(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(":8080", fs)
	defer s.Shutdown(context.Background())

	config := testConfig()
	config.CheckpointInterval = 60
	job := createTestJob(t, s, config)
	done := waitForState(t, s.jobManager, job.ID, StateCompleted)

	var cp *store.Checkpoint
	deadline := time.Now().Add(5 * time.Second)
	for cp == nil {
		cp, _ = fs.LoadCheckpoint(job.ID)
		if cp == nil && time.Now().After(deadline) {
			t.Fatal("Completed job should save a checkpoint")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := doRequest(t, s, http.MethodGet, "/api/v1/checkpoints", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var infos []store.CheckpointInfo
	json.NewDecoder(w.Body).Decode(&infos)
	if len(infos) != 1 || infos[0].JobID != job.ID {
		t.Fatalf("Expected one checkpoint for %s, got %v", job.ID, infos)
	}

	// resuming starts from the checkpointed best layout
	resumeConfig := testConfig()
	resumeConfig.LayoutPath = ""
	req := createJobRequest{JobConfig: resumeConfig, Layout: layout.DocumentFrom(testLayout()), ResumeFrom: job.ID}
	w = doRequest(t, s, http.MethodPost, "/api/v1/jobs", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("resume: expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resumed Job
	json.NewDecoder(w.Body).Decode(&resumed)
	finished := waitForState(t, s.jobManager, resumed.ID, StateCompleted)
	if finished.BestCost > done.BestCost+1e-6 {
		t.Errorf("Resumed best %f is worse than checkpoint %f", finished.BestCost, done.BestCost)
	}

	// a checkpoint for a different layout shape is rejected
	other := testLayout()
	delete(other.Components, "det")
	req = createJobRequest{JobConfig: resumeConfig, Layout: layout.DocumentFrom(other), ResumeFrom: job.ID}
	if w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", req); w.Code != http.StatusConflict {
		t.Errorf("incompatible resume: expected status 409, got %d", w.Code)
	}
	req.ResumeFrom = "nonexistent"
	if w := doRequest(t, s, http.MethodPost, "/api/v1/jobs", req); w.Code != http.StatusNotFound {
		t.Errorf("unknown checkpoint: expected status 404, got %d", w.Code)
	}

	if w := doRequest(t, s, http.MethodDelete, "/api/v1/checkpoints/"+job.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: expected status 204, got %d", w.Code)
	}
	if w := doRequest(t, s, http.MethodDelete, "/api/v1/checkpoints/"+job.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: expected status 404, got %d", w.Code)
	}
}

func TestServer_CheckpointsDisabled(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	w := doRequest(t, s, http.MethodGet, "/api/v1/checkpoints", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected an empty list, got %d %q", w.Code, w.Body.String())
	}
	if w := doRequest(t, s, http.MethodDelete, "/api/v1/checkpoints/x", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_Healthz(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	w := doRequest(t, s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header should be set")
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	job := s.jobManager.CreateJob(testConfig(), testLayout())

	resp, err := http.Get(ts.URL + "/api/v1/jobs/" + job.ID + "/stream")
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected Content-Type text/event-stream, got %s", ct)
	}

	go runJob(context.Background(), s.jobManager, nil, "", job.ID, nil)

	var events []ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event ProgressEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Failed to parse SSE data: %v", err)
		}
		events = append(events, event)
	}

	if len(events) < 2 {
		t.Fatalf("Expected an initial and a final event, got %d", len(events))
	}
	if events[0].JobID != job.ID || events[0].State != StatePending {
		t.Errorf("Unexpected initial event %+v", events[0])
	}
	last := events[len(events)-1]
	if last.State != StateCompleted || last.Iterations == 0 {
		t.Errorf("Stream should end with the completed state, got %+v", last)
	}
}

func TestServer_JobStream_Finished(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	job := s.jobManager.CreateJob(testConfig(), testLayout())
	s.jobManager.UpdateJob(job.ID, func(j *Job) { j.State = StateFailed })

	w := doRequest(t, s, http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if n := strings.Count(w.Body.String(), "data: "); n != 1 {
		t.Errorf("A finished job's stream should hold one event, got %d", n)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()
	jobID := "test-job-123"

	ch1 := eb.Subscribe(jobID)
	ch2 := eb.Subscribe(jobID)
	defer eb.Unsubscribe(jobID, ch1)
	defer eb.Unsubscribe(jobID, ch2)

	event := ProgressEvent{JobID: jobID, State: StateRunning, Iterations: 100, BestCost: 50.5}
	eb.Broadcast(event)

	for i, ch := range []chan ProgressEvent{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Iterations != 100 {
				t.Errorf("Client %d: expected 100 iterations, got %d", i+1, received.Iterations)
			}
		case <-time.After(1 * time.Second):
			t.Fatalf("Client %d did not receive event", i+1)
		}
	}

	// late subscribers get the last event
	ch3 := eb.Subscribe(jobID)
	select {
	case received := <-ch3:
		if received.BestCost != 50.5 {
			t.Errorf("Expected last event replay, got %+v", received)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Late subscriber did not receive the last event")
	}
	eb.Unsubscribe(jobID, ch3)
	eb.Unsubscribe(jobID, ch3) // second call is a no-op

	eb.CleanupJob(jobID)

	if _, ok := <-ch1; ok {
		t.Error("Channel should be closed after cleanup")
	}
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	fs, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(":8080", fs)

	config := longConfig()
	config.CheckpointInterval = 60
	job := createTestJob(t, s, config)
	waitForState(t, s.jobManager, job.ID, StateRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Expected cancelled after shutdown, got %s", updated.State)
	}
	if _, err := fs.LoadCheckpoint(job.ID); err != nil {
		t.Errorf("Shutdown should leave a final checkpoint: %v", err)
	}
}
