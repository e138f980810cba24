package main

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/beamlayout/internal/cost"
	"github.com/cwbudde/beamlayout/internal/geom"
	"github.com/cwbudde/beamlayout/internal/layout"
	"github.com/cwbudde/beamlayout/internal/opt"
	"github.com/cwbudde/beamlayout/internal/store"
	"gonum.org/v1/gonum/spatial/r2"
)

func benchLayout() *layout.State {
	return layout.NewState(
		layout.Constraints{Workspace: geom.NewRect(0, 0, 400, 400)},
		[]*layout.Component{
			{ID: "src", Type: geom.TypeSource, Position: r2.Vec{X: 60, Y: 200}, Size: layout.Size{Width: 20, Height: 10}, Mass: 2, IsFixed: true, IsAngleFixed: true},
			{ID: "m1", Type: geom.TypeMirror, Position: r2.Vec{X: 250, Y: 210}, Angle: 45, Size: layout.Size{Width: 12, Height: 4}, Mass: 1},
			{ID: "det", Type: geom.TypeDetector, Position: r2.Vec{X: 240, Y: 340}, Size: layout.Size{Width: 10, Height: 10}, Mass: 1},
		},
		[]layout.BeamSegment{
			{ID: "b1", SourceID: "src", TargetID: "m1"},
			{ID: "b2", SourceID: "m1", TargetID: "det"},
		},
	)
}

func benchJob() job {
	return job{
		ID:            "cli-job",
		LayoutPath:    "bench.yaml",
		State:         benchLayout(),
		Weights:       cost.DefaultWeights(),
		Options:       opt.Options{Seed: 3, Overrides: opt.Params{MaxIterations: 500}},
		PreplaceIters: 20,
		PreplacePop:   10,
	}
}

func TestOptimize(t *testing.T) {
	dir := t.TempDir()
	j := benchJob()
	j.TraceDir = dir

	res, err := optimize(context.Background(), j)
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}

	if res.Summary.Reason != opt.ReasonMaxIterations && res.Summary.Reason != opt.ReasonEarlyStop {
		t.Errorf("Unexpected reason %q", res.Summary.Reason)
	}
	if res.Summary.BestCost > res.Summary.InitialCost {
		t.Errorf("Best cost %f worse than initial %f", res.Summary.BestCost, res.Summary.InitialCost)
	}
	if got := cost.Evaluate(res.State, j.Weights).Total; got > res.Summary.BestCost+1e-6 {
		t.Errorf("Returned state cost %f should equal best cost %f", got, res.Summary.BestCost)
	}
	if err := res.Checkpoint.Validate(); err != nil {
		t.Errorf("Checkpoint invalid: %v", err)
	}
	if res.Checkpoint.Config.Params.MaxIterations != 500 {
		t.Error("Checkpoint should record the parameter overrides")
	}

	tr, err := store.NewTraceReader(dir, j.ID)
	if err != nil {
		t.Fatalf("Trace should exist: %v", err)
	}
	defer tr.Close()
	entries, _ := tr.ReadAll()
	if len(entries) != res.Snapshots {
		t.Errorf("Trace has %d entries, want %d", len(entries), res.Snapshots)
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	a, err := optimize(context.Background(), benchJob())
	if err != nil {
		t.Fatal(err)
	}
	b, err := optimize(context.Background(), benchJob())
	if err != nil {
		t.Fatal(err)
	}
	if a.Summary.BestCost != b.Summary.BestCost || a.Summary.Iterations != b.Summary.Iterations {
		t.Errorf("Same seed gave different results: %+v vs %+v", a.Summary, b.Summary)
	}
}

func TestOptimize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := optimize(ctx, benchJob())
	if err != nil {
		t.Fatalf("Cancellation should not be an error: %v", err)
	}
	if res.Summary.Reason != opt.ReasonStopped {
		t.Errorf("Reason = %q, want %q", res.Summary.Reason, opt.ReasonStopped)
	}
	if res.Summary.Iterations != 0 {
		t.Errorf("Cancelled run should not iterate, got %d", res.Summary.Iterations)
	}
}

func TestOptimize_Preplace(t *testing.T) {
	j := benchJob()
	j.Preplace = true

	res, err := optimize(context.Background(), j)
	if err != nil {
		t.Fatalf("optimize failed: %v", err)
	}
	if !res.Checkpoint.Config.Preplace {
		t.Error("Checkpoint should record pre-placement")
	}
	if res.State.Components["src"].Position != (r2.Vec{X: 60, Y: 200}) {
		t.Error("Pre-placement must not move fixed components")
	}
}

func TestOptimize_Resume(t *testing.T) {
	first, err := optimize(context.Background(), benchJob())
	if err != nil {
		t.Fatal(err)
	}

	j := benchJob()
	j.Resume = first.Checkpoint
	second, err := optimize(context.Background(), j)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if second.Summary.InitialCost > first.Summary.BestCost+1e-6 {
		t.Errorf("Resume should start at %f, started at %f", first.Summary.BestCost, second.Summary.InitialCost)
	}
	if second.Summary.BestCost > first.Summary.BestCost+1e-6 {
		t.Errorf("Resumed best %f is worse than %f", second.Summary.BestCost, first.Summary.BestCost)
	}

	j = benchJob()
	j.LayoutPath = "other.yaml"
	j.Resume = first.Checkpoint
	var compat *store.CompatibilityError
	if _, err := optimize(context.Background(), j); !errors.As(err, &compat) {
		t.Errorf("Expected CompatibilityError, got %v", err)
	}
}

func TestExecute_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	f := &runFlags{
		outPath:      filepath.Join(dir, "out.json"),
		previewPath:  filepath.Join(dir, "preview.png"),
		previewScale: 0.25,
		checkpoint:   true,
		store:        storeFlags{dataDir: dir},
	}

	if err := execute(context.Background(), benchJob(), f); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	state, err := layout.Load(f.outPath)
	if err != nil {
		t.Fatalf("Output layout should load: %v", err)
	}
	if len(state.Components) != 3 || state.Beams.Len() != 2 {
		t.Error("Output layout lost components or beams")
	}

	file, err := os.Open(f.previewPath)
	if err != nil {
		t.Fatalf("Preview should exist: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Preview is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("Expected 100x100 preview, got %dx%d", b.Dx(), b.Dy())
	}

	fs, _ := store.NewFSStore(dir)
	if _, err := fs.LoadCheckpoint("cli-job"); err != nil {
		t.Errorf("Checkpoint should be saved: %v", err)
	}
}

func TestDefaultOutPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"bench.yaml", "bench.opt.yaml"},
		{"dir/bench.json", "dir/bench.opt.json"},
		{"bench", "bench.opt.json"},
	}
	for _, tt := range tests {
		if got := defaultOutPath(tt.in); got != tt.want {
			t.Errorf("defaultOutPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnapshotIndex(t *testing.T) {
	snaps := []opt.Snapshot{{Cost: 5}, {Cost: 2}, {Cost: 3}, {Cost: 2}}

	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{"best", 1, false},
		{"0", 0, false},
		{"3", 3, false},
		{"4", 0, true},
		{"-1", 0, true},
		{"x", 0, true},
	}
	for _, tt := range tests {
		got, err := snapshotIndex(tt.arg, snaps)
		if (err != nil) != tt.wantErr {
			t.Errorf("snapshotIndex(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("snapshotIndex(%q) = %d, want %d", tt.arg, got, tt.want)
		}
	}

	if _, err := snapshotIndex("best", nil); err == nil {
		t.Error("Expected error for an empty trace")
	}
}
