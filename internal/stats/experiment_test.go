package stats

import (
	"math"
	"testing"
)

func writeRunHistory(t *testing.T, baseDir, runID string, history []float64) {
	t.Helper()
	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{RunID: runID, FitnessHistory: history}); err != nil {
		t.Fatalf("write run %s: %v", runID, err)
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	exp := Experiment{
		ID:           "exp-1",
		Label:        "xor sweep",
		StartedAtUTC: "2026-03-01T10:00:00Z",
		RunIDs:       []string{"run-a", "run-b"},
	}
	if err := WriteExperiment(baseDir, exp); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, ok, err := ReadExperiment(baseDir, "exp-1")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if loaded.Label != "xor sweep" || len(loaded.RunIDs) != 2 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}

	if _, ok, _ := ReadExperiment(baseDir, "missing"); ok {
		t.Fatalf("missing experiment reported present")
	}
}

func TestListExperimentsNewestFirst(t *testing.T) {
	baseDir := t.TempDir()
	for _, exp := range []Experiment{
		{ID: "old", StartedAtUTC: "2026-03-01T10:00:00Z"},
		{ID: "new", StartedAtUTC: "2026-03-02T10:00:00Z"},
	} {
		if err := WriteExperiment(baseDir, exp); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	exps, err := ListExperiments(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(exps) != 2 || exps[0].ID != "new" {
		t.Fatalf("experiments out of order: %+v", exps)
	}
}

func TestBuildExperimentSeriesAggregates(t *testing.T) {
	baseDir := t.TempDir()
	writeRunHistory(t, baseDir, "run-a", []float64{-1, -0.5, -0.25})
	writeRunHistory(t, baseDir, "run-b", []float64{-0.8, -0.4})

	series, err := BuildExperimentSeries(baseDir, Experiment{ID: "exp-1", RunIDs: []string{"run-a", "run-b"}})
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	if series.Runs != 2 || len(series.MeanBest) != 3 {
		t.Fatalf("series shape wrong: runs=%d gens=%d", series.Runs, len(series.MeanBest))
	}
	if math.Abs(series.MeanBest[0]-(-0.9)) > 1e-12 {
		t.Fatalf("gen 0 mean = %v, want -0.9", series.MeanBest[0])
	}
	// The shorter run holds its last value for trailing generations.
	if math.Abs(series.MeanBest[2]-(-0.325)) > 1e-12 {
		t.Fatalf("gen 2 mean = %v, want -0.325", series.MeanBest[2])
	}
	if series.MaxBest[2] != -0.25 || series.MinBest[2] != -0.4 {
		t.Fatalf("gen 2 envelope wrong: max=%v min=%v", series.MaxBest[2], series.MinBest[2])
	}
	if series.StdBest[0] <= 0 {
		t.Fatalf("std at gen 0 = %v, want > 0", series.StdBest[0])
	}

	if err := WriteExperimentSeries(baseDir, series); err != nil {
		t.Fatalf("write series: %v", err)
	}
}

func TestBuildExperimentSeriesMissingRun(t *testing.T) {
	if _, err := BuildExperimentSeries(t.TempDir(), Experiment{ID: "exp", RunIDs: []string{"ghost"}}); err == nil {
		t.Fatal("expected error for missing run artifacts")
	}
}
