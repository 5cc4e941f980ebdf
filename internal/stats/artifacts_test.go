package stats

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nevo/internal/config"
	"nevo/internal/genome"
	"nevo/internal/neat"
)

func testArtifacts(t *testing.T, runID string, history []float64) RunArtifacts {
	t.Helper()
	snapshot := genome.New(2, 1, config.Default(), nil).Snapshot()
	return RunArtifacts{
		RunID:          runID,
		Label:          "xor",
		CreatedAtUTC:   "2026-03-01T10:00:00Z",
		Iterations:     len(history),
		FinalError:     0.05,
		Converged:      true,
		FitnessHistory: history,
		Telemetry: []neat.Telemetry{
			{Generation: 0, Best: history[0], SpeciesCount: 2},
			{Generation: 1, Best: history[len(history)-1], SpeciesCount: 3},
		},
		SpeciesHistory: []neat.SpeciesSnapshot{{
			Generation: 0,
			Species: []neat.SpeciesRecord{
				{ID: 1, Size: 6, BestScore: history[0], MeanScore: history[0] - 0.1, Age: 1},
				{ID: 2, Size: 4, BestScore: history[0] - 0.2, Age: 1},
			},
		}},
		Lineage: []neat.LineageRecord{
			{GenomeID: 1, Depth: 0},
			{GenomeID: 3, Parents: []int{1, 2}, Depth: 1},
		},
		BestSnapshot: &snapshot,
	}
}

func TestWriteRunArtifactsLayout(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts(t, "run-1", []float64{-0.9, -0.4, -0.1})

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	for _, name := range []string{"run.json", "fitness_history.json", "best_genome.json", "summary.json", "telemetry.csv", "species.csv", "lineage.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	loaded, ok, err := ReadRunArtifacts(baseDir, "run-1")
	if err != nil || !ok {
		t.Fatalf("read artifacts: ok=%v err=%v", ok, err)
	}
	if loaded.Label != "xor" || len(loaded.FitnessHistory) != 3 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
	if loaded.BestSnapshot == nil || len(loaded.BestSnapshot.Nodes) != 3 {
		t.Fatalf("best snapshot lost in round trip")
	}
}

func TestWriteRunArtifactsRejectsEmptyID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}

func TestWriteRunArtifactsSanitizesInfiniteError(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts(t, "run-inf", []float64{-1})
	artifacts.FinalError = math.Inf(1)
	artifacts.Converged = true

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	loaded, ok, err := ReadRunArtifacts(baseDir, "run-inf")
	if err != nil || !ok {
		t.Fatalf("read artifacts: ok=%v err=%v", ok, err)
	}
	if loaded.Converged || loaded.FinalError != 0 {
		t.Fatalf("infinite error not sanitized: %+v", loaded)
	}
}

func TestTelemetryCSVRoundTrip(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts(t, "run-csv", []float64{-0.8, -0.2})

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	rows, err := ReadTelemetryCSV(filepath.Join(runDir, "telemetry.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d telemetry rows, want 2", len(rows))
	}
	if rows[1].Generation != 1 || rows[1].Species != 3 || rows[1].Best != -0.2 {
		t.Fatalf("row mismatch: %+v", rows[1])
	}
}

func TestLineageCSVJoinsParents(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := testArtifacts(t, "run-lin", []float64{-0.5})

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runDir, "lineage.csv"))
	if err != nil {
		t.Fatalf("read lineage csv: %v", err)
	}
	if !strings.Contains(string(data), "3,1,1;2") {
		t.Fatalf("lineage csv missing joined parents row:\n%s", data)
	}
}

func TestRunIndexUpsertAndOrder(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "run-a", CreatedAtUTC: "2026-03-01T10:00:00Z", FinalError: 0.2},
		{RunID: "run-b", CreatedAtUTC: "2026-03-02T10:00:00Z", FinalError: 0.1},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(index) != 2 || index[0].RunID != "run-b" {
		t.Fatalf("index order wrong: %+v", index)
	}

	// Re-appending an existing run replaces its entry.
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-a", CreatedAtUTC: "2026-03-01T10:00:00Z", Converged: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	index, _ = ListRunIndex(baseDir)
	if len(index) != 2 || !index[1].Converged {
		t.Fatalf("upsert did not replace: %+v", index)
	}
}

func TestExportRunCopiesFiles(t *testing.T) {
	baseDir := t.TempDir()
	outDir := t.TempDir()
	artifacts := testArtifacts(t, "run-x", []float64{-0.5})

	if _, err := WriteRunArtifacts(baseDir, artifacts); err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	dst, err := ExportRun(baseDir, "run-x", outDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	original, _ := os.ReadFile(filepath.Join(baseDir, "run-x", "run.json"))
	copied, err := os.ReadFile(filepath.Join(dst, "run.json"))
	if err != nil {
		t.Fatalf("read exported copy: %v", err)
	}
	if string(original) != string(copied) {
		t.Fatalf("exported run.json differs from original")
	}
}
