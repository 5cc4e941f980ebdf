//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"nevo/internal/neat"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "nevo.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreRunAndGenomeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	run := RunRecord{
		VersionedRecord: NewVersionedRecord(),
		ID:              "run-1",
		StartedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Iterations:      5,
		Error:           0.1,
		Converged:       true,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	loadedRun, ok, err := store.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if loadedRun.Iterations != 5 || !loadedRun.Converged {
		t.Fatalf("loaded run %+v mismatch", loadedRun)
	}

	record := testGenomeRecord(t)
	if err := store.SaveGenome(ctx, record); err != nil {
		t.Fatalf("save genome: %v", err)
	}
	loaded, ok, err := store.GetGenome(ctx, record.ID)
	if err != nil || !ok {
		t.Fatalf("get genome: ok=%v err=%v", ok, err)
	}
	if len(loaded.Snapshot.Conns) != len(record.Snapshot.Conns) {
		t.Fatalf("genome snapshot lost connections across sqlite round trip")
	}

	if _, ok, _ := store.GetGenome(ctx, "missing"); ok {
		t.Fatalf("missing genome reported present")
	}
}

func TestSQLiteStoreRunArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteTestStore(t)

	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{3, 2, 1}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil || !ok || len(history) != 3 {
		t.Fatalf("history round trip: ok=%v err=%v %v", ok, err, history)
	}

	entries := []neat.Telemetry{{Generation: 2, Best: -0.5, SpeciesCount: 3}}
	if err := store.SaveTelemetry(ctx, "run-1", entries); err != nil {
		t.Fatalf("save telemetry: %v", err)
	}
	loaded, ok, err := store.GetTelemetry(ctx, "run-1")
	if err != nil || !ok || loaded[0].SpeciesCount != 3 {
		t.Fatalf("telemetry round trip: ok=%v err=%v %+v", ok, err, loaded)
	}

	lineage := []LineageEntry{{GenomeID: 4, Parents: []int{1}, Depth: 2}}
	if err := store.SaveLineage(ctx, "run-1", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	loadedLineage, ok, err := store.GetLineage(ctx, "run-1")
	if err != nil || !ok || loadedLineage[0].Depth != 2 {
		t.Fatalf("lineage round trip: ok=%v err=%v %+v", ok, err, loadedLineage)
	}

	// Upsert replaces, never appends.
	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{9}); err != nil {
		t.Fatalf("re-save history: %v", err)
	}
	history, _, _ = store.GetFitnessHistory(ctx, "run-1")
	if len(history) != 1 || history[0] != 9 {
		t.Fatalf("history upsert failed: %v", history)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "nevo.db"))
	if err := store.SaveFitnessHistory(context.Background(), "run-1", nil); err == nil {
		t.Fatalf("expected error before Init")
	}
}
