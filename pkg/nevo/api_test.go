package nevo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"nevo/internal/config"
	"nevo/internal/genome"
)

func xorDataset() []genome.Sample {
	return []genome.Sample{
		{Input: []float64{0, 0}, Output: []float64{0}},
		{Input: []float64{0, 1}, Output: []float64{1}},
		{Input: []float64{1, 0}, Output: []float64{1}},
		{Input: []float64{1, 1}, Output: []float64{0}},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	base := t.TempDir()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: filepath.Join(base, "artifacts"),
		ExportsDir:   filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientRunPersistsAndQueries(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	summary, err := client.Run(ctx, RunRequest{
		Label:          "xor",
		Inputs:         2,
		Outputs:        1,
		Dataset:        xorDataset(),
		PopulationSize: 12,
		Iterations:     3,
		Seed:           42,
		Workers:        2,
		Speciation:     true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" {
		t.Fatal("expected run id")
	}
	if summary.Iterations < 1 || summary.Iterations > 3 {
		t.Fatalf("iterations = %d, want within [1, 3]", summary.Iterations)
	}
	if len(summary.FitnessHistory) != summary.Iterations {
		t.Fatalf("history length %d does not match iterations %d", len(summary.FitnessHistory), summary.Iterations)
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "run.json")); err != nil {
		t.Fatalf("run artifacts missing: %v", err)
	}

	runs, err := client.Runs(ctx, RunsRequest{Limit: 5})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("runs list missing %s: %+v", summary.RunID, runs)
	}

	history, err := client.FitnessHistory(ctx, HistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if len(history) != summary.Iterations {
		t.Fatalf("persisted history length %d, want %d", len(history), summary.Iterations)
	}

	telemetry, err := client.TelemetryHistory(ctx, HistoryRequest{Latest: true})
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if len(telemetry) != summary.Iterations {
		t.Fatalf("telemetry length %d, want %d", len(telemetry), summary.Iterations)
	}

	species, err := client.SpeciesHistory(ctx, HistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("species history: %v", err)
	}
	if len(species) == 0 {
		t.Fatal("expected non-empty species history for speciated run")
	}

	lineage, err := client.Lineage(ctx, HistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) < 12 {
		t.Fatalf("lineage has %d entries, want at least the initial pool", len(lineage))
	}
}

func TestClientBestGenomeActivates(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	summary, err := client.Run(ctx, RunRequest{
		Inputs:         2,
		Outputs:        1,
		Dataset:        xorDataset(),
		PopulationSize: 10,
		Iterations:     2,
		Seed:           7,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.Converged {
		t.Skip("run produced no valid best genome")
	}

	best, err := client.BestGenome(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("best genome: %v", err)
	}
	out := best.Activate([]float64{1, 0})
	if len(out) != 1 {
		t.Fatalf("output size = %d, want 1", len(out))
	}
}

func TestClientExportLatest(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.Run(ctx, RunRequest{
		Inputs:         2,
		Outputs:        1,
		Dataset:        xorDataset(),
		PopulationSize: 8,
		Iterations:     2,
		Seed:           1,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "run.json")); err != nil {
		t.Fatalf("exported run.json missing: %v", err)
	}

	if _, err := client.Export(ctx, ExportRequest{RunID: "x", Latest: true}); err == nil {
		t.Fatal("expected error for run id combined with latest")
	}
}

func TestClientRunValidation(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	if _, err := client.Run(ctx, RunRequest{Outputs: 1, Dataset: xorDataset()}); err == nil {
		t.Fatal("expected error for missing inputs")
	}
	if _, err := client.Run(ctx, RunRequest{Inputs: 2, Outputs: 1}); err == nil {
		t.Fatal("expected error for missing dataset")
	}
	if _, err := client.Run(ctx, RunRequest{
		Inputs: 2, Outputs: 1, Dataset: xorDataset(), Selection: "rank",
	}); err == nil {
		t.Fatal("expected error for unsupported selection")
	}
}

func TestClientSettingsOverlay(t *testing.T) {
	settings := config.Settings{}
	settings.Neat.PopSize = 30
	settings.Neat.MutationRate = 0.6
	settings.Speciation.Enabled = true
	settings.Speciation.TargetSpecies = 4

	opts, err := engineOptions(RunRequest{
		Inputs: 2, Outputs: 1, Dataset: xorDataset(),
		PopulationSize: 20,
		Settings:       &settings,
	})
	if err != nil {
		t.Fatalf("engine options: %v", err)
	}
	// Request fields win over file settings.
	if opts.PopulationSize != 20 {
		t.Fatalf("population = %d, want request value 20", opts.PopulationSize)
	}
	if opts.MutationRate == nil || *opts.MutationRate != 0.6 {
		t.Fatalf("mutation rate not taken from settings: %+v", opts.MutationRate)
	}
	if !opts.Speciation || opts.TargetSpecies != 4 {
		t.Fatalf("speciation settings not applied: %+v", opts)
	}
}

func TestClientSettingsGenomeAndCaps(t *testing.T) {
	settings := config.Settings{}
	settings.Genome.EnforceAcyclic = true
	settings.Genome.MinHidden = 2
	settings.Genome.ReenableProb = 0.3
	settings.Neat.MaxNodes = 40
	settings.Neat.MaxConns = 100
	settings.Neat.MaxGates = 10
	settings.Telemetry.Select = []string{"diversity"}
	settings.Telemetry.Complexity = true
	settings.Telemetry.Performance = true

	opts, err := engineOptions(RunRequest{
		Inputs: 2, Outputs: 1, Dataset: xorDataset(),
		Settings: &settings,
	})
	if err != nil {
		t.Fatalf("engine options: %v", err)
	}
	if !opts.EnforceAcyclic || opts.MinHidden != 2 || opts.ReenableProb != 0.3 {
		t.Fatalf("genome policy not applied: acyclic=%v min=%d reenable=%v",
			opts.EnforceAcyclic, opts.MinHidden, opts.ReenableProb)
	}
	if opts.MaxNodes != 40 || opts.MaxConns != 100 || opts.MaxGates != 10 {
		t.Fatalf("growth caps not applied: %d/%d/%d", opts.MaxNodes, opts.MaxConns, opts.MaxGates)
	}
	want := []string{"diversity", "complexity", "perf"}
	if len(opts.TelemetrySelect) != len(want) {
		t.Fatalf("telemetry select %v, want %v", opts.TelemetrySelect, want)
	}
	for i, key := range want {
		if opts.TelemetrySelect[i] != key {
			t.Fatalf("telemetry select %v, want %v", opts.TelemetrySelect, want)
		}
	}
}
