// Package nevo is the public entry point for running neuroevolution
// experiments, persisting their results and querying past runs.
package nevo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"nevo/internal/config"
	"nevo/internal/genome"
	"nevo/internal/neat"
	"nevo/internal/stats"
	"nevo/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "nevo.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

// Client wires the evolution engine to a store and an artifacts directory.
type Client struct {
	store storage.Store

	artifactsDir string
	exportsDir   string
	initialized  bool
}

type RunRequest struct {
	Label   string
	Inputs  int
	Outputs int
	Dataset []genome.Sample

	PopulationSize int
	Iterations     int
	TargetError    *float64
	Seed           int64
	Workers        int
	Selection      string
	Elitism        int
	Provenance     int
	MutationRate   *float64
	MutationAmount *int
	EqualFitness   bool
	Growth         float64

	Speciation     bool
	TargetSpecies  int
	FitnessSharing bool
	MultiObjective bool

	// Settings overlays file-based configuration onto the engine options
	// before per-request fields are applied.
	Settings *config.Settings
}

type RunSummary struct {
	RunID          string
	Label          string
	Error          float64
	Iterations     int
	Duration       time.Duration
	Converged      bool
	ArtifactsDir   string
	FitnessHistory []float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	Label        string
	StartedAtUTC string
	Iterations   int
	Error        float64
	Converged    bool
	Duration     time.Duration
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(opts.StoreKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Run evolves a network against the request's dataset, persists the run and
// writes its artifacts directory.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	if req.Inputs <= 0 || req.Outputs <= 0 {
		return RunSummary{}, errors.New("inputs and outputs must be > 0")
	}
	if len(req.Dataset) == 0 {
		return RunSummary{}, errors.New("dataset is required")
	}
	if req.Iterations <= 0 && req.TargetError == nil {
		req.Iterations = 100
	}

	engineOpts, err := engineOptions(req)
	if err != nil {
		return RunSummary{}, err
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()

	var history []float64
	var telemetry []neat.Telemetry
	engineOpts.Schedule = func(entry neat.Telemetry) {
		history = append(history, entry.Best)
		telemetry = append(telemetry, entry)
	}

	var engine *neat.Engine
	evolveOpts := neat.EvolveOptions{
		Options:  engineOpts,
		Clear:    true,
		OnEngine: func(e *neat.Engine) { engine = e },
	}
	if req.Iterations > 0 {
		iterations := req.Iterations
		evolveOpts.Iterations = &iterations
	}
	if req.TargetError != nil {
		target := *req.TargetError
		evolveOpts.TargetError = &target
	}

	net := genome.New(req.Inputs, req.Outputs, engineOpts.Config, nil)
	result, err := neat.EvolveNetwork(net, req.Dataset, evolveOpts)
	if err != nil {
		return RunSummary{}, err
	}
	converged := !math.IsInf(result.Error, 0) && !math.IsNaN(result.Error)

	run := storage.RunRecord{
		VersionedRecord: storage.NewVersionedRecord(),
		ID:              runID,
		Label:           req.Label,
		StartedAt:       startedAt,
		FinishedAt:      time.Now().UTC(),
		Iterations:      result.Iterations,
		Converged:       converged,
		Duration:        result.Duration,
	}
	if converged {
		run.Error = result.Error
	}
	if err := c.store.SaveRun(ctx, run); err != nil {
		return RunSummary{}, err
	}

	var snapshot *genome.Snapshot
	if converged {
		snap := net.Snapshot()
		snapshot = &snap
		record := storage.GenomeRecord{
			VersionedRecord: storage.NewVersionedRecord(),
			ID:              runID + "-best",
			RunID:           runID,
			Score:           -result.Error,
			Snapshot:        snap,
		}
		if err := c.store.SaveGenome(ctx, record); err != nil {
			return RunSummary{}, err
		}
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, history); err != nil {
		return RunSummary{}, err
	}
	if err := c.store.SaveTelemetry(ctx, runID, telemetry); err != nil {
		return RunSummary{}, err
	}
	if engine != nil {
		if err := c.store.SaveSpeciesHistory(ctx, runID, engine.SpeciesHistory()); err != nil {
			return RunSummary{}, err
		}
		lineage := make([]storage.LineageEntry, 0)
		for _, rec := range engine.LineageRecords() {
			lineage = append(lineage, storage.LineageEntry{
				GenomeID: rec.GenomeID,
				Parents:  rec.Parents,
				Depth:    rec.Depth,
			})
		}
		if err := c.store.SaveLineage(ctx, runID, lineage); err != nil {
			return RunSummary{}, err
		}
	}

	var speciesHistory []neat.SpeciesSnapshot
	var lineageRecords []neat.LineageRecord
	if engine != nil {
		speciesHistory = engine.SpeciesHistory()
		lineageRecords = engine.LineageRecords()
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		RunID:          runID,
		Label:          req.Label,
		CreatedAtUTC:   startedAt.Format(time.RFC3339Nano),
		Iterations:     result.Iterations,
		FinalError:     run.Error,
		Converged:      converged,
		FitnessHistory: history,
		Telemetry:      telemetry,
		SpeciesHistory: speciesHistory,
		Lineage:        lineageRecords,
		BestSnapshot:   snapshot,
	})
	if err != nil {
		return RunSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Label:        req.Label,
		Iterations:   result.Iterations,
		FinalError:   run.Error,
		Converged:    converged,
		CreatedAtUTC: startedAt.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:          runID,
		Label:          req.Label,
		Error:          result.Error,
		Iterations:     result.Iterations,
		Duration:       result.Duration,
		Converged:      converged,
		ArtifactsDir:   filepath.Clean(runDir),
		FitnessHistory: append([]float64(nil), history...),
	}, nil
}

func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) > req.Limit {
		runs = runs[len(runs)-req.Limit:]
	}

	out := make([]RunItem, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		out = append(out, RunItem{
			RunID:        run.ID,
			Label:        run.Label,
			StartedAtUTC: run.StartedAt.UTC().Format(time.RFC3339Nano),
			Iterations:   run.Iterations,
			Error:        run.Error,
			Converged:    run.Converged,
			Duration:     run.Duration,
		})
	}
	return out, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req HistoryRequest) ([]float64, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) TelemetryHistory(ctx context.Context, req HistoryRequest) ([]neat.Telemetry, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	entries, ok, err := c.store.GetTelemetry(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("telemetry not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	return entries, nil
}

func (c *Client) SpeciesHistory(ctx context.Context, req HistoryRequest) ([]neat.SpeciesSnapshot, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	snaps, ok, err := c.store.GetSpeciesHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("species history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(snaps) > req.Limit {
		snaps = snaps[:req.Limit]
	}
	return snaps, nil
}

func (c *Client) Lineage(ctx context.Context, req HistoryRequest) ([]storage.LineageEntry, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	return lineage, nil
}

// BestGenome returns the persisted best genome of a run, restored to a
// usable network.
func (c *Client) BestGenome(ctx context.Context, runID string) (*genome.Genome, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	record, ok, err := c.store.GetGenome(ctx, runID+"-best")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("best genome not found for run id: %s", runID)
	}
	return genome.FromSnapshot(record.Snapshot, config.Default())
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}
	dir, err := stats.ExportRun(c.artifactsDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if err := c.Init(ctx); err != nil {
		return "", err
	}
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", errors.New("no runs available")
	}
	return runs[len(runs)-1].ID, nil
}

// engineOptions layers file settings and request fields over engine defaults.
func engineOptions(req RunRequest) (neat.Options, error) {
	opts := neat.Options{}
	if req.Settings != nil {
		applySettings(&opts, *req.Settings)
	}

	if req.PopulationSize > 0 {
		opts.PopulationSize = req.PopulationSize
	}
	if req.Elitism > 0 {
		opts.Elitism = req.Elitism
	}
	if req.Provenance > 0 {
		opts.Provenance = req.Provenance
	}
	if req.MutationRate != nil {
		opts.MutationRate = req.MutationRate
	}
	if req.MutationAmount != nil {
		opts.MutationAmount = req.MutationAmount
	}
	if req.EqualFitness {
		opts.EqualFitness = true
	}
	if req.Growth > 0 {
		opts.Growth = req.Growth
	}
	if req.Speciation {
		opts.Speciation = true
	}
	if req.TargetSpecies > 0 {
		opts.Speciation = true
		opts.TargetSpecies = req.TargetSpecies
	}
	if req.FitnessSharing {
		opts.FitnessSharing = true
	}
	if req.MultiObjective {
		opts.MultiObjective = true
	}
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	opts.Seed = req.Seed

	if req.Selection != "" {
		method, err := selectionFromName(req.Selection)
		if err != nil {
			return neat.Options{}, err
		}
		opts.Selection = method
	}
	return opts, nil
}

func applySettings(opts *neat.Options, s config.Settings) {
	if s.Neat.PopSize > 0 {
		opts.PopulationSize = s.Neat.PopSize
	}
	opts.Elitism = s.Neat.Elitism
	opts.Provenance = s.Neat.Provenance
	if s.Neat.MutationRate > 0 {
		rate := s.Neat.MutationRate
		opts.MutationRate = &rate
	}
	if s.Neat.MutationAmount > 0 {
		amount := s.Neat.MutationAmount
		opts.MutationAmount = &amount
	}
	if s.Neat.Selection != "" {
		if method, err := selectionFromName(s.Neat.Selection); err == nil {
			opts.Selection = method
		}
	}
	opts.EqualFitness = s.Neat.Equal
	opts.Growth = s.Neat.Growth
	opts.MaxNodes = s.Neat.MaxNodes
	opts.MaxConns = s.Neat.MaxConns
	opts.MaxGates = s.Neat.MaxGates
	opts.Workers = s.Neat.Workers
	opts.Seed = s.Neat.Seed

	opts.EnforceAcyclic = s.Genome.EnforceAcyclic
	opts.MinHidden = s.Genome.MinHidden
	if s.Genome.ReenableProb > 0 {
		opts.ReenableProb = s.Genome.ReenableProb
	}

	opts.Speciation = s.Speciation.Enabled
	opts.CompatThreshold = s.Speciation.CompatThreshold
	opts.CompatExcess = s.Speciation.ExcessCoefficient
	opts.CompatDisjoint = s.Speciation.DisjointCoefficient
	opts.CompatWeight = s.Speciation.WeightCoefficient
	opts.TargetSpecies = s.Speciation.TargetSpecies
	opts.StagnationWindow = s.Speciation.StagnationWindow
	opts.SpeciesAgeGrace = s.Speciation.AgeGrace
	opts.SpeciesAgePenalty = s.Speciation.AgePenalty
	if s.Speciation.KernelSharing {
		opts.FitnessSharing = true
		opts.SharingBandwidth = s.Speciation.SharingSigma
	}

	opts.HistoryCap = s.Telemetry.HistoryLimit
	opts.ExtendedHistory = s.Telemetry.ExtendedHistory
	opts.TelemetrySelect = s.Telemetry.Select
	if s.Telemetry.Complexity {
		opts.TelemetrySelect = appendSelect(opts.TelemetrySelect, "complexity")
	}
	if s.Telemetry.Performance {
		opts.TelemetrySelect = appendSelect(opts.TelemetrySelect, "perf")
	}
}

func appendSelect(selected []string, key string) []string {
	for _, have := range selected {
		if have == key {
			return selected
		}
	}
	return append(selected, key)
}

func selectionFromName(name string) (neat.SelectionMethod, error) {
	switch name {
	case "power":
		return neat.SelectionPower, nil
	case "fitness_proportionate":
		return neat.SelectionFitnessProportionate, nil
	case "tournament":
		return neat.SelectionTournament, nil
	default:
		return "", fmt.Errorf("unsupported selection strategy: %s", name)
	}
}
