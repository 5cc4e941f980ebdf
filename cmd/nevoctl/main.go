package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"nevo/internal/config"
	"nevo/internal/dataset"
	"nevo/internal/genome"
	"nevo/internal/stats"
	"nevo/internal/storage"
	"nevo/pkg/nevo"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "telemetry":
		return runTelemetry(ctx, args[1:])
	case "species":
		return runSpecies(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "experiment":
		return runExperiment(ctx, args[1:])
	case "dataset":
		return runDataset(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: nevoctl <init|run|runs|fitness|telemetry|species|lineage|export|experiment|dataset> [flags]", msg)
}

// storeFlags are shared by every command that opens the store.
type storeFlags struct {
	kind         *string
	dbPath       *string
	artifactsDir *string
	exportsDir   *string
}

func registerStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		kind:         fs.String("store", "memory", "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", "nevo.db", "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", "artifacts", "run artifacts directory"),
		exportsDir:   fs.String("exports-dir", "exports", "export output directory"),
	}
}

func (f storeFlags) client() (*nevo.Client, error) {
	return nevo.New(nevo.Options{
		StoreKind:    *f.kind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   *f.exportsDir,
	})
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(*sf.kind, *sf.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *sf.kind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	label := fs.String("label", "", "run label")
	dataPath := fs.String("data", "", "CSV dataset path (in_*/out_* columns)")
	builtin := fs.String("dataset", "xor", "builtin dataset when -data is unset: xor|sine")
	settingsPath := fs.String("settings", "", "INI settings file")
	population := fs.Int("pop", 0, "population size (0 uses settings or engine default)")
	iterations := fs.Int("iters", 100, "iteration cap (0 with -target-error for open-ended)")
	targetError := fs.Float64("target-error", -1, "stop once best error drops to this value (<0 disables)")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 4, "evaluation worker count")
	selection := fs.String("selection", "power", "parent selection: power|fitness_proportionate|tournament")
	elitism := fs.Int("elitism", 0, "elite genomes copied unchanged per generation")
	provenance := fs.Int("provenance", 0, "fresh seed genomes injected per generation")
	mutationRate := fs.Float64("mutation-rate", -1, "per-genome mutation probability (<0 uses engine default)")
	mutationAmount := fs.Int("mutation-amount", -1, "mutation passes per selected genome (<0 uses engine default)")
	equal := fs.Bool("equal", false, "treat crossover parents as equally fit")
	growth := fs.Float64("growth", 0, "complexity penalty coefficient")
	speciation := fs.Bool("speciation", false, "enable speciation")
	targetSpecies := fs.Int("target-species", 0, "steer compatibility threshold toward this species count")
	sharing := fs.Bool("sharing", false, "enable fitness sharing within species")
	multiObjective := fs.Bool("multi-objective", false, "rank by Pareto fronts over score and complexity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	samples, name, err := resolveDataset(*dataPath, *builtin, *seed)
	if err != nil {
		return err
	}
	if *label == "" {
		*label = name
	}

	req := nevo.RunRequest{
		Label:          *label,
		Inputs:         len(samples[0].Input),
		Outputs:        len(samples[0].Output),
		Dataset:        samples,
		PopulationSize: *population,
		Iterations:     *iterations,
		Seed:           *seed,
		Workers:        *workers,
		Selection:      *selection,
		Elitism:        *elitism,
		Provenance:     *provenance,
		EqualFitness:   *equal,
		Growth:         *growth,
		Speciation:     *speciation,
		TargetSpecies:  *targetSpecies,
		FitnessSharing: *sharing,
		MultiObjective: *multiObjective,
	}
	if *targetError >= 0 {
		target := *targetError
		req.TargetError = &target
	}
	if *mutationRate >= 0 {
		rate := *mutationRate
		req.MutationRate = &rate
	}
	if *mutationAmount >= 0 {
		amount := *mutationAmount
		req.MutationAmount = &amount
	}
	if *settingsPath != "" {
		settings, err := config.LoadSettings(*settingsPath)
		if err != nil {
			return err
		}
		req.Settings = &settings
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run completed run_id=%s label=%s seed=%d\n", summary.RunID, summary.Label, *seed)
	for i, best := range summary.FitnessHistory {
		fmt.Printf("generation=%d best_score=%.6f\n", i+1, best)
	}
	if summary.Converged {
		fmt.Printf("final_error=%.6f iterations=%s duration=%s\n",
			summary.Error,
			humanize.Comma(int64(summary.Iterations)),
			summary.Duration.Round(time.Millisecond),
		)
	} else {
		fmt.Printf("no valid network found after %s iterations\n", humanize.Comma(int64(summary.Iterations)))
	}
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*sf.artifactsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		age := e.CreatedAtUTC
		if created, err := time.Parse(time.RFC3339Nano, e.CreatedAtUTC); err == nil {
			age = humanize.Time(created)
		}
		fmt.Printf("run_id=%s label=%s created=%s iterations=%d error=%.6f converged=%t\n",
			e.RunID,
			e.Label,
			age,
			e.Iterations,
			e.FinalError,
			e.Converged,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, nevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for i, best := range history {
		fmt.Printf("generation=%d best_score=%.6f\n", i+1, best)
	}
	return nil
}

func runTelemetry(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("telemetry", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 50, "max entries to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit telemetry as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	entries, err := client.TelemetryHistory(ctx, nevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no telemetry")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	for _, entry := range entries {
		fmt.Printf("generation=%d best=%.6f species=%d mean_compat=%.4f entropy=%.4f mean_nodes=%.2f mean_conns=%.2f eval_ms=%.1f\n",
			entry.Generation,
			entry.Best,
			entry.SpeciesCount,
			entry.Diversity.MeanCompat,
			entry.Diversity.StructuralEntropy,
			entry.Complexity.MeanNodes,
			entry.Complexity.MeanConns,
			entry.Perf.EvalMillis,
		)
	}
	return nil
}

func runSpecies(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("species", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit species history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.SpeciesHistory(ctx, nevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no species history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}
	for _, snap := range history {
		fmt.Printf("generation=%d species=%d created=%d extinct=%d turnover=%.4f\n",
			snap.Generation,
			len(snap.Species),
			len(snap.Created),
			len(snap.Extinct),
			snap.Turnover,
		)
		for _, sp := range snap.Species {
			fmt.Printf("species_id=%d size=%d best=%.6f mean=%.6f age=%d\n",
				sp.ID, sp.Size, sp.BestScore, sp.MeanScore, sp.Age)
		}
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	limit := fs.Int("limit", 50, "max rows to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit lineage as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, nevo.HistoryRequest{RunID: *runID, Latest: *latest, Limit: *limit})
	if err != nil {
		return err
	}
	if len(lineage) == 0 {
		fmt.Println("no lineage records")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lineage)
	}
	for _, rec := range lineage {
		fmt.Printf("genome_id=%d depth=%d parents=%v\n", rec.GenomeID, rec.Depth, rec.Parents)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", "", "output directory (default exports dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := sf.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, nevo.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runExperiment(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("experiment", flag.ContinueOnError)
	sf := registerStoreFlags(fs)
	id := fs.String("id", "", "experiment id")
	label := fs.String("label", "", "experiment label")
	runList := fs.String("runs", "", "comma-separated run ids to aggregate")
	list := fs.Bool("list", false, "list recorded experiments")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		exps, err := stats.ListExperiments(*sf.artifactsDir)
		if err != nil {
			return err
		}
		if len(exps) == 0 {
			fmt.Println("no experiments found")
			return nil
		}
		for _, exp := range exps {
			fmt.Printf("experiment_id=%s label=%s runs=%d started=%s\n", exp.ID, exp.Label, len(exp.RunIDs), exp.StartedAtUTC)
		}
		return nil
	}

	if *id == "" {
		return errors.New("experiment requires -id")
	}
	runIDs := splitRunIDs(*runList)
	if len(runIDs) == 0 {
		return errors.New("experiment requires -runs")
	}

	exp := stats.Experiment{
		ID:           *id,
		Label:        *label,
		StartedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		RunIDs:       runIDs,
	}
	series, err := stats.BuildExperimentSeries(*sf.artifactsDir, exp)
	if err != nil {
		return err
	}
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)
	if err := stats.WriteExperiment(*sf.artifactsDir, exp); err != nil {
		return err
	}
	if err := stats.WriteExperimentSeries(*sf.artifactsDir, series); err != nil {
		return err
	}

	fmt.Printf("experiment_id=%s runs=%d generations=%d\n", exp.ID, series.Runs, len(series.MeanBest))
	for gen := range series.MeanBest {
		fmt.Printf("generation=%d mean=%.6f std=%.6f max=%.6f min=%.6f\n",
			gen+1, series.MeanBest[gen], series.StdBest[gen], series.MaxBest[gen], series.MinBest[gen])
	}
	return nil
}

func runDataset(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("dataset", flag.ContinueOnError)
	name := fs.String("name", "xor", "builtin dataset: xor|sine")
	out := fs.String("out", "", "output CSV path")
	seed := fs.Int64("seed", 1, "rng seed for generated datasets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("dataset requires -out")
	}

	samples, ok := dataset.Builtin(*name, *seed)
	if !ok {
		return fmt.Errorf("unknown builtin dataset: %s", *name)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := dataset.Write(*out, samples); err != nil {
		return err
	}
	fmt.Printf("wrote dataset=%s rows=%s path=%s\n", *name, humanize.Comma(int64(len(samples))), *out)
	return nil
}

func resolveDataset(dataPath, builtin string, seed int64) ([]genome.Sample, string, error) {
	if dataPath != "" {
		samples, err := dataset.Load(dataPath)
		if err != nil {
			return nil, "", err
		}
		return samples, strings.TrimSuffix(filepath.Base(dataPath), filepath.Ext(dataPath)), nil
	}
	samples, ok := dataset.Builtin(builtin, seed)
	if !ok {
		return nil, "", fmt.Errorf("unknown builtin dataset: %s", builtin)
	}
	return samples, builtin, nil
}

func splitRunIDs(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
