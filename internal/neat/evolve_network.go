package neat

import (
	"fmt"
	"math"
	"time"

	"nevo/internal/genome"
)

// nonFiniteAbortThreshold ends a run after this many consecutive NaN or
// infinite derived errors.
const nonFiniteAbortThreshold = 5

// EvolveOptions configures EvolveNetwork. At least one of Iterations and
// TargetError must be set; the other defaults to an open-ended sentinel.
type EvolveOptions struct {
	Options

	Iterations  *int
	TargetError *float64
	Cost        genome.CostFunc
	Repeats     int

	// Clear resets the evolved genome's activation state on completion.
	Clear bool

	// OnEngine, when set, receives the engine before the first generation.
	// Callers use it to observe telemetry, species and lineage afterwards.
	OnEngine func(*Engine)
}

// Result reports an EvolveNetwork run.
type Result struct {
	Error      float64       `json:"error"`
	Iterations int           `json:"iterations"`
	Duration   time.Duration `json:"duration"`
}

// EvolveNetwork evolves g against the dataset until the target error is
// reached or the iteration cap is hit, then replaces g's structure in place
// with the best genome found.
func EvolveNetwork(g *genome.Genome, dataset []genome.Sample, opts EvolveOptions) (Result, error) {
	start := time.Now()

	if err := validateDataset(g, dataset); err != nil {
		return Result{}, err
	}
	if opts.Iterations == nil && opts.TargetError == nil {
		return Result{}, fmt.Errorf("at least one of iterations and target error is required")
	}
	iterations := math.MaxInt
	if opts.Iterations != nil {
		if *opts.Iterations < 0 {
			return Result{}, fmt.Errorf("iterations must be >= 0, got %d", *opts.Iterations)
		}
		iterations = *opts.Iterations
	}
	targetError := math.Inf(-1)
	if opts.TargetError != nil {
		targetError = *opts.TargetError
	}
	cost := opts.Cost
	if cost == nil {
		cost = genome.MSE
	}
	repeats := opts.Repeats
	if repeats < 1 {
		repeats = 1
	}

	engineOpts := opts.Options
	if engineOpts.Network == nil {
		engineOpts.Network = g
	}
	growth := engineOpts.Growth

	fitness := func(candidate *genome.Genome) float64 {
		total := 0.0
		for r := 0; r < repeats; r++ {
			candidate.ClearState()
			res, err := candidate.Test(dataset, cost)
			if err != nil {
				return math.Inf(-1)
			}
			total += res
		}
		return -total/float64(repeats) - growth*float64(candidate.Complexity())
	}

	engine, err := NewEngine(g.InputCount, g.OutputCount, fitness, engineOpts)
	if err != nil {
		return Result{}, err
	}
	cfg := engine.cfg
	if opts.OnEngine != nil {
		opts.OnEngine(engine)
	}

	var best *genome.Genome
	bestError := math.Inf(1)
	nonFinite := 0

	for iter := 0; iter < iterations; iter++ {
		fittest, err := engine.Evolve()
		if err != nil {
			return Result{}, err
		}

		fittest.ClearState()
		derived, err := fittest.Test(dataset, cost)
		if err != nil {
			return Result{}, err
		}
		if math.IsNaN(derived) || math.IsInf(derived, 0) {
			nonFinite++
			if nonFinite >= nonFiniteAbortThreshold {
				cfg.Warnf("neat: aborting after %d consecutive non-finite errors", nonFinite)
				break
			}
			continue
		}
		nonFinite = 0

		if derived < bestError {
			bestError = derived
			best = fittest
		}
		if bestError <= targetError {
			break
		}
	}

	if best == nil {
		cfg.Warnf("neat: no valid best genome found")
		return Result{
			Error:      math.Inf(1),
			Iterations: engine.Generation(),
			Duration:   time.Since(start),
		}, nil
	}

	g.ReplaceStructure(best)
	if opts.Clear {
		g.ClearState()
	}
	return Result{
		Error:      bestError,
		Iterations: engine.Generation(),
		Duration:   time.Since(start),
	}, nil
}

func validateDataset(g *genome.Genome, dataset []genome.Sample) error {
	if len(dataset) == 0 {
		return fmt.Errorf("dataset is empty")
	}
	for i, sample := range dataset {
		if len(sample.Input) != g.InputCount {
			return fmt.Errorf("sample %d input size %d does not match genome inputs %d", i, len(sample.Input), g.InputCount)
		}
		if len(sample.Output) != g.OutputCount {
			return fmt.Errorf("sample %d output size %d does not match genome outputs %d", i, len(sample.Output), g.OutputCount)
		}
	}
	return nil
}
