package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RunSummary condenses a run's fitness history into headline numbers.
type RunSummary struct {
	RunID       string  `json:"run_id"`
	Generations int     `json:"generations"`
	FinalError  float64 `json:"final_error"`
	Converged   bool    `json:"converged"`
	BestScore   float64 `json:"best_score"`
	WorstScore  float64 `json:"worst_score"`
	MeanScore   float64 `json:"mean_score"`
	StdDev      float64 `json:"std_dev"`
	MeanSpecies float64 `json:"mean_species,omitempty"`
}

// Summarize reduces a run's per-generation bests to summary statistics.
// Non-finite entries are excluded so one failed evaluation cannot poison
// the aggregate.
func Summarize(artifacts RunArtifacts) RunSummary {
	// Zero-valued score fields when no finite history exists; Inf would not
	// survive a JSON encode.
	summary := RunSummary{
		RunID:       artifacts.RunID,
		Generations: len(artifacts.FitnessHistory),
		FinalError:  artifacts.FinalError,
		Converged:   artifacts.Converged,
	}

	finite := make([]float64, 0, len(artifacts.FitnessHistory))
	for _, v := range artifacts.FitnessHistory {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) > 0 {
		summary.BestScore = floats.Max(finite)
		summary.WorstScore = floats.Min(finite)
		summary.MeanScore = stat.Mean(finite, nil)
	}
	if len(finite) > 1 {
		summary.StdDev = stat.StdDev(finite, nil)
	}

	if len(artifacts.Telemetry) > 0 {
		counts := make([]float64, len(artifacts.Telemetry))
		for i, entry := range artifacts.Telemetry {
			counts[i] = float64(entry.SpeciesCount)
		}
		summary.MeanSpecies = stat.Mean(counts, nil)
	}

	return summary
}
