package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const experimentsDir = "experiments"

// Experiment groups repeated runs of the same setup so their fitness
// trajectories can be aggregated across seeds.
type Experiment struct {
	ID             string   `json:"id"`
	Label          string   `json:"label,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	StartedAtUTC   string   `json:"started_at_utc,omitempty"`
	CompletedAtUTC string   `json:"completed_at_utc,omitempty"`
	RunIDs         []string `json:"run_ids,omitempty"`
}

// ExperimentSeries holds per-generation statistics aggregated over an
// experiment's runs. Generations past a shorter run's end reuse its last
// recorded best.
type ExperimentSeries struct {
	ExperimentID string    `json:"experiment_id"`
	Runs         int       `json:"runs"`
	MeanBest     []float64 `json:"mean_best"`
	StdBest      []float64 `json:"std_best"`
	MaxBest      []float64 `json:"max_best"`
	MinBest      []float64 `json:"min_best"`
}

func WriteExperiment(baseDir string, exp Experiment) error {
	if exp.ID == "" {
		return fmt.Errorf("experiment id is required")
	}
	path := experimentPath(baseDir, exp.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return writeJSON(path, exp)
}

func ReadExperiment(baseDir, id string) (Experiment, bool, error) {
	if id == "" {
		return Experiment{}, false, fmt.Errorf("experiment id is required")
	}
	data, err := os.ReadFile(experimentPath(baseDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return Experiment{}, false, nil
		}
		return Experiment{}, false, err
	}
	var exp Experiment
	if err := json.Unmarshal(data, &exp); err != nil {
		return Experiment{}, false, err
	}
	return exp, true, nil
}

func ListExperiments(baseDir string) ([]Experiment, error) {
	root := filepath.Join(baseDir, experimentsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Experiment{}, nil
		}
		return nil, err
	}

	exps := make([]Experiment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		exp, ok, err := ReadExperiment(baseDir, entry.Name())
		if err != nil {
			return nil, err
		}
		if ok {
			exps = append(exps, exp)
		}
	}
	sort.Slice(exps, func(i, j int) bool {
		if exps[i].StartedAtUTC == exps[j].StartedAtUTC {
			return exps[i].ID < exps[j].ID
		}
		return exps[i].StartedAtUTC > exps[j].StartedAtUTC
	})
	return exps, nil
}

// BuildExperimentSeries aggregates the fitness histories of an experiment's
// runs into per-generation mean, deviation and envelope curves.
func BuildExperimentSeries(baseDir string, exp Experiment) (ExperimentSeries, error) {
	series := ExperimentSeries{ExperimentID: exp.ID}
	histories := make([][]float64, 0, len(exp.RunIDs))
	maxLen := 0
	for _, runID := range exp.RunIDs {
		artifacts, ok, err := ReadRunArtifacts(baseDir, runID)
		if err != nil {
			return ExperimentSeries{}, err
		}
		if !ok {
			return ExperimentSeries{}, fmt.Errorf("run artifacts not found for run id: %s", runID)
		}
		if len(artifacts.FitnessHistory) == 0 {
			continue
		}
		histories = append(histories, artifacts.FitnessHistory)
		if len(artifacts.FitnessHistory) > maxLen {
			maxLen = len(artifacts.FitnessHistory)
		}
	}
	series.Runs = len(histories)
	if len(histories) == 0 {
		return series, nil
	}

	series.MeanBest = make([]float64, maxLen)
	series.StdBest = make([]float64, maxLen)
	series.MaxBest = make([]float64, maxLen)
	series.MinBest = make([]float64, maxLen)
	column := make([]float64, len(histories))
	for gen := 0; gen < maxLen; gen++ {
		for i, history := range histories {
			if gen < len(history) {
				column[i] = history[gen]
			} else {
				column[i] = history[len(history)-1]
			}
		}
		series.MeanBest[gen] = stat.Mean(column, nil)
		if len(column) > 1 {
			series.StdBest[gen] = stat.StdDev(column, nil)
		}
		max, min := column[0], column[0]
		for _, v := range column[1:] {
			if v > max {
				max = v
			}
			if v < min {
				min = v
			}
		}
		series.MaxBest[gen] = max
		series.MinBest[gen] = min
	}
	return series, nil
}

// WriteExperimentSeries stores the aggregate next to the experiment record.
func WriteExperimentSeries(baseDir string, series ExperimentSeries) error {
	if series.ExperimentID == "" {
		return fmt.Errorf("experiment id is required")
	}
	dir := filepath.Join(baseDir, experimentsDir, series.ExperimentID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "series.json"), series)
}

func experimentPath(baseDir, id string) string {
	return filepath.Join(baseDir, experimentsDir, id, "experiment.json")
}
