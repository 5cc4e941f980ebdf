package neat

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/stat"

	"nevo/internal/genome"
)

// Telemetry is one generation's aggregated record.
type Telemetry struct {
	Generation   int             `json:"generation"`
	Best         float64         `json:"best"`
	SpeciesCount int             `json:"species"`
	Hypervolume  float64         `json:"hypervolume,omitempty"`
	Operators    []OperatorStat  `json:"operators,omitempty"`
	Diversity    DiversityStats  `json:"diversity"`
	Lineage      LineageStats    `json:"lineage"`
	Complexity   ComplexityStats `json:"complexity"`
	Perf         PerfStats       `json:"perf"`
}

// OperatorStat counts one operator's dispatch outcomes since engine start.
type OperatorStat struct {
	Name      string `json:"name"`
	Attempts  int    `json:"attempts"`
	Successes int    `json:"successes"`
}

// DiversityStats captures population spread.
type DiversityStats struct {
	MeanCompat        float64 `json:"mean_compat"`
	VarCompat         float64 `json:"var_compat"`
	StructuralEntropy float64 `json:"structural_entropy"`
	MotifEntropy      float64 `json:"motif_entropy"`
}

// ComplexityStats captures structural size.
type ComplexityStats struct {
	MeanNodes float64 `json:"mean_nodes"`
	MeanConns float64 `json:"mean_conns"`
	Max       int     `json:"max"`
}

// PerfStats captures wall-clock cost.
type PerfStats struct {
	EvalMillis   float64 `json:"eval_ms"`
	EvolveMillis float64 `json:"evolve_ms"`
}

// Telemetry returns the recorded entries, oldest first.
func (e *Engine) Telemetry() []Telemetry {
	return e.telemetry
}

// collectTelemetry assembles one generation's record, projected onto the
// configured field whitelist.
func (e *Engine) collectTelemetry(best *genome.Genome, evalMillis, evolveMillis float64) Telemetry {
	entry := Telemetry{
		Generation:   e.generation,
		SpeciesCount: len(e.species),
		Diversity:    e.diversityStats(),
		Lineage:      e.lineageStats(best),
		Complexity:   e.complexityStats(),
		Perf:         PerfStats{EvalMillis: evalMillis, EvolveMillis: evolveMillis},
	}
	if best != nil {
		entry.Best = best.Score
	}
	if e.opts.MultiObjective {
		entry.Hypervolume = e.hypervolumeProxy()
	}
	for _, name := range e.opStatOrder {
		s := e.opStats[name]
		entry.Operators = append(entry.Operators, OperatorStat{Name: name, Attempts: s.attempts, Successes: s.successes})
	}
	return applySelect(entry, e.opts.TelemetrySelect)
}

// applySelect zeroes every optional section not named in the whitelist. The
// generation, best and species core fields always survive; an empty whitelist
// keeps everything.
func applySelect(entry Telemetry, selected []string) Telemetry {
	if len(selected) == 0 {
		return entry
	}
	keep := make(map[string]struct{}, len(selected))
	for _, key := range selected {
		keep[key] = struct{}{}
	}
	if _, ok := keep["hypervolume"]; !ok {
		entry.Hypervolume = 0
	}
	if _, ok := keep["operators"]; !ok {
		entry.Operators = nil
	}
	if _, ok := keep["diversity"]; !ok {
		entry.Diversity = DiversityStats{}
	}
	if _, ok := keep["lineage"]; !ok {
		entry.Lineage = LineageStats{}
	}
	if _, ok := keep["complexity"]; !ok {
		entry.Complexity = ComplexityStats{}
	}
	if _, ok := keep["perf"]; !ok {
		entry.Perf = PerfStats{}
	}
	return entry
}

// diversityStats samples pairwise compatibility distances and two structural
// entropy measures.
func (e *Engine) diversityStats() DiversityStats {
	const maxPairs = 32
	out := DiversityStats{}
	if len(e.Population) >= 2 {
		dists := make([]float64, 0, maxPairs)
		for len(dists) < maxPairs {
			i := e.rng.Intn(len(e.Population))
			j := e.rng.Intn(len(e.Population))
			if i == j {
				continue
			}
			dists = append(dists, e.compatibilityDistance(e.Population[i], e.Population[j]))
		}
		out.MeanCompat = stat.Mean(dists, nil)
		out.VarCompat = stat.Variance(dists, nil)
	}
	out.StructuralEntropy = histogramEntropy(e.Population, func(g *genome.Genome) int {
		return g.HiddenCount()
	})
	out.MotifEntropy = histogramEntropy(e.Population, func(g *genome.Genome) int {
		// Motif bucket: fan-out shape of the busiest node, a cheap graphlet
		// stand-in.
		max := 0
		for _, n := range g.Nodes {
			if len(n.Out) > max {
				max = len(n.Out)
			}
		}
		return max
	})
	return out
}

// histogramEntropy buckets one integer feature per genome and reports the
// entropy of the normalized distribution.
func histogramEntropy(population []*genome.Genome, feature func(*genome.Genome) int) float64 {
	if len(population) == 0 {
		return 0
	}
	counts := make(map[int]float64)
	maxBucket := 0
	for _, g := range population {
		b := feature(g)
		counts[b]++
		if b > maxBucket {
			maxBucket = b
		}
	}
	dist := make([]float64, maxBucket+1)
	total := float64(len(population))
	for b, c := range counts {
		dist[b] = c / total
	}
	entropy := stat.Entropy(dist)
	if math.IsNaN(entropy) {
		return 0
	}
	return entropy
}

func (e *Engine) complexityStats() ComplexityStats {
	out := ComplexityStats{}
	if len(e.Population) == 0 {
		return out
	}
	nodes, conns := 0, 0
	for _, g := range e.Population {
		nodes += len(g.Nodes)
		conns += len(g.Conns) + len(g.SelfConns)
		if c := g.Complexity(); c > out.Max {
			out.Max = c
		}
	}
	out.MeanNodes = float64(nodes) / float64(len(e.Population))
	out.MeanConns = float64(conns) / float64(len(e.Population))
	return out
}

// hypervolumeProxy sums normalized scores weighted by inverse complexity over
// the first Pareto front.
func (e *Engine) hypervolumeProxy() float64 {
	fronts := e.FastNonDominated(e.Population)
	if len(fronts) == 0 || len(fronts[0]) == 0 {
		return 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, g := range e.Population {
		if g.Score < lo {
			lo = g.Score
		}
		if g.Score > hi {
			hi = g.Score
		}
	}
	span := hi - lo
	total := 0.0
	for _, g := range fronts[0] {
		normalized := 1.0
		if span > 0 {
			normalized = (g.Score - lo) / span
		}
		total += normalized / (1 + float64(g.Complexity()))
	}
	return total
}

// FilterTelemetry projects an entry onto the selected field names. The
// generation, best and species core fields always survive.
func FilterTelemetry(entry Telemetry, selected []string) map[string]any {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	var full map[string]any
	if err := json.Unmarshal(raw, &full); err != nil {
		return nil
	}
	if len(selected) == 0 {
		return full
	}

	keep := map[string]struct{}{"generation": {}, "best": {}, "species": {}}
	for _, key := range selected {
		keep[key] = struct{}{}
	}
	out := make(map[string]any, len(keep))
	for key, value := range full {
		if _, ok := keep[key]; ok {
			out[key] = value
		}
	}
	return out
}
