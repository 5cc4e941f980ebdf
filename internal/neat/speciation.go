package neat

import (
	"math"
	"sort"

	"nevo/internal/genome"
)

// Species is one compatibility cluster. Members are reassigned from scratch
// every generation; the representative is refreshed to the first member.
type Species struct {
	ID             int
	Members        []*genome.Genome
	Representative *genome.Genome
	Age            int
	BestScore      float64
	LastImproved   int
}

// SpeciesSnapshot is one generation's species history entry.
type SpeciesSnapshot struct {
	Generation int             `json:"generation"`
	Species    []SpeciesRecord `json:"species"`
	Created    []int           `json:"created,omitempty"`
	Extinct    []int           `json:"extinct,omitempty"`
	Turnover   float64         `json:"turnover"`
}

// SpeciesRecord summarizes one species within a snapshot.
type SpeciesRecord struct {
	ID             int     `json:"id"`
	Size           int     `json:"size"`
	BestScore      float64 `json:"best_score"`
	MeanScore      float64 `json:"mean_score"`
	Age            int     `json:"age"`
	MeanComplexity float64 `json:"mean_complexity,omitempty"`
}

// compatibilityDistance aligns connection genes by innovation key and blends
// excess, disjoint and matching-weight terms.
func (e *Engine) compatibilityDistance(a, b *genome.Genome) float64 {
	if e.opts.Distance != nil {
		return e.opts.Distance(a, b)
	}

	genesA := innovationWeights(a)
	genesB := innovationWeights(b)
	if len(genesA) == 0 && len(genesB) == 0 {
		return 0
	}

	maxA := maxInnovation(genesA)
	maxB := maxInnovation(genesB)
	cutoff := maxA
	if maxB < cutoff {
		cutoff = maxB
	}

	matching := 0
	weightDiff := 0.0
	disjoint := 0
	excess := 0
	for key, wa := range genesA {
		if wb, ok := genesB[key]; ok {
			matching++
			weightDiff += math.Abs(wa - wb)
			continue
		}
		if key > cutoff {
			excess++
		} else {
			disjoint++
		}
	}
	for key := range genesB {
		if _, ok := genesA[key]; ok {
			continue
		}
		if key > cutoff {
			excess++
		} else {
			disjoint++
		}
	}

	n := len(genesA)
	if len(genesB) > n {
		n = len(genesB)
	}
	if n < 1 {
		n = 1
	}
	meanWeightDiff := 0.0
	if matching > 0 {
		meanWeightDiff = weightDiff / float64(matching)
	}

	return e.opts.CompatExcess*float64(excess)/float64(n) +
		e.opts.CompatDisjoint*float64(disjoint)/float64(n) +
		e.opts.CompatWeight*meanWeightDiff
}

func innovationWeights(g *genome.Genome) map[int64]float64 {
	out := make(map[int64]float64, len(g.Conns))
	for _, c := range g.Conns {
		out[genome.InnovationKey(g.IndexOf(c.From), g.IndexOf(c.To))] = c.Weight
	}
	return out
}

func maxInnovation(genes map[int64]float64) int64 {
	max := int64(-1)
	for key := range genes {
		if key > max {
			max = key
		}
	}
	return max
}

// speciate reassigns every genome to a species, prunes empties, applies the
// age penalty, steers the compatibility threshold toward the target species
// count and appends a history snapshot.
func (e *Engine) speciate() {
	prev := make(map[int]struct{}, len(e.species))
	for _, sp := range e.species {
		prev[sp.ID] = struct{}{}
		sp.Members = sp.Members[:0]
	}

	for _, g := range e.Population {
		placed := false
		for _, sp := range e.species {
			if e.compatibilityDistance(g, sp.Representative) <= e.threshold {
				sp.Members = append(sp.Members, g)
				placed = true
				break
			}
		}
		if !placed {
			e.nextSpeciesID++
			e.species = append(e.species, &Species{
				ID:             e.nextSpeciesID,
				Members:        []*genome.Genome{g},
				Representative: g,
				BestScore:      math.Inf(-1),
				LastImproved:   e.generation,
			})
		}
	}

	alive := e.species[:0]
	for _, sp := range e.species {
		if len(sp.Members) == 0 {
			continue
		}
		sp.Representative = sp.Members[0]
		sp.Age++
		alive = append(alive, sp)
	}
	e.species = alive

	for _, sp := range e.species {
		if sp.Age <= e.opts.SpeciesAgeGrace {
			continue
		}
		for _, g := range sp.Members {
			g.Score *= e.opts.SpeciesAgePenalty
		}
	}

	if e.opts.TargetSpecies > 0 {
		e.steerThreshold()
	}

	e.appendSpeciesSnapshot(prev)
}

// steerThreshold runs an EMA-smoothed proportional-integral controller on the
// species count. Raising the threshold merges species; lowering splits them.
// The excess/disjoint coefficients get a slower secondary nudge in the same
// direction: shrinking them merges species the threshold alone cannot reach.
func (e *Engine) steerThreshold() {
	const (
		emaAlpha  = 0.3
		kp        = 0.08
		ki        = 0.01
		coeffGain = 0.01
	)
	count := float64(len(e.species))
	if e.speciesCountEMA == 0 {
		e.speciesCountEMA = count
	} else {
		e.speciesCountEMA = emaAlpha*count + (1-emaAlpha)*e.speciesCountEMA
	}

	delta := e.speciesCountEMA - float64(e.opts.TargetSpecies)
	e.thresholdIntegral += delta
	e.threshold += kp*delta + ki*e.thresholdIntegral

	if e.threshold < e.opts.ThresholdMin {
		e.threshold = e.opts.ThresholdMin
		e.thresholdIntegral = 0
	}
	if e.threshold > e.opts.ThresholdMax {
		e.threshold = e.opts.ThresholdMax
		e.thresholdIntegral = 0
	}

	factor := 1 - coeffGain*delta
	if factor < 0.9 {
		factor = 0.9
	}
	if factor > 1.1 {
		factor = 1.1
	}
	e.opts.CompatExcess = clampCoeff(e.opts.CompatExcess*factor, e.compatExcessBase)
	e.opts.CompatDisjoint = clampCoeff(e.opts.CompatDisjoint*factor, e.compatDisjointBase)
}

func clampCoeff(value, base float64) float64 {
	if value < base/4 {
		return base / 4
	}
	if value > base*4 {
		return base * 4
	}
	return value
}

func (e *Engine) appendSpeciesSnapshot(prev map[int]struct{}) {
	snap := SpeciesSnapshot{Generation: e.generation}
	current := make(map[int]struct{}, len(e.species))
	for _, sp := range e.species {
		current[sp.ID] = struct{}{}
		rec := SpeciesRecord{
			ID:        sp.ID,
			Size:      len(sp.Members),
			BestScore: math.Inf(-1),
			Age:       sp.Age,
		}
		sum := 0.0
		complexity := 0
		for _, g := range sp.Members {
			sum += g.Score
			complexity += g.Complexity()
			if g.Score > rec.BestScore {
				rec.BestScore = g.Score
			}
		}
		rec.MeanScore = sum / float64(len(sp.Members))
		if e.opts.ExtendedHistory {
			rec.MeanComplexity = float64(complexity) / float64(len(sp.Members))
		}
		snap.Species = append(snap.Species, rec)
	}

	for id := range current {
		if _, ok := prev[id]; !ok {
			snap.Created = append(snap.Created, id)
		}
	}
	for id := range prev {
		if _, ok := current[id]; !ok {
			snap.Extinct = append(snap.Extinct, id)
		}
	}
	sort.Ints(snap.Created)
	sort.Ints(snap.Extinct)
	if len(prev) > 0 {
		snap.Turnover = float64(len(snap.Created)+len(snap.Extinct)) / float64(len(prev)+len(current))
	}

	e.speciesHistory = append(e.speciesHistory, snap)
	if len(e.speciesHistory) > e.opts.HistoryCap {
		e.speciesHistory = e.speciesHistory[len(e.speciesHistory)-e.opts.HistoryCap:]
	}
}

// applyFitnessSharing divides each genome's score among its species. A
// positive bandwidth selects kernel sharing with quadratic falloff; zero
// divides equally by species size.
func (e *Engine) applyFitnessSharing() {
	if e.opts.SharingBandwidth > 0 {
		bw := e.opts.SharingBandwidth
		for _, sp := range e.species {
			for _, g := range sp.Members {
				niche := 0.0
				for _, other := range sp.Members {
					d := e.compatibilityDistance(g, other)
					if d < bw {
						niche += 1 - (d/bw)*(d/bw)
					}
				}
				if niche > 0 {
					g.Score /= niche
				}
			}
		}
		e.sorted = false
		return
	}

	for _, sp := range e.species {
		size := float64(len(sp.Members))
		for _, g := range sp.Members {
			g.Score /= size
		}
	}
	e.sorted = false
}

// updateSpeciesStagnation re-sorts members, refreshes best-score bookkeeping
// and drops species that have not improved inside the stagnation window.
// Members of a dropped species leave the population with it.
func (e *Engine) updateSpeciesStagnation() {
	kept := e.species[:0]
	survivors := make([]*genome.Genome, 0, len(e.Population))
	for _, sp := range e.species {
		sort.SliceStable(sp.Members, func(i, j int) bool {
			return sp.Members[i].Score > sp.Members[j].Score
		})
		if sp.Members[0].Score > sp.BestScore {
			sp.BestScore = sp.Members[0].Score
			sp.LastImproved = e.generation
		}
		if e.generation-sp.LastImproved > e.opts.StagnationWindow && len(e.species) > 1 {
			continue
		}
		kept = append(kept, sp)
		survivors = append(survivors, sp.Members...)
	}

	if len(kept) < len(e.species) {
		e.species = kept
		e.Population = survivors
		e.sorted = false
	} else {
		e.species = kept
	}
}

// SpeciesStats reports the current species partition.
func (e *Engine) SpeciesStats() []SpeciesRecord {
	out := make([]SpeciesRecord, 0, len(e.species))
	for _, sp := range e.species {
		rec := SpeciesRecord{ID: sp.ID, Size: len(sp.Members), Age: sp.Age, BestScore: math.Inf(-1)}
		sum := 0.0
		for _, g := range sp.Members {
			sum += g.Score
			if g.Score > rec.BestScore {
				rec.BestScore = g.Score
			}
		}
		if len(sp.Members) > 0 {
			rec.MeanScore = sum / float64(len(sp.Members))
		}
		out = append(out, rec)
	}
	return out
}

// SpeciesHistory returns the capped per-generation snapshot list.
func (e *Engine) SpeciesHistory() []SpeciesSnapshot {
	return e.speciesHistory
}
