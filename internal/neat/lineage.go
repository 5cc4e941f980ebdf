package neat

import (
	"sort"

	"nevo/internal/genome"
)

// LineageStats summarizes parentage structure for one generation.
type LineageStats struct {
	BestParents        []int   `json:"best_parents,omitempty"`
	BestDepth          int     `json:"best_depth"`
	MeanDepth          float64 `json:"mean_depth"`
	AncestorUniqueness float64 `json:"ancestor_uniqueness"`
}

// LineageRecord is one genome's parentage, suitable for persistence.
type LineageRecord struct {
	GenomeID int   `json:"genome_id"`
	Parents  []int `json:"parents,omitempty"`
	Depth    int   `json:"depth"`
}

// LineageRecords returns parentage for every genome the engine has seen,
// ordered by genome id.
func (e *Engine) LineageRecords() []LineageRecord {
	out := make([]LineageRecord, 0, len(e.byID))
	for id, g := range e.byID {
		out = append(out, LineageRecord{
			GenomeID: id,
			Parents:  append([]int(nil), g.Parents...),
			Depth:    g.Depth,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GenomeID < out[j].GenomeID })
	return out
}

// ancestorSet walks parent links breadth-first up to the configured depth
// window, collecting deduplicated ancestor ids.
func (e *Engine) ancestorSet(g *genome.Genome) map[int]struct{} {
	out := make(map[int]struct{})
	frontier := append([]int(nil), g.Parents...)
	for depth := 0; depth < e.opts.AncestorWindow && len(frontier) > 0; depth++ {
		var next []int
		for _, id := range frontier {
			if _, seen := out[id]; seen {
				continue
			}
			out[id] = struct{}{}
			if parent, ok := e.byID[id]; ok {
				next = append(next, parent.Parents...)
			}
		}
		frontier = next
	}
	return out
}

// ancestorUniqueness samples genome pairs and averages the Jaccard distance
// between their ancestor sets. 1 means fully distinct lineages.
func (e *Engine) ancestorUniqueness() float64 {
	const maxPairs = 32
	if len(e.Population) < 2 {
		return 0
	}

	total := 0.0
	pairs := 0
	for pairs < maxPairs {
		i := e.rng.Intn(len(e.Population))
		j := e.rng.Intn(len(e.Population))
		if i == j {
			continue
		}
		a := e.ancestorSet(e.Population[i])
		b := e.ancestorSet(e.Population[j])
		total += jaccardDistance(a, b)
		pairs++
	}
	return total / float64(pairs)
}

func jaccardDistance(a, b map[int]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for id := range a {
		if _, ok := b[id]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return 1 - float64(intersection)/float64(union)
}

// lineageStats builds the per-generation lineage summary.
func (e *Engine) lineageStats(best *genome.Genome) LineageStats {
	stats := LineageStats{}
	if best != nil {
		stats.BestParents = append([]int(nil), best.Parents...)
		stats.BestDepth = best.Depth
	}
	if len(e.Population) > 0 {
		sum := 0
		for _, g := range e.Population {
			sum += g.Depth
		}
		stats.MeanDepth = float64(sum) / float64(len(e.Population))
	}
	stats.AncestorUniqueness = e.ancestorUniqueness()
	return stats
}
