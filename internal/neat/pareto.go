package neat

import (
	"math"
	"sort"

	"nevo/internal/genome"
)

// rankCap bounds front peeling against pathological inputs.
const rankCap = 50

// Objective describes one optimization axis. Accessor failures (panics)
// default the value to 0.
type Objective struct {
	Key      string
	Maximize bool
	Accessor func(g *genome.Genome) float64
}

// RegisterObjective appends an objective descriptor.
func (e *Engine) RegisterObjective(key string, maximize bool, accessor func(g *genome.Genome) float64) {
	e.objectives = append(e.objectives, Objective{Key: key, Maximize: maximize, Accessor: accessor})
}

// ClearObjectives drops all registered objectives.
func (e *Engine) ClearObjectives() {
	e.objectives = nil
}

// defaultObjectives maximizes score and minimizes structural complexity.
func defaultObjectives() []Objective {
	return []Objective{
		{Key: "fitness", Maximize: true, Accessor: func(g *genome.Genome) float64 { return g.Score }},
		{Key: "complexity", Maximize: false, Accessor: func(g *genome.Genome) float64 { return float64(g.Complexity()) }},
	}
}

func objectiveValue(obj Objective, g *genome.Genome) (v float64) {
	defer func() {
		if recover() != nil {
			v = 0
		}
	}()
	return obj.Accessor(g)
}

// FastNonDominated partitions the population into Pareto fronts, annotating
// each genome's Rank and Crowding in place. Front 0 is the non-dominated set.
func (e *Engine) FastNonDominated(population []*genome.Genome) [][]*genome.Genome {
	objectives := e.objectives
	if len(objectives) == 0 {
		objectives = defaultObjectives()
	}

	vectors := make([][]float64, len(population))
	for i, g := range population {
		vec := make([]float64, len(objectives))
		for j, obj := range objectives {
			vec[j] = objectiveValue(obj, g)
		}
		vectors[i] = vec
	}

	dominates := func(a, b []float64) bool {
		strict := false
		for j, obj := range objectives {
			av, bv := a[j], b[j]
			if !obj.Maximize {
				av, bv = -av, -bv
			}
			if av < bv {
				return false
			}
			if av > bv {
				strict = true
			}
		}
		return strict
	}

	dominationCount := make([]int, len(population))
	dominated := make([][]int, len(population))
	var front []int
	for i := range population {
		for j := range population {
			if i == j {
				continue
			}
			if dominates(vectors[i], vectors[j]) {
				dominated[i] = append(dominated[i], j)
			} else if dominates(vectors[j], vectors[i]) {
				dominationCount[i]++
			}
		}
		if dominationCount[i] == 0 {
			front = append(front, i)
		}
	}

	var fronts [][]*genome.Genome
	rank := 0
	for len(front) > 0 && rank < rankCap {
		members := make([]*genome.Genome, 0, len(front))
		for _, idx := range front {
			population[idx].Rank = rank
			members = append(members, population[idx])
		}
		e.crowdingDistance(members, front, vectors, objectives)
		fronts = append(fronts, members)

		var next []int
		for _, idx := range front {
			for _, j := range dominated[idx] {
				dominationCount[j]--
				if dominationCount[j] == 0 {
					next = append(next, j)
				}
			}
		}
		front = next
		rank++
	}
	return fronts
}

// crowdingDistance accumulates normalized neighbor gaps per objective;
// boundary genomes get infinite distance.
func (e *Engine) crowdingDistance(members []*genome.Genome, indices []int, vectors [][]float64, objectives []Objective) {
	for _, g := range members {
		g.Crowding = 0
	}
	if len(members) <= 2 {
		for _, g := range members {
			g.Crowding = math.Inf(1)
		}
		return
	}

	order := make([]int, len(members))
	for j := range objectives {
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return vectors[indices[order[a]]][j] < vectors[indices[order[b]]][j]
		})

		lo := vectors[indices[order[0]]][j]
		hi := vectors[indices[order[len(order)-1]]][j]
		members[order[0]].Crowding = math.Inf(1)
		members[order[len(order)-1]].Crowding = math.Inf(1)
		span := hi - lo
		if span == 0 {
			continue
		}
		for i := 1; i < len(order)-1; i++ {
			prev := vectors[indices[order[i-1]]][j]
			next := vectors[indices[order[i+1]]][j]
			members[order[i]].Crowding += (next - prev) / span
		}
	}
}
