package neat

import (
	"math"
	"testing"

	"nevo/internal/genome"
)

// vectorObjectives pins each genome to a hand-built objective vector keyed by
// genome id.
func vectorObjectives(e *Engine, vectors map[int][2]float64) {
	e.ClearObjectives()
	e.RegisterObjective("a", true, func(g *genome.Genome) float64 { return vectors[g.ID][0] })
	e.RegisterObjective("b", true, func(g *genome.Genome) float64 { return vectors[g.ID][1] })
}

func TestFastNonDominatedFrontZeroIsParetoOptimal(t *testing.T) {
	e := newTestEngine(t, nil, Options{PopulationSize: 5, Seed: 7})
	pop := e.Population
	vectors := map[int][2]float64{
		pop[0].ID: {4, 1}, // front 0
		pop[1].ID: {1, 4}, // front 0
		pop[2].ID: {3, 3}, // front 0
		pop[3].ID: {2, 2}, // dominated by {3,3}
		pop[4].ID: {1, 1}, // dominated by everything above
	}
	vectorObjectives(e, vectors)

	fronts := e.FastNonDominated(pop)
	if len(fronts) != 3 {
		t.Fatalf("front count %d, want 3", len(fronts))
	}
	if len(fronts[0]) != 3 {
		t.Fatalf("front 0 size %d, want 3", len(fronts[0]))
	}
	for _, g := range fronts[0] {
		v := vectors[g.ID]
		if v == [2]float64{2, 2} || v == [2]float64{1, 1} {
			t.Fatalf("dominated vector %v landed in front 0", v)
		}
		if g.Rank != 0 {
			t.Fatalf("front 0 member has rank %d", g.Rank)
		}
	}
	if fronts[1][0].Rank != 1 || fronts[2][0].Rank != 2 {
		t.Fatalf("front ranks not annotated in peel order")
	}
}

func TestCrowdingBoundariesAreInfinite(t *testing.T) {
	e := newTestEngine(t, nil, Options{PopulationSize: 4, Seed: 7})
	pop := e.Population
	vectors := map[int][2]float64{
		pop[0].ID: {1, 4},
		pop[1].ID: {2, 3},
		pop[2].ID: {3, 2},
		pop[3].ID: {4, 1},
	}
	vectorObjectives(e, vectors)

	fronts := e.FastNonDominated(pop)
	if len(fronts) != 1 {
		t.Fatalf("front count %d, want a single front", len(fronts))
	}

	infinite := 0
	for _, g := range fronts[0] {
		v := vectors[g.ID]
		boundary := v == [2]float64{1, 4} || v == [2]float64{4, 1}
		if math.IsInf(g.Crowding, 1) {
			infinite++
			if !boundary {
				t.Fatalf("interior vector %v got infinite crowding", v)
			}
		} else {
			if boundary {
				t.Fatalf("boundary vector %v got finite crowding %v", v, g.Crowding)
			}
			if g.Crowding <= 0 {
				t.Fatalf("interior crowding %v, want positive", g.Crowding)
			}
		}
	}
	if infinite != 2 {
		t.Fatalf("%d infinite-crowding members, want the 2 boundaries", infinite)
	}
}

func TestObjectiveAccessorPanicDefaultsToZero(t *testing.T) {
	e := newTestEngine(t, nil, Options{PopulationSize: 2, Seed: 7})
	e.RegisterObjective("broken", true, func(g *genome.Genome) float64 {
		panic("accessor failure")
	})
	fronts := e.FastNonDominated(e.Population)
	if len(fronts) != 1 || len(fronts[0]) != 2 {
		t.Fatalf("all-zero vectors must share front 0, got %d fronts", len(fronts))
	}
}

func TestMinimizeObjectiveDirection(t *testing.T) {
	e := newTestEngine(t, nil, Options{PopulationSize: 2, Seed: 7})
	pop := e.Population
	sizes := map[int]float64{pop[0].ID: 1, pop[1].ID: 9}
	e.ClearObjectives()
	e.RegisterObjective("cost", false, func(g *genome.Genome) float64 { return sizes[g.ID] })

	fronts := e.FastNonDominated(pop)
	if len(fronts) != 2 {
		t.Fatalf("front count %d, want 2", len(fronts))
	}
	if sizes[fronts[0][0].ID] != 1 {
		t.Fatalf("minimize direction ignored: front 0 holds cost %v", sizes[fronts[0][0].ID])
	}
}
